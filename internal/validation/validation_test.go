package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/conneroisu/vei/internal/testutils"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "localhost", url: "http://localhost:3000/"},
		{name: "https with base", url: "https://127.0.0.1:4173/app/"},
		{name: "javascript", url: "javascript:alert(1)", wantErr: true},
		{name: "file", url: "file:///etc/passwd", wantErr: true},
		{name: "no host", url: "http://", wantErr: true},
		{name: "empty", url: "", wantErr: true},
		{name: "spaces", url: "http://localhost:3000/ x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	for _, payload := range testutils.CommandInjection {
		assert.Error(t, ValidateURL("http://localhost:3000/"+payload), payload)
	}
}

func TestValidateCommand(t *testing.T) {
	for _, ok := range []string{"postcss", "tailwindcss", "./node_modules/.bin/postcss", "/usr/local/bin/lightningcss"} {
		assert.NoError(t, ValidateCommand(ok), ok)
	}

	assert.Error(t, ValidateCommand(""))
	assert.Error(t, ValidateCommand("postcss --verbose"))
	for _, payload := range testutils.CommandInjection {
		assert.Error(t, ValidateCommand(payload), payload)
	}
}

func TestValidateHost(t *testing.T) {
	for _, ok := range []string{"", "localhost", "0.0.0.0", "::1", "dev.example.test"} {
		assert.NoError(t, ValidateHost(ok), ok)
	}
	for _, bad := range []string{"localhost;rm", "local host", "host/path", "$(id)"} {
		assert.Error(t, ValidateHost(bad), bad)
	}
}

func TestValidateBase(t *testing.T) {
	tests := []struct {
		base    string
		wantErr bool
	}{
		{base: ""},
		{base: "/"},
		{base: "/app/"},
		{base: "https://cdn.example.com/assets/"},
		{base: "assets/", wantErr: true},
		{base: "//cdn.example.com/", wantErr: true},
		{base: "ftp://cdn.example.com/", wantErr: true},
		{base: `/app/"><script>`, wantErr: true},
		{base: "/app with space/", wantErr: true},
	}
	for _, tt := range tests {
		err := ValidateBase(tt.base)
		if tt.wantErr {
			assert.Error(t, err, tt.base)
		} else {
			assert.NoError(t, err, tt.base)
		}
	}
}
