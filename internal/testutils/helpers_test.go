package testutils

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/vei/internal/plugins/css"
)

func TestCreateTempProject(t *testing.T) {
	root := CreateTempProject(t, StandardProject)

	for name, want := range StandardProject {
		got, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(name)))
		require.NoError(t, err, name)
		assert.Equal(t, want, string(got), name)
	}
}

func TestIdentityCSS(t *testing.T) {
	res, err := IdentityCSS.Transform(context.Background(), css.TransformRequest{Code: []byte("a{}")})
	require.NoError(t, err)
	assert.Equal(t, "a{}", string(res.CSS))
}
