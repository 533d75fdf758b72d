package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/vei/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.Root)
	assert.Equal(t, ModeDevelopment, cfg.Mode)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultHost, cfg.Server.Host)
	assert.Equal(t, "/", cfg.Build.Base)
	assert.Nil(t, cfg.Build.Minify)
	assert.Equal(t, []string{DefaultEnvPrefix}, cfg.Env.Prefixes)
	assert.Equal(t, DefaultCSSCommand, cfg.CSS.Command)
	assert.Equal(t, DefaultDebounce, cfg.Watch.Debounce)
	assert.Equal(t, []string{"node_modules", ".git"}, cfg.Watch.Ignore)
	assert.False(t, cfg.IsProduction())
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		values      map[string]interface{}
		expectError bool
		code        string
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "custom values",
			values: map[string]interface{}{
				"mode":             "production",
				"server.port":      8080,
				"build.out_dir":    "build",
				"build.minify":     false,
				"env.prefixes":     []string{"APP_", "VEI_"},
				"watch.debounce":   "200ms",
				"css.command":      "tailwindcss",
				"plugins.disabled": []string{"progress"},
			},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.IsProduction())
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "build", cfg.Build.OutDir)
				require.NotNil(t, cfg.Build.Minify)
				assert.False(t, *cfg.Build.Minify)
				assert.Equal(t, []string{"APP_", "VEI_"}, cfg.Env.Prefixes)
				assert.Equal(t, 200*time.Millisecond, cfg.Watch.Debounce)
				assert.Equal(t, "tailwindcss", cfg.CSS.Command)
				assert.Equal(t, []string{"progress"}, cfg.Plugins.Disabled)
			},
		},
		{
			name:        "reserved mode",
			values:      map[string]interface{}{"mode": "local"},
			expectError: true,
			code:        errors.ErrCodeReservedMode,
		},
		{
			name:        "port out of range",
			values:      map[string]interface{}{"server.port": 70000},
			expectError: true,
			code:        errors.ErrCodeConfigInvalid,
		},
		{
			name:        "dangerous host",
			values:      map[string]interface{}{"server.host": "localhost;rm"},
			expectError: true,
			code:        errors.ErrCodeConfigInvalid,
		},
		{
			name:        "relative base",
			values:      map[string]interface{}{"build.base": "assets/"},
			expectError: true,
			code:        errors.ErrCodeConfigInvalid,
		},
		{
			name:        "shell in css command",
			values:      map[string]interface{}{"css.command": "postcss; rm -rf /"},
			expectError: true,
			code:        errors.ErrCodeConfigInvalid,
		},
		{
			name:        "base breaking out of attribute",
			values:      map[string]interface{}{"build.base": `/app/"><script>`},
			expectError: true,
			code:        errors.ErrCodeConfigInvalid,
		},
		{
			name:        "unknown sourcemap",
			values:      map[string]interface{}{"build.sourcemap": "external"},
			expectError: true,
			code:        errors.ErrCodeConfigInvalid,
		},
		{
			name:        "protected plugin",
			values:      map[string]interface{}{"plugins.disabled": []string{"css"}},
			expectError: true,
			code:        errors.ErrCodeConfigInvalid,
		},
		{
			name:        "invalid port type",
			values:      map[string]interface{}{"server.port": "invalid_port"},
			expectError: true,
			code:        errors.ErrCodeConfigInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			for k, val := range tt.values {
				v.Set(k, val)
			}

			cfg, err := LoadFrom(v)
			if tt.expectError {
				require.Error(t, err)
				assert.Nil(t, cfg)
				assert.True(t, errors.IsConfigError(err))
				assert.True(t, errors.HasCode(err, tt.code))
				return
			}

			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".vei.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 4000
  open: true
build:
  public_dir: static
log:
  level: debug
  format: json
`), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.True(t, cfg.Server.Open)
	assert.Equal(t, "static", cfg.Build.PublicDir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestResolveDir(t *testing.T) {
	assert.Equal(t, filepath.Join("/proj", "dist"), ResolveDir("/proj", "", "dist"))
	assert.Equal(t, filepath.Join("/proj", "out"), ResolveDir("/proj", "out", "dist"))
	assert.Equal(t, "/abs/out", ResolveDir("/proj", "/abs/out/", "dist"))
}
