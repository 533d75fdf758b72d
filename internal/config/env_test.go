package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/vei/internal/errors"
)

func writeEnvFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	writeEnvFile(t, dir, ".env", "VEI_A=env\nVEI_B=env\nVEI_C=env\nVEI_D=env\nSECRET=hidden\n")
	writeEnvFile(t, dir, ".env.local", "VEI_B=env.local\nVEI_C=env.local\nVEI_D=env.local\n")
	writeEnvFile(t, dir, ".env.development", "VEI_C=env.development\nVEI_D=env.development\n")
	writeEnvFile(t, dir, ".env.development.local", "VEI_D=env.development.local\n")

	env, err := LoadEnv(EnvOptions{
		Mode:      ModeDevelopment,
		Dir:       dir,
		Environ:   []string{"VEI_HOST=host", "VEI_A=host", "PATH=/bin"},
		Overrides: map[string]string{"VEI_A": "inline"},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"VEI_A":    "inline",
		"VEI_B":    "env.local",
		"VEI_C":    "env.development",
		"VEI_D":    "env.development.local",
		"VEI_HOST": "host",
	}, env.Vars)
	assert.Len(t, env.Files, 4)
}

func TestLoadEnvPrefixesAndNodeEnv(t *testing.T) {
	dir := t.TempDir()
	writeEnvFile(t, dir, ".env", "APP_NAME=demo\nVEI_NAME=vei\nNODE_ENV=staging\n")

	env, err := LoadEnv(EnvOptions{
		Mode:     ModeProduction,
		Dir:      dir,
		Prefixes: []string{"APP_"},
		Environ:  []string{},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"APP_NAME": "demo"}, env.Vars)
	assert.Equal(t, "staging", env.NodeEnv)
}

func TestLoadEnvExpansion(t *testing.T) {
	dir := t.TempDir()
	writeEnvFile(t, dir, ".env", "VEI_HOST=example.com\nVEI_URL=https://${VEI_HOST}/api\n")

	env, err := LoadEnv(EnvOptions{Mode: ModeDevelopment, Dir: dir, Environ: []string{}})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/api", env.Vars["VEI_URL"])

	_, set := os.LookupEnv("VEI_URL")
	assert.False(t, set)
}

func TestLoadEnvUpwardSearch(t *testing.T) {
	parent := t.TempDir()
	child := filepath.Join(parent, "app", "web")
	require.NoError(t, os.MkdirAll(child, 0o755))
	writeEnvFile(t, parent, ".env", "VEI_FROM_PARENT=yes\n")

	env, err := LoadEnv(EnvOptions{Mode: ModeDevelopment, Dir: child, Environ: []string{}})
	require.NoError(t, err)
	assert.Equal(t, "yes", env.Vars["VEI_FROM_PARENT"])
}

func TestLoadEnvReservedMode(t *testing.T) {
	_, err := LoadEnv(EnvOptions{Mode: "local", Dir: t.TempDir()})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeReservedMode))
}

func TestParseOverrides(t *testing.T) {
	out, err := ParseOverrides([]string{"VEI_A=1", "VEI_B=x=y", "VEI_C="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"VEI_A": "1", "VEI_B": "x=y", "VEI_C": ""}, out)

	_, err = ParseOverrides([]string{"novalue"})
	assert.Error(t, err)
}
