package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/conneroisu/vei/internal/errors"
)

// EnvOptions controls which variables are exposed to client code.
type EnvOptions struct {
	Mode     string
	Dir      string
	Prefixes []string
	// Overrides are inline KEY=VALUE pairs and beat every other source.
	Overrides map[string]string
	// Environ defaults to os.Environ().
	Environ []string
}

// Env is the resolved client environment.
type Env struct {
	Vars map[string]string
	// NodeEnv is set when a dot-env file assigns NODE_ENV.
	NodeEnv string
	// Files lists the dot-env files that were read.
	Files []string
}

// LoadEnv resolves the variables exposed to client code. Precedence is
// overrides, host environment, .env.<mode>.local, .env.<mode>, .env.local,
// then .env. Files are looked up from Dir upwards. The host environment is
// never modified.
func LoadEnv(opts EnvOptions) (*Env, error) {
	if opts.Mode == "local" {
		return nil, errors.ErrReservedMode(opts.Mode)
	}

	prefixes := opts.Prefixes
	if len(prefixes) == 0 {
		prefixes = []string{DefaultEnvPrefix}
	}
	exposed := func(key string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(key, p) {
				return true
			}
		}
		return false
	}

	env := &Env{Vars: make(map[string]string)}
	for k, v := range opts.Overrides {
		env.Vars[k] = v
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !exposed(key) {
			continue
		}
		if _, set := env.Vars[key]; !set {
			env.Vars[key] = value
		}
	}

	files := []string{
		".env." + opts.Mode + ".local",
		".env." + opts.Mode,
		".env.local",
		".env",
	}
	for _, name := range files {
		path := LookupFile(opts.Dir, name)
		if path == "" {
			continue
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.NewIOError(errors.ErrCodeFileNotFound, "failed to read env file", err).WithFile(path)
		}
		parsed, err := godotenv.Parse(bytes.NewReader(content))
		if err != nil {
			return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("failed to parse %s: %v", path, err)).WithFile(path)
		}
		env.Files = append(env.Files, path)

		for key, value := range parsed {
			if exposed(key) {
				if _, set := env.Vars[key]; !set {
					env.Vars[key] = value
				}
			} else if key == "NODE_ENV" && env.NodeEnv == "" {
				env.NodeEnv = value
			}
		}
	}

	return env, nil
}

// LookupFile searches dir and its parents for the first existing regular file
// among names and returns its path, or "" when none exists.
func LookupFile(dir string, names ...string) string {
	dir = filepath.Clean(dir)
	for {
		for _, name := range names {
			full := filepath.Join(dir, name)
			if info, err := os.Stat(full); err == nil && info.Mode().IsRegular() {
				return full
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ParseOverrides turns KEY=VALUE flags into an override map.
func ParseOverrides(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("invalid env override %q, expected KEY=VALUE", pair))
		}
		out[key] = value
	}

	return out, nil
}
