// Package config provides configuration management for vei using Viper for
// flexible configuration loading from files, environment variables, and
// command-line flags.
//
// The configuration system supports a .vei.yml file, environment variable
// overrides with the VEI_ prefix, and validation. Dot-env files that feed the
// client-side define table are handled separately by LoadEnv.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/vei/internal/errors"
	"github.com/conneroisu/vei/internal/validation"
)

const (
	ModeDevelopment = "development"
	ModeProduction  = "production"

	DefaultPort       = 3000
	DefaultHost       = "localhost"
	DefaultEnvPrefix  = "VEI_"
	DefaultCSSCommand = "postcss"
	DefaultDebounce   = 50 * time.Millisecond
)

type Config struct {
	Root    string        `mapstructure:"root"`
	Mode    string        `mapstructure:"mode"`
	Server  ServerConfig  `mapstructure:"server"`
	Build   BuildConfig   `mapstructure:"build"`
	Env     EnvConfig     `mapstructure:"env"`
	CSS     CSSConfig     `mapstructure:"css"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Log     LogConfig     `mapstructure:"log"`
	Plugins PluginsConfig `mapstructure:"plugins"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	Open bool   `mapstructure:"open"`
}

type BuildConfig struct {
	OutDir    string `mapstructure:"out_dir"`
	PublicDir string `mapstructure:"public_dir"`
	Base      string `mapstructure:"base"`
	// Minify is nil when unset so the mode can pick the default.
	Minify *bool `mapstructure:"minify"`
	// Sourcemap is one of "", "linked", "inline" or "none".
	Sourcemap string `mapstructure:"sourcemap"`
}

type EnvConfig struct {
	Prefixes  []string          `mapstructure:"prefixes"`
	Overrides map[string]string `mapstructure:"overrides"`
}

type CSSConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
	Ignore   []string      `mapstructure:"ignore"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v, applies defaults and validates it.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "failed to decode configuration").
			WithContext("cause", err.Error())
	}

	// Handle slices set via viper (workaround for viper slice handling)
	if v.IsSet("env.prefixes") && len(config.Env.Prefixes) == 0 {
		config.Env.Prefixes = v.GetStringSlice("env.prefixes")
	}
	if v.IsSet("watch.ignore") && len(config.Watch.Ignore) == 0 {
		config.Watch.Ignore = v.GetStringSlice("watch.ignore")
	}
	if v.IsSet("env.overrides") && len(config.Env.Overrides) == 0 {
		config.Env.Overrides = v.GetStringMapString("env.overrides")
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Root == "" {
		config.Root = "."
	}
	if config.Mode == "" {
		config.Mode = ModeDevelopment
	}

	if config.Server.Port == 0 {
		config.Server.Port = DefaultPort
	}
	if config.Server.Host == "" {
		config.Server.Host = DefaultHost
	}

	if config.Build.Base == "" {
		config.Build.Base = "/"
	}

	if len(config.Env.Prefixes) == 0 {
		config.Env.Prefixes = []string{DefaultEnvPrefix}
	}
	if config.Env.Overrides == nil {
		config.Env.Overrides = make(map[string]string)
	}

	if config.CSS.Command == "" {
		config.CSS.Command = DefaultCSSCommand
	}

	if config.Watch.Debounce <= 0 {
		config.Watch.Debounce = DefaultDebounce
	}
	if len(config.Watch.Ignore) == 0 {
		config.Watch.Ignore = []string{"node_modules", ".git"}
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}

// IsProduction reports whether the configured mode builds for production.
func (c *Config) IsProduction() bool {
	return c.Mode == ModeProduction
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if config.Mode == "local" {
		return errors.ErrReservedMode(config.Mode)
	}

	if err := validateServerConfig(&config.Server); err != nil {
		return invalid("server", err)
	}

	if err := validateBuildConfig(&config.Build); err != nil {
		return invalid("build", err)
	}

	for _, prefix := range config.Env.Prefixes {
		if prefix == "" {
			// An empty prefix would expose the whole host environment.
			return invalid("env", fmt.Errorf("empty prefix"))
		}
	}

	if err := validation.ValidateCommand(config.CSS.Command); err != nil {
		return invalid("css", err)
	}

	if err := validatePluginsConfig(&config.Plugins); err != nil {
		return invalid("plugins", err)
	}

	switch config.Log.Format {
	case "text", "json":
	default:
		return invalid("log", fmt.Errorf("unknown format %q", config.Log.Format))
	}

	return nil
}

func invalid(section string, err error) error {
	return errors.NewConfigError(errors.ErrCodeConfigInvalid,
		fmt.Sprintf("invalid %s configuration: %v", section, err))
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	return validation.ValidateHost(config.Host)
}

// validateBuildConfig validates build configuration values
func validateBuildConfig(config *BuildConfig) error {
	for name, dir := range map[string]string{"out_dir": config.OutDir, "public_dir": config.PublicDir} {
		if dir == "" {
			continue
		}
		if strings.ContainsRune(dir, 0) {
			return fmt.Errorf("%s contains a NUL byte", name)
		}
	}

	switch config.Sourcemap {
	case "", "linked", "inline", "none":
	default:
		return fmt.Errorf("unknown sourcemap kind %q", config.Sourcemap)
	}

	return validation.ValidateBase(config.Base)
}

// ResolveDir resolves dir against root unless it is already absolute.
func ResolveDir(root, dir, fallback string) string {
	if dir == "" {
		dir = fallback
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}

	return filepath.Join(root, dir)
}
