package config

import (
	"fmt"
)

// PluginsConfig selects which built-in build plugins run.
type PluginsConfig struct {
	Disabled []string `mapstructure:"disabled"`
}

// protectedPlugins cannot be switched off because HTML entries depend on them.
var protectedPlugins = map[string]bool{
	"css":    true,
	"worker": true,
}

// validatePluginsConfig validates plugins configuration values
func validatePluginsConfig(config *PluginsConfig) error {
	for _, name := range config.Disabled {
		if name == "" {
			return fmt.Errorf("plugin name cannot be empty")
		}

		// Plugin names should be alphanumeric with dashes/underscores
		for _, char := range name {
			if !((char >= 'a' && char <= 'z') ||
				(char >= 'A' && char <= 'Z') ||
				(char >= '0' && char <= '9') ||
				char == '-' || char == '_') {
				return fmt.Errorf("plugin name contains invalid character: %s", name)
			}
		}

		if protectedPlugins[name] {
			return fmt.Errorf("plugin %s cannot be disabled", name)
		}
	}

	return nil
}
