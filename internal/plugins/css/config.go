package css

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"
)

// DefaultCacheSize bounds the number of directories whose transform
// configuration is remembered.
const DefaultCacheSize = 4096

// configNames are probed in every directory, in order, walking upwards.
var configNames = []string{
	"package.json",
	".postcssrc",
	".postcssrc.json",
	".postcssrc.yaml",
	".postcssrc.yml",
	".postcssrc.js",
	".postcssrc.cjs",
	".postcssrc.mjs",
	"postcss.config.js",
	"postcss.config.cjs",
	"postcss.config.mjs",
	"postcss.config.ts",
}

// TransformConfig is a discovered stylesheet transform configuration.
type TransformConfig struct {
	// File is the configuration file.
	File string
	// Dir is the directory holding File, passed to the tool as --config.
	Dir string
	// Empty is true when a declarative config lists no plugins.
	Empty bool
}

// ConfigCache memoizes directory to configuration lookups for the life of
// the process. A nil entry means no configuration applies.
type ConfigCache struct {
	entries *lru.Cache[string, *TransformConfig]
}

// NewConfigCache creates a cache holding up to size directories.
func NewConfigCache(size int) (*ConfigCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, *TransformConfig](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create transform config cache: %w", err)
	}

	return &ConfigCache{entries: entries}, nil
}

// Resolve returns the configuration applying to files in dir, or nil.
func (c *ConfigCache) Resolve(dir string) (*TransformConfig, error) {
	dir = filepath.Clean(dir)
	if cfg, ok := c.entries.Get(dir); ok {
		return cfg, nil
	}

	cfg, err := discover(dir)
	if err != nil {
		return nil, err
	}
	c.entries.Add(dir, cfg)

	return cfg, nil
}

// Len returns the number of cached directories.
func (c *ConfigCache) Len() int {
	return c.entries.Len()
}

// Purge forgets every cached lookup.
func (c *ConfigCache) Purge() {
	c.entries.Purge()
}

func discover(dir string) (*TransformConfig, error) {
	for {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}

			cfg, found, err := readConfig(path, name)
			if err != nil {
				return nil, err
			}
			if found {
				return cfg, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// readConfig inspects a candidate file. package.json only counts when it has
// a "postcss" key.
func readConfig(path, name string) (*TransformConfig, bool, error) {
	cfg := &TransformConfig{File: path, Dir: filepath.Dir(path)}

	switch name {
	case "package.json":
		var pkg struct {
			PostCSS *struct {
				Plugins interface{} `json:"plugins"`
			} `json:"postcss"`
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := json.Unmarshal(data, &pkg); err != nil {
			return nil, false, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if pkg.PostCSS == nil {
			return nil, false, nil
		}
		cfg.Empty = emptyPlugins(pkg.PostCSS.Plugins)
	case ".postcssrc.json":
		var rc struct {
			Plugins interface{} `json:"plugins"`
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := json.Unmarshal(data, &rc); err != nil {
			return nil, false, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		cfg.Empty = emptyPlugins(rc.Plugins)
	case ".postcssrc", ".postcssrc.yaml", ".postcssrc.yml":
		// YAML is a superset of the JSON these files usually hold.
		var rc struct {
			Plugins interface{} `yaml:"plugins"`
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &rc); err != nil {
			return nil, false, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		cfg.Empty = emptyPlugins(rc.Plugins)
	}

	return cfg, true, nil
}

func emptyPlugins(v interface{}) bool {
	switch p := v.(type) {
	case nil:
		return true
	case []interface{}:
		return len(p) == 0
	case map[string]interface{}:
		return len(p) == 0
	default:
		return false
	}
}
