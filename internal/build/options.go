// Package build drives esbuild for an HTML entry document: it extracts the
// asset graph, bundles every entry through the composed plugin list, maps
// entries to their outputs and writes the result.
package build

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/vei/internal/config"
	"github.com/conneroisu/vei/internal/errors"
	"github.com/conneroisu/vei/internal/logging"
	"github.com/conneroisu/vei/internal/monitoring"
	"github.com/conneroisu/vei/internal/plugins"
	"github.com/conneroisu/vei/internal/plugins/css"
	"github.com/conneroisu/vei/internal/scanner"
)

// HTMLEntry is the file name of the entry document inside the root.
const HTMLEntry = "index.html"

// Options are the raw build options.
type Options struct {
	Root      string
	Mode      string
	OutDir    string
	PublicDir string
	Base      string
	// Minify defaults to true in production.
	Minify *bool
	// Sourcemap is "", "linked", "inline" or "none".
	Sourcemap string

	EnvPrefixes  []string
	EnvOverrides map[string]string
	// Environ replaces the host environment when non-nil.
	Environ []string

	CSSCommand string
	CSSArgs    []string
	// CSSRunner replaces the external transform command.
	CSSRunner css.Runner

	// Disabled lists built-in plugins to skip.
	Disabled []string
	// Plugins run after the built-in ones and inside nested stylesheet builds.
	Plugins   []plugins.Plugin
	ScanTable scanner.ScanTable

	Logger   logging.Logger
	Recorder monitoring.Recorder
}

// OptionsFromConfig maps the loaded configuration onto build options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Root:         cfg.Root,
		Mode:         cfg.Mode,
		OutDir:       cfg.Build.OutDir,
		PublicDir:    cfg.Build.PublicDir,
		Base:         cfg.Build.Base,
		Minify:       cfg.Build.Minify,
		Sourcemap:    cfg.Build.Sourcemap,
		EnvPrefixes:  cfg.Env.Prefixes,
		EnvOverrides: cfg.Env.Overrides,
		CSSCommand:   cfg.CSS.Command,
		CSSArgs:      cfg.CSS.Args,
		Disabled:     cfg.Plugins.Disabled,
	}
}

// NormalizedOptions are Options with every default applied.
type NormalizedOptions struct {
	Root      string
	Mode      string
	Dev       bool
	OutDir    string
	PublicDir string
	HTMLEntry string
	// Base always ends with a slash.
	Base      string
	Minify    bool
	Sourcemap api.SourceMap
	Env       *config.Env

	CSSRunner css.Runner
	CSSCache  *css.ConfigCache

	Disabled  []string
	Plugins   []plugins.Plugin
	ScanTable scanner.ScanTable

	Logger   logging.Logger
	Recorder monitoring.Recorder
}

// NormalizeOptions resolves directories, validates the mode and loads the
// client environment.
func NormalizeOptions(opts Options) (*NormalizedOptions, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeConfigInvalid, "failed to resolve root directory")
	}

	mode := opts.Mode
	switch mode {
	case "":
		mode = config.ModeDevelopment
	case config.ModeDevelopment, config.ModeProduction:
	case "local":
		return nil, errors.ErrReservedMode(mode)
	default:
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown mode %q, expected %s or %s", mode, config.ModeDevelopment, config.ModeProduction))
	}
	dev := mode == config.ModeDevelopment

	outDir := config.ResolveDir(root, opts.OutDir, "dist")
	if outDir == root || isWithin(outDir, root) {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("output directory %s would contain the project root", outDir))
	}

	base := opts.Base
	if base == "" {
		base = "/"
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	minify := !dev
	if opts.Minify != nil {
		minify = *opts.Minify
	}

	sourcemap, err := sourceMap(opts.Sourcemap, dev)
	if err != nil {
		return nil, err
	}

	env, err := config.LoadEnv(config.EnvOptions{
		Mode:      mode,
		Dir:       root,
		Prefixes:  opts.EnvPrefixes,
		Overrides: opts.EnvOverrides,
		Environ:   opts.Environ,
	})
	if err != nil {
		return nil, err
	}

	cache, err := css.NewConfigCache(css.DefaultCacheSize)
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeConfigInvalid, "failed to create transform config cache", err)
	}

	runner := opts.CSSRunner
	if runner == nil {
		runner = css.NewExecRunner(opts.CSSCommand, opts.CSSArgs...)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = monitoring.NopRecorder{}
	}

	table := opts.ScanTable
	if table == nil {
		table = scanner.DefaultScanTable
	}

	return &NormalizedOptions{
		Root:      root,
		Mode:      mode,
		Dev:       dev,
		OutDir:    outDir,
		PublicDir: config.ResolveDir(root, opts.PublicDir, "public"),
		HTMLEntry: filepath.Join(root, HTMLEntry),
		Base:      base,
		Minify:    minify,
		Sourcemap: sourcemap,
		Env:       env,
		CSSRunner: runner,
		CSSCache:  cache,
		Disabled:  opts.Disabled,
		Plugins:   opts.Plugins,
		ScanTable: table,
		Logger:    logger,
		Recorder:  recorder,
	}, nil
}

func sourceMap(kind string, dev bool) (api.SourceMap, error) {
	switch kind {
	case "":
		if dev {
			return api.SourceMapLinked, nil
		}
		return api.SourceMapNone, nil
	case "linked":
		return api.SourceMapLinked, nil
	case "inline":
		return api.SourceMapInline, nil
	case "none":
		return api.SourceMapNone, nil
	}
	return api.SourceMapNone, errors.NewConfigError(errors.ErrCodeConfigInvalid,
		fmt.Sprintf("unknown sourcemap kind %q", kind))
}

// LoaderTable maps media extensions to the file loader.
func LoaderTable() map[string]api.Loader {
	loaders := make(map[string]api.Loader, len(scanner.MediaExtensions))
	for _, ext := range scanner.MediaExtensions {
		loaders[ext] = api.LoaderFile
	}
	return loaders
}

var identRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// DefineTable exposes the client environment as compile-time constants
// under process.env and import.meta.env. Keys that are not identifiers
// are skipped.
func (o *NormalizedOptions) DefineTable() map[string]string {
	define := make(map[string]string)

	keys := make([]string, 0, len(o.Env.Vars))
	for k := range o.Env.Vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !identRe.MatchString(k) {
			o.Logger.Debug(context.Background(), "Skipping env var that is not an identifier", "key", k)
			continue
		}
		literal := jsonString(o.Env.Vars[k])
		define["process.env."+k] = literal
		define["import.meta.env."+k] = literal
	}

	nodeEnv := o.Mode
	if o.Env.NodeEnv != "" {
		nodeEnv = o.Env.NodeEnv
	}
	define["process.env.NODE_ENV"] = jsonString(nodeEnv)
	define["import.meta.env.MODE"] = jsonString(o.Mode)
	define["import.meta.env.BASE_URL"] = jsonString(o.Base)
	define["import.meta.env.DEV"] = fmt.Sprint(o.Dev)
	define["import.meta.env.PROD"] = fmt.Sprint(!o.Dev)
	define["__DEV__"] = fmt.Sprint(o.Dev)

	return define
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// isWithin reports whether p lies inside dir.
func isWithin(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
