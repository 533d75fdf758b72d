// Package css implements stylesheet handling for the bundler. Stylesheets
// linked from HTML are transformed and loaded directly, while stylesheets
// imported from scripts are bundled on their own and replaced by their URL.
package css

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/vei/internal/errors"
	"github.com/conneroisu/vei/internal/plugins"
)

const (
	Name          = "css"
	importCSSName = "import-css"

	// SuffixDirect marks stylesheets referenced from HTML.
	SuffixDirect = "?css"
	// SuffixImportOnly imports a stylesheet's URL without linking it from the page.
	SuffixImportOnly = "?import-only"
)

// Options configures the css plugin.
type Options struct {
	Cache  *ConfigCache
	Runner Runner
	// Plugins run inside the nested build of imported stylesheets.
	Plugins []plugins.Plugin
}

type plugin struct {
	opts Options
}

// cssImport marks modules resolved from an @import rule.
type cssImport struct{}

// New returns the css plugin.
func New(opts Options) plugins.Plugin {
	return &plugin{opts: opts}
}

func (p *plugin) Name() string { return Name }

func (p *plugin) Setup(build *plugins.Build) error {
	if p.opts.Cache == nil {
		cache, err := NewConfigCache(DefaultCacheSize)
		if err != nil {
			return err
		}
		p.opts.Cache = cache
	}
	if p.opts.Runner == nil {
		p.opts.Runner = NewExecRunner("")
	}

	t := &transformer{
		cache:     p.opts.Cache,
		runner:    p.opts.Runner,
		sourceMap: build.InitialOptions().Sourcemap != api.SourceMapNone,
	}

	// Stylesheets pulled in by @import stay stylesheets.
	build.OnResolve(api.OnResolveOptions{Filter: `\.css(\?.*)?$`}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
		if args.Kind != api.ResolveCSSImportRule {
			return api.OnResolveResult{}, nil
		}
		path := plugins.StripSuffix(args.Path)
		if !strings.HasPrefix(path, "./") && !strings.HasPrefix(path, "../") {
			return api.OnResolveResult{}, nil
		}
		return api.OnResolveResult{
			Path:       filepath.Join(args.ResolveDir, filepath.FromSlash(path)),
			PluginData: cssImport{},
		}, nil
	})

	build.OnLoad(api.OnLoadOptions{Filter: `\.css$`}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
		if _, ok := args.PluginData.(cssImport); ok {
			return t.load(args.Path)
		}
		switch args.Suffix {
		case SuffixDirect:
			return t.load(args.Path)
		case "", SuffixImportOnly:
			return p.loadModule(build, t, args)
		default:
			return api.OnLoadResult{}, nil
		}
	})

	return nil
}

// loadModule bundles an imported stylesheet on its own and exports its URL.
func (p *plugin) loadModule(build *plugins.Build, t *transformer, args api.OnLoadArgs) (api.OnLoadResult, error) {
	nestedPlugins := make([]plugins.Plugin, 0, len(p.opts.Plugins)+1)
	nestedPlugins = append(nestedPlugins, p.opts.Plugins...)
	nestedPlugins = append(nestedPlugins, importCSS(t))

	nested, err := build.NestedBuild(args.Path, nestedPlugins)
	if err != nil {
		var de *errors.DiagnosticsError
		if errors.As(err, &de) {
			return api.OnLoadResult{Errors: de.Errors, Warnings: de.Warnings}, nil
		}
		return api.OnLoadResult{}, err
	}

	key, ok := nested.Metafile.FindOutput(".css")
	if !ok {
		return api.OnLoadResult{}, errors.NewBuildError(errors.ErrCodeBuildFailed, "no CSS file generated", nil).
			WithFile(args.Path)
	}
	url, err := nested.URLOf(key)
	if err != nil {
		return api.OnLoadResult{}, err
	}

	if args.Suffix != SuffixImportOnly {
		build.CollectStylesheet(nested.AbsPath(key))
	}

	literal, err := json.Marshal(url)
	if err != nil {
		return api.OnLoadResult{}, err
	}
	contents := "export default " + string(literal)

	return api.OnLoadResult{
		Contents:   &contents,
		Loader:     api.LoaderJS,
		ResolveDir: filepath.Dir(args.Path),
		WatchFiles: nested.Inputs(),
	}, nil
}

// importCSS transforms every stylesheet of a nested build.
func importCSS(t *transformer) plugins.Plugin {
	return plugins.New(importCSSName, func(build *plugins.Build) error {
		build.OnLoad(api.OnLoadOptions{Filter: `\.css$`}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
			return t.load(args.Path)
		})
		return nil
	})
}

type transformer struct {
	cache     *ConfigCache
	runner    Runner
	sourceMap bool
}

func (t *transformer) load(path string) (api.OnLoadResult, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return api.OnLoadResult{}, errors.NewIOError(errors.ErrCodeFileNotFound, "failed to read stylesheet", err).
			WithFile(path)
	}

	out, cfg, err := t.transform(context.Background(), path, code)
	if err != nil {
		return api.OnLoadResult{}, err
	}

	contents := string(out)
	result := api.OnLoadResult{
		Contents:   &contents,
		Loader:     api.LoaderCSS,
		ResolveDir: filepath.Dir(path),
	}
	if cfg != nil {
		result.WatchFiles = []string{cfg.File}
	}

	return result, nil
}

// transform runs the configured tool over code. Without a configuration, or
// with one listing no plugins, code is returned unchanged.
func (t *transformer) transform(ctx context.Context, path string, code []byte) ([]byte, *TransformConfig, error) {
	cfg, err := t.cache.Resolve(filepath.Dir(path))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve stylesheet transform config for %s: %w", path, err)
	}
	if cfg == nil || cfg.Empty {
		return code, cfg, nil
	}

	result, err := t.runner.Transform(ctx, TransformRequest{
		Path:      path,
		Code:      code,
		ConfigDir: cfg.Dir,
		SourceMap: t.sourceMap,
	})
	if err != nil {
		return nil, cfg, err
	}

	if t.sourceMap {
		return AppendInlineMap(result.CSS, result.Map), cfg, nil
	}

	return result.CSS, cfg, nil
}
