package builtin

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/vei/internal/errors"
	"github.com/conneroisu/vei/internal/plugins"
)

const (
	// SuffixWorker imports a module as a dedicated worker constructor.
	SuffixWorker = "?worker"
	// SuffixSharedWorker imports a module as a shared worker constructor.
	SuffixSharedWorker = "?shared-worker"
)

// WorkerPlugin bundles ?worker and ?shared-worker imports on their own and
// replaces them with a class constructing the worker from the bundled URL.
type WorkerPlugin struct{}

// NewWorkerPlugin creates a worker plugin.
func NewWorkerPlugin() *WorkerPlugin {
	return &WorkerPlugin{}
}

// Name returns the plugin name
func (p *WorkerPlugin) Name() string {
	return "worker"
}

func (p *WorkerPlugin) Setup(build *plugins.Build) error {
	build.OnLoad(api.OnLoadOptions{Filter: `.*`}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
		var base string
		switch args.Suffix {
		case SuffixWorker:
			base = "Worker"
		case SuffixSharedWorker:
			base = "SharedWorker"
		default:
			return api.OnLoadResult{}, nil
		}

		nested, err := build.NestedBuild(args.Path, nil)
		if err != nil {
			var de *errors.DiagnosticsError
			if errors.As(err, &de) {
				return api.OnLoadResult{Errors: de.Errors, Warnings: de.Warnings}, nil
			}
			return api.OnLoadResult{}, err
		}

		key, ok := nested.Metafile.FindOutput(".js")
		if !ok {
			return api.OnLoadResult{}, errors.NewBuildError(errors.ErrCodeBuildFailed, "no worker script generated", nil).
				WithFile(args.Path)
		}
		url, err := nested.URLOf(key)
		if err != nil {
			return api.OnLoadResult{}, err
		}

		contents, err := WorkerModule(base, url)
		if err != nil {
			return api.OnLoadResult{}, err
		}

		return api.OnLoadResult{
			Contents:   &contents,
			Loader:     api.LoaderJS,
			ResolveDir: filepath.Dir(args.Path),
			Warnings:   nested.Warnings,
			WatchFiles: nested.Inputs(),
		}, nil
	})

	return nil
}

// WorkerModule returns the module source exporting a worker class for url.
func WorkerModule(base, url string) (string, error) {
	literal, err := json.Marshal(url)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("export default class extends %s {\n  constructor() {\n    super(%s)\n  }\n}\n", base, literal), nil
}
