package builtin

import (
	"os"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/vei/internal/errors"
	"github.com/conneroisu/vei/internal/plugins"
)

// SuffixRaw imports a file's contents as a string.
const SuffixRaw = "?raw"

// RawPlugin loads ?raw imports as text.
type RawPlugin struct{}

// NewRawPlugin creates a raw plugin.
func NewRawPlugin() *RawPlugin {
	return &RawPlugin{}
}

// Name returns the plugin name
func (p *RawPlugin) Name() string {
	return "raw"
}

func (p *RawPlugin) Setup(build *plugins.Build) error {
	build.OnLoad(api.OnLoadOptions{Filter: `.*`}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
		if args.Suffix != SuffixRaw {
			return api.OnLoadResult{}, nil
		}

		data, err := os.ReadFile(args.Path)
		if err != nil {
			return api.OnLoadResult{}, errors.NewIOError(errors.ErrCodeFileNotFound, "failed to read raw import", err).
				WithFile(args.Path)
		}
		contents := string(data)

		return api.OnLoadResult{
			Contents:   &contents,
			Loader:     api.LoaderText,
			ResolveDir: filepath.Dir(args.Path),
		}, nil
	})

	return nil
}
