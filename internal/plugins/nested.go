package plugins

import (
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/vei/internal/errors"
)

// NestedResult is the outcome of a nested build.
type NestedResult struct {
	OutputFiles []api.OutputFile
	Metafile    *Metafile
	Warnings    []api.Message

	workDir    string
	outDir     string
	publicPath string
}

// URLOf returns the public URL of a metafile output key.
func (r *NestedResult) URLOf(outputKey string) (string, error) {
	return PublicURL(r.publicPath, r.outDir, r.AbsPath(outputKey))
}

// AbsPath resolves a metafile key against the build's working directory.
func (r *NestedResult) AbsPath(key string) string {
	if filepath.IsAbs(key) {
		return key
	}
	return filepath.Join(r.workDir, filepath.FromSlash(key))
}

// Inputs returns the absolute input files of the nested build.
func (r *NestedResult) Inputs() []string {
	return r.Metafile.InputFiles(r.workDir)
}

// NestedBuild runs an independent, non-incremental build with entry as its
// sole entry point and the same output settings as the enclosing build. The
// produced files are emitted into the shared state so they are written with
// the enclosing build's output. Failures are returned as a
// *errors.DiagnosticsError.
func (b *Build) NestedBuild(entry string, nested []Plugin) (*NestedResult, error) {
	opts := *b.esbuild.InitialOptions
	opts.EntryPoints = []string{entry}
	opts.EntryPointsAdvanced = nil
	opts.Write = false
	opts.Metafile = true
	opts.LogLevel = api.LogLevelSilent
	opts.Plugins = nil
	if len(nested) > 0 {
		opts.Plugins = []api.Plugin{Compose(nested, NewState(), ComposeOptions{
			Nested: true,
			Ignore: b.opts.Ignore,
			Logger: b.opts.Logger,
		})}
	}

	result := api.Build(opts)
	if len(result.Errors) > 0 {
		return nil, errors.FromMessages(result.Errors, result.Warnings)
	}

	meta, err := ParseMetafile(result.Metafile)
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeBuildFailed, "nested build produced an unreadable metafile", err).
			WithFile(entry)
	}

	b.state.Emit(result.OutputFiles...)

	return &NestedResult{
		OutputFiles: result.OutputFiles,
		Metafile:    meta,
		Warnings:    result.Warnings,
		workDir:     opts.AbsWorkingDir,
		outDir:      opts.Outdir,
		publicPath:  opts.PublicPath,
	}, nil
}
