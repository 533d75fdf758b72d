package build

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/vei/internal/errors"
	"github.com/conneroisu/vei/internal/logging"
	"github.com/conneroisu/vei/internal/monitoring"
	"github.com/conneroisu/vei/internal/plugins"
	"github.com/conneroisu/vei/internal/plugins/builtin"
	"github.com/conneroisu/vei/internal/plugins/css"
	"github.com/conneroisu/vei/internal/renderer"
	"github.com/conneroisu/vei/internal/scanner"
)

// Result is the outcome of a successful build pass.
type Result struct {
	Kind     monitoring.BuildKind
	Template *scanner.Template
	Entries  []scanner.Entry
	// Outputs maps entry names to public URLs.
	Outputs map[string]string
	// OutputPaths maps entry names to absolute output paths.
	OutputPaths map[string]string
	// OutputFiles holds the main build's files followed by nested outputs.
	OutputFiles []api.OutputFile
	// Deps are the absolute source files of the build, sorted.
	Deps []string
	// Stylesheets are absolute output paths to link from the page.
	Stylesheets []string
	// StylesheetURLs are the public URLs of Stylesheets.
	StylesheetURLs []string
	WatchFiles     []string
	WatchDirs      []string
	Metafile       *plugins.Metafile
	Warnings       []api.Message
	Duration       time.Duration
}

// Page returns the renderer input for this result.
func (r *Result) Page() renderer.Page {
	return renderer.Page{
		Template:    r.Template,
		URLs:        r.Outputs,
		Stylesheets: r.StylesheetURLs,
	}
}

// Session owns one esbuild context and the state its plugins share. A full
// build re-reads the HTML entry and replaces the context; an incremental
// build reuses it.
type Session struct {
	opts     *NormalizedOptions
	logger   logging.Logger
	recorder monitoring.Recorder
	state    *plugins.State
	metrics  *BuildMetrics

	mu         sync.Mutex
	esbuild    api.BuildContext
	compositor *plugins.Compositor
	template   *scanner.Template
	entries    []scanner.Entry
}

// NewSession creates a session. No build runs until Start.
func NewSession(opts *NormalizedOptions) *Session {
	return &Session{
		opts:     opts,
		logger:   opts.Logger.WithComponent("build"),
		recorder: opts.Recorder,
		state:    plugins.NewState(),
		metrics:  NewBuildMetrics(),
	}
}

// Options returns the normalized options of the session.
func (s *Session) Options() *NormalizedOptions {
	return s.opts
}

// State returns the plugin state shared across passes.
func (s *Session) State() *plugins.State {
	return s.state
}

// Metrics returns the session's build metrics.
func (s *Session) Metrics() *BuildMetrics {
	return s.metrics
}

// Start runs a full build: the previous context is disposed, the state is
// reset, the HTML entry is extracted again and a new context is created.
func (s *Session) Start(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := monitoring.BuildFull
	if !s.opts.Dev {
		kind = monitoring.BuildProduction
	}

	return s.run(ctx, kind, func() (api.BuildResult, error) {
		s.disposeLocked()
		s.state.Reset()

		content, err := os.ReadFile(s.opts.HTMLEntry)
		if os.IsNotExist(err) {
			return api.BuildResult{}, errors.ErrHTMLEntryMissing(s.opts.HTMLEntry)
		}
		if err != nil {
			return api.BuildResult{}, errors.WrapIO(err, errors.ErrCodeFileNotFound, "failed to read HTML entry").
				WithFile(s.opts.HTMLEntry)
		}

		tpl, entries, err := scanner.Extract(s.opts.Root, s.opts.PublicDir, content, s.opts.ScanTable)
		if err != nil {
			if ve, ok := err.(*errors.VeiError); ok {
				return api.BuildResult{}, ve.WithFile(s.opts.HTMLEntry)
			}
			return api.BuildResult{}, err
		}
		s.template = tpl
		s.entries = entries

		compositor := plugins.NewCompositor(s.pluginList(), s.state, plugins.ComposeOptions{
			Ignore: s.opts.Disabled,
			Logger: s.opts.Logger,
		})

		bc, cerr := api.Context(s.buildOptions(entries, compositor))
		if cerr != nil {
			return api.BuildResult{}, errors.FromMessages(cerr.Errors, nil)
		}
		if err := compositor.SetupErr(); err != nil {
			bc.Dispose()
			return api.BuildResult{}, err
		}
		s.esbuild = bc
		s.compositor = compositor

		return s.rebuild(ctx), nil
	})
}

// Rebuild runs an incremental build on the live context without touching
// the HTML entry. Without a live context it falls back to Start.
func (s *Session) Rebuild(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.esbuild == nil {
		s.mu.Unlock()
		return s.Start(ctx)
	}
	defer s.mu.Unlock()

	return s.run(ctx, monitoring.BuildIncremental, func() (api.BuildResult, error) {
		return s.rebuild(ctx), nil
	})
}

// Dispose releases the esbuild context.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposeLocked()
}

func (s *Session) disposeLocked() {
	if s.esbuild != nil {
		s.esbuild.Dispose()
		s.esbuild = nil
		s.compositor = nil
	}
}

// run times a build pass, turns its output into a Result and records it.
func (s *Session) run(ctx context.Context, kind monitoring.BuildKind, pass func() (api.BuildResult, error)) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	perf := logging.StartOperation(s.logger, string(kind)+" build")

	raw, err := pass()
	var result *Result
	if err == nil {
		result, err = s.collect(ctx, kind, raw)
	}

	var duration time.Duration
	if err != nil {
		duration = perf.Elapsed()
		s.logger.Debug(ctx, "Build pass failed", "kind", string(kind), "error", err.Error())
	} else {
		duration = perf.End(ctx)
		result.Duration = duration
	}

	s.metrics.RecordBuild(kind, duration, err)
	s.recorder.ObserveBuild(kind, monitoring.OutcomeOf(err), duration)

	return result, err
}

// rebuild runs one pass of the live context, cancelling it when ctx ends.
func (s *Session) rebuild(ctx context.Context) api.BuildResult {
	bc := s.esbuild
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			bc.Cancel()
		case <-done:
		}
	}()

	return bc.Rebuild()
}

func (s *Session) collect(ctx context.Context, kind monitoring.BuildKind, raw api.BuildResult) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := errors.FromMessages(raw.Errors, raw.Warnings); err != nil {
		return nil, err
	}

	meta, err := plugins.ParseMetafile(raw.Metafile)
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeBuildFailed, "unreadable metafile", err)
	}

	keys, err := MapOutputs(s.entries, meta)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Kind:        kind,
		Template:    s.template,
		Entries:     s.entries,
		Outputs:     make(map[string]string, len(keys)),
		OutputPaths: make(map[string]string, len(keys)),
		OutputFiles: mergeOutputs(raw.OutputFiles, s.state.Emitted()),
		Deps:        meta.InputFiles(s.opts.Root),
		Stylesheets: s.state.Stylesheets(),
		WatchFiles:  s.state.WatchFiles(),
		WatchDirs:   s.state.WatchDirs(),
		Metafile:    meta,
		Warnings:    raw.Warnings,
	}

	for name, key := range keys {
		abs := filepath.Join(s.opts.Root, filepath.FromSlash(key))
		url, err := plugins.PublicURL(s.opts.Base, s.opts.OutDir, abs)
		if err != nil {
			return nil, errors.NewInternalError(errors.ErrCodeOutputMapping, "output outside the output directory", err).
				WithFile(abs)
		}
		result.Outputs[name] = url
		result.OutputPaths[name] = abs
	}

	for _, sheet := range result.Stylesheets {
		url, err := plugins.PublicURL(s.opts.Base, s.opts.OutDir, sheet)
		if err != nil {
			return nil, errors.NewInternalError(errors.ErrCodeOutputMapping, "stylesheet outside the output directory", err).
				WithFile(sheet)
		}
		result.StylesheetURLs = append(result.StylesheetURLs, url)
	}

	for _, w := range raw.Warnings {
		s.logger.Warn(ctx, nil, "Build warning", "text", w.Text, "plugin", w.PluginName)
	}

	return result, nil
}

// pluginList is the built-in plugins followed by the user's.
func (s *Session) pluginList() []plugins.Plugin {
	list := []plugins.Plugin{
		builtin.NewProgressPlugin(s.opts.Logger),
		css.New(css.Options{
			Cache:   s.opts.CSSCache,
			Runner:  s.opts.CSSRunner,
			Plugins: append([]plugins.Plugin{builtin.NewRawPlugin()}, s.opts.Plugins...),
		}),
		builtin.NewRawPlugin(),
		builtin.NewWorkerPlugin(),
	}
	return append(list, s.opts.Plugins...)
}

func (s *Session) buildOptions(entries []scanner.Entry, compositor *plugins.Compositor) api.BuildOptions {
	points := make([]api.EntryPoint, 0, len(entries))
	for _, e := range entries {
		input := e.Source
		if !strings.HasPrefix(e.Rel, "../") {
			input = "./" + e.Rel
		}
		points = append(points, api.EntryPoint{InputPath: input, OutputPath: e.Name})
	}

	entryNames := "[name]"
	if !s.opts.Dev {
		entryNames = "[name]-[hash]"
	}

	opts := api.BuildOptions{
		EntryPointsAdvanced: points,
		AbsWorkingDir:       s.opts.Root,
		Outdir:              s.opts.OutDir,
		PublicPath:          s.opts.Base,
		Bundle:              true,
		Splitting:           true,
		Format:              api.FormatESModule,
		Platform:            api.PlatformBrowser,
		MainFields:          []string{"module", "browser", "main"},
		Metafile:            true,
		Write:               false,
		EntryNames:          entryNames,
		AssetNames:          "assets/[name]-[hash]",
		ChunkNames:          "chunks/[name]-[hash]",
		MinifyWhitespace:    s.opts.Minify,
		MinifyIdentifiers:   s.opts.Minify,
		MinifySyntax:        s.opts.Minify,
		Sourcemap:           s.opts.Sourcemap,
		LegalComments:       api.LegalCommentsNone,
		Loader:              LoaderTable(),
		Define:              s.opts.DefineTable(),
		LogLevel:            api.LogLevelSilent,
		Plugins:             []api.Plugin{compositor.Plugin()},
	}
	if s.opts.Sourcemap != api.SourceMapNone {
		opts.SourcesContent = api.SourcesContentInclude
	} else {
		opts.SourcesContent = api.SourcesContentExclude
	}

	return opts
}

// mergeOutputs appends emitted files whose paths the main build did not
// produce.
func mergeOutputs(main, emitted []api.OutputFile) []api.OutputFile {
	seen := make(map[string]struct{}, len(main))
	files := make([]api.OutputFile, 0, len(main)+len(emitted))
	for _, f := range main {
		seen[f.Path] = struct{}{}
		files = append(files, f)
	}
	for _, f := range emitted {
		if _, dup := seen[f.Path]; dup {
			continue
		}
		files = append(files, f)
	}
	sort.SliceStable(files[len(main):], func(i, j int) bool {
		return files[len(main)+i].Path < files[len(main)+j].Path
	})
	return files
}
