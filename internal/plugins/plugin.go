// Package plugins composes independent build plugins into the single plugin
// handed to esbuild. Plugins register resolve and load hooks on a Build; the
// compositor dispatches every resolution and load to them in registration
// order and turns hook failures into diagnostics attributed to the plugin.
package plugins

import (
	"regexp"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/vei/internal/logging"
)

// Plugin is a build plugin.
type Plugin interface {
	// Name returns the unique name of the plugin
	Name() string

	// Setup registers the plugin's hooks. It runs once per bundling context.
	Setup(build *Build) error
}

type funcPlugin struct {
	name  string
	setup func(build *Build) error
}

func (p funcPlugin) Name() string              { return p.name }
func (p funcPlugin) Setup(build *Build) error { return p.setup(build) }

// New returns a plugin from a name and a setup function.
func New(name string, setup func(build *Build) error) Plugin {
	return funcPlugin{name: name, setup: setup}
}

// ResolveCallback handles a resolution. Returning a zero result declines.
type ResolveCallback func(args api.OnResolveArgs) (api.OnResolveResult, error)

// LoadCallback handles a load. Returning a result without contents and
// without diagnostics declines.
type LoadCallback func(args api.OnLoadArgs) (api.OnLoadResult, error)

type resolveRegistration struct {
	plugin    string
	filter    *regexp.Regexp
	namespace string
	callback  ResolveCallback
}

type loadRegistration struct {
	plugin    string
	filter    *regexp.Regexp
	namespace string
	callback  LoadCallback
}

type startRegistration struct {
	plugin   string
	callback func() error
}

type endRegistration struct {
	plugin   string
	callback func(result *api.BuildResult) error
}

type registry struct {
	resolves []resolveRegistration
	loads    []loadRegistration
	starts   []startRegistration
	ends     []endRegistration
	// invalid filters are reported as setup errors of their plugin
	filterErrs []error
}

// Build is the per-plugin view of a bundling context.
type Build struct {
	plugin   string
	esbuild  api.PluginBuild
	state    *State
	opts     ComposeOptions
	registry *registry
}

// PluginName returns the name of the plugin this Build was handed to.
func (b *Build) PluginName() string {
	return b.plugin
}

// OnResolve registers a resolve hook.
func (b *Build) OnResolve(options api.OnResolveOptions, callback ResolveCallback) {
	filter, err := regexp.Compile(options.Filter)
	if err != nil {
		b.registry.filterErrs = append(b.registry.filterErrs, err)
		return
	}
	b.registry.resolves = append(b.registry.resolves, resolveRegistration{
		plugin:    b.plugin,
		filter:    filter,
		namespace: options.Namespace,
		callback:  callback,
	})
}

// OnLoad registers a load hook.
func (b *Build) OnLoad(options api.OnLoadOptions, callback LoadCallback) {
	filter, err := regexp.Compile(options.Filter)
	if err != nil {
		b.registry.filterErrs = append(b.registry.filterErrs, err)
		return
	}
	b.registry.loads = append(b.registry.loads, loadRegistration{
		plugin:    b.plugin,
		filter:    filter,
		namespace: options.Namespace,
		callback:  callback,
	})
}

// OnStart registers a callback run at the start of every bundling pass.
func (b *Build) OnStart(callback func() error) {
	b.registry.starts = append(b.registry.starts, startRegistration{plugin: b.plugin, callback: callback})
}

// OnEnd registers a callback run at the end of every bundling pass.
func (b *Build) OnEnd(callback func(result *api.BuildResult) error) {
	b.registry.ends = append(b.registry.ends, endRegistration{plugin: b.plugin, callback: callback})
}

// CollectStylesheet records stylesheet outputs linked from the page head.
func (b *Build) CollectStylesheet(paths ...string) {
	b.state.AddStylesheets(paths...)
}

func (b *Build) AddWatchFiles(paths ...string) {
	b.state.AddWatchFiles(paths...)
}

func (b *Build) AddWatchDirs(paths ...string) {
	b.state.AddWatchDirs(paths...)
}

// ResetState clears the shared build state.
func (b *Build) ResetState() {
	b.state.Reset()
}

// IsNestedBuild reports whether this Build belongs to a nested build started
// by another plugin.
func (b *Build) IsNestedBuild() bool {
	return b.opts.Nested
}

func (b *Build) State() *State {
	return b.state
}

// InitialOptions returns the options the bundling context was created with.
// Callers must not modify them.
func (b *Build) InitialOptions() *api.BuildOptions {
	return b.esbuild.InitialOptions
}

// Logger returns a logger scoped to the plugin.
func (b *Build) Logger() logging.Logger {
	return b.opts.logger().WithComponent(b.plugin)
}
