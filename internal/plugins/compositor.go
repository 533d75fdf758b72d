package plugins

import (
	"fmt"
	"sync"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/vei/internal/errors"
	"github.com/conneroisu/vei/internal/logging"
)

// CompositorName is the name of the plugin handed to esbuild.
const CompositorName = "plugin-compositor"

// ComposeOptions configures a Compositor.
type ComposeOptions struct {
	// Nested marks the compositor of a nested build.
	Nested bool
	// Ignore lists plugin names whose setup is skipped.
	Ignore []string
	Logger logging.Logger
}

func (o ComposeOptions) logger() logging.Logger {
	if o.Logger == nil {
		return logging.Nop()
	}
	return o.Logger
}

func (o ComposeOptions) ignored(name string) bool {
	for _, n := range o.Ignore {
		if n == name {
			return true
		}
	}
	return false
}

// Compositor wraps a list of plugins into a single esbuild plugin.
type Compositor struct {
	plugins []Plugin
	state   *State
	opts    ComposeOptions

	mu       sync.Mutex
	setupErr error
}

// NewCompositor creates a compositor over plugins sharing state.
func NewCompositor(list []Plugin, state *State, opts ComposeOptions) *Compositor {
	if state == nil {
		state = NewState()
	}
	return &Compositor{
		plugins: list,
		state:   state,
		opts:    opts,
	}
}

// Compose is shorthand for NewCompositor(...).Plugin().
func Compose(list []Plugin, state *State, opts ComposeOptions) api.Plugin {
	return NewCompositor(list, state, opts).Plugin()
}

// Plugin returns the esbuild plugin.
func (c *Compositor) Plugin() api.Plugin {
	return api.Plugin{
		Name:  CompositorName,
		Setup: c.setup,
	}
}

// State returns the state shared by the composed plugins.
func (c *Compositor) State() *State {
	return c.state
}

// SetupErr returns the error of the first plugin whose setup failed.
func (c *Compositor) SetupErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.setupErr
}

func (c *Compositor) setup(pb api.PluginBuild) {
	reg := &registry{}

	for _, p := range c.plugins {
		name := p.Name()
		if c.opts.ignored(name) {
			continue
		}

		b := &Build{
			plugin:   name,
			esbuild:  pb,
			state:    c.state,
			opts:     c.opts,
			registry: reg,
		}

		filterErrs := len(reg.filterErrs)
		err := safeSetup(p, b)
		if err == nil && len(reg.filterErrs) > filterErrs {
			err = reg.filterErrs[filterErrs]
		}
		if err != nil {
			setupErr := errors.NewConfigError(errors.ErrCodePluginSetup,
				fmt.Sprintf("failed to set up plugin %s: %v", name, err)).WithPlugin(name)
			c.mu.Lock()
			c.setupErr = setupErr
			c.mu.Unlock()

			// Fail every pass of this context with the setup error.
			pb.OnStart(func() (api.OnStartResult, error) {
				return api.OnStartResult{
					Errors: []api.Message{errors.MessageFromError(setupErr, name)},
				}, nil
			})
			return
		}
	}

	if len(reg.starts) > 0 {
		starts := reg.starts
		pb.OnStart(func() (api.OnStartResult, error) {
			var result api.OnStartResult
			for _, s := range starts {
				if err := safeCall(s.callback); err != nil {
					result.Errors = append(result.Errors, errors.MessageFromError(err, s.plugin))
				}
			}
			return result, nil
		})
	}

	if len(reg.ends) > 0 {
		ends := reg.ends
		pb.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
			var out api.OnEndResult
			for _, e := range ends {
				cb := e.callback
				if err := safeCall(func() error { return cb(result) }); err != nil {
					out.Errors = append(out.Errors, errors.MessageFromError(err, e.plugin))
				}
			}
			return out, nil
		})
	}

	if len(reg.resolves) > 0 {
		pb.OnResolve(api.OnResolveOptions{Filter: ".*"}, c.resolveDispatcher(reg.resolves))
	}

	if len(reg.loads) > 0 {
		pb.OnLoad(api.OnLoadOptions{Filter: ".*"}, c.loadDispatcher(reg.loads))
	}
}

func (c *Compositor) resolveDispatcher(regs []resolveRegistration) func(api.OnResolveArgs) (api.OnResolveResult, error) {
	return func(args api.OnResolveArgs) (api.OnResolveResult, error) {
		for _, r := range regs {
			if !matches(r.namespace, args.Namespace) || !r.filter.MatchString(args.Path) {
				continue
			}

			var result api.OnResolveResult
			err := safeCall(func() error {
				var cbErr error
				result, cbErr = r.callback(args)
				return cbErr
			})
			if err != nil {
				return api.OnResolveResult{
					PluginName: r.plugin,
					Errors:     []api.Message{errors.MessageFromError(err, r.plugin)},
				}, nil
			}

			c.state.AddWatchFiles(result.WatchFiles...)
			c.state.AddWatchDirs(result.WatchDirs...)

			if result.Path == "" && !result.External && len(result.Errors) == 0 && len(result.Warnings) == 0 {
				continue
			}

			result.PluginName = r.plugin
			attribute(result.Errors, r.plugin)
			attribute(result.Warnings, r.plugin)
			return result, nil
		}

		return api.OnResolveResult{}, nil
	}
}

func (c *Compositor) loadDispatcher(regs []loadRegistration) func(api.OnLoadArgs) (api.OnLoadResult, error) {
	return func(args api.OnLoadArgs) (api.OnLoadResult, error) {
		for _, r := range regs {
			if !matches(r.namespace, args.Namespace) || !r.filter.MatchString(args.Path) {
				continue
			}

			var result api.OnLoadResult
			err := safeCall(func() error {
				var cbErr error
				result, cbErr = r.callback(args)
				return cbErr
			})
			if err != nil {
				return api.OnLoadResult{
					PluginName: r.plugin,
					Errors:     []api.Message{errors.MessageFromError(err, r.plugin)},
				}, nil
			}

			c.state.AddWatchFiles(result.WatchFiles...)
			c.state.AddWatchDirs(result.WatchDirs...)

			if result.Contents == nil && len(result.Errors) == 0 && len(result.Warnings) == 0 {
				continue
			}

			result.PluginName = r.plugin
			attribute(result.Errors, r.plugin)
			attribute(result.Warnings, r.plugin)
			return result, nil
		}

		return api.OnLoadResult{}, nil
	}
}

// matches follows esbuild: an empty namespace option matches every namespace.
func matches(want, got string) bool {
	if want == "" {
		return true
	}
	if got == "" {
		got = "file"
	}
	return want == got
}

func attribute(msgs []api.Message, plugin string) {
	for i := range msgs {
		if msgs[i].PluginName == "" {
			msgs[i].PluginName = plugin
		}
	}
}

func safeSetup(p Plugin, b *Build) error {
	return safeCall(func() error { return p.Setup(b) })
}

// safeCall runs fn and turns a panic into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	return fn()
}
