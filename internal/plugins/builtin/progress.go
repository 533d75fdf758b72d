package builtin

import (
	"context"
	"fmt"
	"sync"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/vei/internal/logging"
	"github.com/conneroisu/vei/internal/plugins"
)

// ProgressPlugin logs how long every top-level bundling pass takes.
type ProgressPlugin struct {
	logger logging.Logger

	mu   sync.Mutex
	perf *logging.PerfLogger
}

// NewProgressPlugin creates a progress plugin logging through logger.
func NewProgressPlugin(logger logging.Logger) *ProgressPlugin {
	if logger == nil {
		logger = logging.Nop()
	}
	return &ProgressPlugin{logger: logger.WithComponent("progress")}
}

// Name returns the plugin name
func (p *ProgressPlugin) Name() string {
	return "progress"
}

// Setup registers the start and end callbacks. Nested builds are not timed.
func (p *ProgressPlugin) Setup(build *plugins.Build) error {
	if build.IsNestedBuild() {
		return nil
	}

	build.OnStart(func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.perf = logging.StartOperation(p.logger, "bundle")
		return nil
	})

	build.OnEnd(func(result *api.BuildResult) error {
		p.mu.Lock()
		perf := p.perf
		p.perf = nil
		p.mu.Unlock()
		if perf == nil {
			return nil
		}

		ctx := context.Background()
		elapsed := perf.Elapsed()
		if len(result.Errors) > 0 {
			perf.Warn(ctx, nil, fmt.Sprintf("Build failed in %dms", elapsed.Milliseconds()),
				"errors", len(result.Errors),
				"warnings", len(result.Warnings))
			return nil
		}
		perf.Info(ctx, fmt.Sprintf("Built in %dms", elapsed.Milliseconds()),
			"warnings", len(result.Warnings))
		return nil
	})

	return nil
}
