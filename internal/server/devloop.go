package server

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/conneroisu/vei/internal/build"
	"github.com/conneroisu/vei/internal/errors"
	"github.com/conneroisu/vei/internal/logging"
	"github.com/conneroisu/vei/internal/monitoring"
	"github.com/conneroisu/vei/internal/renderer"
	"github.com/conneroisu/vei/internal/watcher"
)

// Reloader tells connected browsers to reload.
type Reloader interface {
	Reload() int
}

// DevLoop turns file changes into rebuilds and reloads. At most one action
// runs at a time; a batch that arrives meanwhile waits and is classified
// against the dependencies of the build that finished before it.
type DevLoop struct {
	session  *build.Session
	opts     *build.NormalizedOptions
	consumer renderer.Consumer
	reloader Reloader
	logger   logging.Logger
	recorder monitoring.Recorder
	sem      *semaphore.Weighted
	handler  *errors.ErrorHandler
	problems *errors.ErrorCollector

	mu      sync.RWMutex
	tracked watcher.Tracked
	last    *build.Result
	// failed is set while the latest build is broken. Its inputs are
	// unknown then, so any change retries it.
	failed bool
}

// NewDevLoop creates a loop around session. Pages go to consumer and
// reloads to reloader.
func NewDevLoop(session *build.Session, consumer renderer.Consumer, reloader Reloader) *DevLoop {
	opts := session.Options()
	return &DevLoop{
		session:  session,
		opts:     opts,
		consumer: consumer,
		reloader: reloader,
		logger:   opts.Logger.WithComponent("server"),
		recorder: opts.Recorder,
		sem:      semaphore.NewWeighted(1),
		handler:  errors.NewErrorHandler(opts.Logger.WithComponent("server")),
		problems: errors.NewErrorCollector(),
		tracked:  watcher.NewTracked(opts.HTMLEntry, opts.PublicDir, nil, nil, nil),
	}
}

// Start runs the first full build. A missing entry document is returned;
// any other failure is logged and the loop waits for a fix.
func (l *DevLoop) Start(ctx context.Context) error {
	err := l.Apply(ctx, watcher.ActionFullRebuild)
	if errors.HasCode(err, errors.ErrCodeHTMLEntryMissing) {
		return err
	}
	return nil
}

// HandleChanges is the watcher handler: the batch becomes at most one
// action, the strongest it contains.
func (l *DevLoop) HandleChanges(ctx context.Context, events []watcher.ChangeEvent) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil
	}
	defer l.sem.Release(1)

	action := watcher.ClassifyBatch(events, l.Tracked())
	if action == watcher.ActionIgnore && len(events) > 0 && l.Failed() {
		action = watcher.ActionIncrementalRebuild
	}
	l.recorder.IncWatchEvent(action.String())
	if action == watcher.ActionIgnore {
		return nil
	}

	l.logger.Debug(ctx, "Files changed", "events", len(events), "action", action.String())
	_ = l.run(ctx, action)
	return nil
}

// Apply runs action under the loop's lock.
func (l *DevLoop) Apply(ctx context.Context, action watcher.Action) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)

	return l.run(ctx, action)
}

// run performs one action. Failures keep the last good page and are
// returned only for callers that care; the loop itself never stops.
func (l *DevLoop) run(ctx context.Context, action watcher.Action) error {
	var result *build.Result
	var err error

	switch action {
	case watcher.ActionReload:
		l.reloader.Reload()
		return nil
	case watcher.ActionIncrementalRebuild:
		result, err = l.session.Rebuild(ctx)
	case watcher.ActionFullRebuild:
		result, err = l.session.Start(ctx)
	default:
		return nil
	}

	if err == nil {
		err = l.publish(ctx, result, action == watcher.ActionFullRebuild)
	}
	if err != nil {
		l.mu.Lock()
		l.failed = true
		l.problems.Clear()
		l.problems.AddError(err)
		l.mu.Unlock()
		l.handler.Handle(ctx, err)
		return err
	}

	l.mu.Lock()
	l.failed = false
	l.problems.Clear()
	l.last = result
	l.tracked = watcher.NewTracked(l.opts.HTMLEntry, l.opts.PublicDir, result.Deps, result.WatchFiles, result.WatchDirs)
	l.mu.Unlock()

	l.reloader.Reload()
	l.logger.Info(ctx, "Rebuilt", "kind", string(result.Kind), "duration", result.Duration)
	return nil
}

// publish writes the outputs and hands the assembled page on.
func (l *DevLoop) publish(ctx context.Context, result *build.Result, clean bool) error {
	if err := build.WriteOutputs(ctx, l.opts.OutDir, result.OutputFiles, clean); err != nil {
		return err
	}
	page, err := renderer.Assemble(result.Page(), renderer.Options{Dev: l.opts.Dev})
	if err != nil {
		return errors.WrapBuild(err, errors.ErrCodeOutputMapping, "failed to assemble the entry document", "")
	}
	return l.consumer.Deliver(ctx, page)
}

// Tracked returns the dependency sets of the last successful build.
func (l *DevLoop) Tracked() watcher.Tracked {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tracked
}

// LastResult returns the last successful build, or nil.
func (l *DevLoop) LastResult() *build.Result {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}

// Problems lists the diagnostics of the latest build, one line each. It is
// empty after a successful build.
func (l *DevLoop) Problems() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.problems.Summary()
}

// Failed reports whether the latest build failed.
func (l *DevLoop) Failed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.failed
}
