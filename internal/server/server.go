// Package server runs the dev server with its rebuild loop and the static
// preview server.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/vei/internal/build"
	"github.com/conneroisu/vei/internal/logging"
	"github.com/conneroisu/vei/internal/middleware"
	"github.com/conneroisu/vei/internal/monitoring"
	"github.com/conneroisu/vei/internal/renderer"
	"github.com/conneroisu/vei/internal/validation"
	"github.com/conneroisu/vei/internal/watcher"
	"github.com/conneroisu/vei/internal/websocket"
)

const (
	HealthPath  = "/__vei/health"
	MetricsPath = "/__vei/metrics"

	shutdownTimeout = 5 * time.Second
)

// DevOptions configure the dev server around a normalized build.
type DevOptions struct {
	Host string
	Port int
	// Open launches the system browser once the server listens.
	Open     bool
	Debounce time.Duration
	// Ignore lists directory names the watcher skips.
	Ignore  []string
	Version string
	// Metrics serves MetricsPath when set.
	Metrics http.Handler
}

// DevServer serves the last good build, rebuilds on change and tells
// browsers to reload.
type DevServer struct {
	opts    DevOptions
	build   *build.NormalizedOptions
	session *build.Session
	loop    *DevLoop
	hub     *websocket.Hub
	page    *renderer.MemoryConsumer
	health  *monitoring.HealthMonitor
	logger  logging.Logger

	serverMutex  sync.RWMutex
	httpServer   *http.Server
	fileWatcher  *watcher.FileWatcher
	shutdownOnce sync.Once
}

// NewDevServer wires a session, reload hub and in-memory page together.
// Nothing runs until Start.
func NewDevServer(opts DevOptions, buildOpts *build.NormalizedOptions) *DevServer {
	logger := buildOpts.Logger.WithComponent("server")

	hub := websocket.NewHub(websocket.HubOptions{
		OriginPatterns: originPatterns(opts.Host, opts.Port),
		Logger:         buildOpts.Logger,
		Recorder:       buildOpts.Recorder,
	})
	page := renderer.NewMemoryConsumer()
	session := build.NewSession(buildOpts)

	s := &DevServer{
		opts:    opts,
		build:   buildOpts,
		session: session,
		loop:    NewDevLoop(session, page, hub),
		hub:     hub,
		page:    page,
		health:  monitoring.NewHealthMonitor(buildOpts.Logger, opts.Version),
		logger:  logger,
	}
	s.registerHealthChecks()

	return s
}

// Loop returns the rebuild loop.
func (s *DevServer) Loop() *DevLoop {
	return s.loop
}

// Hub returns the reload hub.
func (s *DevServer) Hub() *websocket.Hub {
	return s.hub
}

func (s *DevServer) registerHealthChecks() {
	s.health.RegisterCheck(monitoring.NewHealthCheckFunc("build", false, func(ctx context.Context) monitoring.HealthCheck {
		check := monitoring.HealthCheck{Name: "build", Status: monitoring.HealthStatusHealthy}
		switch {
		case s.loop.Failed():
			check.Status = monitoring.HealthStatusUnhealthy
			check.Message = "last build failed"
			check.Metadata = map[string]interface{}{"problems": s.loop.Problems()}
		case s.loop.LastResult() == nil:
			check.Status = monitoring.HealthStatusDegraded
			check.Message = "no build yet"
		}

		snap := s.session.Metrics().GetSnapshot()
		if check.Metadata == nil {
			check.Metadata = map[string]interface{}{}
		}
		check.Metadata["total_builds"] = snap.TotalBuilds
		check.Metadata["failed_builds"] = snap.FailedBuilds
		check.Metadata["incremental_builds"] = snap.IncrementalBuilds
		check.Metadata["average_duration"] = snap.AverageDuration.String()
		check.Metadata["success_rate"] = s.session.Metrics().GetSuccessRate()
		return check
	}))

	s.health.RegisterCheck(monitoring.NewHealthCheckFunc("reload", false, func(ctx context.Context) monitoring.HealthCheck {
		return monitoring.HealthCheck{
			Name:     "reload",
			Status:   monitoring.HealthStatusHealthy,
			Metadata: map[string]interface{}{"clients": s.hub.Clients()},
		}
	}))

	s.health.RegisterCheck(monitoring.NewHealthCheckFunc("output", true, func(ctx context.Context) monitoring.HealthCheck {
		check := monitoring.HealthCheck{Name: "output", Status: monitoring.HealthStatusHealthy}
		if err := os.MkdirAll(s.build.OutDir, 0o755); err != nil {
			check.Status = monitoring.HealthStatusUnhealthy
			check.Message = err.Error()
		}
		return check
	}))
}

// Handler returns the dev server's routes.
func (s *DevServer) Handler() http.Handler {
	chain := middleware.NewMiddlewareChain(
		middleware.Recover(s.logger),
		middleware.Logging(s.logger),
		middleware.CORS(),
		middleware.NoCache(),
	)

	mux := http.NewServeMux()
	// The upgrade needs the raw writer, so the reload route skips the chain.
	mux.Handle(renderer.ReloadPath, s.hub)
	mux.Handle(HealthPath, chain.Apply(s.health.HTTPHandler()))
	if s.opts.Metrics != nil {
		mux.Handle(MetricsPath, chain.Apply(s.opts.Metrics))
	}
	mux.Handle("/", chain.Apply(newAssetHandler(s.build.OutDir, s.build.PublicDir, s.build.Base, s.page)))

	return mux
}

// Start builds, starts watching and serves until ctx is done, then shuts
// down gracefully.
func (s *DevServer) Start(ctx context.Context) error {
	if err := s.loop.Start(ctx); err != nil {
		return err
	}

	if err := s.startWatcher(ctx); err != nil {
		return err
	}

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	address := "http://" + listener.Addr().String() + s.basePath()
	s.logger.Info(ctx, "Dev server ready", "url", address)
	if s.opts.Open {
		go openBrowser(ctx, s.logger, address)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		_ = s.Shutdown(context.Background())
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

func (s *DevServer) startWatcher(ctx context.Context) error {
	fw, err := watcher.NewFileWatcher(s.opts.Debounce, s.build.Logger)
	if err != nil {
		return err
	}
	for _, filter := range watcher.DefaultFilters(s.build.OutDir, s.opts.Ignore...) {
		fw.AddFilter(filter)
	}
	fw.AddHandler(s.loop.HandleChanges)

	if err := fw.AddRecursive(s.build.Root); err != nil {
		fw.Stop()
		return fmt.Errorf("watching %s: %w", s.build.Root, err)
	}
	// Stylesheet tool configs and content globs may live outside the root.
	for _, dir := range s.loop.Tracked().WatchDirs {
		if !strings.HasPrefix(dir, s.build.Root+string(filepath.Separator)) {
			if err := fw.AddRecursive(dir); err != nil {
				s.logger.Warn(ctx, err, "Failed to watch directory", "path", dir)
			}
		}
	}
	if err := fw.Start(ctx); err != nil {
		fw.Stop()
		return err
	}

	s.serverMutex.Lock()
	s.fileWatcher = fw
	s.serverMutex.Unlock()
	return nil
}

// Shutdown stops the watcher, disconnects browsers, drains HTTP and
// disposes the build context.
func (s *DevServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down dev server")

		s.serverMutex.RLock()
		fw := s.fileWatcher
		server := s.httpServer
		s.serverMutex.RUnlock()

		if fw != nil {
			_ = fw.Stop()
		}
		s.hub.Close()
		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
		s.session.Dispose()
	})

	return shutdownErr
}

func (s *DevServer) basePath() string {
	return basePath(s.build.Base)
}

// basePath is the path component of base, which may be a full URL.
func basePath(base string) string {
	if u, err := url.Parse(base); err == nil && u.Host != "" {
		base = u.Path
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}

func originPatterns(host string, port int) []string {
	patterns := []string{
		net.JoinHostPort("localhost", strconv.Itoa(port)),
		net.JoinHostPort("127.0.0.1", strconv.Itoa(port)),
	}
	if host != "" && host != "localhost" && host != "127.0.0.1" {
		patterns = append(patterns, net.JoinHostPort(host, strconv.Itoa(port)))
	}
	return patterns
}

// assetHandler serves built outputs, then public files, then the page for
// any other GET.
type assetHandler struct {
	outDir    string
	publicDir string
	base      string
	page      http.Handler
}

func newAssetHandler(outDir, publicDir, base string, page http.Handler) *assetHandler {
	return &assetHandler{outDir: outDir, publicDir: publicDir, base: basePath(base), page: page}
}

func (h *assetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	rel := stripBase(path.Clean("/"+r.URL.Path), h.base)

	for _, dir := range []string{h.outDir, h.publicDir} {
		if dir == "" || rel == "/" {
			continue
		}
		file := filepath.Join(dir, filepath.FromSlash(rel))
		if info, err := os.Stat(file); err == nil && info.Mode().IsRegular() {
			http.ServeFile(w, r, file)
			return
		}
	}

	h.page.ServeHTTP(w, r)
}

// stripBase maps a request path under base onto the output root.
func stripBase(p, base string) string {
	switch {
	case p == strings.TrimSuffix(base, "/"):
		return "/"
	case strings.HasPrefix(p, base):
		return "/" + strings.TrimPrefix(p, base)
	}
	return p
}

func openBrowser(ctx context.Context, logger logging.Logger, target string) {
	time.Sleep(100 * time.Millisecond)

	if err := validation.ValidateURL(target); err != nil {
		logger.Warn(ctx, err, "Refusing to open browser for invalid URL", "url", target)
		return
	}

	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", target).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", target).Start()
	case "darwin":
		err = exec.Command("open", target).Start()
	default:
		err = fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}

	if err != nil {
		logger.Warn(ctx, err, "Failed to open browser")
	}
}
