package server

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/conneroisu/vei/internal/errors"
	"github.com/conneroisu/vei/internal/logging"
	"github.com/conneroisu/vei/internal/middleware"
)

// PreviewOptions configure the preview server.
type PreviewOptions struct {
	Host   string
	Port   int
	Open   bool
	OutDir string
	Base   string
	Logger logging.Logger
}

// PreviewServer serves a finished build from disk. Unknown paths get the
// built index.html so client-side routes work.
type PreviewServer struct {
	opts   PreviewOptions
	logger logging.Logger

	serverMutex sync.RWMutex
	httpServer  *http.Server
}

// NewPreviewServer checks that a build exists in the output directory.
func NewPreviewServer(opts PreviewOptions) (*PreviewServer, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	index := filepath.Join(opts.OutDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeFileNotFound,
			fmt.Sprintf("no build found in %s, run vei build first", opts.OutDir)).WithFile(index)
	}

	return &PreviewServer{opts: opts, logger: opts.Logger.WithComponent("server")}, nil
}

// Handler returns the preview routes.
func (p *PreviewServer) Handler() http.Handler {
	index := filepath.Join(p.opts.OutDir, "index.html")
	// Read per request so a rebuild in another terminal is picked up.
	fallback := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := os.ReadFile(index)
		if err != nil {
			http.Error(w, "build output missing", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		http.ServeContent(w, r, "index.html", time.Time{}, bytes.NewReader(data))
	})

	return middleware.NewMiddlewareChain(
		middleware.Recover(p.logger),
		middleware.Logging(p.logger),
	).Apply(newAssetHandler(p.opts.OutDir, "", p.opts.Base, fallback))
}

// Start serves until ctx is done.
func (p *PreviewServer) Start(ctx context.Context) error {
	addr := net.JoinHostPort(p.opts.Host, strconv.Itoa(p.opts.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	p.serverMutex.Lock()
	p.httpServer = &http.Server{Handler: p.Handler(), ReadHeaderTimeout: 10 * time.Second}
	server := p.httpServer
	p.serverMutex.Unlock()

	address := "http://" + listener.Addr().String() + basePath(p.opts.Base)
	p.logger.Info(ctx, "Preview server ready", "url", address, "out_dir", p.opts.OutDir)
	if p.opts.Open {
		go openBrowser(ctx, p.logger, address)
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
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
