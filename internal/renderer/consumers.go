package renderer

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/conneroisu/vei/internal/errors"
)

// MemoryConsumer keeps the latest page in memory and serves it.
type MemoryConsumer struct {
	html atomic.Pointer[[]byte]
}

// NewMemoryConsumer creates an empty memory consumer.
func NewMemoryConsumer() *MemoryConsumer {
	return &MemoryConsumer{}
}

func (m *MemoryConsumer) Deliver(_ context.Context, html []byte) error {
	page := append([]byte(nil), html...)
	m.html.Store(&page)
	return nil
}

// HTML returns the last delivered page, or nil before the first delivery.
func (m *MemoryConsumer) HTML() []byte {
	if p := m.html.Load(); p != nil {
		return *p
	}
	return nil
}

// ServeHTTP writes the last delivered page. Until a build succeeded it
// answers 503.
func (m *MemoryConsumer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	page := m.HTML()
	if page == nil {
		http.Error(w, "build in progress", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(page)
}

// FileConsumer writes the page to a file.
type FileConsumer struct {
	Path string
}

// NewFileConsumer writes index.html into outDir.
func NewFileConsumer(outDir string) *FileConsumer {
	return &FileConsumer{Path: filepath.Join(outDir, "index.html")}
}

func (f *FileConsumer) Deliver(_ context.Context, html []byte) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, "failed to create output directory")
	}
	if err := os.WriteFile(f.Path, html, 0o644); err != nil {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, "failed to write HTML").WithFile(f.Path)
	}
	return nil
}

// CallbackConsumer hands the page to a function.
type CallbackConsumer func(ctx context.Context, html []byte) error

func (c CallbackConsumer) Deliver(ctx context.Context, html []byte) error {
	return c(ctx, html)
}
