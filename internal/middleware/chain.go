// Package middleware holds the HTTP middleware shared by the dev and
// preview servers.
package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/conneroisu/vei/internal/logging"
)

// Middleware represents a single middleware function
type Middleware func(http.Handler) http.Handler

// MiddlewareChain composes middlewares. The first added is the outermost.
type MiddlewareChain struct {
	middlewares []Middleware
}

// NewMiddlewareChain creates a chain from middlewares, outermost first.
func NewMiddlewareChain(middlewares ...Middleware) *MiddlewareChain {
	mc := &MiddlewareChain{middlewares: make([]Middleware, 0, len(middlewares))}
	for _, m := range middlewares {
		mc.AddMiddleware(m)
	}
	return mc
}

// AddMiddleware appends m as the innermost middleware so far.
func (mc *MiddlewareChain) AddMiddleware(m Middleware) {
	if m == nil {
		return
	}
	mc.middlewares = append(mc.middlewares, m)
}

// Len returns the number of middlewares in the chain.
func (mc *MiddlewareChain) Len() int {
	return len(mc.middlewares)
}

// Apply wraps handler with every middleware of the chain.
func (mc *MiddlewareChain) Apply(handler http.Handler) http.Handler {
	wrapped := handler
	for i := len(mc.middlewares) - 1; i >= 0; i-- {
		wrapped = mc.middlewares[i](wrapped)
	}
	return wrapped
}

// statusRecorder captures the status code written by the next handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer, which
// websocket upgrades rely on.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Logging logs every request at debug level with its status and duration.
func Logging(logger logging.Logger) Middleware {
	logger = logger.WithComponent("server")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.Debug(r.Context(), "HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start))
		})
	}
}

// Recover turns handler panics into 500 responses.
func Recover(logger logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					logger.Error(r.Context(), fmt.Errorf("panic: %v", v), "Handler panicked", "path", r.URL.Path)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CORS allows any origin to fetch resources, as a dev server must for
// assets loaded cross-origin. Preflight requests are answered directly.
func CORS() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NoCache marks every response as not cacheable.
func NoCache() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}
