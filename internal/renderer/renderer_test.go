package renderer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/vei/internal/scanner"
)

func page(t *testing.T) Page {
	t.Helper()
	tpl, entries, err := scanner.Extract(t.TempDir(), "", []byte(`<!DOCTYPE html>
<html><head><title>app</title></head>
<body><script type="module" src="./main.js"></script></body></html>`), nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	return Page{
		Template:    tpl,
		URLs:        map[string]string{entries[0].Name: "/main.js"},
		Stylesheets: []string{"/theme.css"},
	}
}

func TestAssemble(t *testing.T) {
	t.Run("production", func(t *testing.T) {
		out, err := Assemble(page(t), Options{})
		require.NoError(t, err)

		html := string(out)
		assert.Contains(t, html, `<script type="module" src="/main.js"></script>`)
		assert.Contains(t, html, `<link rel="stylesheet" href="/theme.css"/></head>`)
		assert.NotContains(t, html, "WebSocket")
		assert.NotContains(t, html, scanner.TokenPrefix)
	})

	t.Run("development", func(t *testing.T) {
		out, err := Assemble(page(t), Options{Dev: true})
		require.NoError(t, err)

		html := string(out)
		body := html[strings.Index(html, "<body>"):]
		assert.Contains(t, body, "new WebSocket")
		assert.Contains(t, body, ReloadPath)
		assert.Contains(t, body, `data.type === "reload"`)
		assert.True(t, strings.HasSuffix(strings.TrimSpace(body), "</script></body></html>"))
	})

	t.Run("deterministic", func(t *testing.T) {
		p := page(t)
		a, err := Assemble(p, Options{})
		require.NoError(t, err)
		b, err := Assemble(p, Options{})
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("missing template", func(t *testing.T) {
		_, err := Assemble(Page{}, Options{})
		assert.Error(t, err)
	})
}

func TestReloadClient(t *testing.T) {
	script, err := ReloadClient("/custom")
	require.NoError(t, err)
	assert.Contains(t, script, `location.host + "/custom"`)
	assert.Contains(t, script, `addEventListener("close"`)
	assert.Contains(t, script, "setTimeout(connect, delay)")
	assert.Contains(t, script, "let delay = 500")
	assert.Contains(t, script, "Math.min(delay * 2, 10000)")

	script, err = ReloadClient(`/"quoted"`)
	require.NoError(t, err)
	assert.NotContains(t, script, `"/"quoted""`)
}

func TestMemoryConsumer(t *testing.T) {
	m := NewMemoryConsumer()

	rr := httptest.NewRecorder()
	m.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	src := []byte("<html>one</html>")
	require.NoError(t, m.Deliver(context.Background(), src))
	src[1] = 'X'
	assert.Equal(t, "<html>one</html>", string(m.HTML()))

	rr = httptest.NewRecorder()
	m.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/deep/link", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, "<html>one</html>", rr.Body.String())
}

func TestFileConsumer(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dist")
	c := NewFileConsumer(dir)
	require.NoError(t, c.Deliver(context.Background(), []byte("<html></html>")))

	data, err := os.ReadFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(data))
}

func TestCallbackConsumer(t *testing.T) {
	var got string
	c := CallbackConsumer(func(_ context.Context, html []byte) error {
		got = string(html)
		return nil
	})
	require.NoError(t, c.Deliver(context.Background(), []byte("page")))
	assert.Equal(t, "page", got)
}
