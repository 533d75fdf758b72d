// Package renderer assembles the final HTML page from an extracted template
// and the outputs of a successful build, and hands it to a consumer.
package renderer

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	"github.com/conneroisu/vei/internal/scanner"
)

// ReloadPath is where the dev server accepts reload connections.
const ReloadPath = "/__vei/reload"

// Page is everything needed to render one HTML entry.
type Page struct {
	Template *scanner.Template
	// URLs maps entry names to their public output URLs.
	URLs map[string]string
	// Stylesheets are public URLs linked from <head>, in order.
	Stylesheets []string
}

// Options controls assembly.
type Options struct {
	// Dev appends the reload client.
	Dev bool
	// ReloadPath defaults to ReloadPath.
	ReloadPath string
}

// Assemble resolves every asset slot of the page and injects the extra
// stylesheets and, in dev mode, the reload client.
func Assemble(page Page, opts Options) ([]byte, error) {
	if page.Template == nil {
		return nil, fmt.Errorf("assemble: page has no template")
	}

	render := scanner.RenderOptions{Stylesheets: page.Stylesheets}
	if opts.Dev {
		script, err := ReloadClient(opts.ReloadPath)
		if err != nil {
			return nil, err
		}
		render.ReloadScript = script
	}

	return page.Template.Render(func(entry string) (string, bool) {
		url, ok := page.URLs[entry]
		return url, ok
	}, render)
}

// Reconnect backoff bounds for the reload client.
const (
	reconnectMin = 500 * time.Millisecond
	reconnectMax = 10 * time.Second
)

var reloadClient = template.Must(template.New("reload").Parse(`
  (() => {
    const protocol = location.protocol === "https:" ? "wss:" : "ws:"
    const url = protocol + "//" + location.host + "{{js .Path}}"
    let delay = {{.MinDelay}}
    const connect = () => {
      const ws = new WebSocket(url)
      ws.addEventListener("open", () => {
        delay = {{.MinDelay}}
        console.log("[vei] connected")
      })
      ws.addEventListener("message", (event) => {
        const data = JSON.parse(event.data)
        if (data.type === "reload") location.reload()
      })
      ws.addEventListener("close", () => {
        setTimeout(connect, delay)
        delay = Math.min(delay * 2, {{.MaxDelay}})
      })
    }
    connect()
  })()
`))

// ReloadClient returns the inline script that reloads the page whenever a
// reload message arrives on path.
func ReloadClient(path string) (string, error) {
	if path == "" {
		path = ReloadPath
	}

	var buf bytes.Buffer
	data := struct {
		Path               string
		MinDelay, MaxDelay int64
	}{path, reconnectMin.Milliseconds(), reconnectMax.Milliseconds()}
	if err := reloadClient.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering reload client: %w", err)
	}
	return buf.String(), nil
}

// Consumer receives assembled HTML.
type Consumer interface {
	Deliver(ctx context.Context, html []byte) error
}
