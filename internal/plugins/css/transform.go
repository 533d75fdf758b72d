package css

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/conneroisu/vei/internal/errors"
)

// TransformRequest describes one stylesheet handed to the external tool.
type TransformRequest struct {
	Path      string
	Code      []byte
	ConfigDir string
	SourceMap bool
}

// TransformResult is the transformed stylesheet and its source map, if any.
type TransformResult struct {
	CSS []byte
	Map []byte
}

// Runner runs the external stylesheet transform.
type Runner interface {
	Transform(ctx context.Context, req TransformRequest) (TransformResult, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, req TransformRequest) (TransformResult, error)

func (f RunnerFunc) Transform(ctx context.Context, req TransformRequest) (TransformResult, error) {
	return f(ctx, req)
}

// ExecRunner pipes stylesheets through an external command on stdin and
// stdout. A binary under node_modules/.bin next to the config is preferred
// over one on PATH.
type ExecRunner struct {
	Command string
	Args    []string
}

// NewExecRunner returns a runner for command, defaulting to postcss.
func NewExecRunner(command string, args ...string) *ExecRunner {
	if command == "" {
		command = "postcss"
	}
	return &ExecRunner{Command: command, Args: args}
}

func (r *ExecRunner) Transform(ctx context.Context, req TransformRequest) (TransformResult, error) {
	bin, err := r.lookPath(req.ConfigDir)
	if err != nil {
		return TransformResult{}, errors.ErrTransformToolMissing(r.Command, err).WithFile(req.Path)
	}

	args := append([]string{}, r.Args...)
	args = append(args, "--config", req.ConfigDir)
	if req.SourceMap {
		args = append(args, "--map")
	} else {
		args = append(args, "--no-map")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = filepath.Dir(req.Path)
	cmd.Stdin = bytes.NewReader(req.Code)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "stylesheet transform failed"
		}
		return TransformResult{}, errors.NewBuildError(errors.ErrCodeBuildFailed, msg, err).
			WithPlugin(Name).
			WithFile(req.Path)
	}

	css, sourceMap := SplitInlineMap(stdout.Bytes())

	return TransformResult{CSS: css, Map: sourceMap}, nil
}

func (r *ExecRunner) lookPath(configDir string) (string, error) {
	if !strings.ContainsRune(r.Command, filepath.Separator) {
		dir := configDir
		for dir != "" {
			local := filepath.Join(dir, "node_modules", ".bin", r.Command)
			if path, err := exec.LookPath(local); err == nil {
				return path, nil
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	return exec.LookPath(r.Command)
}

var inlineMapPattern = regexp.MustCompile(`\n?/\*# sourceMappingURL=data:application/json;(?:charset=utf-8;)?base64,([A-Za-z0-9+/=]+) \*/\s*$`)

// SplitInlineMap removes a trailing inline source map comment and returns the
// decoded map. Stylesheets without one are returned unchanged.
func SplitInlineMap(css []byte) ([]byte, []byte) {
	loc := inlineMapPattern.FindSubmatchIndex(css)
	if loc == nil {
		return css, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(string(css[loc[2]:loc[3]]))
	if err != nil {
		return css, nil
	}

	return css[:loc[0]], decoded
}

// AppendInlineMap appends sourceMap to css as an inline comment.
func AppendInlineMap(css, sourceMap []byte) []byte {
	if len(sourceMap) == 0 {
		return css
	}
	comment := fmt.Sprintf("\n/*# sourceMappingURL=data:application/json;base64,%s */",
		base64.StdEncoding.EncodeToString(sourceMap))

	out := make([]byte, 0, len(css)+len(comment))
	out = append(out, css...)

	return append(out, comment...)
}
