package watcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	root := filepath.FromSlash("/app")
	join := func(parts ...string) string {
		return filepath.Join(append([]string{root}, parts...)...)
	}

	tracked := NewTracked(
		join("index.html"),
		join("public"),
		[]string{join("src", "main.js"), join("src", "style.css")},
		[]string{join("postcss.config.js")},
		[]string{join("content")},
	)

	tests := []struct {
		name string
		path string
		want Action
	}{
		{"entry document", join("index.html"), ActionFullRebuild},
		{"entry document unclean", join("src", "..", "index.html"), ActionFullRebuild},
		{"public stylesheet", join("public", "theme.css"), ActionReload},
		{"public image upper case", join("public", "img", "LOGO.PNG"), ActionReload},
		{"public font", join("public", "fonts", "a.otf"), ActionReload},
		{"public other", join("public", "robots.txt"), ActionIgnore},
		{"dependency", join("src", "main.js"), ActionIncrementalRebuild},
		{"watch file", join("postcss.config.js"), ActionIncrementalRebuild},
		{"under watch dir", join("content", "posts", "a.md"), ActionIncrementalRebuild},
		{"watch dir itself", join("content"), ActionIgnore},
		{"untracked", join("src", "unused.js"), ActionIgnore},
		{"nested html", join("src", "index.html"), ActionIgnore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.path, tracked))
		})
	}
}

func TestClassifyPublicWins(t *testing.T) {
	root := filepath.FromSlash("/app")
	public := filepath.Join(root, "public")
	asset := filepath.Join(public, "data.json")

	tracked := NewTracked(filepath.Join(root, "index.html"), public, []string{asset}, nil, nil)
	assert.Equal(t, ActionIgnore, Classify(asset, tracked))
}

func TestClassifyBatch(t *testing.T) {
	root := filepath.FromSlash("/app")
	tracked := NewTracked(
		filepath.Join(root, "index.html"),
		filepath.Join(root, "public"),
		[]string{filepath.Join(root, "main.js")},
		nil, nil,
	)

	tests := []struct {
		name  string
		paths []string
		want  Action
	}{
		{"empty", nil, ActionIgnore},
		{"untracked only", []string{filepath.Join(root, "notes.txt")}, ActionIgnore},
		{"reload", []string{filepath.Join(root, "public", "a.css")}, ActionReload},
		{"incremental beats reload", []string{
			filepath.Join(root, "public", "a.css"),
			filepath.Join(root, "main.js"),
		}, ActionIncrementalRebuild},
		{"full beats all", []string{
			filepath.Join(root, "main.js"),
			filepath.Join(root, "index.html"),
			filepath.Join(root, "public", "a.css"),
		}, ActionFullRebuild},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := make([]ChangeEvent, 0, len(tt.paths))
			for _, p := range tt.paths {
				events = append(events, ChangeEvent{Path: p, Type: EventTypeModified})
			}
			assert.Equal(t, tt.want, ClassifyBatch(events, tracked))
		})
	}
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "ignore", ActionIgnore.String())
	assert.Equal(t, "reload", ActionReload.String())
	assert.Equal(t, "incremental", ActionIncrementalRebuild.String())
	assert.Equal(t, "full", ActionFullRebuild.String())
	assert.Equal(t, "unknown", Action(9).String())
}
