package watcher

import (
	"path/filepath"
	"strings"
)

// Action is what a change asks of the dev loop. Larger values are
// stronger and subsume weaker ones.
type Action int

const (
	ActionIgnore Action = iota
	ActionReload
	ActionIncrementalRebuild
	ActionFullRebuild
)

func (a Action) String() string {
	switch a {
	case ActionIgnore:
		return "ignore"
	case ActionReload:
		return "reload"
	case ActionIncrementalRebuild:
		return "incremental"
	case ActionFullRebuild:
		return "full"
	default:
		return "unknown"
	}
}

// publicReloadExtensions are the public-dir file types a page picks up on
// reload.
var publicReloadExtensions = map[string]struct{}{
	".css": {}, ".js": {}, ".jpg": {}, ".jpeg": {}, ".png": {}, ".webp": {},
	".gif": {}, ".svg": {}, ".ttf": {}, ".otf": {},
}

// Tracked is what the last successful build depends on.
type Tracked struct {
	HTMLEntry  string
	PublicDir  string
	Deps       map[string]struct{}
	WatchFiles map[string]struct{}
	WatchDirs  []string
}

// NewTracked builds a Tracked from path lists. All paths are cleaned.
func NewTracked(htmlEntry, publicDir string, deps, watchFiles, watchDirs []string) Tracked {
	t := Tracked{
		HTMLEntry:  filepath.Clean(htmlEntry),
		Deps:       toSet(deps),
		WatchFiles: toSet(watchFiles),
		WatchDirs:  make([]string, 0, len(watchDirs)),
	}
	if publicDir != "" {
		t.PublicDir = filepath.Clean(publicDir)
	}
	for _, dir := range watchDirs {
		t.WatchDirs = append(t.WatchDirs, filepath.Clean(dir))
	}
	return t
}

func toSet(paths []string) map[string]struct{} {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[filepath.Clean(p)] = struct{}{}
	}
	return set
}

// Classify decides what a change to path requires. The entry document
// forces a full rebuild; reloadable public files a reload; build inputs
// an incremental rebuild. Anything else is ignored.
func Classify(path string, t Tracked) Action {
	path = filepath.Clean(path)

	if path == t.HTMLEntry {
		return ActionFullRebuild
	}

	if t.PublicDir != "" && under(t.PublicDir, path) {
		if _, ok := publicReloadExtensions[strings.ToLower(filepath.Ext(path))]; ok {
			return ActionReload
		}
		return ActionIgnore
	}

	if _, ok := t.Deps[path]; ok {
		return ActionIncrementalRebuild
	}
	if _, ok := t.WatchFiles[path]; ok {
		return ActionIncrementalRebuild
	}
	for _, dir := range t.WatchDirs {
		if under(dir, path) {
			return ActionIncrementalRebuild
		}
	}

	return ActionIgnore
}

// ClassifyBatch returns the strongest action over events.
func ClassifyBatch(events []ChangeEvent, t Tracked) Action {
	strongest := ActionIgnore
	for _, e := range events {
		if a := Classify(e.Path, t); a > strongest {
			strongest = a
		}
	}
	return strongest
}

func under(dir, path string) bool {
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}
