//go:build property
// +build property

package watcher

import (
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

const propRoot = "/project"

var publicExts = []string{".css", ".js", ".png", ".txt", ".json", ".svg"}

func propTracked(deps []string) Tracked {
	return NewTracked(
		filepath.Join(propRoot, "index.html"),
		filepath.Join(propRoot, "public"),
		deps,
		[]string{filepath.Join(propRoot, "tailwind.config.js")},
		[]string{filepath.Join(propRoot, "content")},
	)
}

func srcPaths(names []string) []string {
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(propRoot, "src", n+".js")
	}
	return paths
}

// TestClassifyProperties validates the classifier over generated trees.
func TestClassifyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(9876)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	ident := gen.Identifier()

	properties.Property("untracked sources are ignored", prop.ForAll(
		func(deps []string, other string) bool {
			path := filepath.Join(propRoot, "untracked", other+".js")
			return Classify(path, propTracked(srcPaths(deps))) == ActionIgnore
		},
		gen.SliceOf(ident), ident,
	))

	properties.Property("every dependency triggers one incremental rebuild", prop.ForAll(
		func(deps []string) bool {
			tracked := propTracked(srcPaths(deps))
			for _, p := range srcPaths(deps) {
				if Classify(p, tracked) != ActionIncrementalRebuild {
					return false
				}
			}
			return true
		},
		gen.SliceOf(ident),
	))

	properties.Property("batch action is the strongest member", prop.ForAll(
		func(deps []string, untracked []string, withEntry bool) bool {
			tracked := propTracked(srcPaths(deps))

			var events []ChangeEvent
			want := ActionIgnore
			for _, p := range srcPaths(deps) {
				events = append(events, ChangeEvent{Path: p})
				want = ActionIncrementalRebuild
			}
			for _, u := range untracked {
				events = append(events, ChangeEvent{Path: filepath.Join(propRoot, "tmp", u)})
			}
			if withEntry {
				events = append(events, ChangeEvent{Path: tracked.HTMLEntry})
				want = ActionFullRebuild
			}

			if ClassifyBatch(events, tracked) != want {
				return false
			}
			// Order does not matter.
			for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
				events[i], events[j] = events[j], events[i]
			}
			return ClassifyBatch(events, tracked) == want
		},
		gen.SliceOf(ident), gen.SliceOf(ident), gen.Bool(),
	))

	properties.Property("public files never rebuild", prop.ForAll(
		func(name string, i int) bool {
			path := filepath.Join(propRoot, "public", name+publicExts[i])
			a := Classify(path, propTracked([]string{path}))
			return a == ActionReload || a == ActionIgnore
		},
		ident, gen.IntRange(0, len(publicExts)-1),
	))

	properties.TestingRun(t)
}
