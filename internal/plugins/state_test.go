package plugins

import (
	"sync"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
)

func TestStateSetsKeepInsertionOrder(t *testing.T) {
	state := NewState()
	state.AddStylesheets("/dist/b.css", "/dist/a.css", "/dist/b.css", "")
	state.AddWatchFiles("/src/x.css", "/src/x.css")
	state.AddWatchDirs("/src")

	assert.Equal(t, []string{"/dist/b.css", "/dist/a.css"}, state.Stylesheets())
	assert.Equal(t, []string{"/src/x.css"}, state.WatchFiles())
	assert.Equal(t, []string{"/src"}, state.WatchDirs())

	state.Reset()
	assert.Empty(t, state.Stylesheets())
	assert.Empty(t, state.WatchFiles())
	assert.Empty(t, state.WatchDirs())
}

func TestStateEmitReplacesSamePath(t *testing.T) {
	state := NewState()
	state.Emit(api.OutputFile{Path: "/dist/w.js", Contents: []byte("1")})
	state.Emit(api.OutputFile{Path: "/dist/s.css", Contents: []byte("2")})
	state.Emit(api.OutputFile{Path: "/dist/w.js", Contents: []byte("3")})

	emitted := state.Emitted()
	assert.Len(t, emitted, 2)
	assert.Equal(t, "/dist/w.js", emitted[0].Path)
	assert.Equal(t, []byte("3"), emitted[0].Contents)
}

func TestStateConcurrentUse(t *testing.T) {
	state := NewState()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state.AddStylesheets("/dist/a.css")
			state.AddWatchFiles("/src/a.css")
			_ = state.Stylesheets()
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"/dist/a.css"}, state.Stylesheets())
}

func TestMetafileHelpers(t *testing.T) {
	meta, err := ParseMetafile(`{
		"inputs": {
			"src/main.ts": {"bytes": 10, "imports": []},
			"src/style.css?css": {"bytes": 4, "imports": []},
			"virtual:msg": {"bytes": 1, "imports": []}
		},
		"outputs": {
			"dist/main.js.map": {"bytes": 1, "inputs": {}},
			"dist/main.js": {"bytes": 1, "inputs": {"src/main.ts": {"bytesInOutput": 10}}, "entryPoint": "src/main.ts"},
			"dist/style.css": {"bytes": 1, "inputs": {}}
		}
	}`)
	assert.NoError(t, err)

	assert.Equal(t, []string{"dist/main.js", "dist/main.js.map", "dist/style.css"}, meta.SortedOutputs())

	key, ok := meta.FindOutput(".js")
	assert.True(t, ok)
	assert.Equal(t, "dist/main.js", key)

	assert.Equal(t, []string{"/p/src/main.ts", "/p/src/style.css"}, meta.InputFiles("/p"))

	url, err := PublicURL("/base", "/p/dist", "/p/dist/assets/a.png")
	assert.NoError(t, err)
	assert.Equal(t, "/base/assets/a.png", url)
}
