package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestNewFileWatcher(t *testing.T) {
	watcher, err := NewFileWatcher(0, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.Equal(t, DefaultDebounce, watcher.debouncer.delay)
	assert.Empty(t, watcher.filters)
	assert.Empty(t, watcher.handlers)
}

// collector records every batch handed to it.
type collector struct {
	mu      sync.Mutex
	batches [][]ChangeEvent
}

func (c *collector) handle(_ context.Context, events []ChangeEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, events)
	return nil
}

func (c *collector) paths() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[string]bool)
	for _, batch := range c.batches {
		for _, e := range batch {
			seen[e.Path] = true
		}
	}
	return seen
}

func startWatcher(t *testing.T, dir string, filters ...FileFilter) *collector {
	t.Helper()
	watcher, err := NewFileWatcher(30*time.Millisecond, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = watcher.Stop() })

	for _, f := range filters {
		watcher.AddFilter(f)
	}
	c := &collector{}
	watcher.AddHandler(c.handle)
	require.NoError(t, watcher.AddRecursive(dir))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, watcher.Start(ctx))

	return c
}

func TestFileWatcherDeliversChanges(t *testing.T) {
	dir := t.TempDir()
	c := startWatcher(t, dir)

	file := filepath.Join(dir, "main.js")
	require.NoError(t, os.WriteFile(file, []byte("console.log(1)"), 0o644))

	assert.Eventually(t, func() bool { return c.paths()[file] }, 2*time.Second, 20*time.Millisecond)
}

func TestFileWatcherFilters(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "pkg"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "dist"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))

	c := startWatcher(t, dir, DefaultFilters(filepath.Join(dir, "dist"))...)

	ignored := []string{
		filepath.Join(dir, "node_modules", "pkg", "index.js"),
		filepath.Join(dir, "dist", "main.js"),
	}
	for _, p := range ignored {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	tracked := filepath.Join(dir, "src", "app.js")
	require.NoError(t, os.WriteFile(tracked, []byte("x"), 0o644))

	assert.Eventually(t, func() bool { return c.paths()[tracked] }, 2*time.Second, 20*time.Millisecond)
	seen := c.paths()
	for _, p := range ignored {
		assert.False(t, seen[p], p)
	}
}

func TestFileWatcherNewDirectories(t *testing.T) {
	dir := t.TempDir()
	c := startWatcher(t, dir)

	sub := filepath.Join(dir, "components")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// Give the watcher a moment to pick up the new directory.
	time.Sleep(100 * time.Millisecond)

	file := filepath.Join(sub, "button.js")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.Eventually(t, func() bool { return c.paths()[file] }, 2*time.Second, 20*time.Millisecond)
}

func TestAddRecursive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git", "objects"), 0o755))

	watcher, err := NewFileWatcher(time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()
	watcher.AddFilter(IgnoreDirs(".git"))

	require.NoError(t, watcher.AddRecursive(dir))
	assert.Equal(t, []string{
		dir,
		filepath.Join(dir, "a"),
		filepath.Join(dir, "a", "b"),
	}, watcher.WatchList())

	assert.Error(t, watcher.AddRecursive(filepath.Join(dir, "missing")))
	assert.Error(t, watcher.AddPath(filepath.Join(dir, "missing")))
}

func TestIgnoreDirs(t *testing.T) {
	filter := IgnoreDirs("node_modules", ".git")
	testCases := []struct {
		path     string
		expected bool
	}{
		{"/app/src/main.js", true},
		{"/app/node_modules/react/index.js", false},
		{"/app/.git/HEAD", false},
		{"/app/src/.gitignore", true},
		{"/app/my_node_modules/x.js", true},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, filter(filepath.FromSlash(tc.path)))
		})
	}
}

func TestExcludeDir(t *testing.T) {
	filter := ExcludeDir(filepath.FromSlash("/app/dist"))
	assert.False(t, filter(filepath.FromSlash("/app/dist")))
	assert.False(t, filter(filepath.FromSlash("/app/dist/main.js")))
	assert.True(t, filter(filepath.FromSlash("/app/distribution/main.js")))
	assert.True(t, filter(filepath.FromSlash("/app/src/main.js")))
}

func TestDebouncer(t *testing.T) {
	debouncer := &Debouncer{
		delay:   50 * time.Millisecond,
		events:  make(chan ChangeEvent, 100),
		output:  make(chan []ChangeEvent, 10),
		pending: make([]ChangeEvent, 0),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go debouncer.start(ctx)

	debouncer.push(ChangeEvent{Path: "b.js", Type: EventTypeCreated})
	debouncer.push(ChangeEvent{Path: "a.js", Type: EventTypeModified})
	debouncer.push(ChangeEvent{Path: "b.js", Type: EventTypeModified})

	select {
	case events := <-debouncer.output:
		require.Len(t, events, 2)
		assert.Equal(t, "a.js", events[0].Path)
		assert.Equal(t, "b.js", events[1].Path)
		assert.Equal(t, EventTypeModified, events[1].Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no batch flushed")
	}

	select {
	case events := <-debouncer.output:
		t.Fatalf("unexpected second batch: %v", events)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestDebouncerRetriesWhenDispatcherIsBehind(t *testing.T) {
	debouncer := &Debouncer{
		delay:   20 * time.Millisecond,
		events:  make(chan ChangeEvent, 100),
		output:  make(chan []ChangeEvent, 1),
		pending: make([]ChangeEvent, 0),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go debouncer.start(ctx)

	busy := []ChangeEvent{{Path: "busy.js"}}
	debouncer.output <- busy

	debouncer.push(ChangeEvent{Path: "index.html", Type: EventTypeModified})
	time.Sleep(100 * time.Millisecond)
	debouncer.push(ChangeEvent{Path: "util.js", Type: EventTypeModified})
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, busy, <-debouncer.output)

	select {
	case events := <-debouncer.output:
		require.Len(t, events, 2)
		assert.Equal(t, "index.html", events[0].Path)
		assert.Equal(t, "util.js", events[1].Path)
	case <-time.After(2 * time.Second):
		t.Fatal("held batch never flushed")
	}
}

func TestDebouncerQueueOverflow(t *testing.T) {
	// No reader on events: every push takes the overflow path.
	debouncer := &Debouncer{
		delay:   20 * time.Millisecond,
		events:  make(chan ChangeEvent),
		output:  make(chan []ChangeEvent, 1),
		pending: make([]ChangeEvent, 0),
	}

	debouncer.push(ChangeEvent{Path: "a.js", Type: EventTypeModified})
	debouncer.push(ChangeEvent{Path: "b.js", Type: EventTypeCreated})

	select {
	case events := <-debouncer.output:
		require.Len(t, events, 2)
		assert.Equal(t, "a.js", events[0].Path)
		assert.Equal(t, "b.js", events[1].Path)
	case <-time.After(2 * time.Second):
		t.Fatal("overflowed events were lost")
	}

	debouncer.stop()
	debouncer.push(ChangeEvent{Path: "c.js"})
	select {
	case events := <-debouncer.output:
		t.Fatalf("batch after stop: %v", events)
	case <-time.After(80 * time.Millisecond):
	}
}

func TestFileWatcherBurst(t *testing.T) {
	dir := t.TempDir()
	c := startWatcher(t, dir)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("f%d.js", i)), []byte("x"), 0o644))
		}(i)
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return len(c.paths()) == 10 }, 2*time.Second, 20*time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, batch := range c.batches {
		seen := make(map[string]bool)
		for _, e := range batch {
			assert.False(t, seen[e.Path], "duplicate path in batch")
			seen[e.Path] = true
		}
	}
}

func TestFileWatcherStopTwice(t *testing.T) {
	watcher, err := NewFileWatcher(10*time.Millisecond, nil)
	require.NoError(t, err)

	assert.NoError(t, watcher.Stop())
	assert.NoError(t, watcher.Stop())
}
