package plugins

import (
	"sync"

	"github.com/evanw/esbuild/pkg/api"
)

// orderedSet keeps insertion order and ignores duplicates.
type orderedSet struct {
	items []string
	index map[string]struct{}
}

func (s *orderedSet) add(values ...string) {
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := s.index[v]; ok {
			continue
		}
		s.index[v] = struct{}{}
		s.items = append(s.items, v)
	}
}

func (s *orderedSet) list() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)

	return out
}

func (s *orderedSet) clear() {
	s.items = nil
	s.index = nil
}

// State is shared by every plugin of a build and survives incremental
// rebuilds. It is safe for concurrent use by hooks.
type State struct {
	mu               sync.Mutex
	extraStylesheets orderedSet
	watchFiles       orderedSet
	watchDirs        orderedSet
	emitted          []api.OutputFile
	emittedIndex     map[string]int
}

// NewState returns an empty build state.
func NewState() *State {
	return &State{}
}

// AddStylesheets records stylesheet outputs that must be linked from the page head.
func (s *State) AddStylesheets(paths ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extraStylesheets.add(paths...)
}

// Stylesheets returns the collected stylesheets in insertion order.
func (s *State) Stylesheets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.extraStylesheets.list()
}

func (s *State) AddWatchFiles(paths ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchFiles.add(paths...)
}

func (s *State) WatchFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.watchFiles.list()
}

func (s *State) AddWatchDirs(paths ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchDirs.add(paths...)
}

func (s *State) WatchDirs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.watchDirs.list()
}

// Emit stores output files produced outside the main bundling pass. A later
// file with the same path replaces the earlier one.
func (s *State) Emit(files ...api.OutputFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emittedIndex == nil {
		s.emittedIndex = make(map[string]int)
	}
	for _, f := range files {
		if i, ok := s.emittedIndex[f.Path]; ok {
			s.emitted[i] = f
			continue
		}
		s.emittedIndex[f.Path] = len(s.emitted)
		s.emitted = append(s.emitted, f)
	}
}

// Emitted returns the emitted files in emission order.
func (s *State) Emitted() []api.OutputFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.OutputFile, len(s.emitted))
	copy(out, s.emitted)

	return out
}

// Reset clears everything. Only full rebuilds reset the state.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extraStylesheets.clear()
	s.watchFiles.clear()
	s.watchDirs.clear()
	s.emitted = nil
	s.emittedIndex = nil
}
