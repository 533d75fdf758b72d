package plugins

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Metafile is the decoded esbuild metafile. Keys are relative to the
// working directory of the build.
type Metafile struct {
	Inputs  map[string]MetafileInput  `json:"inputs"`
	Outputs map[string]MetafileOutput `json:"outputs"`
}

type MetafileInput struct {
	Bytes   int              `json:"bytes"`
	Imports []MetafileImport `json:"imports"`
}

type MetafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
	Original string `json:"original,omitempty"`
}

type MetafileOutput struct {
	Bytes      int                            `json:"bytes"`
	Inputs     map[string]MetafileOutputInput `json:"inputs"`
	EntryPoint string                         `json:"entryPoint,omitempty"`
	CSSBundle  string                         `json:"cssBundle,omitempty"`
}

type MetafileOutputInput struct {
	BytesInOutput int `json:"bytesInOutput"`
}

// ParseMetafile decodes the metafile JSON of a build result.
func ParseMetafile(raw string) (*Metafile, error) {
	meta := &Metafile{}
	if raw == "" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(raw), meta); err != nil {
		return nil, fmt.Errorf("failed to decode metafile: %w", err)
	}

	return meta, nil
}

// SortedOutputs returns the output keys in lexical order.
func (m *Metafile) SortedOutputs() []string {
	keys := make([]string, 0, len(m.Outputs))
	for k := range m.Outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

// FindOutput returns the first output key, in sorted order, with the given
// extension. Source maps never match.
func (m *Metafile) FindOutput(ext string) (string, bool) {
	for _, key := range m.SortedOutputs() {
		if strings.HasSuffix(key, ".map") {
			continue
		}
		if filepath.Ext(key) == ext {
			return key, true
		}
	}

	return "", false
}

// InputFiles returns the absolute paths of every file-backed input with
// query suffixes stripped, sorted and without duplicates.
func (m *Metafile) InputFiles(workDir string) []string {
	seen := make(map[string]struct{}, len(m.Inputs))
	files := make([]string, 0, len(m.Inputs))
	for key := range m.Inputs {
		path, ok := InputPath(workDir, key)
		if !ok {
			continue
		}
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}
	sort.Strings(files)

	return files
}

// InputPath converts a metafile input key into an absolute file path. Inputs
// from non-file namespaces report false.
func InputPath(workDir, key string) (string, bool) {
	if ns, _, ok := strings.Cut(key, ":"); ok && !strings.ContainsAny(ns, `/\`) && len(ns) > 1 {
		if ns != "file" {
			return "", false
		}
		key = strings.TrimPrefix(key, "file:")
	}
	key = StripSuffix(key)
	if key == "" {
		return "", false
	}
	if filepath.IsAbs(key) {
		return filepath.Clean(key), true
	}

	return filepath.Join(workDir, filepath.FromSlash(key)), true
}

// StripSuffix removes a trailing ?query or #fragment from a path.
func StripSuffix(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		return path[:i]
	}
	return path
}

// PublicURL returns the URL an output file is served at.
func PublicURL(publicPath, outDir, absPath string) (string, error) {
	rel, err := filepath.Rel(outDir, absPath)
	if err != nil {
		return "", fmt.Errorf("output %s is not under %s: %w", absPath, outDir, err)
	}
	if publicPath != "" && !strings.HasSuffix(publicPath, "/") {
		publicPath += "/"
	}

	return publicPath + filepath.ToSlash(rel), nil
}
