package build

import (
	"strings"

	"github.com/conneroisu/vei/internal/errors"
	"github.com/conneroisu/vei/internal/plugins"
	"github.com/conneroisu/vei/internal/scanner"
)

// MapOutputs assigns every entry the metafile output key that serves it.
//
// Outputs are visited in sorted key order and only those with the extension
// the entry kind produces are considered; source maps never are. Passes run
// from strictest to loosest and the first hit wins:
//
//  1. the output's entry point equals the entry's relative source;
//  2. the same comparison with query suffixes stripped;
//  3. the output's inputs contain the relative source;
//  4. the same comparison with query suffixes stripped.
//
// An entry without any matching output is an internal error.
func MapOutputs(entries []scanner.Entry, meta *plugins.Metafile) (map[string]string, error) {
	keys := meta.SortedOutputs()
	mapped := make(map[string]string, len(entries))

	for _, e := range entries {
		key, ok := mapEntry(e, keys, meta)
		if !ok {
			return nil, errors.ErrOutputMapping(e.Name, e.Rel)
		}
		mapped[e.Name] = key
	}

	return mapped, nil
}

func mapEntry(e scanner.Entry, keys []string, meta *plugins.Metafile) (string, bool) {
	ext := e.OutputExt()
	candidates := make([]string, 0, len(keys))
	for _, key := range keys {
		if strings.HasSuffix(key, ".map") || !hasExt(key, ext) {
			continue
		}
		candidates = append(candidates, key)
	}

	rel := e.Rel
	bare := plugins.StripSuffix(rel)

	passes := []func(plugins.MetafileOutput) bool{
		func(out plugins.MetafileOutput) bool {
			return out.EntryPoint == rel
		},
		func(out plugins.MetafileOutput) bool {
			return out.EntryPoint != "" && plugins.StripSuffix(out.EntryPoint) == bare
		},
		func(out plugins.MetafileOutput) bool {
			_, ok := out.Inputs[rel]
			return ok
		},
		func(out plugins.MetafileOutput) bool {
			for in := range out.Inputs {
				if plugins.StripSuffix(in) == bare {
					return true
				}
			}
			return false
		},
	}

	for _, match := range passes {
		for _, key := range candidates {
			if match(meta.Outputs[key]) {
				return key, true
			}
		}
	}
	return "", false
}

func hasExt(key, ext string) bool {
	return len(key) >= len(ext) && strings.EqualFold(key[len(key)-len(ext):], ext)
}
