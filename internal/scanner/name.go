package scanner

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fallbackBase names references whose final segment has no usable characters.
const fallbackBase = "asset"

// BaseName derives the readable part of an entry name from a reference: the
// final path segment without its extension, with diacritics folded and every
// other non-alphanumeric character replaced by an underscore.
func BaseName(ref string) string {
	p, _ := splitSuffix(ref)
	seg := path.Base(p)
	if ext := path.Ext(seg); ext != "" && ext != seg {
		seg = strings.TrimSuffix(seg, ext)
	}

	folded, _, err := transform.String(foldDiacritics(), seg)
	if err != nil {
		folded = seg
	}

	var b strings.Builder
	for _, r := range folded {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}

	if strings.Trim(b.String(), "_") == "" {
		return fallbackBase
	}
	return b.String()
}

// ReferenceHash returns the first eight hex digits of the xxhash64 of key.
func ReferenceHash(key string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(key))[:8]
}

// EntryName forms the unique entry name for a reference key.
func EntryName(key string) string {
	return BaseName(key) + "-" + ReferenceHash(key)
}

// foldDiacritics decomposes, drops combining marks and recomposes.
// Transformers carry state, so a fresh chain is built per call.
func foldDiacritics() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// splitSuffix separates a reference into its path and its query or
// fragment suffix (including the leading '?' or '#').
func splitSuffix(ref string) (string, string) {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i], ref[i:]
	}
	return ref, ""
}
