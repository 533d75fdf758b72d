// Package scanner extracts the asset graph of an HTML entry document.
//
// Extract walks the parsed document once, registers every local script,
// stylesheet and media reference as a bundle entry and replaces the
// referencing attribute with a reserved placeholder token. The returned
// Template keeps the document tree together with the pending slots so the
// real output URLs can be filled in by tree traversal once a build finished.
package scanner

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/conneroisu/vei/internal/errors"
)

// Kind classifies what an entry is bundled as.
type Kind string

const (
	KindScript      Kind = "script"
	KindStyle       Kind = "style"
	KindStyleModule Kind = "style-module"
	KindWorker      Kind = "worker"
	KindAsset       Kind = "asset"
)

// SuffixCSS marks stylesheet links so they load as plain stylesheets.
const SuffixCSS = "?css"

// Entry is a unit of source registered for bundling.
type Entry struct {
	// Name is unique within one extraction: base name plus reference hash.
	Name string
	// Source is the absolute source path including any import suffix.
	Source string
	// Rel is Source relative to the root, slash separated.
	Rel  string
	Kind Kind
}

// Path returns the source path without its import suffix.
func (e Entry) Path() string {
	p, _ := splitSuffix(e.Source)
	return p
}

// OutputExt is the extension of the generated file serving the entry.
func (e Entry) OutputExt() string {
	switch e.Kind {
	case KindStyle:
		return ".css"
	case KindAsset:
		return path.Ext(e.Path())
	default:
		return ".js"
	}
}

// Attr names a scanned attribute. Namespace is empty for plain HTML
// attributes and "xlink" for xlink:href.
type Attr struct {
	Namespace string
	Key       string
}

// ScanTable maps a tag name to the attributes holding asset references.
type ScanTable map[string][]Attr

// DefaultScanTable covers scripts, stylesheets and media elements.
var DefaultScanTable = ScanTable{
	"script": {{Key: "src"}},
	"link":   {{Key: "href"}},
	"img":    {{Key: "src"}},
	"image":  {{Key: "href"}, {Namespace: "xlink", Key: "href"}},
	"source": {{Key: "src"}},
	"video":  {{Key: "src"}, {Key: "poster"}},
	"use":    {{Key: "href"}, {Namespace: "xlink", Key: "href"}},
	"audio":  {{Key: "src"}},
}

// MediaExtensions are copied verbatim into the output and referenced by URL.
var MediaExtensions = []string{
	".aac", ".eot", ".flac", ".gif", ".jpeg", ".jpg", ".mp3", ".mp4", ".ogg",
	".otf", ".png", ".svg", ".ttf", ".wav", ".webm", ".webp", ".woff", ".woff2",
}

var schemeRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*:`)

// IsExternal reports whether a reference points outside the project:
// protocol-relative and scheme URLs, fragments and empty values.
func IsExternal(ref string) bool {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return true
	case strings.HasPrefix(ref, "//"), strings.HasPrefix(ref, "#"):
		return true
	case schemeRe.MatchString(ref):
		return true
	}
	return false
}

// IsMedia reports whether the reference has one of the MediaExtensions.
func IsMedia(ref string) bool {
	p, _ := splitSuffix(ref)
	ext := strings.ToLower(path.Ext(p))
	for _, m := range MediaExtensions {
		if ext == m {
			return true
		}
	}
	return false
}

// Extract parses an HTML entry document and registers its local asset
// references. root is the directory references resolve against; references
// inside publicDir are served as-is and left alone.
func Extract(root, publicDir string, content []byte, table ScanTable) (*Template, []Entry, error) {
	if table == nil {
		table = DefaultScanTable
	}

	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, nil, errors.NewBuildError(errors.ErrCodeBuildFailed, "failed to parse HTML entry", err)
	}

	x := &extractor{
		root:      root,
		publicDir: publicDir,
		table:     table,
		tpl:       &Template{doc: doc},
		byKey:     make(map[string]int),
		names:     make(map[string]string),
	}

	var walk func(*html.Node) error
	walk = func(n *html.Node) error {
		if n.Type == html.ElementNode {
			if err := x.element(n); err != nil {
				return err
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(doc); err != nil {
		return nil, nil, err
	}

	return x.tpl, x.entries, nil
}

type extractor struct {
	root      string
	publicDir string
	table     ScanTable
	tpl       *Template
	entries   []Entry
	// reference key -> index into entries
	byKey map[string]int
	// entry name -> reference key
	names map[string]string
}

func (x *extractor) element(n *html.Node) error {
	scanned, ok := x.table[n.Data]
	if !ok {
		return nil
	}

	for i := range n.Attr {
		a := &n.Attr[i]
		if !wanted(scanned, a) || IsExternal(a.Val) {
			continue
		}

		ref := strings.TrimSpace(a.Val)
		abs, rel := x.resolve(ref)
		if x.inPublic(ref, abs) {
			continue
		}

		kind, suffix, ok := classify(n, ref)
		if !ok {
			continue
		}
		if kind != KindAsset && n.Data == "script" && !strings.EqualFold(getAttr(n, "type"), "module") {
			return errors.NewConfigError(errors.ErrCodeScriptNotModule,
				fmt.Sprintf(`script %q must be declared with type="module"`, ref)).
				WithContext("src", ref)
		}

		// media keep their query or fragment on the rendered URL
		var tail string
		if kind == KindAsset {
			_, tail = splitSuffix(ref)
		}

		entry := x.register(abs+suffix, rel+suffix, kind)
		a.Val = Token(entry.Name)
		x.tpl.slots = append(x.tpl.slots, slot{node: n, attr: i, entry: entry.Name, tail: tail})
	}
	return nil
}

// classify decides the entry kind and the suffix appended to the source.
// ok is false for references that are not bundled.
func classify(n *html.Node, ref string) (Kind, string, bool) {
	_, suffix := splitSuffix(ref)

	switch n.Data {
	case "script":
		p, _ := splitSuffix(ref)
		switch {
		case strings.HasPrefix(suffix, "?worker"), strings.HasPrefix(suffix, "?shared-worker"):
			return KindWorker, suffix, true
		case strings.EqualFold(path.Ext(p), ".css"):
			return KindStyleModule, suffix, true
		}
		return KindScript, suffix, true
	case "link":
		if hasToken(getAttr(n, "rel"), "stylesheet") {
			return KindStyle, SuffixCSS, true
		}
	}

	if IsMedia(ref) {
		return KindAsset, "", true
	}
	return "", "", false
}

// resolve maps a reference to its absolute path and its root-relative
// slash path, both without suffix. A leading slash is root-relative.
func (x *extractor) resolve(ref string) (string, string) {
	p, _ := splitSuffix(ref)
	p = strings.TrimPrefix(p, "/")
	abs := filepath.Join(x.root, filepath.FromSlash(p))

	rel, err := filepath.Rel(x.root, abs)
	if err != nil {
		rel = abs
	}
	return abs, filepath.ToSlash(rel)
}

// inPublic reports whether the reference is served from the public
// directory: it resolves inside it, or it is root-relative and a file of
// that name exists there.
func (x *extractor) inPublic(ref, abs string) bool {
	if x.publicDir == "" {
		return false
	}
	if within(x.publicDir, abs) {
		return true
	}
	if strings.HasPrefix(ref, "/") {
		p, _ := splitSuffix(ref)
		if info, err := os.Stat(filepath.Join(x.publicDir, filepath.FromSlash(p))); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

// register returns the entry for a source, creating it on first sight.
func (x *extractor) register(source, key string, kind Kind) Entry {
	if i, ok := x.byKey[key]; ok {
		return x.entries[i]
	}

	name := EntryName(key)
	for n := 1; ; n++ {
		owner, taken := x.names[name]
		if !taken || owner == key {
			break
		}
		name = BaseName(key) + "-" + ReferenceHash(fmt.Sprintf("%s#%d", key, n))
	}

	entry := Entry{Name: name, Source: source, Rel: key, Kind: kind}
	x.names[name] = key
	x.byKey[key] = len(x.entries)
	x.entries = append(x.entries, entry)
	return entry
}

func wanted(scanned []Attr, a *html.Attribute) bool {
	for _, s := range scanned {
		if s.Namespace == a.Namespace && s.Key == a.Key {
			return true
		}
	}
	return false
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Namespace == "" && attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if strings.EqualFold(f, token) {
			return true
		}
	}
	return false
}

func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
