package scanner

import (
	"bytes"
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/vei/internal/errors"
)

// TokenPrefix marks attribute values awaiting an output URL.
const TokenPrefix = "__vei_asset__"

// Token returns the placeholder for an entry name.
func Token(name string) string {
	return TokenPrefix + "[" + name + "]"
}

// Template is an HTML entry document with pending asset slots.
type Template struct {
	doc   *html.Node
	slots []slot
}

type slot struct {
	node  *html.Node
	attr  int
	entry string
	tail  string
}

// RenderOptions controls what Render injects into the document.
type RenderOptions struct {
	// Stylesheets are linked at the end of <head>, in order.
	Stylesheets []string
	// ReloadScript, when set, is inlined at the end of <body>.
	ReloadScript string
}

// Slots returns the entry names of the pending slots in document order.
func (t *Template) Slots() []string {
	names := make([]string, len(t.slots))
	for i, s := range t.slots {
		names[i] = s.entry
	}
	return names
}

// Render resolves every slot on a copy of the document and renders it.
// The template itself is left untouched so it can be rendered again after
// the next build.
func (t *Template) Render(resolve func(entry string) (string, bool), opts RenderOptions) ([]byte, error) {
	clones := make(map[*html.Node]*html.Node)
	doc := cloneTree(t.doc, clones)

	for _, s := range t.slots {
		url, ok := resolve(s.entry)
		if !ok {
			return nil, errors.NewInternalError(errors.ErrCodeOutputMapping,
				fmt.Sprintf("no output URL for entry %s", s.entry), nil)
		}
		clones[s.node].Attr[s.attr].Val = url + s.tail
	}

	if len(opts.Stylesheets) > 0 {
		head := findElement(doc, atom.Head)
		if head == nil {
			head = doc
		}
		for _, href := range opts.Stylesheets {
			head.AppendChild(&html.Node{
				Type:     html.ElementNode,
				DataAtom: atom.Link,
				Data:     "link",
				Attr: []html.Attribute{
					{Key: "rel", Val: "stylesheet"},
					{Key: "href", Val: href},
				},
			})
		}
	}

	if opts.ReloadScript != "" {
		body := findElement(doc, atom.Body)
		if body == nil {
			body = doc
		}
		script := &html.Node{Type: html.ElementNode, DataAtom: atom.Script, Data: "script"}
		script.AppendChild(&html.Node{Type: html.TextNode, Data: opts.ReloadScript})
		body.AppendChild(script)
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeBuildFailed, "failed to render HTML", err)
	}
	return buf.Bytes(), nil
}

func cloneTree(n *html.Node, clones map[*html.Node]*html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = append([]html.Attribute(nil), n.Attr...)
	}
	clones[n] = c

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(cloneTree(child, clones))
	}
	return c
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}
