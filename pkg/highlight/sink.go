package highlight

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Sink receives one styled span per token, in order.
type Sink interface {
	AppendSpan(text string, classes ...string)
}

// NodeSink collects spans into an HTML tree of the form
// <pre><code><span class="...">text</span>...</code></pre>.
type NodeSink struct {
	pre  *html.Node
	code *html.Node
	n    int
}

var _ Sink = (*NodeSink)(nil)

func NewNodeSink() *NodeSink {
	pre := newElement(atom.Pre)
	code := newElement(atom.Code)
	pre.AppendChild(code)
	return &NodeSink{pre: pre, code: code}
}

func (s *NodeSink) AppendSpan(text string, classes ...string) {
	span := newElement(atom.Span)
	if len(classes) > 0 {
		span.Attr = append(span.Attr, html.Attribute{Key: "class", Val: strings.Join(classes, " ")})
	}
	span.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	s.code.AppendChild(span)
	s.n++
}

// Len is the number of spans appended so far.
func (s *NodeSink) Len() int {
	return s.n
}

// Root is the <pre> element holding everything appended.
func (s *NodeSink) Root() *html.Node {
	return s.pre
}

func newElement(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}
