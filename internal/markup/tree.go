// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package markup converts between the note Document tree and tag markup:
// the ENML body of container documents and standalone HTML pages. Both
// dialects share one tolerant tree builder, one reader and one writer.
package markup

import (
	"strings"

	"golang.org/x/net/html"
)

// NodeType distinguishes elements from text in a parsed tree.
type NodeType int

const (
	ElementNode NodeType = iota
	TextNode
)

// Node is an element or text node of a parsed markup tree. The root is an
// element with an empty tag.
type Node struct {
	Type     NodeType
	Tag      string
	Attrs    map[string]string
	Text     string
	Children []*Node
}

// Attr returns the value of the named attribute, or "".
func (n *Node) Attr(name string) string {
	return n.Attrs[name]
}

// voidElements never have content, whether or not they are written
// self-closing.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// implicitClose lists, for a start tag, the open elements it closes and the
// elements that bound the search.
var implicitClose = map[string]struct{ closes, bounds []string }{
	"li": {closes: []string{"li"}, bounds: []string{"ul", "ol"}},
	"tr": {closes: []string{"tr", "td", "th"}, bounds: []string{"table", "thead", "tbody", "tfoot"}},
	"td": {closes: []string{"td", "th"}, bounds: []string{"tr", "table"}},
	"th": {closes: []string{"td", "th"}, bounds: []string{"tr", "table"}},
	"p":  {closes: []string{"p"}, bounds: []string{"div", "li", "td", "th", "blockquote", "body"}},
}

// Parse builds a tree from HTML or ENML markup. Character references are
// resolved, self-closing tags are honoured for every element, unmatched end
// tags are ignored and elements left open at the end are closed. Comments,
// doctypes and processing instructions are skipped.
func Parse(src string) *Node {
	z := html.NewTokenizer(strings.NewReader(src))
	root := &Node{Type: ElementNode}
	stack := []*Node{root}
	top := func() *Node { return stack[len(stack)-1] }

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF; the source is an in-memory string.
			return root

		case html.TextToken:
			text := string(z.Text())
			cur := top()
			if cur.Tag == "pre" && len(cur.Children) == 0 {
				text = strings.TrimPrefix(text, "\n")
			}
			if text == "" {
				continue
			}
			if n := len(cur.Children); n > 0 && cur.Children[n-1].Type == TextNode {
				cur.Children[n-1].Text += text
				continue
			}
			cur.Children = append(cur.Children, &Node{Type: TextNode, Text: text})

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			n := &Node{Type: ElementNode, Tag: tok.Data, Attrs: make(map[string]string, len(tok.Attr))}
			for _, a := range tok.Attr {
				n.Attrs[strings.ToLower(a.Key)] = a.Val
			}
			if rule, ok := implicitClose[n.Tag]; ok {
				stack = closeImplicit(stack, rule.closes, rule.bounds)
			}
			cur := top()
			cur.Children = append(cur.Children, n)
			if tt == html.StartTagToken && !voidElements[n.Tag] {
				stack = append(stack, n)
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			for i := len(stack) - 1; i > 0; i-- {
				if stack[i].Tag == tag {
					stack = stack[:i]
					break
				}
			}
		}
	}
}

// closeImplicit pops the innermost open element named in closes, provided
// no element named in bounds is open above it.
func closeImplicit(stack []*Node, closes, bounds []string) []*Node {
	for i := len(stack) - 1; i > 0; i-- {
		tag := stack[i].Tag
		if contains(bounds, tag) {
			return stack
		}
		if contains(closes, tag) {
			return stack[:i]
		}
	}
	return stack
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// TextContent returns the concatenated text below n. Line breaks become
// newlines and block-level children are separated by newlines.
func TextContent(n *Node) string {
	var b strings.Builder
	var walk func(*Node)
	walk = func(n *Node) {
		for _, c := range n.Children {
			if c.Type == TextNode {
				b.WriteString(c.Text)
				continue
			}
			switch {
			case c.Tag == "br":
				b.WriteByte('\n')
			case blockTags[c.Tag] || c.Tag == "div" || c.Tag == "p":
				if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
					b.WriteByte('\n')
				}
				walk(c)
				if !strings.HasSuffix(b.String(), "\n") {
					b.WriteByte('\n')
				}
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return b.String()
}
