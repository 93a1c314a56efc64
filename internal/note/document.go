// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package note

import (
	"errors"
	"io/fs"
	"os"
)

// Document is an ordered sequence of blocks.
type Document struct {
	Blocks []Block
}

// Block is one of Paragraph, Heading, List, CodeBlock, Blockquote, Table,
// Rule or AttachmentRef. The set is closed.
type Block interface {
	block()
}

// Inline is one of Text, Bold, Italic, Strike, Link, Code or LineBreak.
// The set is closed; inlines never contain blocks.
type Inline interface {
	inline()
}

type Paragraph struct {
	Inlines []Inline
}

type Heading struct {
	Level   int
	Inlines []Inline
}

type List struct {
	Ordered bool
	Items   []ListItem
}

// ListItem holds blocks so that items can contain nested lists.
type ListItem struct {
	Blocks []Block
}

type CodeBlock struct {
	Language string
	Text     string
}

type Blockquote struct {
	Blocks []Block
}

// Table has a header row followed by body rows. Cells hold inline content.
type Table struct {
	Header []TableCell
	Rows   [][]TableCell
}

type TableCell struct {
	Inlines []Inline
}

type Rule struct{}

// AttachmentRef points at a stored attachment by content hash.
type AttachmentRef struct {
	Hash string
}

func (Paragraph) block()     {}
func (Heading) block()       {}
func (List) block()          {}
func (CodeBlock) block()     {}
func (Blockquote) block()    {}
func (Table) block()         {}
func (Rule) block()          {}
func (AttachmentRef) block() {}

type Text struct {
	Value string
}

type Bold struct {
	Children []Inline
}

type Italic struct {
	Children []Inline
}

type Strike struct {
	Children []Inline
}

type Link struct {
	Href     string
	Children []Inline
}

type Code struct {
	Value string
}

type LineBreak struct{}

func (Text) inline()      {}
func (Bold) inline()      {}
func (Italic) inline()    {}
func (Strike) inline()    {}
func (Link) inline()      {}
func (Code) inline()      {}
func (LineBreak) inline() {}

// ReferencedHashes returns the attachment hashes referenced by doc, each
// once, in first-reference order.
func ReferencedHashes(doc Document) []string {
	var out []string
	seen := map[string]bool{}
	var walk func([]Block)
	walk = func(blocks []Block) {
		for _, b := range blocks {
			switch b := b.(type) {
			case AttachmentRef:
				if !seen[b.Hash] {
					seen[b.Hash] = true
					out = append(out, b.Hash)
				}
			case List:
				for _, it := range b.Items {
					walk(it.Blocks)
				}
			case Blockquote:
				walk(b.Blocks)
			}
		}
	}
	walk(doc.Blocks)
	return out
}

// PlainText flattens inlines to their text content. Line breaks become
// newlines.
func PlainText(inlines []Inline) string {
	var b []byte
	var walk func([]Inline)
	walk = func(in []Inline) {
		for _, n := range in {
			switch n := n.(type) {
			case Text:
				b = append(b, n.Value...)
			case Code:
				b = append(b, n.Value...)
			case LineBreak:
				b = append(b, '\n')
			case Bold:
				walk(n.Children)
			case Italic:
				walk(n.Children)
			case Strike:
				walk(n.Children)
			case Link:
				walk(n.Children)
			}
		}
	}
	walk(inlines)
	return string(b)
}

func isIOError(err error) bool {
	var pathErr *fs.PathError
	var linkErr *os.LinkError
	return errors.As(err, &pathErr) || errors.As(err, &linkErr)
}
