// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package markup

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pdiddy/enexconv/internal/note"
)

// Dialect selects the tag vocabulary of a markup source or target.
type Dialect int

const (
	// ENML is the body markup of container documents.
	ENML Dialect = iota
	// HTML is a standalone web page.
	HTML
)

// maxNesting bounds recursion over the element tree.
const maxNesting = 256

// ReadOptions configures Read.
type ReadOptions struct {
	Dialect Dialect

	// ResolveMedia maps an <en-media hash> value to an attachment hash.
	// ENML only.
	ResolveMedia func(hash string) (string, bool)

	// ResolvePath maps an image source or link target to an attachment
	// hash. Targets that resolve become attachment references.
	ResolvePath func(ref string) (string, bool)
}

// Meta is document metadata found in an HTML head.
type Meta struct {
	Title    string
	Keywords []string
	Created  string
	Updated  string
	Author   string
	Source   string
	Notebook string
}

// Result is the outcome of Read.
type Result struct {
	Doc      note.Document
	Meta     Meta
	Warnings []string
}

// blockTags become blocks of their own.
var blockTags = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "pre": true, "blockquote": true, "table": true,
	"hr": true,
}

// containerTags group blocks without meaning of their own.
var containerTags = map[string]bool{
	"": true, "html": true, "body": true, "en-note": true, "div": true, "p": true,
	"center": true, "section": true, "article": true, "main": true, "header": true,
	"footer": true, "nav": true, "aside": true, "figure": true, "figcaption": true,
	"dl": true, "dt": true, "dd": true, "address": true, "details": true, "summary": true,
	"li": true, "thead": true, "tbody": true, "tfoot": true, "tr": true, "td": true, "th": true,
}

// transparentTags only style their content.
var transparentTags = map[string]bool{
	"span": true, "font": true, "sub": true, "sup": true, "small": true, "big": true,
	"abbr": true, "acronym": true, "cite": true, "dfn": true, "q": true, "var": true,
	"mark": true, "ins": true, "label": true, "time": true, "bdi": true, "bdo": true,
	"nobr": true, "wbr": true, "colgroup": true, "col": true, "caption": true,
}

// droppedTags have no Document equivalent; they and their content are
// dropped with a warning.
var droppedTags = map[string]bool{
	"script": true, "style": true, "form": true, "input": true, "button": true,
	"select": true, "option": true, "textarea": true, "iframe": true, "object": true,
	"embed": true, "applet": true, "noscript": true, "template": true, "canvas": true,
	"svg": true, "audio": true, "video": true, "map": true, "area": true, "frame": true,
	"frameset": true, "link": true, "base": true, "param": true, "source": true, "track": true,
	"math": true, "dialog": true, "fieldset": true, "legend": true, "datalist": true,
}

// Read converts a parsed tree into a normalized Document.
func Read(root *Node, opts ReadOptions) (Result, error) {
	r := &reader{opts: opts, seen: map[string]bool{}}
	blocks := r.blocks(root, 0)
	if r.err != nil {
		return Result{}, r.err
	}
	return Result{
		Doc:      note.Normalize(note.Document{Blocks: blocks}),
		Meta:     r.meta,
		Warnings: r.warnings,
	}, nil
}

type reader struct {
	opts     ReadOptions
	meta     Meta
	warnings []string
	seen     map[string]bool
	err      error
}

func (r *reader) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if r.seen[msg] {
		return
	}
	r.seen[msg] = true
	r.warnings = append(r.warnings, msg)
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *reader) tooDeep(depth int) bool {
	if depth > maxNesting {
		r.fail(&note.TranscodeError{Err: fmt.Errorf("markup nested deeper than %d elements", maxNesting)})
		return true
	}
	return false
}

// blocks converts the children of n into blocks. Runs of inline content
// become paragraphs; attachments found inside inline content are emitted
// after the paragraph that contained them.
func (r *reader) blocks(n *Node, depth int) []note.Block {
	if r.tooDeep(depth) {
		return nil
	}
	var (
		out      []note.Block
		para     []note.Inline
		deferred []note.Block
	)
	flush := func() {
		if len(para) > 0 {
			out = append(out, note.Paragraph{Inlines: para})
			para = nil
		}
		out = append(out, deferred...)
		deferred = nil
	}

	for _, c := range n.Children {
		if c.Type == TextNode {
			para = append(para, note.Text{Value: c.Text})
			continue
		}
		switch {
		case c.Tag == "head":
			r.readHead(c)
		case c.Tag == "title":
			r.meta.Title = strings.TrimSpace(TextContent(c))
		case c.Tag == "meta":
			r.readMeta(c)
		case droppedTags[c.Tag]:
			r.warn("dropped <%s> element", c.Tag)
		case r.isAttachment(c):
			flush()
			if ref, ok := r.attachmentRef(c); ok {
				out = append(out, ref)
			}
		case c.Tag == "div" && isCodeBlockStyle(c.Attr("style")):
			flush()
			out = append(out, note.CodeBlock{Text: TextContent(c)})
		case blockTags[c.Tag]:
			flush()
			out = append(out, r.block(c, depth+1)...)
		case containerTags[c.Tag]:
			flush()
			out = append(out, r.blocks(c, depth+1)...)
		default:
			para = append(para, r.inline(c, depth+1, &deferred)...)
		}
	}
	flush()
	return out
}

func (r *reader) block(n *Node, depth int) []note.Block {
	if r.tooDeep(depth) {
		return nil
	}
	var deferred []note.Block
	var b note.Block
	switch n.Tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level, _ := strconv.Atoi(n.Tag[1:])
		b = note.Heading{Level: level, Inlines: r.inlines(n, depth, &deferred)}
	case "ul", "ol":
		b = r.list(n, depth)
	case "pre":
		b = note.CodeBlock{Language: codeLanguage(n), Text: TextContent(n)}
	case "blockquote":
		b = note.Blockquote{Blocks: r.blocks(n, depth+1)}
	case "table":
		b = r.table(n, depth, &deferred)
	case "hr":
		b = note.Rule{}
	default:
		return r.blocks(n, depth)
	}
	return append([]note.Block{b}, deferred...)
}

func (r *reader) list(n *Node, depth int) note.List {
	l := note.List{Ordered: n.Tag == "ol"}
	for _, c := range n.Children {
		if c.Type == TextNode {
			if strings.TrimSpace(c.Text) == "" {
				continue
			}
			l.Items = append(l.Items, note.ListItem{Blocks: []note.Block{
				note.Paragraph{Inlines: []note.Inline{note.Text{Value: c.Text}}},
			}})
			continue
		}
		if c.Tag == "li" {
			l.Items = append(l.Items, note.ListItem{Blocks: r.blocks(c, depth+1)})
			continue
		}
		// Lists written as direct children of a list belong to the
		// preceding item.
		wrapper := &Node{Type: ElementNode, Children: []*Node{c}}
		blocks := r.blocks(wrapper, depth+1)
		if len(l.Items) == 0 {
			l.Items = append(l.Items, note.ListItem{Blocks: blocks})
			continue
		}
		last := &l.Items[len(l.Items)-1]
		last.Blocks = append(last.Blocks, blocks...)
	}
	return l
}

func (r *reader) table(n *Node, depth int, deferred *[]note.Block) note.Table {
	var rows [][]note.TableCell
	var walk func(*Node)
	walk = func(n *Node) {
		for _, c := range n.Children {
			if c.Type != ElementNode {
				continue
			}
			switch c.Tag {
			case "tr":
				var row []note.TableCell
				for _, cell := range c.Children {
					if cell.Type == ElementNode && (cell.Tag == "td" || cell.Tag == "th") {
						row = append(row, note.TableCell{Inlines: r.inlines(cell, depth+1, deferred)})
					}
				}
				rows = append(rows, row)
			case "table":
				r.warn("nested table flattened")
				walk(c)
			default:
				walk(c)
			}
		}
	}
	walk(n)
	if len(rows) == 0 {
		return note.Table{}
	}
	return note.Table{Header: rows[0], Rows: rows[1:]}
}

// inlines converts the children of n into inline content.
func (r *reader) inlines(n *Node, depth int, deferred *[]note.Block) []note.Inline {
	if r.tooDeep(depth) {
		return nil
	}
	var out []note.Inline
	for _, c := range n.Children {
		if c.Type == TextNode {
			out = append(out, note.Text{Value: c.Text})
			continue
		}
		out = append(out, r.inline(c, depth+1, deferred)...)
	}
	return out
}

func (r *reader) inline(n *Node, depth int, deferred *[]note.Block) []note.Inline {
	if r.isAttachment(n) {
		if ref, ok := r.attachmentRef(n); ok {
			*deferred = append(*deferred, ref)
		}
		return nil
	}
	switch tag := n.Tag; {
	case tag == "b" || tag == "strong":
		return []note.Inline{note.Bold{Children: r.inlines(n, depth, deferred)}}
	case tag == "i" || tag == "em":
		return []note.Inline{note.Italic{Children: r.inlines(n, depth, deferred)}}
	case tag == "s" || tag == "strike" || tag == "del":
		return []note.Inline{note.Strike{Children: r.inlines(n, depth, deferred)}}
	case tag == "a":
		href := strings.TrimSpace(n.Attr("href"))
		if href == "" {
			return r.inlines(n, depth, deferred)
		}
		return []note.Inline{note.Link{Href: href, Children: r.inlines(n, depth, deferred)}}
	case tag == "code" || tag == "tt" || tag == "kbd" || tag == "samp":
		return []note.Inline{note.Code{Value: TextContent(n)}}
	case tag == "br":
		return []note.Inline{note.LineBreak{}}
	case tag == "img":
		src := strings.TrimSpace(n.Attr("src"))
		if src == "" {
			r.warn("dropped <img> without source")
			return nil
		}
		r.warn("image %s is not a local attachment; kept as link", src)
		label := n.Attr("alt")
		if label == "" {
			label = src
		}
		return []note.Inline{note.Link{Href: src, Children: []note.Inline{note.Text{Value: label}}}}
	case tag == "en-todo" && r.opts.Dialect == ENML:
		if strings.EqualFold(n.Attr("checked"), "true") {
			return []note.Inline{note.Text{Value: "[x] "}}
		}
		return []note.Inline{note.Text{Value: "[ ] "}}
	case tag == "en-crypt" && r.opts.Dialect == ENML:
		r.warn("encrypted content kept as ciphertext text")
		return []note.Inline{note.Text{Value: TextContent(n)}}
	case tag == "u":
		r.warn("underline has no Document equivalent; kept as plain text")
		return r.inlines(n, depth, deferred)
	case droppedTags[tag]:
		r.warn("dropped <%s> element", tag)
		return nil
	case tag == "head" || tag == "title" || tag == "meta":
		return nil
	case transparentTags[tag]:
		return r.inlines(n, depth, deferred)
	case blockTags[tag] || containerTags[tag]:
		// Blocks cannot nest inside inline content; keep their text.
		out := []note.Inline{note.Text{Value: " "}}
		out = append(out, r.inlines(n, depth, deferred)...)
		return append(out, note.Text{Value: " "})
	default:
		r.warn("unknown <%s> element kept as text", tag)
		return r.inlines(n, depth, deferred)
	}
}

// isAttachment reports whether n refers to a stored attachment.
func (r *reader) isAttachment(n *Node) bool {
	if n.Type != ElementNode {
		return false
	}
	switch n.Tag {
	case "en-media":
		return r.opts.Dialect == ENML
	case "img":
		_, ok := r.resolvePath(n.Attr("src"))
		return ok
	case "a":
		_, ok := r.resolvePath(n.Attr("href"))
		return ok
	}
	return false
}

func (r *reader) attachmentRef(n *Node) (note.AttachmentRef, bool) {
	if n.Tag == "en-media" {
		hash := strings.TrimSpace(n.Attr("hash"))
		if r.opts.ResolveMedia != nil {
			if h, ok := r.opts.ResolveMedia(hash); ok {
				return note.AttachmentRef{Hash: h}, true
			}
		}
		r.fail(fmt.Errorf("%w: en-media hash %q", note.ErrMissingAttachment, hash))
		return note.AttachmentRef{}, false
	}
	ref := n.Attr("src")
	if n.Tag == "a" {
		ref = n.Attr("href")
	}
	h, ok := r.resolvePath(ref)
	return note.AttachmentRef{Hash: h}, ok
}

func (r *reader) resolvePath(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || r.opts.ResolvePath == nil {
		return "", false
	}
	return r.opts.ResolvePath(ref)
}

func (r *reader) readHead(n *Node) {
	for _, c := range n.Children {
		if c.Type != ElementNode {
			continue
		}
		switch c.Tag {
		case "title":
			r.meta.Title = strings.TrimSpace(TextContent(c))
		case "meta":
			r.readMeta(c)
		}
	}
}

func (r *reader) readMeta(n *Node) {
	content := strings.TrimSpace(n.Attr("content"))
	switch strings.ToLower(n.Attr("name")) {
	case "keywords":
		for _, k := range strings.Split(content, ",") {
			if k = strings.TrimSpace(k); k != "" {
				r.meta.Keywords = append(r.meta.Keywords, k)
			}
		}
	case "created":
		r.meta.Created = content
	case "updated":
		r.meta.Updated = content
	case "author":
		r.meta.Author = content
	case "source":
		r.meta.Source = content
	case "notebook":
		r.meta.Notebook = content
	}
}

// isCodeBlockStyle reports whether a style attribute marks an Evernote
// code block.
func isCodeBlockStyle(style string) bool {
	for _, decl := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if ok && strings.TrimSpace(strings.ToLower(k)) == "-en-codeblock" {
			return strings.TrimSpace(strings.ToLower(v)) == "true"
		}
	}
	return false
}

// codeLanguage reads the language of a <pre> block from its lang attribute
// or a language-* class on it or its <code> child.
func codeLanguage(pre *Node) string {
	if lang := strings.TrimSpace(pre.Attr("lang")); lang != "" {
		return lang
	}
	candidates := []*Node{pre}
	for _, c := range pre.Children {
		if c.Type == ElementNode && c.Tag == "code" {
			candidates = append(candidates, c)
		}
	}
	for _, n := range candidates {
		for _, class := range strings.Fields(n.Attr("class")) {
			for _, prefix := range []string{"language-", "lang-"} {
				if strings.HasPrefix(class, prefix) {
					return strings.TrimPrefix(class, prefix)
				}
			}
		}
	}
	return ""
}
