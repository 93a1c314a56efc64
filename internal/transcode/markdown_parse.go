// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/pdiddy/enexconv/internal/markup"
	"github.com/pdiddy/enexconv/internal/note"
)

// ErrUnterminatedFence is wrapped by the TranscodeError returned for a code
// fence that is never closed.
var ErrUnterminatedFence = errors.New("unterminated code fence")

// engine parses CommonMark with GFM tables and strikethrough. Bare URLs are
// not linkified so that plain text reads back as text.
var engine = goldmark.New(
	goldmark.WithExtensions(extension.Table, extension.Strikethrough),
)

var lineBreakTag = regexp.MustCompile(`(?i)^<br\s*/?>$`)

func parseMarkdown(src []byte, res *resolution) (Parsed, error) {
	meta, body, line, err := readFrontMatter(src)
	if err != nil {
		return Parsed{}, err
	}
	root := engine.Parser().Parse(text.NewReader(body))
	if err := checkFences(body, line, literalLines(root, body)); err != nil {
		return Parsed{}, err
	}

	var p Parsed
	applyFrontMatter(&p, meta)

	mp := &mdParser{source: body, res: res, seen: make(map[string]bool)}
	blocks := mp.blocks(root)
	if mp.err != nil {
		return Parsed{}, mp.err
	}
	p.Doc = note.Normalize(note.Document{Blocks: blocks})
	p.Warnings = append(p.Warnings, mp.warnings...)
	return p, nil
}

type mdParser struct {
	source   []byte
	res      *resolution
	warnings []string
	seen     map[string]bool
	err      error
}

func (p *mdParser) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if !p.seen[msg] {
		p.seen[msg] = true
		p.warnings = append(p.warnings, msg)
	}
}

func (p *mdParser) blocks(parent ast.Node) []note.Block {
	var out []note.Block
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		out = append(out, p.block(n)...)
	}
	return out
}

func (p *mdParser) block(n ast.Node) []note.Block {
	var deferred []note.Block
	var b note.Block

	switch n := n.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		b = note.Paragraph{Inlines: p.inlines(n, &deferred)}
	case *ast.Heading:
		b = note.Heading{Level: n.Level, Inlines: p.inlines(n, &deferred)}
	case *ast.ThematicBreak:
		b = note.Rule{}
	case *ast.FencedCodeBlock:
		b = note.CodeBlock{Language: string(n.Language(p.source)), Text: p.lines(n.Lines())}
	case *ast.CodeBlock:
		b = note.CodeBlock{Text: p.lines(n.Lines())}
	case *ast.Blockquote:
		b = note.Blockquote{Blocks: p.blocks(n)}
	case *ast.List:
		l := note.List{Ordered: n.IsOrdered()}
		for it := n.FirstChild(); it != nil; it = it.NextSibling() {
			l.Items = append(l.Items, note.ListItem{Blocks: p.blocks(it)})
		}
		b = l
	case *east.Table:
		b = p.table(n, &deferred)
	case *ast.HTMLBlock:
		return p.htmlBlock(n)
	default:
		p.warn("unsupported markdown block %s kept as content", n.Kind())
		return p.blocks(n)
	}
	return append([]note.Block{b}, deferred...)
}

func (p *mdParser) table(t *east.Table, deferred *[]note.Block) note.Table {
	var out note.Table
	for row := t.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []note.TableCell
		for c := row.FirstChild(); c != nil; c = c.NextSibling() {
			cells = append(cells, note.TableCell{Inlines: p.inlines(c, deferred)})
		}
		if _, ok := row.(*east.TableHeader); ok {
			out.Header = cells
		} else {
			out.Rows = append(out.Rows, cells)
		}
	}
	return out
}

func (p *mdParser) htmlBlock(n *ast.HTMLBlock) []note.Block {
	src := p.lines(n.Lines())
	if n.HasClosure() {
		src += string(n.ClosureLine.Value(p.source))
	}
	r, err := markup.Read(markup.Parse(src), markup.ReadOptions{
		Dialect:     markup.HTML,
		ResolvePath: p.res.resolve,
	})
	if err != nil {
		if p.err == nil {
			p.err = err
		}
		return nil
	}
	p.warnings = append(p.warnings, r.Warnings...)
	return r.Doc.Blocks
}

func (p *mdParser) lines(segs *text.Segments) string {
	var b strings.Builder
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		b.Write(seg.Value(p.source))
	}
	return b.String()
}

// inlines converts the inline children of n. Links and images that resolve
// to local attachments become AttachmentRef blocks appended to deferred.
func (p *mdParser) inlines(n ast.Node, deferred *[]note.Block) []note.Inline {
	var out []note.Inline
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		out = append(out, p.inline(c, deferred)...)
	}
	return out
}

func (p *mdParser) inline(n ast.Node, deferred *[]note.Block) []note.Inline {
	switch n := n.(type) {
	case *ast.Text:
		value := n.Segment.Value(p.source)
		if n.HardLineBreak() {
			value = bytes.TrimSuffix(value, []byte{'\\'})
		}
		var out []note.Inline
		if n.IsRaw() {
			out = append(out, note.Text{Value: string(value)})
		} else {
			out = append(out, note.Text{Value: unescape(value)})
		}
		switch {
		case n.HardLineBreak():
			out = append(out, note.LineBreak{})
		case n.SoftLineBreak():
			out = append(out, note.Text{Value: " "})
		}
		return out
	case *ast.String:
		return []note.Inline{note.Text{Value: string(n.Value)}}
	case *ast.CodeSpan:
		var b strings.Builder
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch c := c.(type) {
			case *ast.Text:
				b.Write(c.Segment.Value(p.source))
			case *ast.String:
				b.Write(c.Value)
			}
		}
		return []note.Inline{note.Code{Value: b.String()}}
	case *ast.Emphasis:
		children := p.inlines(n, deferred)
		if n.Level >= 2 {
			return []note.Inline{note.Bold{Children: children}}
		}
		return []note.Inline{note.Italic{Children: children}}
	case *east.Strikethrough:
		return []note.Inline{note.Strike{Children: p.inlines(n, deferred)}}
	case *ast.Link:
		dest := unescape(n.Destination)
		if hash, ok := p.res.resolve(dest); ok {
			p.res.name(hash, note.PlainText(p.inlines(n, new([]note.Block))))
			*deferred = append(*deferred, note.AttachmentRef{Hash: hash})
			return nil
		}
		return []note.Inline{note.Link{Href: dest, Children: p.inlines(n, deferred)}}
	case *ast.Image:
		dest := unescape(n.Destination)
		if hash, ok := p.res.resolve(dest); ok {
			p.res.name(hash, note.PlainText(p.inlines(n, new([]note.Block))))
			*deferred = append(*deferred, note.AttachmentRef{Hash: hash})
			return nil
		}
		p.warn("image %s is not a local attachment; kept as link", dest)
		children := p.inlines(n, deferred)
		if len(children) == 0 {
			children = []note.Inline{note.Text{Value: dest}}
		}
		return []note.Inline{note.Link{Href: dest, Children: children}}
	case *ast.AutoLink:
		url := string(n.URL(p.source))
		return []note.Inline{note.Link{Href: url, Children: []note.Inline{note.Text{Value: string(n.Label(p.source))}}}}
	case *ast.RawHTML:
		var b strings.Builder
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			b.Write(seg.Value(p.source))
		}
		raw := strings.TrimSpace(b.String())
		if lineBreakTag.MatchString(raw) {
			return []note.Inline{note.LineBreak{}}
		}
		p.warn("dropped inline HTML %s", raw)
		return nil
	default:
		p.warn("unsupported markdown inline %s kept as text", n.Kind())
		return p.inlines(n, deferred)
	}
}

// unescape resolves backslash escapes and character references.
func unescape(b []byte) string {
	if bytes.IndexByte(b, '\\') < 0 && bytes.IndexByte(b, '&') < 0 {
		return string(b)
	}
	var out strings.Builder
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch {
		case c == '\\' && i+1 < len(b) && isASCIIPunct(b[i+1]):
			out.WriteByte(b[i+1])
			i++
		case c == '&':
			end := bytes.IndexByte(b[i:min(len(b), i+34)], ';')
			if end > 1 {
				ref := string(b[i : i+end+1])
				if s := html.UnescapeString(ref); s != ref {
					out.WriteString(s)
					i += end
					continue
				}
			}
			out.WriteByte(c)
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}

func isASCIIPunct(c byte) bool {
	return c >= '!' && c <= '/' || c >= ':' && c <= '@' || c >= '[' && c <= '`' || c >= '{' && c <= '~'
}

// literalLines returns the zero-based lines of src that belong to indented
// code blocks or raw HTML blocks, where fence markers are plain content.
func literalLines(root ast.Node, src []byte) map[int]bool {
	lines := make(map[int]bool)
	mark := func(seg text.Segment) {
		lines[bytes.Count(src[:seg.Start], []byte{'\n'})] = true
	}
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.CodeBlock:
			for i := 0; i < n.Lines().Len(); i++ {
				mark(n.Lines().At(i))
			}
		case *ast.HTMLBlock:
			for i := 0; i < n.Lines().Len(); i++ {
				mark(n.Lines().At(i))
			}
			if n.HasClosure() {
				mark(n.ClosureLine)
			}
		}
		return ast.WalkContinue, nil
	})
	return lines
}

// checkFences reports the first code fence left open at the end of src.
// firstLine is the line number of src's first line in the whole document;
// lines in skip are never fences.
func checkFences(src []byte, firstLine int, skip map[int]bool) error {
	var (
		open     byte
		openLen  int
		openLine int
	)
	for i, line := range strings.Split(string(src), "\n") {
		if open == 0 && skip[i] {
			continue
		}
		s := stripContainers(line)
		c, n := fenceRun(s)
		if open == 0 {
			if n >= 3 && !(c == '`' && strings.ContainsRune(s[n:], '`')) {
				open, openLen, openLine = c, n, firstLine+i
			}
			continue
		}
		if c == open && n >= openLen && strings.TrimSpace(s[n:]) == "" {
			open = 0
		}
	}
	if open != 0 {
		return &note.TranscodeError{Line: openLine, Err: ErrUnterminatedFence}
	}
	return nil
}

// stripContainers removes leading indentation, blockquote markers and list
// markers from a line.
func stripContainers(line string) string {
	for {
		s := strings.TrimLeft(line, " \t")
		switch {
		case strings.HasPrefix(s, ">"):
			s = s[1:]
		case len(s) >= 2 && strings.ContainsRune("-+*", rune(s[0])) && s[1] == ' ':
			s = s[2:]
		default:
			j := 0
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			if j > 0 && j+1 < len(s) && (s[j] == '.' || s[j] == ')') && s[j+1] == ' ' {
				s = s[j+2:]
			} else {
				return s
			}
		}
		line = s
	}
}

// fenceRun returns the fence character starting s and the length of its run.
func fenceRun(s string) (byte, int) {
	if s == "" || (s[0] != '`' && s[0] != '~') {
		return 0, 0
	}
	n := 0
	for n < len(s) && s[n] == s[0] {
		n++
	}
	return s[0], n
}
