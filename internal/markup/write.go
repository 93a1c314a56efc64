// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package markup

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/pdiddy/enexconv/internal/attach"
	"github.com/pdiddy/enexconv/internal/note"
)

const (
	enmlHeader  = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"
	enmlDoctype = `<!DOCTYPE en-note SYSTEM "http://xml.evernote.com/pub/enml2.dtd">` + "\n"
)

// WriteOptions configures Write.
type WriteOptions struct {
	Dialect Dialect

	// Meta fills the head of an HTML page. Ignored for ENML.
	Meta Meta

	// Lookup returns the stored attachment for a referenced hash.
	Lookup func(hash string) *note.Attachment

	// Href returns the location an HTML page uses for an attachment.
	// Defaults to attach.FileName.
	Href func(a *note.Attachment) string
}

// Write renders doc as an ENML <en-note> document or a standalone HTML page.
// Every attachment reference must resolve through opts.Lookup.
func Write(doc note.Document, opts WriteOptions) (string, error) {
	w := &writer{opts: opts}
	if w.opts.Href == nil {
		w.opts.Href = attach.FileName
	}

	if opts.Dialect == ENML {
		w.b.WriteString(enmlHeader)
		w.b.WriteString(enmlDoctype)
		w.b.WriteString("<en-note>")
		w.blocks(doc.Blocks, true)
		w.b.WriteString("</en-note>")
	} else {
		w.b.WriteString("<!DOCTYPE html>\n<html>\n")
		w.head()
		w.b.WriteString("<body>\n")
		w.blocks(doc.Blocks, true)
		w.b.WriteString("</body>\n</html>\n")
	}
	if w.err != nil {
		return "", w.err
	}
	return w.b.String(), nil
}

type writer struct {
	opts WriteOptions
	b    strings.Builder
	err  error
}

func (w *writer) enml() bool { return w.opts.Dialect == ENML }

func (w *writer) head() {
	m := w.opts.Meta
	w.b.WriteString("<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&w.b, "<title>%s</title>\n", html.EscapeString(m.Title))
	if len(m.Keywords) > 0 {
		w.meta("keywords", strings.Join(m.Keywords, ", "))
	}
	w.meta("created", m.Created)
	w.meta("updated", m.Updated)
	w.meta("author", m.Author)
	w.meta("source", m.Source)
	w.meta("notebook", m.Notebook)
	w.b.WriteString("</head>\n")
}

func (w *writer) meta(name, content string) {
	if content == "" {
		return
	}
	fmt.Fprintf(&w.b, "<meta name=\"%s\" content=\"%s\">\n", name, html.EscapeString(content))
}

// blocks renders a block sequence. Top-level blocks are separated by
// newlines; nested ones are written compactly.
func (w *writer) blocks(blocks []note.Block, top bool) {
	for _, b := range blocks {
		w.block(b)
		if top && !w.enml() {
			w.b.WriteByte('\n')
		}
	}
}

func (w *writer) block(b note.Block) {
	switch b := b.(type) {
	case note.Paragraph:
		w.open(w.pick("div", "p"))
		w.inlines(b.Inlines)
		w.close(w.pick("div", "p"))
	case note.Heading:
		tag := "h" + strconv.Itoa(b.Level)
		w.open(tag)
		w.inlines(b.Inlines)
		w.close(tag)
	case note.List:
		tag := "ul"
		if b.Ordered {
			tag = "ol"
		}
		w.open(tag)
		for _, it := range b.Items {
			w.open("li")
			w.listItem(it.Blocks)
			w.close("li")
		}
		w.close(tag)
	case note.CodeBlock:
		w.codeBlock(b)
	case note.Blockquote:
		w.open("blockquote")
		w.blocks(b.Blocks, false)
		w.close("blockquote")
	case note.Table:
		w.table(b)
	case note.Rule:
		w.b.WriteString(w.pick("<hr/>", "<hr>"))
	case note.AttachmentRef:
		w.attachment(b.Hash)
	}
}

// listItem writes the first paragraph of an item inline so that items read
// back as the same single paragraph.
func (w *writer) listItem(blocks []note.Block) {
	if len(blocks) > 0 {
		if p, ok := blocks[0].(note.Paragraph); ok {
			w.inlines(p.Inlines)
			blocks = blocks[1:]
		}
	}
	w.blocks(blocks, false)
}

func (w *writer) codeBlock(c note.CodeBlock) {
	text := html.EscapeString(c.Text)
	if w.enml() {
		if c.Language != "" {
			fmt.Fprintf(&w.b, "<pre lang=\"%s\">", html.EscapeString(c.Language))
		} else {
			w.b.WriteString("<pre>")
		}
		// A newline directly after <pre> is not content.
		if strings.HasPrefix(c.Text, "\n") {
			w.b.WriteByte('\n')
		}
		w.b.WriteString(text)
		w.b.WriteString("</pre>")
		return
	}
	if c.Language != "" {
		fmt.Fprintf(&w.b, "<pre><code class=\"language-%s\">", html.EscapeString(c.Language))
	} else {
		w.b.WriteString("<pre><code>")
	}
	w.b.WriteString(text)
	w.b.WriteString("</code></pre>")
}

func (w *writer) table(t note.Table) {
	w.open("table")
	w.row("th", t.Header)
	for _, r := range t.Rows {
		w.row("td", r)
	}
	w.close("table")
}

func (w *writer) row(cellTag string, cells []note.TableCell) {
	w.open("tr")
	for _, c := range cells {
		w.open(cellTag)
		w.inlines(c.Inlines)
		w.close(cellTag)
	}
	w.close("tr")
}

func (w *writer) attachment(hash string) {
	var a *note.Attachment
	if w.opts.Lookup != nil {
		a = w.opts.Lookup(hash)
	}
	if a == nil {
		if w.err == nil {
			w.err = fmt.Errorf("%w: %s", note.ErrMissingAttachment, hash)
		}
		return
	}
	if w.enml() {
		fmt.Fprintf(&w.b, "<div><en-media hash=\"%s\" type=\"%s\"/></div>",
			attach.LegacyHash(a.Data), html.EscapeString(a.MIME))
		return
	}
	href := html.EscapeString(w.opts.Href(a))
	label := html.EscapeString(a.Label())
	if a.IsImage() {
		fmt.Fprintf(&w.b, "<p><img src=\"%s\" alt=\"%s\"></p>", href, label)
		return
	}
	fmt.Fprintf(&w.b, "<p><a href=\"%s\">%s</a></p>", href, label)
}

func (w *writer) inlines(in []note.Inline) {
	for _, n := range in {
		switch n := n.(type) {
		case note.Text:
			w.b.WriteString(html.EscapeString(n.Value))
		case note.Bold:
			w.wrap(w.pick("b", "strong"), n.Children)
		case note.Italic:
			w.wrap(w.pick("i", "em"), n.Children)
		case note.Strike:
			w.wrap(w.pick("s", "del"), n.Children)
		case note.Link:
			fmt.Fprintf(&w.b, "<a href=\"%s\">", html.EscapeString(n.Href))
			w.inlines(n.Children)
			w.close("a")
		case note.Code:
			w.open("code")
			w.b.WriteString(html.EscapeString(n.Value))
			w.close("code")
		case note.LineBreak:
			w.b.WriteString(w.pick("<br/>", "<br>"))
		}
	}
}

func (w *writer) wrap(tag string, children []note.Inline) {
	w.open(tag)
	w.inlines(children)
	w.close(tag)
}

func (w *writer) open(tag string)  { w.b.WriteString("<" + tag + ">") }
func (w *writer) close(tag string) { w.b.WriteString("</" + tag + ">") }

// pick returns the ENML or the HTML spelling of a tag.
func (w *writer) pick(enml, page string) string {
	if w.enml() {
		return enml
	}
	return page
}
