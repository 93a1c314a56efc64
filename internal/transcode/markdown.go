// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package transcode

import (
	"bytes"
	"fmt"
	"path"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pdiddy/enexconv/internal/attach"
	"github.com/pdiddy/enexconv/internal/note"
)

// listSeparator keeps two adjacent lists from merging into one.
const listSeparator = "<!-- -->"

func renderMarkdown(n *note.Note, dir string) (string, error) {
	var buf bytes.Buffer
	if err := writeFrontMatter(&buf, n); err != nil {
		return "", err
	}
	w := &mdWriter{lookup: n.Attachment, dir: dir}
	body := w.blocks(n.Body.Blocks)
	if w.err != nil {
		return "", w.err
	}
	if body != "" {
		buf.WriteString("\n")
		buf.WriteString(body)
		buf.WriteString("\n")
	}
	return buf.String(), nil
}

type mdWriter struct {
	lookup func(hash string) *note.Attachment
	dir    string
	err    error
}

func (w *mdWriter) blocks(blocks []note.Block) string {
	var b strings.Builder
	for i, blk := range blocks {
		if i > 0 {
			b.WriteString(w.separator(blocks[i-1], blk))
		}
		b.WriteString(w.block(blk))
	}
	return b.String()
}

// separator returns the text between two sibling blocks. A paragraph
// directly followed by a list stays tight unless the list opens with an
// empty item, which cannot interrupt a paragraph.
func (w *mdWriter) separator(prev, next note.Block) string {
	_, prevList := prev.(note.List)
	list, nextList := next.(note.List)
	switch {
	case prevList && nextList:
		return "\n\n" + listSeparator + "\n\n"
	case nextList:
		_, para := prev.(note.Paragraph)
		if para && len(list.Items) > 0 && len(list.Items[0].Blocks) > 0 {
			return "\n"
		}
	}
	return "\n\n"
}

func (w *mdWriter) block(b note.Block) string {
	switch b := b.(type) {
	case note.Paragraph:
		return w.inlines(b.Inlines, true, false)
	case note.Heading:
		marks := strings.Repeat("#", b.Level)
		text := w.inlines(b.Inlines, false, false)
		if text == "" {
			return marks
		}
		return marks + " " + text
	case note.List:
		return w.list(b)
	case note.CodeBlock:
		return codeFence(b)
	case note.Blockquote:
		return prefixLines(w.blocks(b.Blocks), "> ", ">")
	case note.Table:
		return w.table(b)
	case note.Rule:
		return "***"
	case note.AttachmentRef:
		return w.attachment(b.Hash)
	}
	return ""
}

func (w *mdWriter) list(l note.List) string {
	items := make([]string, 0, len(l.Items))
	for i, it := range l.Items {
		marker := "- "
		if l.Ordered {
			marker = strconv.Itoa(i+1) + ". "
		}
		content := w.blocks(it.Blocks)
		if content == "" {
			items = append(items, strings.TrimRight(marker, " "))
			continue
		}
		indent := strings.Repeat(" ", len(marker))
		items = append(items, marker+indentRest(content, indent))
	}
	return strings.Join(items, "\n")
}

// indentRest indents every line but the first. Blank lines stay empty.
func indentRest(s, indent string) string {
	lines := strings.Split(s, "\n")
	for i := 1; i < len(lines); i++ {
		if lines[i] != "" {
			lines[i] = indent + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}

func prefixLines(s, prefix, blank string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l == "" {
			lines[i] = blank
		} else {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

func codeFence(c note.CodeBlock) string {
	fence := strings.Repeat("`", max(3, longestRun(c.Text, '`')+1))
	if c.Text == "" {
		return fence + c.Language + "\n" + fence
	}
	return fence + c.Language + "\n" + c.Text + "\n" + fence
}

func (w *mdWriter) table(t note.Table) string {
	cols := len(t.Header)
	for _, r := range t.Rows {
		cols = max(cols, len(r))
	}
	if cols == 0 {
		return ""
	}
	row := func(cells []note.TableCell) string {
		var b strings.Builder
		b.WriteString("|")
		for i := 0; i < cols; i++ {
			var text string
			if i < len(cells) {
				text = w.inlines(cells[i].Inlines, false, true)
			}
			b.WriteString(" " + text + " |")
		}
		return b.String()
	}

	lines := []string{row(t.Header), "|" + strings.Repeat(" --- |", cols)}
	for _, r := range t.Rows {
		lines = append(lines, row(r))
	}
	return strings.Join(lines, "\n")
}

func (w *mdWriter) attachment(hash string) string {
	a := w.lookup(hash)
	if a == nil {
		if w.err == nil {
			w.err = fmt.Errorf("%w: %s", note.ErrMissingAttachment, hash)
		}
		return ""
	}
	label := escapeText(a.Label(), false)
	dest := escapeDestination(path.Join(w.dir, attach.FileName(a)))
	if a.IsImage() {
		return "![" + label + "](" + dest + ")"
	}
	return "[" + label + "](" + dest + ")"
}

// inlines renders inline content. lineStart reports whether the first text
// begins a line; in tables line breaks become <br>.
func (w *mdWriter) inlines(in []note.Inline, lineStart, table bool) string {
	var b strings.Builder
	for i, n := range in {
		switch n := n.(type) {
		case note.Text:
			b.WriteString(escapeText(n.Value, lineStart))
		case note.Bold:
			b.WriteString("**" + w.inlines(n.Children, false, table) + "**")
		case note.Italic:
			marker := "_"
			if alnumBefore(in, i) || alnumAfter(in, i) {
				marker = "*"
			}
			b.WriteString(marker + w.inlines(n.Children, false, table) + marker)
		case note.Strike:
			b.WriteString("~~" + w.inlines(n.Children, false, table) + "~~")
		case note.Link:
			b.WriteString("[" + w.inlines(n.Children, false, table) + "](" + escapeDestination(n.Href) + ")")
		case note.Code:
			b.WriteString(codeSpan(n.Value, table))
		case note.LineBreak:
			if table {
				b.WriteString("<br>")
			} else {
				b.WriteString("\\\n")
			}
			lineStart = true
			continue
		}
		lineStart = false
	}
	return b.String()
}

func alnumBefore(in []note.Inline, i int) bool {
	if i == 0 {
		return false
	}
	t, ok := in[i-1].(note.Text)
	if !ok || t.Value == "" {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(t.Value)
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func alnumAfter(in []note.Inline, i int) bool {
	if i+1 >= len(in) {
		return false
	}
	t, ok := in[i+1].(note.Text)
	if !ok || t.Value == "" {
		return false
	}
	r, _ := utf8.DecodeRuneInString(t.Value)
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// escapeText backslash-escapes the characters that would otherwise start
// Markdown syntax. At the start of a line it also escapes block markers.
func escapeText(s string, lineStart bool) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i, r := range s {
		switch r {
		case '\\', '`', '*', '_', '[', ']', '<', '&', '|', '~', '#':
			b.WriteByte('\\')
		case '>', '-', '+', '=':
			if lineStart && i == 0 {
				b.WriteByte('\\')
			}
		case '.', ')':
			if lineStart && i > 0 && allDigits(s[:i]) {
				b.WriteByte('\\')
			}
		case '!':
			if i == len(s)-1 {
				b.WriteByte('\\')
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// escapeDestination writes a link target so that it parses back verbatim.
// Targets with spaces use the <...> form.
func escapeDestination(href string) string {
	var b strings.Builder
	for _, r := range href {
		switch r {
		case '\\', '&', '<', '>', '(', ')':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	if href == "" || strings.ContainsAny(href, " \t") {
		return "<" + b.String() + ">"
	}
	return b.String()
}

// codeSpan wraps v in enough backticks that none inside close it, padding
// with spaces where the content would otherwise be trimmed or merged with
// the fence.
func codeSpan(v string, table bool) string {
	if table {
		v = strings.ReplaceAll(v, "|", `\|`)
	}
	fence := strings.Repeat("`", longestRun(v, '`')+1)
	pad := strings.HasPrefix(v, "`") || strings.HasSuffix(v, "`") ||
		(strings.HasPrefix(v, " ") && strings.HasSuffix(v, " ") && strings.Trim(v, " ") != "")
	if pad {
		return fence + " " + v + " " + fence
	}
	return fence + v + fence
}

func longestRun(s string, c byte) int {
	longest, cur := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			cur++
			longest = max(longest, cur)
		} else {
			cur = 0
		}
	}
	return longest
}
