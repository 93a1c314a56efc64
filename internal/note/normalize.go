// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package note

import "strings"

// Normalize returns doc in canonical form. Readers of every format call it
// so that documents compare structurally regardless of the whitespace and
// emphasis style of their source:
//
//   - whitespace runs in text collapse to one space, and text is trimmed at
//     paragraph, heading and cell edges;
//   - adjacent text merges, adjacent identical emphasis merges, nested
//     identical emphasis and nested links flatten;
//   - spaces and line breaks at the edges of emphasis and links move outside;
//   - empty paragraphs, blockquotes, lists and emphasis are dropped;
//   - headings hold no line breaks, code blocks use LF and no trailing
//     newline, table rows are padded to a common width.
//
// Normalize is idempotent.
func Normalize(doc Document) Document {
	return Document{Blocks: normalizeBlocks(doc.Blocks)}
}

func normalizeBlocks(blocks []Block) []Block {
	var out []Block
	for _, b := range blocks {
		switch b := b.(type) {
		case Paragraph:
			inl := trimEdges(normalizeInlines(b.Inlines))
			if len(inl) > 0 {
				out = append(out, Paragraph{Inlines: inl})
			}
		case Heading:
			inl := trimEdges(normalizeInlines(replaceBreaks(b.Inlines)))
			out = append(out, Heading{Level: b.Level, Inlines: inl})
		case List:
			if len(b.Items) == 0 {
				continue
			}
			items := make([]ListItem, len(b.Items))
			for i, it := range b.Items {
				items[i] = ListItem{Blocks: normalizeBlocks(it.Blocks)}
			}
			out = append(out, List{Ordered: b.Ordered, Items: items})
		case CodeBlock:
			text := strings.ReplaceAll(b.Text, "\r\n", "\n")
			text = strings.TrimRight(text, "\n")
			out = append(out, CodeBlock{Language: strings.TrimSpace(b.Language), Text: text})
		case Blockquote:
			inner := normalizeBlocks(b.Blocks)
			if len(inner) > 0 {
				out = append(out, Blockquote{Blocks: inner})
			}
		case Table:
			if t, ok := normalizeTable(b); ok {
				out = append(out, t)
			}
		case Rule, AttachmentRef:
			out = append(out, b)
		}
	}
	return out
}

func normalizeTable(t Table) (Table, bool) {
	width := len(t.Header)
	for _, r := range t.Rows {
		if len(r) > width {
			width = len(r)
		}
	}
	if width == 0 {
		return Table{}, false
	}
	norm := func(row []TableCell) []TableCell {
		cells := make([]TableCell, width)
		for i := range cells {
			if i < len(row) {
				cells[i] = TableCell{Inlines: trimEdges(normalizeInlines(row[i].Inlines))}
			}
		}
		return cells
	}
	out := Table{Header: norm(t.Header)}
	for _, r := range t.Rows {
		out.Rows = append(out.Rows, norm(r))
	}
	return out, true
}

func replaceBreaks(in []Inline) []Inline {
	out := make([]Inline, 0, len(in))
	for _, n := range in {
		switch n := n.(type) {
		case LineBreak:
			out = append(out, Text{Value: " "})
		case Bold:
			out = append(out, Bold{Children: replaceBreaks(n.Children)})
		case Italic:
			out = append(out, Italic{Children: replaceBreaks(n.Children)})
		case Strike:
			out = append(out, Strike{Children: replaceBreaks(n.Children)})
		case Link:
			out = append(out, Link{Href: n.Href, Children: replaceBreaks(n.Children)})
		default:
			out = append(out, n)
		}
	}
	return out
}

func normalizeInlines(in []Inline) []Inline {
	var out []Inline
	for _, n := range in {
		switch n := n.(type) {
		case Text:
			if n.Value != "" {
				out = append(out, Text{Value: collapseSpace(n.Value)})
			}
		case Code:
			v := strings.ReplaceAll(strings.ReplaceAll(n.Value, "\r\n", " "), "\n", " ")
			if v != "" {
				out = append(out, Code{Value: v})
			}
		case LineBreak:
			out = append(out, n)
		case Bold, Italic, Strike, Link:
			out = append(out, normalizeWrapper(n)...)
		}
	}
	return mergeInlines(out)
}

// normalizeWrapper normalizes the children of an emphasis or link node and
// returns the node surrounded by any whitespace or line breaks hoisted
// from its edges.
func normalizeWrapper(n Inline) []Inline {
	kids := normalizeInlines(children(n))
	kids = mergeInlines(flattenSame(n, kids))

	var pre, post []Inline
	for len(kids) > 0 {
		if lead, rest, ok := splitLeading(kids[0]); ok {
			pre = append(pre, lead)
			if rest != nil {
				kids[0] = rest
			} else {
				kids = kids[1:]
			}
			continue
		}
		break
	}
	for len(kids) > 0 {
		last := len(kids) - 1
		if trail, rest, ok := splitTrailing(kids[last]); ok {
			post = append([]Inline{trail}, post...)
			if rest != nil {
				kids[last] = rest
			} else {
				kids = kids[:last]
			}
			continue
		}
		break
	}

	out := pre
	if len(kids) > 0 {
		out = append(out, withChildren(n, kids))
	} else if l, ok := n.(Link); ok {
		out = append(out, Link{Href: strings.TrimSpace(l.Href)})
	}
	return append(out, post...)
}

// splitLeading detaches a line break or leading whitespace from n.
func splitLeading(n Inline) (lead, rest Inline, ok bool) {
	switch n := n.(type) {
	case LineBreak:
		return n, nil, true
	case Text:
		trimmed := strings.TrimLeft(n.Value, " ")
		if trimmed == n.Value {
			return nil, nil, false
		}
		if trimmed == "" {
			return Text{Value: " "}, nil, true
		}
		return Text{Value: " "}, Text{Value: trimmed}, true
	}
	return nil, nil, false
}

func splitTrailing(n Inline) (trail, rest Inline, ok bool) {
	switch n := n.(type) {
	case LineBreak:
		return n, nil, true
	case Text:
		trimmed := strings.TrimRight(n.Value, " ")
		if trimmed == n.Value {
			return nil, nil, false
		}
		if trimmed == "" {
			return Text{Value: " "}, nil, true
		}
		return Text{Value: " "}, Text{Value: trimmed}, true
	}
	return nil, nil, false
}

// flattenSame splices the children of nested nodes of the same kind as
// parent into kids. Links flatten any nested link.
func flattenSame(parent Inline, kids []Inline) []Inline {
	var out []Inline
	for _, k := range kids {
		if sameKind(parent, k) {
			out = append(out, children(k)...)
			continue
		}
		out = append(out, k)
	}
	return out
}

func sameKind(a, b Inline) bool {
	switch a.(type) {
	case Bold:
		_, ok := b.(Bold)
		return ok
	case Italic:
		_, ok := b.(Italic)
		return ok
	case Strike:
		_, ok := b.(Strike)
		return ok
	case Link:
		_, ok := b.(Link)
		return ok
	}
	return false
}

func children(n Inline) []Inline {
	switch n := n.(type) {
	case Bold:
		return n.Children
	case Italic:
		return n.Children
	case Strike:
		return n.Children
	case Link:
		return n.Children
	}
	return nil
}

func withChildren(n Inline, kids []Inline) Inline {
	switch n := n.(type) {
	case Bold:
		return Bold{Children: kids}
	case Italic:
		return Italic{Children: kids}
	case Strike:
		return Strike{Children: kids}
	case Link:
		return Link{Href: strings.TrimSpace(n.Href), Children: kids}
	}
	return n
}

// mergeInlines joins adjacent text, adjacent identical wrappers and trims
// whitespace around line breaks.
func mergeInlines(in []Inline) []Inline {
	var out []Inline
	for _, n := range in {
		if len(out) > 0 {
			prev := out[len(out)-1]
			if merged, ok := merge(prev, n); ok {
				out[len(out)-1] = merged
				continue
			}
		}
		out = append(out, n)
	}

	for i, n := range out {
		if _, ok := n.(LineBreak); !ok {
			continue
		}
		if i > 0 {
			if t, ok := out[i-1].(Text); ok {
				out[i-1] = Text{Value: strings.TrimRight(t.Value, " ")}
			}
		}
		if i+1 < len(out) {
			if t, ok := out[i+1].(Text); ok {
				out[i+1] = Text{Value: strings.TrimLeft(t.Value, " ")}
			}
		}
	}

	res := out[:0]
	for _, n := range out {
		if t, ok := n.(Text); ok && t.Value == "" {
			continue
		}
		res = append(res, n)
	}
	return res
}

func merge(a, b Inline) (Inline, bool) {
	switch a := a.(type) {
	case Text:
		if bt, ok := b.(Text); ok {
			return Text{Value: collapseSpace(a.Value + bt.Value)}, true
		}
	case Bold, Italic, Strike:
		if sameKind(a, b) {
			kids := normalizeInlines(append(append([]Inline{}, children(a)...), children(b)...))
			return withChildren(a, kids), true
		}
	case Link:
		if bl, ok := b.(Link); ok && bl.Href == a.Href {
			kids := normalizeInlines(append(append([]Inline{}, a.Children...), bl.Children...))
			return Link{Href: a.Href, Children: kids}, true
		}
	}
	return nil, false
}

// trimEdges removes whitespace and line breaks at the start and end of a
// block's inline content.
func trimEdges(in []Inline) []Inline {
	for len(in) > 0 {
		switch n := in[0].(type) {
		case LineBreak:
			in = in[1:]
			continue
		case Text:
			v := strings.TrimLeft(n.Value, " ")
			if v == "" {
				in = in[1:]
				continue
			}
			in = append([]Inline{Text{Value: v}}, in[1:]...)
		}
		break
	}
	for len(in) > 0 {
		last := len(in) - 1
		switch n := in[last].(type) {
		case LineBreak:
			in = in[:last]
			continue
		case Text:
			v := strings.TrimRight(n.Value, " ")
			if v == "" {
				in = in[:last]
				continue
			}
			in = append(append([]Inline{}, in[:last]...), Text{Value: v})
		}
		break
	}
	return in
}

// collapseSpace replaces every run of ASCII whitespace with a single space.
func collapseSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			if !space {
				b.WriteByte(' ')
			}
			space = true
		default:
			b.WriteRune(r)
			space = false
		}
	}
	return b.String()
}
