// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package note

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func text(s string) Text { return Text{Value: s} }

func para(in ...Inline) Paragraph { return Paragraph{Inlines: in} }

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		wantErr bool
	}{
		{name: "plain title", title: "Trip Notes"},
		{name: "empty title", title: ""},
		{name: "tab allowed", title: "a\tb"},
		{name: "newline rejected", title: "a\nb", wantErr: true},
		{name: "nul rejected", title: "a\x00b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := New(tt.title)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTitle)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.title, n.Title)
			assert.NotEmpty(t, n.ID)
		})
	}
}

func TestNewAssignsDistinctIDs(t *testing.T) {
	a, err := New("a")
	require.NoError(t, err)
	b, err := New("a")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestAddTag(t *testing.T) {
	n, err := New("tags")
	require.NoError(t, err)
	for _, tag := range []string{"travel", " food ", "", "travel", "   "} {
		n.AddTag(tag)
	}
	assert.Equal(t, []string{"travel", "food"}, n.Tags)
}

func TestAddAttachmentDeduplicates(t *testing.T) {
	n, err := New("dup")
	require.NoError(t, err)

	first, err := NewAttachment([]byte("payload"), "text/plain", "a.txt", "")
	require.NoError(t, err)
	second, err := NewAttachment([]byte("payload"), "text/plain", "b.txt", "")
	require.NoError(t, err)

	assert.Same(t, first, n.AddAttachment(first))
	assert.Same(t, first, n.AddAttachment(second))
	assert.Len(t, n.Attachments, 1)
	assert.Same(t, first, n.Attachment(first.Hash))
	assert.Nil(t, n.Attachment("missing"))
}

func TestNewAttachment(t *testing.T) {
	data := []byte{1, 2, 3}
	hash := ContentHash(data)

	a, err := NewAttachment(data, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, hash, a.Hash)
	assert.Equal(t, "application/octet-stream", a.MIME)
	assert.Equal(t, hash, a.Label())
	assert.False(t, a.IsImage())

	data[0] = 9
	assert.Equal(t, byte(1), a.Data[0], "payload is copied")

	_, err = NewAttachment([]byte{1, 2, 3}, "image/png", "x.png", strings.ToUpper(hash))
	assert.NoError(t, err, "declared hash compares case-insensitively")

	_, err = NewAttachment([]byte{1, 2, 3}, "image/png", "x.png", ContentHash([]byte("other")))
	var ie *IntegrityError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, hash, ie.Actual)
	assert.Equal(t, "integrity", Kind(err))
}

func TestOrderAttachments(t *testing.T) {
	n, err := New("order")
	require.NoError(t, err)
	var atts []*Attachment
	for _, s := range []string{"a", "b", "c"} {
		a, err := NewAttachment([]byte(s), "text/plain", s+".txt", "")
		require.NoError(t, err)
		atts = append(atts, n.AddAttachment(a))
	}
	n.Body = Document{Blocks: []Block{
		AttachmentRef{Hash: atts[2].Hash},
		List{Items: []ListItem{{Blocks: []Block{AttachmentRef{Hash: atts[1].Hash}}}}},
		AttachmentRef{Hash: atts[2].Hash},
	}}

	n.OrderAttachments()

	require.Len(t, n.Attachments, 3)
	assert.Equal(t, []string{atts[2].Hash, atts[1].Hash, atts[0].Hash},
		[]string{n.Attachments[0].Hash, n.Attachments[1].Hash, n.Attachments[2].Hash})
	assert.Equal(t, []string{atts[2].Hash, atts[1].Hash}, ReferencedHashes(n.Body))
}

func TestValidate(t *testing.T) {
	nested := func(depth int) Block {
		var b Block = para(text("leaf"))
		for i := 0; i < depth; i++ {
			b = List{Items: []ListItem{{Blocks: []Block{b}}}}
		}
		return b
	}

	tests := []struct {
		name     string
		blocks   []Block
		maxDepth int
		wantErr  error
	}{
		{name: "empty body", blocks: nil},
		{name: "valid heading", blocks: []Block{Heading{Level: 6, Inlines: []Inline{text("h")}}}},
		{name: "heading level zero", blocks: []Block{Heading{Level: 0}}, wantErr: ErrHeadingLevel},
		{name: "heading level seven", blocks: []Block{Heading{Level: 7}}, wantErr: ErrHeadingLevel},
		{name: "nesting at limit", blocks: []Block{nested(3)}, maxDepth: 3},
		{name: "nesting beyond limit", blocks: []Block{nested(4)}, maxDepth: 3, wantErr: ErrTooDeep},
		{name: "default limit", blocks: []Block{nested(DefaultMaxDepth + 1)}, wantErr: ErrTooDeep},
		{
			name:     "blockquotes count toward depth",
			blocks:   []Block{Blockquote{Blocks: []Block{Blockquote{Blocks: []Block{para(text("q"))}}}}},
			maxDepth: 1,
			wantErr:  ErrTooDeep,
		},
		{name: "missing attachment", blocks: []Block{AttachmentRef{Hash: "abc"}}, wantErr: ErrMissingAttachment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := New("v")
			require.NoError(t, err)
			n.Body = Document{Blocks: tt.blocks}
			err = n.Validate(tt.maxDepth)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   []Block
		want []Block
	}{
		{
			name: "collapses and trims whitespace",
			in:   []Block{para(text("  a \n\t b  "))},
			want: []Block{para(text("a b"))},
		},
		{
			name: "moves edge spaces out of emphasis",
			in:   []Block{para(text("a"), Bold{Children: []Inline{text(" x ")}}, text("b"))},
			want: []Block{para(text("a "), Bold{Children: []Inline{text("x")}}, text(" b"))},
		},
		{
			name: "flattens nested identical emphasis",
			in:   []Block{para(Bold{Children: []Inline{Bold{Children: []Inline{text("x")}}}})},
			want: []Block{para(Bold{Children: []Inline{text("x")}})},
		},
		{
			name: "flattens nested emphasis between text",
			in: []Block{para(Bold{Children: []Inline{
				text("one "), Bold{Children: []Inline{text("two")}}, text(" three"),
			}})},
			want: []Block{para(Bold{Children: []Inline{text("one two three")}})},
		},
		{
			name: "flattens nested links",
			in: []Block{para(Link{Href: "https://a.example", Children: []Inline{
				text("x "), Link{Href: "https://b.example", Children: []Inline{text("y")}}, text(" z"),
			}})},
			want: []Block{para(Link{Href: "https://a.example", Children: []Inline{text("x y z")}})},
		},
		{
			name: "flattened emphasis merges with its neighbours",
			in: []Block{para(Bold{Children: []Inline{
				Italic{Children: []Inline{text("a")}},
				Bold{Children: []Inline{Italic{Children: []Inline{text("b")}}}},
			}})},
			want: []Block{para(Bold{Children: []Inline{Italic{Children: []Inline{text("ab")}}}})},
		},
		{
			name: "merges adjacent emphasis",
			in:   []Block{para(Italic{Children: []Inline{text("a")}}, Italic{Children: []Inline{text("b")}})},
			want: []Block{para(Italic{Children: []Inline{text("ab")}})},
		},
		{
			name: "drops empty blocks",
			in:   []Block{para(text("  ")), Blockquote{Blocks: []Block{para()}}, List{}, para(Bold{})},
			want: nil,
		},
		{
			name: "trims line breaks at paragraph edges",
			in:   []Block{para(LineBreak{}, text("a "), LineBreak{}, text(" b"), LineBreak{})},
			want: []Block{para(text("a"), LineBreak{}, text("b"))},
		},
		{
			name: "heading line breaks become spaces",
			in:   []Block{Heading{Level: 2, Inlines: []Inline{text("a"), LineBreak{}, text("b")}}},
			want: []Block{Heading{Level: 2, Inlines: []Inline{text("a b")}}},
		},
		{
			name: "code block line endings",
			in:   []Block{CodeBlock{Language: " go ", Text: "x\r\ny\n\n"}},
			want: []Block{CodeBlock{Language: "go", Text: "x\ny"}},
		},
		{
			name: "pads table rows",
			in: []Block{Table{
				Header: []TableCell{{Inlines: []Inline{text("h")}}},
				Rows:   [][]TableCell{{{Inlines: []Inline{text(" a ")}}, {Inlines: []Inline{text("b")}}}},
			}},
			want: []Block{Table{
				Header: []TableCell{{Inlines: []Inline{text("h")}}, {}},
				Rows:   [][]TableCell{{{Inlines: []Inline{text("a")}}, {Inlines: []Inline{text("b")}}}},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(Document{Blocks: tt.in})
			assert.Equal(t, tt.want, got.Blocks)
			assert.Equal(t, got, Normalize(got), "idempotent")
		})
	}
}

func TestPlainText(t *testing.T) {
	in := []Inline{
		text("a "),
		Bold{Children: []Inline{text("b"), Italic{Children: []Inline{text("c")}}}},
		LineBreak{},
		Link{Href: "https://example.com", Children: []Inline{text("d")}},
		Code{Value: " e"},
	}
	assert.Equal(t, "a bc\nd e", PlainText(in))
}

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "decode", err: &DecodeError{Index: 2, Err: errors.New("bad")}, want: "decode"},
		{
			name: "integrity wrapped in decode",
			err:  &DecodeError{Index: 1, Err: &IntegrityError{Declared: "a", Actual: "b"}},
			want: "integrity",
		},
		{name: "transcode", err: fmt.Errorf("parsing: %w", &TranscodeError{Line: 3, Err: ErrTooDeep}), want: "transcode"},
		{name: "io", err: &fs.PathError{Op: "open", Path: "x", Err: fs.ErrNotExist}, want: "io"},
		{name: "other", err: errors.New("boom"), want: "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Contains(t, (&DecodeError{Index: 4, Err: errors.New("bad")}).Error(), "4")
	assert.Contains(t, (&TranscodeError{Line: 7, Err: errors.New("bad")}).Error(), "line 7")
	assert.Contains(t, (&IntegrityError{Declared: "aa", Actual: "bb"}).Error(), "aa")
}
