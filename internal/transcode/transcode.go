// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package transcode converts notes to and from plain-text documents:
// Markdown with a YAML frontmatter header, or a standalone HTML page.
//
// Rendering returns the text together with the attachments that must be
// written next to it; parsing resolves local attachment references through
// a caller-supplied Resolver. Neither direction touches the filesystem.
package transcode

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/pdiddy/enexconv/internal/attach"
	"github.com/pdiddy/enexconv/internal/markup"
	"github.com/pdiddy/enexconv/internal/note"
	"github.com/pdiddy/enexconv/pkg/types"
)

// DefaultAttachmentDir is the directory, relative to the rendered document,
// that attachment references point into.
const DefaultAttachmentDir = "attachments"

// Resolver maps a link or image target found in a document to a local
// attachment. It reports false for targets that are not local files.
type Resolver func(ref string) (*note.Attachment, bool)

// Options configures Render and Parse.
type Options struct {
	Format types.Format

	// Resolver turns local link targets into attachment references when
	// parsing. Without one every link stays a link.
	Resolver Resolver

	// MaxDepth bounds list nesting; note.DefaultMaxDepth when zero.
	MaxDepth int
}

// Rendered is a note rendered as text.
type Rendered struct {
	Text string

	// Attachments must be written to DefaultAttachmentDir/<attach.FileName>
	// next to Text, in reference order.
	Attachments []*note.Attachment
}

// Parsed is a document parsed from text.
type Parsed struct {
	Doc note.Document

	// Title is set when HasTitle; otherwise the caller picks one.
	Title    string
	HasTitle bool

	Created   time.Time
	Updated   time.Time
	Tags      []string
	Author    string
	SourceURL string
	Notebook  string

	// Attachments are the resolved references of Doc, in first reference
	// order.
	Attachments []*note.Attachment

	Warnings []string
}

// Render converts n to text in opts.Format.
func Render(n *note.Note, opts Options) (Rendered, error) {
	if err := n.Validate(opts.MaxDepth); err != nil {
		return Rendered{}, err
	}
	dir := DefaultAttachmentDir

	var (
		text string
		err  error
	)
	switch opts.Format {
	case types.FormatHTML:
		text, err = markup.Write(n.Body, markup.WriteOptions{
			Dialect: markup.HTML,
			Meta:    metaFor(n),
			Lookup:  n.Attachment,
			Href: func(a *note.Attachment) string {
				return path.Join(dir, attach.FileName(a))
			},
		})
	case types.FormatMarkdown, "":
		text, err = renderMarkdown(n, dir)
	default:
		return Rendered{}, fmt.Errorf("unsupported format %q", opts.Format)
	}
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Text: text, Attachments: materialize(n)}, nil
}

// materialize lists the stored attachments, referenced ones first.
func materialize(n *note.Note) []*note.Attachment {
	var out []*note.Attachment
	seen := make(map[string]bool)
	for _, h := range note.ReferencedHashes(n.Body) {
		if a := n.Attachment(h); a != nil && !seen[h] {
			out = append(out, a)
			seen[h] = true
		}
	}
	for _, a := range n.Attachments {
		if !seen[a.Hash] {
			out = append(out, a)
			seen[a.Hash] = true
		}
	}
	return out
}

func metaFor(n *note.Note) markup.Meta {
	return markup.Meta{
		Title:    n.Title,
		Keywords: n.Tags,
		Created:  formatTime(n.Created),
		Updated:  formatTime(n.Updated),
		Author:   n.Author,
		Source:   n.SourceURL,
		Notebook: n.Notebook,
	}
}

// Parse converts text in opts.Format into a Document and its metadata.
func Parse(src []byte, opts Options) (Parsed, error) {
	res := &resolution{resolver: opts.Resolver, found: make(map[string]*note.Attachment)}

	var (
		p   Parsed
		err error
	)
	switch opts.Format {
	case types.FormatHTML:
		p, err = parseHTML(src, res)
	case types.FormatMarkdown, "":
		p, err = parseMarkdown(src, res)
	default:
		return Parsed{}, fmt.Errorf("unsupported format %q", opts.Format)
	}
	if err != nil {
		return Parsed{}, err
	}

	if err := note.ValidateDocument(p.Doc, opts.MaxDepth); err != nil {
		return Parsed{}, &note.TranscodeError{Err: err}
	}
	for _, h := range note.ReferencedHashes(p.Doc) {
		p.Attachments = append(p.Attachments, res.found[h])
	}
	return p, nil
}

func parseHTML(src []byte, res *resolution) (Parsed, error) {
	r, err := markup.Read(markup.Parse(string(src)), markup.ReadOptions{
		Dialect:     markup.HTML,
		ResolvePath: res.resolve,
	})
	if err != nil {
		return Parsed{}, err
	}
	p := Parsed{
		Doc:       r.Doc,
		Title:     r.Meta.Title,
		HasTitle:  r.Meta.Title != "",
		Tags:      r.Meta.Keywords,
		Author:    r.Meta.Author,
		SourceURL: r.Meta.Source,
		Notebook:  r.Meta.Notebook,
		Warnings:  r.Warnings,
	}
	p.Created, p.Warnings = parseTimeField("created", r.Meta.Created, p.Warnings)
	p.Updated, p.Warnings = parseTimeField("updated", r.Meta.Updated, p.Warnings)
	return p, nil
}

// Note builds a note from the parsed document. fallbackTitle is used when
// the document declared no title.
func (p Parsed) Note(fallbackTitle string) (*note.Note, error) {
	title := fallbackTitle
	if p.HasTitle {
		title = p.Title
	}
	n, err := note.New(strings.TrimSpace(title))
	if err != nil {
		return nil, err
	}
	n.Created = p.Created
	n.Updated = p.Updated
	for _, t := range p.Tags {
		n.AddTag(t)
	}
	n.Author = p.Author
	n.SourceURL = p.SourceURL
	n.Notebook = p.Notebook
	n.Body = p.Doc
	for _, a := range p.Attachments {
		n.AddAttachment(a)
	}
	n.OrderAttachments()
	return n, nil
}

// resolution tracks the attachments resolved while parsing one document.
type resolution struct {
	resolver Resolver
	found    map[string]*note.Attachment
}

func (r *resolution) resolve(ref string) (string, bool) {
	if r.resolver == nil || isRemote(ref) {
		return "", false
	}
	a, ok := r.resolver(ref)
	if !ok || a == nil {
		return "", false
	}
	if _, seen := r.found[a.Hash]; !seen {
		r.found[a.Hash] = a
	}
	return a.Hash, true
}

// name gives the attachment behind hash the label a document showed for it
// when the resolver only knew it by its content-addressed file name.
func (r *resolution) name(hash, label string) {
	a := r.found[hash]
	label = strings.TrimSpace(label)
	if a == nil || label == "" || label == a.Hash || strings.ContainsAny(label, "/\\\n") {
		return
	}
	if a.Filename == "" || strings.TrimSuffix(a.Filename, path.Ext(a.Filename)) == a.Hash {
		a.Filename = label
	}
}

func isRemote(ref string) bool {
	i := strings.Index(ref, ":")
	if i <= 1 {
		// No scheme, or a Windows drive letter.
		return false
	}
	for _, c := range ref[:i] {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.') {
			return false
		}
	}
	return !strings.EqualFold(ref[:i], "file")
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"20060102T150405Z",
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// parseTimeField parses an optional timestamp, recording a warning instead
// of failing when it is malformed.
func parseTimeField(name, value string, warnings []string) (time.Time, []string) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, warnings
	}
	t, err := parseTime(value)
	if err != nil {
		return time.Time{}, append(warnings, fmt.Sprintf("ignoring %s: %v", name, err))
	}
	return t, warnings
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
