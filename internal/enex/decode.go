// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package enex decodes and encodes Evernote export documents: an
// <en-export> root holding <note> elements, each with an ENML body and
// base64 <resource> payloads.
package enex

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/enexconv/internal/attach"
	"github.com/pdiddy/enexconv/internal/markup"
	"github.com/pdiddy/enexconv/internal/note"
)

// TimeLayout is the timestamp format of export documents.
const TimeLayout = "20060102T150405Z"

// ErrMissingRoot is returned when a document has no <en-export> root.
var ErrMissingRoot = errors.New("missing en-export root element")

// DecodeOptions configures Decode.
type DecodeOptions struct {
	// Lenient records a failing note on its Entry and continues with the
	// next one. Otherwise decoding stops at the first failing note.
	Lenient bool

	// MaxDepth bounds list nesting in note bodies; note.DefaultMaxDepth
	// when zero.
	MaxDepth int
}

// Entry is the outcome of decoding one <note> element.
type Entry struct {
	// Index is the 1-based position of the element in the document.
	Index    int
	Note     *note.Note
	Warnings []string
	Err      error
}

type xmlNote struct {
	XMLName    xml.Name       `xml:"note"`
	Title      string         `xml:"title"`
	Content    xmlText        `xml:"content"`
	Created    string         `xml:"created,omitempty"`
	Updated    string         `xml:"updated,omitempty"`
	Tags       []string       `xml:"tag"`
	Attributes *xmlAttributes `xml:"note-attributes"`
	Resources  []xmlResource  `xml:"resource"`
}

// xmlText is character data written as a CDATA section.
type xmlText struct {
	Value string `xml:",cdata"`
}

type xmlAttributes struct {
	Author    string `xml:"author,omitempty"`
	SourceURL string `xml:"source-url,omitempty"`
	Notebook  string `xml:"notebook,omitempty"`
}

type xmlResource struct {
	Data        xmlData                `xml:"data"`
	MIME        string                 `xml:"mime"`
	Width       string                 `xml:"width,omitempty"`
	Height      string                 `xml:"height,omitempty"`
	Recognition *xmlText               `xml:"recognition"`
	Attributes  *xmlResourceAttributes `xml:"resource-attributes"`
}

type xmlData struct {
	Encoding string `xml:"encoding,attr"`
	Hash     string `xml:"hash,attr,omitempty"`
	Value    string `xml:",chardata"`
}

type xmlResourceAttributes struct {
	SourceURL string `xml:"source-url,omitempty"`
	FileName  string `xml:"file-name,omitempty"`
}

// Decode reads an export document in one pass and returns one Entry per
// <note> element in source order.
//
// A document without an <en-export> root, or with broken XML, fails with a
// *note.DecodeError and no further entries. A note with an unparseable
// timestamp, an undecodable or mismatching resource, an invalid title or a
// body that violates the note invariants fails with a *note.DecodeError
// carrying its index. In strict mode Decode returns that error along with
// the entries decoded before it; in lenient mode the error is recorded on
// the Entry and decoding continues.
func Decode(r io.Reader, opts DecodeOptions) ([]Entry, error) {
	d := xml.NewDecoder(r)
	d.Entity = xml.HTMLEntity

	var entries []Entry
	rootSeen := false
	index := 0

	for {
		tok, err := d.Token()
		if err == io.EOF {
			if !rootSeen {
				return nil, &note.DecodeError{Err: ErrMissingRoot}
			}
			return entries, nil
		}
		if err != nil {
			return entries, &note.DecodeError{Index: index, Err: fmt.Errorf("malformed XML: %w", err)}
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !rootSeen {
			if start.Name.Local != "en-export" {
				return nil, &note.DecodeError{Err: fmt.Errorf("%w: found <%s>", ErrMissingRoot, start.Name.Local)}
			}
			rootSeen = true
			continue
		}
		if start.Name.Local != "note" {
			if err := d.Skip(); err != nil {
				return entries, &note.DecodeError{Index: index, Err: fmt.Errorf("malformed XML: %w", err)}
			}
			continue
		}

		index++
		var raw xmlNote
		if err := d.DecodeElement(&raw, &start); err != nil {
			return entries, &note.DecodeError{Index: index, Err: fmt.Errorf("malformed XML: %w", err)}
		}

		e := decodeNote(index, raw, opts.MaxDepth)
		entries = append(entries, e)
		if e.Err != nil && !opts.Lenient {
			return entries, e.Err
		}
	}
}

func decodeNote(index int, raw xmlNote, maxDepth int) Entry {
	e := Entry{Index: index}
	fail := func(err error) Entry {
		e.Note = nil
		e.Err = &note.DecodeError{Index: index, Err: err}
		return e
	}

	n, err := note.New(strings.TrimSpace(raw.Title))
	if err != nil {
		return fail(err)
	}
	if n.Created, err = parseTime(raw.Created); err != nil {
		return fail(fmt.Errorf("created: %w", err))
	}
	if n.Updated, err = parseTime(raw.Updated); err != nil {
		return fail(fmt.Errorf("updated: %w", err))
	}
	for _, t := range raw.Tags {
		n.AddTag(t)
	}
	if attrs := raw.Attributes; attrs != nil {
		n.Author = strings.TrimSpace(attrs.Author)
		n.SourceURL = strings.TrimSpace(attrs.SourceURL)
		n.Notebook = strings.TrimSpace(attrs.Notebook)
	}

	// en-media references may use either the MD5 or the SHA-256 digest.
	media := make(map[string]string)
	for i, res := range raw.Resources {
		a, warn, err := decodeResource(res)
		if err != nil {
			return fail(fmt.Errorf("resource %d: %w", i+1, err))
		}
		e.Warnings = append(e.Warnings, warn...)
		a = n.AddAttachment(a)
		media[a.Hash] = a.Hash
		media[attach.LegacyHash(a.Data)] = a.Hash
	}

	if strings.TrimSpace(raw.Content.Value) != "" {
		res, err := markup.Read(markup.Parse(raw.Content.Value), markup.ReadOptions{
			Dialect: markup.ENML,
			ResolveMedia: func(h string) (string, bool) {
				sha, ok := media[strings.ToLower(h)]
				return sha, ok
			},
		})
		if err != nil {
			return fail(err)
		}
		n.Body = res.Doc
		e.Warnings = append(e.Warnings, res.Warnings...)
	}

	// Resources the body never references still belong to the note.
	referenced := make(map[string]bool)
	for _, h := range note.ReferencedHashes(n.Body) {
		referenced[h] = true
	}
	for _, a := range n.Attachments {
		if !referenced[a.Hash] {
			n.Body.Blocks = append(n.Body.Blocks, note.AttachmentRef{Hash: a.Hash})
			e.Warnings = append(e.Warnings, fmt.Sprintf("resource %s not referenced by the body; appended", a.Label()))
		}
	}
	n.OrderAttachments()

	if err := n.Validate(maxDepth); err != nil {
		return fail(err)
	}
	e.Note = n
	return e
}

func decodeResource(res xmlResource) (*note.Attachment, []string, error) {
	if enc := strings.TrimSpace(res.Data.Encoding); enc != "" && !strings.EqualFold(enc, "base64") {
		return nil, nil, fmt.Errorf("unsupported data encoding %q", enc)
	}
	data, _, err := attach.Decode(res.Data.Value, res.Data.Hash)
	if err != nil {
		return nil, nil, err
	}
	var fileName, sourceURL string
	if res.Attributes != nil {
		fileName = strings.TrimSpace(res.Attributes.FileName)
		sourceURL = strings.TrimSpace(res.Attributes.SourceURL)
	}
	a, err := note.NewAttachment(data, strings.TrimSpace(res.MIME), fileName, "")
	if err != nil {
		return nil, nil, err
	}
	a.SourceURL = sourceURL
	if res.Recognition != nil {
		a.Recognition = res.Recognition.Value
	}

	var warnings []string
	if a.Width, err = parseDimension(res.Width); err != nil {
		warnings = append(warnings, fmt.Sprintf("resource %s: ignoring width: %v", a.Label(), err))
	}
	if a.Height, err = parseDimension(res.Height); err != nil {
		warnings = append(warnings, fmt.Sprintf("resource %s: ignoring height: %v", a.Label(), err))
	}
	return a, warnings, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t, nil
}

func parseDimension(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid dimension %q", s)
	}
	return v, nil
}
