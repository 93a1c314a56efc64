// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enex

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pdiddy/enexconv/internal/attach"
	"github.com/pdiddy/enexconv/internal/markup"
	"github.com/pdiddy/enexconv/internal/note"
)

const exportDoctype = `<!DOCTYPE en-export SYSTEM "http://xml.evernote.com/pub/evernote-export3.dtd">` + "\n"

// EncodeOptions configures Encode.
type EncodeOptions struct {
	// Application and Version identify the exporting program on the root
	// element.
	Application string
	Version     string

	// Now stamps export-date; time.Now when nil.
	Now func() time.Time

	// MaxDepth bounds list nesting; note.DefaultMaxDepth when zero.
	MaxDepth int
}

// Encode writes notes as one export document. Every note is validated
// first; a note that references an attachment it does not store, or whose
// body nests too deeply, fails the whole document before anything is
// written.
func Encode(w io.Writer, notes []*note.Note, opts EncodeOptions) error {
	elems := make([]xmlNote, 0, len(notes))
	for _, n := range notes {
		if err := n.Validate(opts.MaxDepth); err != nil {
			return fmt.Errorf("encoding note %q: %w", n.Title, err)
		}
		el, err := encodeNote(n)
		if err != nil {
			return fmt.Errorf("encoding note %q: %w", n.Title, err)
		}
		elems = append(elems, el)
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	app := opts.Application
	if app == "" {
		app = "enexconv"
	}
	version := opts.Version
	if version == "" {
		version = "1.0"
	}

	if _, err := io.WriteString(w, xml.Header+exportDoctype); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	root := xml.StartElement{
		Name: xml.Name{Local: "en-export"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "export-date"}, Value: now().UTC().Format(TimeLayout)},
			{Name: xml.Name{Local: "application"}, Value: app},
			{Name: xml.Name{Local: "version"}, Value: version},
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return err
	}
	for i := range elems {
		if err := enc.Encode(&elems[i]); err != nil {
			return fmt.Errorf("encoding note %d: %w", i+1, err)
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return err
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func encodeNote(n *note.Note) (xmlNote, error) {
	body, err := markup.Write(n.Body, markup.WriteOptions{
		Dialect: markup.ENML,
		Lookup:  n.Attachment,
	})
	if err != nil {
		return xmlNote{}, err
	}

	el := xmlNote{
		Title:   n.Title,
		Content: xmlText{Value: body},
		Created: formatTime(n.Created),
		Updated: formatTime(n.Updated),
		Tags:    n.Tags,
	}
	if n.Author != "" || n.SourceURL != "" || n.Notebook != "" {
		el.Attributes = &xmlAttributes{
			Author:    n.Author,
			SourceURL: n.SourceURL,
			Notebook:  n.Notebook,
		}
	}
	for _, a := range n.Attachments {
		el.Resources = append(el.Resources, encodeResource(a))
	}
	return el, nil
}

func encodeResource(a *note.Attachment) xmlResource {
	encoded, hash := attach.Encode(a.Data)
	res := xmlResource{
		Data: xmlData{Encoding: "base64", Hash: hash, Value: "\n" + encoded + "\n"},
		MIME: a.MIME,
	}
	if a.Width > 0 && a.Height > 0 {
		res.Width = strconv.Itoa(a.Width)
		res.Height = strconv.Itoa(a.Height)
	}
	if a.Recognition != "" {
		res.Recognition = &xmlText{Value: a.Recognition}
	}
	if a.Filename != "" || a.SourceURL != "" {
		res.Attributes = &xmlResourceAttributes{SourceURL: a.SourceURL, FileName: a.Filename}
	}
	return res
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}
