// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/enexconv/internal/attach"
	"github.com/pdiddy/enexconv/internal/enex"
	"github.com/pdiddy/enexconv/internal/note"
	"github.com/pdiddy/enexconv/internal/transcode"
	"github.com/pdiddy/enexconv/pkg/types"
)

// application is written on the root element of generated containers.
const application = "enexconv"

// searchDirs are looked in, next to the input, for attachments referenced by
// bare file name.
var searchDirs = []string{"assets", "images", transcode.DefaultAttachmentDir}

// planGenerate returns one item per input document.
func (r *runner) planGenerate(inputs []string) []*item {
	cfg := r.opts.Generate
	toDir := len(inputs) > 1 || isDirTarget(cfg.Output)
	names := newStems()

	items := make([]*item, 0, len(inputs))
	for _, input := range inputs {
		input := input
		it := newItem(input, input)
		dest := cfg.Output
		if toDir {
			dest = filepath.Join(cfg.Output, names.claim(fileStem(input))+".enex")
		}
		it.work = func(ctx context.Context, it *item) error {
			return r.generate(ctx, it, input, dest)
		}
		items = append(items, it)
	}
	return items
}

// isDirTarget reports whether path names a directory rather than a file.
func isDirTarget(path string) bool {
	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(filepath.Separator)) {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (r *runner) generate(ctx context.Context, it *item, input, dest string) error {
	cfg := r.opts.Generate

	it.advance(types.StateDecoding)
	src, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	info, err := os.Stat(input)
	if err != nil {
		return err
	}
	format := cfg.Format
	if format == "" {
		f, ok := types.FormatForPath(input)
		if !ok {
			return fmt.Errorf("cannot tell the format of %s; use --format", input)
		}
		format = f
	}
	fnd, err := r.finder(it, input)
	if err != nil {
		return err
	}

	it.advance(types.StateTranscoding)
	p, err := transcode.Parse(src, transcode.Options{
		Format:   format,
		Resolver: fnd.resolve,
		MaxDepth: cfg.MaxDepth,
	})
	if err != nil {
		return err
	}
	it.warn(p.Warnings...)
	n, err := p.Note(fileStem(input))
	if err != nil {
		return &note.TranscodeError{Err: err}
	}
	it.owner = n.ID
	it.report.Title = n.Title
	if n.Created.IsZero() {
		n.Created = info.ModTime().UTC()
	}
	if n.Updated.IsZero() {
		n.Updated = info.ModTime().UTC()
	}

	it.advance(types.StateEncoding)
	var buf bytes.Buffer
	if err := enex.Encode(&buf, []*note.Note{n}, enex.EncodeOptions{
		Application: application,
		Version:     r.opts.Version,
		Now:         r.opts.Now,
		MaxDepth:    cfg.MaxDepth,
	}); err != nil {
		return err
	}
	if err := writeAtomic(dest, buf.Bytes()); err != nil {
		return err
	}
	it.output(dest)

	for _, a := range n.Attachments {
		if _, _, err := r.index.Claim(ctx, a.Hash, len(a.Data), it.owner, fnd.found[a.Hash]); err != nil {
			it.warn(fmt.Sprintf("dedup index unavailable for %s: %v", a.Label(), err))
			break
		}
	}
	return nil
}

// finder resolves the attachment references of one input document.
type finder struct {
	docDir string
	dir    *attach.Dir
	warn   func(...string)

	// found maps the hash of every resolved attachment to its source file.
	found map[string]string
}

func (r *runner) finder(it *item, input string) (*finder, error) {
	docDir := filepath.Dir(input)
	path := r.opts.Generate.AttachmentsDir
	if path == "" {
		path = filepath.Join(docDir, transcode.DefaultAttachmentDir)
	}
	dir, err := r.attachmentsDir(path)
	if err != nil {
		return nil, err
	}
	return &finder{docDir: docDir, dir: dir, warn: it.warn, found: make(map[string]string)}, nil
}

// attachmentsDir indexes path once per run.
func (r *runner) attachmentsDir(path string) (*attach.Dir, error) {
	r.dirsMu.Lock()
	defer r.dirsMu.Unlock()
	if r.dirs == nil {
		r.dirs = make(map[string]*attach.Dir)
	}
	if d, ok := r.dirs[path]; ok {
		return d, nil
	}
	d, err := attach.OpenDir(path)
	if err != nil {
		return nil, err
	}
	r.dirs[path] = d
	return d, nil
}

// resolve looks ref up as a path relative to the document, then by file name
// in the attachments directory and the usual asset directories next to the
// document. Every call returns a fresh attachment.
func (f *finder) resolve(ref string) (*note.Attachment, bool) {
	ref = cleanRef(ref)
	if ref == "" {
		return nil, false
	}
	name := filepath.Base(filepath.FromSlash(ref))

	path := filepath.FromSlash(ref)
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.docDir, path)
	}
	if data, ok := readRegular(path); ok {
		return f.attachment(path, name, data)
	}

	if path, ok := f.dir.Lookup(name); ok {
		data, err := os.ReadFile(path)
		if err == nil {
			return f.attachment(path, name, data)
		}
		f.warn(fmt.Sprintf("could not read attachment %s: %v", name, err))
	}
	for _, dir := range searchDirs {
		path := filepath.Join(f.docDir, dir, name)
		if data, ok := readRegular(path); ok {
			return f.attachment(path, name, data)
		}
	}
	return nil, false
}

func (f *finder) attachment(path, name string, data []byte) (*note.Attachment, bool) {
	a, err := note.NewAttachment(data, attach.DetectMIME(name, data), name, "")
	if err != nil {
		return nil, false
	}
	if _, ok := f.found[a.Hash]; !ok {
		f.found[a.Hash] = path
	}
	return a, true
}

// cleanRef strips a file: scheme, query and fragment from a link target and
// undoes percent-encoding.
func cleanRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if len(ref) >= 5 && strings.EqualFold(ref[:5], "file:") {
		ref = strings.TrimPrefix(ref[5:], "//")
	}
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	if u, err := url.PathUnescape(ref); err == nil {
		ref = u
	}
	return ref
}

func readRegular(path string) ([]byte, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}
