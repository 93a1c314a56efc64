// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdiddy/enexconv/internal/attach"
	"github.com/pdiddy/enexconv/internal/enex"
	"github.com/pdiddy/enexconv/internal/note"
	"github.com/pdiddy/enexconv/internal/transcode"
	"github.com/pdiddy/enexconv/pkg/types"
)

// planParse decodes every container and returns one item per note element.
// Containers are decoded one after the other so that output names are
// assigned in input order.
func (r *runner) planParse(ctx context.Context, inputs []string) []*item {
	cfg := r.opts.Parse
	nested := len(inputs) > 1
	containers := newStems()

	var items []*item
	for _, input := range inputs {
		if ctx.Err() != nil {
			it := newItem(input, input)
			it.report.State = types.StateSkipped
			items = append(items, it)
			continue
		}

		entries, err := decodeContainer(input, cfg)
		if err != nil {
			it := newItem(input, input)
			it.err = err
			items = append(items, it)
			continue
		}

		dir := cfg.OutputDir
		if nested {
			dir = filepath.Join(dir, containers.claim(fileStem(input)))
		}
		names := newStems()

		for _, e := range entries {
			it := newItem(fmt.Sprintf("%s#%d", input, e.Index), input)
			it.warn(e.Warnings...)
			if e.Err != nil {
				it.err = e.Err
				items = append(items, it)
				continue
			}
			n := e.Note
			it.owner = n.ID
			it.report.Title = n.Title
			stem := names.claim(n.Title)
			it.work = func(ctx context.Context, it *item) error {
				return r.writeNote(ctx, it, n, filepath.Join(dir, stem), stem)
			}
			items = append(items, it)
		}
	}
	return items
}

func decodeContainer(path string, cfg types.ParseConfig) ([]enex.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := enex.Decode(f, enex.DecodeOptions{Lenient: cfg.Lenient, MaxDepth: cfg.MaxDepth})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// writeNote renders n and writes it with its attachments into dir.
func (r *runner) writeNote(ctx context.Context, it *item, n *note.Note, dir, stem string) error {
	cfg := r.opts.Parse

	it.advance(types.StateTranscoding)
	out, err := transcode.Render(n, transcode.Options{Format: cfg.Format, MaxDepth: cfg.MaxDepth})
	if err != nil {
		return err
	}

	it.advance(types.StateEncoding)
	doc := filepath.Join(dir, stem+cfg.Format.Extension())
	if err := writeAtomic(doc, []byte(out.Text)); err != nil {
		return err
	}
	it.output(doc)

	for _, a := range out.Attachments {
		dest := filepath.Join(dir, transcode.DefaultAttachmentDir, attach.FileName(a))
		if err := r.materialize(ctx, it, a, dest); err != nil {
			return fmt.Errorf("attachment %s: %w", a.Label(), err)
		}
		it.output(dest)
	}
	return nil
}

// materialize writes a's payload to dest, or links dest to the copy another
// note of the batch already wrote.
func (r *runner) materialize(ctx context.Context, it *item, a *note.Attachment, dest string) error {
	existing, first, err := r.index.Claim(ctx, a.Hash, len(a.Data), it.owner, dest)
	if err != nil {
		it.warn(fmt.Sprintf("dedup index unavailable for %s: %v", a.Label(), err))
		return writeAtomic(dest, a.Data)
	}
	if !first && existing != dest {
		if err := linkFile(existing, dest); err == nil {
			return nil
		}
	}
	return writeAtomic(dest, a.Data)
}
