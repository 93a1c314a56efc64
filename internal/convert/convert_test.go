// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/enexconv/internal/enex"
	"github.com/pdiddy/enexconv/internal/note"
	"github.com/pdiddy/enexconv/pkg/types"
)

// SHA-256 of the payload 0x01 0x02 0x03.
const tinySHA = "039058c6f2c0cb492c533b0a4d14ef77cc0f78abccced5287d84a1a2011cfb81"

func export(notes ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE en-export SYSTEM "http://xml.evernote.com/pub/evernote-export3.dtd">
<en-export export-date="20230101T000000Z" application="Evernote" version="10.0">
` + strings.Join(notes, "\n") + `
</en-export>`
}

func noteXML(title, created, body string, extra ...string) string {
	return fmt.Sprintf(`<note><title>%s</title><content><![CDATA[<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE en-note SYSTEM "http://xml.evernote.com/pub/enml2.dtd">
<en-note>%s</en-note>]]></content><created>%s</created><updated>%s</updated>%s</note>`,
		title, body, created, created, strings.Join(extra, ""))
}

// mapResource is a 3-byte PNG attachment named map.png.
const mapResource = `<resource><data encoding="base64">AQID</data><mime>image/png</mime>` +
	`<resource-attributes><file-name>map.png</file-name></resource-attributes></resource>`

func tripNoteXML() string {
	return noteXML("Trip Notes", "20230415T081500Z",
		`<div><b>Hello</b> world</div><div><en-media hash="`+tinySHA+`" type="image/png"/></div>`,
		`<tag>travel</tag>`,
		mapResource,
	)
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func parseOptions(out string) Options {
	cfg := types.ParseConfig{OutputDir: out}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return Options{Parse: cfg}
}

func states(r types.Report) []types.ItemState {
	var s []types.ItemState
	for _, it := range r.Items {
		s = append(s, it.State)
	}
	return s
}

func TestRunParseTripNotes(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "trip.enex", export(tripNoteXML()))
	out := filepath.Join(dir, "out")

	var progress bytes.Buffer
	opts := parseOptions(out)
	opts.Progress = &progress

	report, err := Run(context.Background(), Job{Direction: types.DirectionParse, Inputs: []string{in}}, opts)
	require.NoError(t, err)
	require.Len(t, report.Items, 1)

	it := report.Items[0]
	assert.Equal(t, in+"#1", it.ID)
	assert.Equal(t, "Trip Notes", it.Title)
	assert.Equal(t, types.StateDone, it.State)

	doc := filepath.Join(out, "Trip-Notes", "Trip-Notes.md")
	img := filepath.Join(out, "Trip-Notes", "attachments", tinySHA+".png")
	assert.Equal(t, []string{doc, img}, it.Output)

	text, err := os.ReadFile(doc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(text), "---\ntitle: Trip Notes\n"), string(text))
	assert.Contains(t, string(text), "**Hello** world")
	assert.Contains(t, string(text), "![map.png](attachments/"+tinySHA+".png)")

	data, err := os.ReadFile(img)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	assert.Contains(t, progress.String(), "converted: "+in+"#1 -> "+doc)
	assert.Contains(t, progress.String(), "Batch summary: 1 converted, 0 skipped, 0 failed (total: 1)")
}

func TestRunParseHTML(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "trip.enex", export(tripNoteXML()))
	out := filepath.Join(dir, "out")

	opts := parseOptions(out)
	opts.Parse.Format = types.FormatHTML

	_, err := Run(context.Background(), Job{Direction: types.DirectionParse, Inputs: []string{in}}, opts)
	require.NoError(t, err)

	text, err := os.ReadFile(filepath.Join(out, "Trip-Notes", "Trip-Notes.html"))
	require.NoError(t, err)
	assert.Contains(t, string(text), "<title>Trip Notes</title>")
	assert.Contains(t, string(text), "attachments/"+tinySHA+".png")
}

func TestRunParseBadTimestamp(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "batch.enex", export(
		noteXML("First", "20230101T000000Z", "<div>one</div>"),
		noteXML("Second", "yesterday", "<div>two</div>"),
		noteXML("Third", "20230103T000000Z", "<div>three</div>"),
	))

	t.Run("lenient isolates the failing note", func(t *testing.T) {
		out := filepath.Join(dir, "lenient")
		opts := parseOptions(out)
		opts.Parse.Lenient = true

		report, err := Run(context.Background(), Job{Direction: types.DirectionParse, Inputs: []string{in}}, opts)
		require.NoError(t, err)
		assert.Equal(t, []types.ItemState{types.StateDone, types.StateFailed, types.StateDone}, states(report))

		failed := report.Items[1]
		assert.Equal(t, in+"#2", failed.ID)
		assert.Equal(t, types.StateDecoding, failed.Stage)
		assert.Equal(t, "decode", failed.ErrorKind)
		assert.Contains(t, failed.Error, "created")

		assert.FileExists(t, filepath.Join(out, "First", "First.md"))
		assert.FileExists(t, filepath.Join(out, "Third", "Third.md"))
		assert.NoDirExists(t, filepath.Join(out, "Second"))
	})

	t.Run("strict fails the whole container", func(t *testing.T) {
		out := filepath.Join(dir, "strict")
		report, err := Run(context.Background(), Job{Direction: types.DirectionParse, Inputs: []string{in}}, parseOptions(out))
		assert.ErrorIs(t, err, ErrNoneConverted)
		require.Len(t, report.Items, 1)
		assert.Equal(t, in, report.Items[0].ID)
		assert.Equal(t, types.StateFailed, report.Items[0].State)
		assert.Contains(t, report.Items[0].Error, "decode note 2")
		assert.NoDirExists(t, out)
	})
}

func TestRunParseFailFast(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "batch.enex", export(
		noteXML("First", "20230101T000000Z", "<div>one</div>"),
		noteXML("Second", "yesterday", "<div>two</div>"),
		noteXML("Third", "20230103T000000Z", "<div>three</div>"),
	))
	opts := parseOptions(filepath.Join(dir, "out"))
	opts.Parse.Lenient = true
	opts.Parse.FailFast = true

	var progress bytes.Buffer
	opts.Progress = &progress

	report, err := Run(context.Background(), Job{Direction: types.DirectionParse, Inputs: []string{in}}, opts)
	require.NoError(t, err)
	assert.Equal(t, []types.ItemState{types.StateDone, types.StateFailed, types.StateSkipped}, states(report))
	assert.Contains(t, progress.String(), "skipped: "+in+"#3")
	assert.Contains(t, progress.String(), "Batch summary: 1 converted, 1 skipped, 1 failed (total: 3)")
}

func TestRunFailFastKeepsEarlierItems(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "batch.enex", export(
		noteXML("First", "20230101T000000Z", "<div>one</div>"),
		noteXML("Second", "yesterday", "<div>two</div>"),
	))

	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			opts := parseOptions(filepath.Join(dir, fmt.Sprintf("out%d", workers)))
			opts.Parse.Lenient = true
			opts.Parse.FailFast = true
			opts.Parse.Workers = workers

			report, err := Run(context.Background(), Job{Direction: types.DirectionParse, Inputs: []string{in}}, opts)
			require.NoError(t, err)
			assert.Equal(t, []types.ItemState{types.StateDone, types.StateFailed}, states(report))
		})
	}
}

func TestByItem(t *testing.T) {
	one := newItem("a.enex#1", "a.enex")
	one.owner = "note-1"
	two := newItem("a.enex#2", "a.enex")
	two.owner = "note-2"
	unplanned := newItem("b.enex", "b.enex")

	shared := []types.SharedAttachment{{Hash: "h", Path: "p", Notes: []string{"note-2", "note-1", "other"}}}
	got := byItem(shared, []*item{one, two, unplanned})
	assert.Equal(t, []string{"a.enex#2", "a.enex#1", "other"}, got[0].Notes)
}

func TestRunUnreadableContainer(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.enex")
	noRoot := writeInput(t, dir, "noroot.enex", `<?xml version="1.0"?><notes/>`)

	report, err := Run(context.Background(),
		Job{Direction: types.DirectionParse, Inputs: []string{missing, noRoot}},
		parseOptions(filepath.Join(dir, "out")))
	assert.ErrorIs(t, err, ErrNoneConverted)
	require.Len(t, report.Items, 2)

	assert.Equal(t, types.StateFailed, report.Items[0].State)
	assert.Equal(t, "io", report.Items[0].ErrorKind)
	assert.Equal(t, types.StateFailed, report.Items[1].State)
	assert.Equal(t, "decode", report.Items[1].ErrorKind)
}

func TestRunParseSeveralContainers(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.enex", export(
		noteXML("Same", "20230101T000000Z", "<div>a1</div>"),
		noteXML("Same", "20230101T000000Z", "<div>a2</div>"),
	))
	b := writeInput(t, dir, "b.enex", export(noteXML("Same", "20230101T000000Z", "<div>b</div>")))
	out := filepath.Join(dir, "out")

	opts := parseOptions(out)
	opts.Parse.Workers = 4

	report, err := Run(context.Background(), Job{Direction: types.DirectionParse, Inputs: []string{a, b}}, opts)
	require.NoError(t, err)
	assert.Equal(t, []types.ItemState{types.StateDone, types.StateDone, types.StateDone}, states(report))

	assert.FileExists(t, filepath.Join(out, "a", "Same", "Same.md"))
	assert.FileExists(t, filepath.Join(out, "a", "Same_1", "Same_1.md"))
	assert.FileExists(t, filepath.Join(out, "b", "Same", "Same.md"))
}

func TestRunParseSharedAttachment(t *testing.T) {
	dir := t.TempDir()
	body := `<div><en-media hash="` + tinySHA + `" type="image/png"/></div>`
	in := writeInput(t, dir, "shared.enex", export(
		noteXML("One", "20230101T000000Z", body, mapResource),
		noteXML("Two", "20230101T000000Z", body, mapResource),
	))
	out := filepath.Join(dir, "out")

	var progress bytes.Buffer
	opts := parseOptions(out)
	opts.Progress = &progress

	report, err := Run(context.Background(), Job{Direction: types.DirectionParse, Inputs: []string{in}}, opts)
	require.NoError(t, err)

	first := filepath.Join(out, "One", "attachments", tinySHA+".png")
	second := filepath.Join(out, "Two", "attachments", tinySHA+".png")
	require.Len(t, report.Shared, 1)
	assert.Equal(t, types.SharedAttachment{
		Hash:  tinySHA,
		Path:  first,
		Notes: []string{in + "#1", in + "#2"},
	}, report.Shared[0])

	fi1, err := os.Stat(first)
	require.NoError(t, err)
	fi2, err := os.Stat(second)
	require.NoError(t, err)
	assert.True(t, os.SameFile(fi1, fi2), "second copy is a hard link")

	assert.Contains(t, progress.String(), "Shared attachments: 1 (3 bytes not duplicated)")
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "trip.enex", export(tripNoteXML()))
	doc := writeInput(t, dir, "doc.md", "# Doc\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := Run(ctx, Job{Direction: types.DirectionParse, Inputs: []string{in}}, parseOptions(filepath.Join(dir, "out")))
	assert.ErrorIs(t, err, ErrNoneConverted)
	assert.Equal(t, []types.ItemState{types.StateSkipped}, states(report))

	gen := types.GenerateConfig{Output: filepath.Join(dir, "doc.enex")}
	require.NoError(t, gen.Validate())
	report, err = Run(ctx, Job{Direction: types.DirectionGenerate, Inputs: []string{doc}}, Options{Generate: gen})
	assert.ErrorIs(t, err, ErrNoneConverted)
	assert.Equal(t, []types.ItemState{types.StateSkipped}, states(report))
	assert.NoFileExists(t, gen.Output)
}

func generateOptions(t *testing.T, output string) Options {
	t.Helper()
	cfg := types.GenerateConfig{Output: output}
	require.NoError(t, cfg.Validate())
	return Options{
		Generate: cfg,
		Version:  "test",
		Now:      func() time.Time { return time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC) },
	}
}

func decodeFile(t *testing.T, path string) []enex.Entry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	entries, err := enex.Decode(f, enex.DecodeOptions{})
	require.NoError(t, err)
	return entries
}

func TestRunGenerateMarkdown(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "trip.md", `---
title: Trip Notes
tags: [travel, food]
created: 2024-03-01T09:30:00Z
---
**Hello** world

![map.png](attachments/map.png)
`)
	writeInput(t, dir, "attachments/map.png", "\x01\x02\x03")
	out := filepath.Join(dir, "trip.enex")

	report, err := Run(context.Background(), Job{Direction: types.DirectionGenerate, Inputs: []string{in}}, generateOptions(t, out))
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Equal(t, types.StateDone, report.Items[0].State)
	assert.Equal(t, []string{out}, report.Items[0].Output)

	entries := decodeFile(t, out)
	require.Len(t, entries, 1)
	n := entries[0].Note
	assert.Equal(t, "Trip Notes", n.Title)
	assert.Equal(t, []string{"travel", "food"}, n.Tags)
	assert.True(t, n.Created.Equal(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)))

	require.Len(t, n.Attachments, 1)
	a := n.Attachments[0]
	assert.Equal(t, tinySHA, a.Hash)
	assert.Equal(t, "image/png", a.MIME)
	assert.Equal(t, "map.png", a.Filename)
	assert.Equal(t, []note.Block{
		note.Paragraph{Inlines: []note.Inline{
			note.Bold{Children: []note.Inline{note.Text{Value: "Hello"}}},
			note.Text{Value: " world"},
		}},
		note.AttachmentRef{Hash: tinySHA},
	}, n.Body.Blocks)
}

func TestRunGenerateDefaults(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "plain-note.md", "just text\n")
	modified := time.Date(2022, 5, 6, 7, 8, 9, 0, time.UTC)
	require.NoError(t, os.Chtimes(in, modified, modified))
	out := filepath.Join(dir, "out.enex")

	_, err := Run(context.Background(), Job{Direction: types.DirectionGenerate, Inputs: []string{in}}, generateOptions(t, out))
	require.NoError(t, err)

	n := decodeFile(t, out)[0].Note
	assert.Equal(t, "plain-note", n.Title)
	assert.True(t, n.Created.Equal(modified))
	assert.True(t, n.Updated.Equal(modified))
}

func TestRunGenerateSearchDirs(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "doc.html", `<html><head><title>Pics</title></head><body>`+
		`<p>see</p><img src="photo.png" alt="photo"></body></html>`)
	writeInput(t, dir, "images/photo.png", "\x01\x02\x03")
	out := filepath.Join(dir, "doc.enex")

	report, err := Run(context.Background(), Job{Direction: types.DirectionGenerate, Inputs: []string{in}}, generateOptions(t, out))
	require.NoError(t, err)
	assert.Equal(t, types.StateDone, report.Items[0].State)

	n := decodeFile(t, out)[0].Note
	assert.Equal(t, "Pics", n.Title)
	require.Len(t, n.Attachments, 1)
	assert.Equal(t, "photo.png", n.Attachments[0].Filename)
}

func TestRunGenerateAttachmentsDir(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "notes/doc.md", "---\ntitle: Scan\n---\n![scan](scan.png)\n")
	writeInput(t, dir, "shared/scan.png", "\x01\x02\x03")
	writeInput(t, dir, "shared/unused.bin", "ignored")
	out := filepath.Join(dir, "doc.enex")

	opts := generateOptions(t, out)
	opts.Generate.AttachmentsDir = filepath.Join(dir, "shared")

	report, err := Run(context.Background(), Job{Direction: types.DirectionGenerate, Inputs: []string{in}}, opts)
	require.NoError(t, err)
	assert.Equal(t, types.StateDone, report.Items[0].State)

	n := decodeFile(t, out)[0].Note
	require.Len(t, n.Attachments, 1)
	assert.Equal(t, "scan.png", n.Attachments[0].Filename)
	assert.Equal(t, tinySHA, n.Attachments[0].Hash)
}

func TestRunGenerateSeveralInputs(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a/note.md", "# A\n")
	b := writeInput(t, dir, "b/note.md", "# B\n")
	bad := writeInput(t, dir, "c/notes.txt", "plain")
	out := filepath.Join(dir, "out")

	report, err := Run(context.Background(),
		Job{Direction: types.DirectionGenerate, Inputs: []string{a, b, bad}},
		generateOptions(t, out))
	require.NoError(t, err)
	assert.Equal(t, []types.ItemState{types.StateDone, types.StateDone, types.StateFailed}, states(report))
	assert.Equal(t, types.StateDecoding, report.Items[2].Stage)

	assert.FileExists(t, filepath.Join(out, "note.enex"))
	assert.FileExists(t, filepath.Join(out, "note_1.enex"))
}

func TestRunGenerateTranscodeFailure(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "broken.md", "text\n\n```go\nfmt.Println()\n")
	out := filepath.Join(dir, "broken.enex")

	report, err := Run(context.Background(), Job{Direction: types.DirectionGenerate, Inputs: []string{in}}, generateOptions(t, out))
	assert.ErrorIs(t, err, ErrNoneConverted)
	it := report.Items[0]
	assert.Equal(t, types.StateFailed, it.State)
	assert.Equal(t, types.StateTranscoding, it.Stage)
	assert.Equal(t, "transcode", it.ErrorKind)
	assert.NoFileExists(t, out)
}

func TestRunRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := writeInput(t, dir, "trip.enex", export(tripNoteXML()))
	orig := decodeFile(t, src)[0].Note

	mdDir := filepath.Join(dir, "md")
	_, err := Run(context.Background(), Job{Direction: types.DirectionParse, Inputs: []string{src}}, parseOptions(mdDir))
	require.NoError(t, err)

	out := filepath.Join(dir, "back.enex")
	doc := filepath.Join(mdDir, "Trip-Notes", "Trip-Notes.md")
	_, err = Run(context.Background(), Job{Direction: types.DirectionGenerate, Inputs: []string{doc}}, generateOptions(t, out))
	require.NoError(t, err)

	back := decodeFile(t, out)[0].Note
	assert.Equal(t, orig.Title, back.Title)
	assert.Equal(t, orig.Tags, back.Tags)
	assert.True(t, orig.Created.Equal(back.Created))
	assert.Equal(t, orig.Body, back.Body)
	require.Len(t, back.Attachments, 1)
	assert.Equal(t, orig.Attachments[0].Hash, back.Attachments[0].Hash)
	assert.Equal(t, "map.png", back.Attachments[0].Filename)
}

func TestWriteReport(t *testing.T) {
	report := types.Report{
		Direction: types.DirectionParse,
		Items: []types.ItemReport{
			{ID: "a.enex#1", Input: "a.enex", State: types.StateDone, Output: []string{"out/a/a.md"}},
			{ID: "a.enex#2", Input: "a.enex", State: types.StateFailed, Stage: types.StateDecoding, Error: "bad", ErrorKind: "decode"},
		},
	}
	dir := t.TempDir()

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "report.yaml")
		require.NoError(t, WriteReport(path, report))
		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var got types.Report
		require.NoError(t, yaml.Unmarshal(data, &got))
		assert.Equal(t, report, got)
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "report.json")
		require.NoError(t, WriteReport(path, report))
		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var got types.Report
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, report, got)
		assert.Contains(t, string(data), `"error_kind": "decode"`)
	})

	t.Run("unknown extension", func(t *testing.T) {
		assert.ErrorIs(t, WriteReport(filepath.Join(dir, "report.txt"), report), types.ErrInvalidConfig)
	})
}

func TestRunWritesReport(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "trip.enex", export(tripNoteXML()))
	opts := parseOptions(filepath.Join(dir, "out"))
	opts.Parse.Report = filepath.Join(dir, "run.json")

	_, err := Run(context.Background(), Job{Direction: types.DirectionParse, Inputs: []string{in}}, opts)
	require.NoError(t, err)

	data, err := os.ReadFile(opts.Parse.Report)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state": "done"`)
}
