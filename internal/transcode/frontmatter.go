// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package transcode

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/adrg/frontmatter"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/enexconv/internal/note"
)

// frontMatter is the YAML header written above a Markdown body.
type frontMatter struct {
	Title    string   `yaml:"title"`
	Created  string   `yaml:"created,omitempty"`
	Updated  string   `yaml:"updated,omitempty"`
	Tags     []string `yaml:"tags,omitempty"`
	Author   string   `yaml:"author,omitempty"`
	Source   string   `yaml:"source,omitempty"`
	Notebook string   `yaml:"notebook,omitempty"`
}

func writeFrontMatter(buf *bytes.Buffer, n *note.Note) error {
	fm := frontMatter{
		Title:    n.Title,
		Created:  formatTime(n.Created),
		Updated:  formatTime(n.Updated),
		Tags:     n.Tags,
		Author:   n.Author,
		Source:   n.SourceURL,
		Notebook: n.Notebook,
	}

	buf.WriteString("---\n")
	enc := yaml.NewEncoder(buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return fmt.Errorf("encoding frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding frontmatter: %w", err)
	}
	buf.WriteString("---\n")
	return nil
}

// readFrontMatter splits src into its metadata header and body. Documents
// without a header return an empty map and src unchanged. line is the
// 1-based line of src on which the body starts.
func readFrontMatter(src []byte) (meta map[string]any, body []byte, line int, err error) {
	meta = make(map[string]any)
	body, err = frontmatter.Parse(bytes.NewReader(src), &meta)
	if err != nil {
		return nil, nil, 0, &note.TranscodeError{Line: 1, Err: fmt.Errorf("frontmatter: %w", err)}
	}
	line = 1
	if bytes.HasSuffix(src, body) {
		line += bytes.Count(src[:len(src)-len(body)], []byte("\n"))
	}
	return meta, body, line, nil
}

// applyFrontMatter copies recognized header fields into p. Tags may be a
// list or a comma-separated string.
func applyFrontMatter(p *Parsed, meta map[string]any) {
	if v, ok := meta["title"]; ok {
		p.Title = scalar(v)
		p.HasTitle = true
	}
	p.Created, p.Warnings = timeValue("created", meta["created"], p.Warnings)
	p.Updated, p.Warnings = timeValue("updated", meta["updated"], p.Warnings)
	p.Author = scalar(meta["author"])
	p.SourceURL = scalar(meta["source"])
	if p.SourceURL == "" {
		p.SourceURL = scalar(meta["source_url"])
	}
	p.Notebook = scalar(meta["notebook"])

	switch tags := meta["tags"].(type) {
	case []any:
		for _, t := range tags {
			if s := strings.TrimSpace(scalar(t)); s != "" {
				p.Tags = append(p.Tags, s)
			}
		}
	case string:
		for _, t := range strings.Split(tags, ",") {
			if s := strings.TrimSpace(t); s != "" {
				p.Tags = append(p.Tags, s)
			}
		}
	case nil:
	default:
		p.Warnings = append(p.Warnings, fmt.Sprintf("ignoring tags of type %T", tags))
	}
}

func scalar(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

func timeValue(name string, v any, warnings []string) (time.Time, []string) {
	if t, ok := v.(time.Time); ok {
		return t.UTC(), warnings
	}
	return parseTimeField(name, scalar(v), warnings)
}
