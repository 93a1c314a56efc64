// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidConfig is returned by the Validate methods.
var ErrInvalidConfig = errors.New("invalid configuration")

// Format selects the plain-text document format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// ParseFormat accepts "markdown", "md", "html" and "htm", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("%w: unknown format %q (want markdown or html)", ErrInvalidConfig, s)
}

// FormatForPath infers the format from a file extension.
func FormatForPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".mdown":
		return FormatMarkdown, true
	case ".html", ".htm":
		return FormatHTML, true
	}
	return "", false
}

// Extension returns the file extension written for the format.
func (f Format) Extension() string {
	if f == FormatHTML {
		return ".html"
	}
	return ".md"
}

// BatchConfig holds settings shared by both conversion directions.
type BatchConfig struct {
	// Workers is the number of items converted concurrently (default 1).
	Workers int `json:"workers" yaml:"workers"`

	// FailFast marks every item not yet started as skipped after the first
	// failure.
	FailFast bool `json:"fail_fast" yaml:"fail_fast"`

	// MaxDepth bounds list nesting in note bodies (default 8).
	MaxDepth int `json:"max_depth" yaml:"max_depth"`

	// Report is an optional path for a YAML or JSON run report.
	Report string `json:"report,omitempty" yaml:"report,omitempty"`
}

// ParseConfig holds settings for the container to text direction.
type ParseConfig struct {
	BatchConfig `yaml:",inline"`

	// Format selects the output format: markdown or html.
	Format Format `json:"format" yaml:"format"`

	// Lenient records malformed notes as failed items and keeps decoding
	// the rest of their container.
	Lenient bool `json:"lenient" yaml:"lenient"`

	// OutputDir receives one directory per note.
	OutputDir string `json:"output_dir" yaml:"output_dir"`
}

// GenerateConfig holds settings for the text to container direction.
type GenerateConfig struct {
	BatchConfig `yaml:",inline"`

	// Format overrides format detection by file extension when set.
	Format Format `json:"format,omitempty" yaml:"format,omitempty"`

	// AttachmentsDir is searched for referenced attachments. Defaults to the
	// attachments/ directory next to each input.
	AttachmentsDir string `json:"attachments_dir,omitempty" yaml:"attachments_dir,omitempty"`

	// Output is the container path for a single input, or the directory
	// receiving one container per input.
	Output string `json:"output" yaml:"output"`
}

// Validate checks the batch settings and fills in defaults.
func (c *BatchConfig) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", ErrInvalidConfig)
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("%w: max_depth must not be negative", ErrInvalidConfig)
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = 8
	}
	if c.Report != "" {
		if _, err := ReportEncoding(c.Report); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the parse settings and fills in defaults.
func (c *ParseConfig) Validate() error {
	if err := c.BatchConfig.Validate(); err != nil {
		return err
	}
	if c.Format == "" {
		c.Format = FormatMarkdown
	}
	f, err := ParseFormat(string(c.Format))
	if err != nil {
		return err
	}
	c.Format = f
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("%w: output directory is required", ErrInvalidConfig)
	}
	return nil
}

// Validate checks the generate settings and fills in defaults.
func (c *GenerateConfig) Validate() error {
	if err := c.BatchConfig.Validate(); err != nil {
		return err
	}
	if c.Format != "" {
		f, err := ParseFormat(string(c.Format))
		if err != nil {
			return err
		}
		c.Format = f
	}
	if strings.TrimSpace(c.Output) == "" {
		return fmt.Errorf("%w: output path is required", ErrInvalidConfig)
	}
	return nil
}
