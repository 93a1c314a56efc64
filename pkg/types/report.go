// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Direction names a conversion direction.
type Direction string

const (
	DirectionParse    Direction = "parse"
	DirectionGenerate Direction = "generate"
)

// ItemState is the lifecycle state of one batch item.
type ItemState string

const (
	StatePending     ItemState = "pending"
	StateDecoding    ItemState = "decoding"
	StateTranscoding ItemState = "transcoding"
	StateEncoding    ItemState = "encoding"
	StateDone        ItemState = "done"
	StateFailed      ItemState = "failed"
	StateSkipped     ItemState = "skipped"
)

// ItemReport records the outcome of one batch item.
type ItemReport struct {
	// ID identifies the item: the input path, or <input>#<n> for the n-th
	// note of a container.
	ID    string `json:"id" yaml:"id"`
	Input string `json:"input" yaml:"input"`

	// Title is the note title when known.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	State ItemState `json:"state" yaml:"state"`

	// Stage is the state the item was in when it failed.
	Stage ItemState `json:"stage,omitempty" yaml:"stage,omitempty"`

	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`

	// Output lists the files written for the item.
	Output []string `json:"output,omitempty" yaml:"output,omitempty"`

	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// SharedAttachment is an attachment payload referenced by more than one note
// in a run.
type SharedAttachment struct {
	Hash  string   `json:"hash" yaml:"hash"`
	Path  string   `json:"path" yaml:"path"`
	Notes []string `json:"notes" yaml:"notes"`
}

// Report is the result of one batch run. Items keep input order.
type Report struct {
	Direction Direction          `json:"direction" yaml:"direction"`
	Items     []ItemReport       `json:"items" yaml:"items"`
	Shared    []SharedAttachment `json:"shared,omitempty" yaml:"shared,omitempty"`
}

// Count returns the number of items in the given state.
func (r Report) Count(state ItemState) int {
	n := 0
	for _, it := range r.Items {
		if it.State == state {
			n++
		}
	}
	return n
}

// ReportEncoding returns "yaml" or "json" for a report path by its extension.
func ReportEncoding(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml", nil
	case ".json":
		return "json", nil
	}
	return "", fmt.Errorf("%w: report %s must end in .yaml, .yml or .json", ErrInvalidConfig, path)
}
