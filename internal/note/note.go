// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package note holds the canonical in-memory note representation that every
// converter reads and writes: Note, its rich-text Document tree and its
// Attachments. The package performs no I/O.
package note

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// Note is one logical entry of a container document.
type Note struct {
	// ID is a process-scoped identifier used by the attachment dedup index.
	// It is never serialized.
	ID string

	// Title is always present; an untitled note has an empty title.
	Title string

	Created time.Time
	Updated time.Time

	// Tags are unique and kept in first-seen order. Use AddTag.
	Tags []string

	SourceURL string
	Author    string
	Notebook  string

	Body Document

	// Attachments are stored once per content hash, in first reference order.
	// Use AddAttachment.
	Attachments []*Attachment
}

// New creates a note with the given title and an empty body. It fails with
// ErrInvalidTitle when the title contains control characters other than tab.
func New(title string) (*Note, error) {
	if err := ValidateTitle(title); err != nil {
		return nil, err
	}
	return &Note{
		ID:    uuid.NewString(),
		Title: title,
	}, nil
}

// ValidateTitle reports whether title is acceptable as a note title.
func ValidateTitle(title string) error {
	for i, r := range title {
		if r != '\t' && unicode.IsControl(r) {
			return fmt.Errorf("%w: control character %U at byte %d", ErrInvalidTitle, r, i)
		}
	}
	return nil
}

// AddTag appends tag unless it is blank or already present.
func (n *Note) AddTag(tag string) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return
	}
	for _, t := range n.Tags {
		if t == tag {
			return
		}
	}
	n.Tags = append(n.Tags, tag)
}

// AddAttachment stores a unless an attachment with the same content hash is
// already stored, and returns the stored attachment.
func (n *Note) AddAttachment(a *Attachment) *Attachment {
	if existing := n.Attachment(a.Hash); existing != nil {
		return existing
	}
	n.Attachments = append(n.Attachments, a)
	return a
}

// Attachment returns the stored attachment with the given hash, or nil.
func (n *Note) Attachment(hash string) *Attachment {
	for _, a := range n.Attachments {
		if a.Hash == hash {
			return a
		}
	}
	return nil
}

// OrderAttachments reorders the stored attachments to follow the order in
// which the body first references them. Attachments the body never
// references keep their relative order at the end.
func (n *Note) OrderAttachments() {
	hashes := ReferencedHashes(n.Body)
	ordered := make([]*Attachment, 0, len(n.Attachments))
	seen := make(map[string]bool, len(n.Attachments))
	for _, h := range hashes {
		if a := n.Attachment(h); a != nil && !seen[h] {
			ordered = append(ordered, a)
			seen[h] = true
		}
	}
	for _, a := range n.Attachments {
		if !seen[a.Hash] {
			ordered = append(ordered, a)
			seen[a.Hash] = true
		}
	}
	n.Attachments = ordered
}

// Validate checks the note invariants: a valid title, a body within the
// nesting limit and one stored attachment for every referenced hash.
func (n *Note) Validate(maxDepth int) error {
	if err := ValidateTitle(n.Title); err != nil {
		return err
	}
	if err := ValidateDocument(n.Body, maxDepth); err != nil {
		return err
	}
	for _, h := range ReferencedHashes(n.Body) {
		if n.Attachment(h) == nil {
			return fmt.Errorf("%w: %s", ErrMissingAttachment, h)
		}
	}
	return nil
}
