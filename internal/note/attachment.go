// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package note

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Attachment is a binary resource referenced from a note body. Hash is the
// hex-encoded SHA-256 of Data and identifies the attachment.
type Attachment struct {
	Hash     string
	MIME     string
	Filename string
	Data     []byte

	// Width and Height are image dimensions when the source declared them.
	Width  int
	Height int

	// SourceURL is the resource's origin when the source declared one.
	SourceURL string

	// Recognition is opaque recognition metadata carried through verbatim.
	Recognition string
}

// ContentHash returns the hex-encoded SHA-256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NewAttachment copies data into a new attachment. When declared is not
// empty it must equal the SHA-256 of data, otherwise NewAttachment fails
// with *IntegrityError.
func NewAttachment(data []byte, mime, filename, declared string) (*Attachment, error) {
	actual := ContentHash(data)
	if declared != "" && !strings.EqualFold(declared, actual) {
		return nil, &IntegrityError{Declared: declared, Actual: actual}
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	payload := make([]byte, len(data))
	copy(payload, data)
	return &Attachment{
		Hash:     actual,
		MIME:     mime,
		Filename: filename,
		Data:     payload,
	}, nil
}

// IsImage reports whether the attachment has an image MIME type.
func (a *Attachment) IsImage() bool {
	return strings.HasPrefix(a.MIME, "image/")
}

// Label is the human-facing name of the attachment: its filename, or its
// hash when it has none.
func (a *Attachment) Label() string {
	if a.Filename != "" {
		return a.Filename
	}
	return a.Hash
}
