// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package attach implements the attachment codec: base64 transport encoding
// of resource payloads, content hashing and verification, and MIME type to
// file extension mapping. Apart from OpenDir every function is pure.
package attach

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdiddy/enexconv/internal/note"
)

// lineWidth is the column at which encoded payloads are wrapped.
const lineWidth = 76

// Hash returns the attachment identifier for data: hex-encoded SHA-256.
func Hash(data []byte) string {
	return note.ContentHash(data)
}

// LegacyHash returns the hex-encoded MD5 of data. Evernote keys
// <en-media hash="..."> references by this digest.
func LegacyHash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Decode base64-decodes encoded, ignoring embedded whitespace, and returns
// the payload with its SHA-256 identifier. A non-empty declared hash is
// verified against the payload: 64 hex digits are compared with SHA-256,
// 32 hex digits with MD5. A mismatch fails with *note.IntegrityError.
func Decode(encoded, declared string) ([]byte, string, error) {
	data, err := base64.StdEncoding.DecodeString(stripSpace(encoded))
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 payload: %w", err)
	}
	hash := Hash(data)
	if err := Verify(data, declared); err != nil {
		return nil, "", err
	}
	return data, hash, nil
}

// Verify checks data against a declared SHA-256 or MD5 hex digest. An empty
// declaration always verifies.
func Verify(data []byte, declared string) error {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared == "" {
		return nil
	}
	var actual string
	switch len(declared) {
	case 32:
		actual = LegacyHash(data)
	default:
		actual = Hash(data)
	}
	if actual != declared {
		return &note.IntegrityError{Declared: declared, Actual: actual}
	}
	return nil
}

// Encode returns data base64-encoded and wrapped for embedding, together
// with its SHA-256 identifier.
func Encode(data []byte) (string, string) {
	raw := base64.StdEncoding.EncodeToString(data)
	var b strings.Builder
	b.Grow(len(raw) + len(raw)/lineWidth + 1)
	for len(raw) > lineWidth {
		b.WriteString(raw[:lineWidth])
		b.WriteByte('\n')
		raw = raw[lineWidth:]
	}
	b.WriteString(raw)
	return b.String(), Hash(data)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
}

// knownExtensions pins the extension for common types so that output names
// do not depend on the host's MIME database.
var knownExtensions = map[string]string{
	"image/png":          ".png",
	"image/jpeg":         ".jpg",
	"image/gif":          ".gif",
	"image/webp":         ".webp",
	"image/svg+xml":      ".svg",
	"image/bmp":          ".bmp",
	"image/tiff":         ".tiff",
	"application/pdf":    ".pdf",
	"application/zip":    ".zip",
	"application/json":   ".json",
	"text/plain":         ".txt",
	"text/html":          ".html",
	"text/markdown":      ".md",
	"audio/mpeg":         ".mp3",
	"audio/wav":          ".wav",
	"video/mp4":          ".mp4",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       ".xlsx",
}

// Extension returns the file extension for a MIME type, ".bin" when none is
// known.
func Extension(mimeType string) string {
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		base = strings.ToLower(strings.TrimSpace(mimeType))
	}
	if ext, ok := knownExtensions[base]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
		sort.Strings(exts)
		return exts[0]
	}
	return ".bin"
}

// DetectMIME guesses the MIME type of a payload from its file name, falling
// back to content sniffing.
func DetectMIME(name string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	for m, e := range knownExtensions {
		if e == ext {
			return m
		}
	}
	if ext == ".jpeg" {
		return "image/jpeg"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		base, _, err := mime.ParseMediaType(t)
		if err == nil {
			return base
		}
	}
	base, _, err := mime.ParseMediaType(http.DetectContentType(data))
	if err != nil {
		return "application/octet-stream"
	}
	return base
}

// FileName returns the name under which a is materialized: <hash><ext>.
func FileName(a *note.Attachment) string {
	return a.Hash + Extension(a.MIME)
}
