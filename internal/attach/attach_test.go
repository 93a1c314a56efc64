// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package attach

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/enexconv/internal/note"
)

const (
	tinySHA = "039058c6f2c0cb492c533b0a4d14ef77cc0f78abccced5287d84a1a2011cfb81"
	tinyMD5 = "5289df737df57326fcdd22597afb1fac"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		encoded   string
		declared  string
		integrity bool
		errMsg    string
	}{
		{name: "no declared hash", encoded: "AQID"},
		{name: "wrapped payload", encoded: "\n  AQ\r\nID\n"},
		{name: "declared sha256", encoded: "AQID", declared: tinySHA},
		{name: "declared sha256 upper case", encoded: "AQID", declared: strings.ToUpper(tinySHA)},
		{name: "declared md5", encoded: "AQID", declared: tinyMD5},
		{name: "sha256 mismatch", encoded: "AQID", declared: strings.Repeat("0", 64), integrity: true},
		{name: "md5 mismatch", encoded: "AQID", declared: strings.Repeat("f", 32), integrity: true},
		{name: "invalid base64", encoded: "A!ID", errMsg: "invalid base64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, hash, err := Decode(tt.encoded, tt.declared)
			switch {
			case tt.integrity:
				var ie *note.IntegrityError
				require.True(t, errors.As(err, &ie), "got %v", err)
				assert.Equal(t, "integrity", note.Kind(err))
			case tt.errMsg != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			default:
				require.NoError(t, err)
				assert.Equal(t, []byte{1, 2, 3}, data)
				assert.Equal(t, tinySHA, hash)
			}
		})
	}
}

func TestHashes(t *testing.T) {
	assert.Equal(t, tinySHA, Hash([]byte{1, 2, 3}))
	assert.Equal(t, tinyMD5, LegacyHash([]byte{1, 2, 3}))
	assert.NoError(t, Verify([]byte{1, 2, 3}, ""))
}

func TestEncodeWrapsAndRoundTrips(t *testing.T) {
	payload := bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 50)

	encoded, hash := Encode(payload)
	assert.Equal(t, Hash(payload), hash)

	lines := strings.Split(encoded, "\n")
	require.Greater(t, len(lines), 1)
	for _, l := range lines[:len(lines)-1] {
		assert.Len(t, l, lineWidth)
	}
	assert.LessOrEqual(t, len(lines[len(lines)-1]), lineWidth)

	data, got, err := Decode(encoded, hash)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, hash, got)
}

func TestEncodeShortPayload(t *testing.T) {
	encoded, hash := Encode([]byte{1, 2, 3})
	assert.Equal(t, "AQID", encoded)
	assert.Equal(t, tinySHA, hash)

	encoded, _ = Encode(nil)
	assert.Equal(t, "", encoded)
}

func TestExtension(t *testing.T) {
	tests := []struct {
		mime string
		want string
	}{
		{"image/png", ".png"},
		{"image/jpeg", ".jpg"},
		{"IMAGE/JPEG", ".jpg"},
		{"text/plain; charset=utf-8", ".txt"},
		{"application/pdf", ".pdf"},
		{"application/x-enexconv-unknown", ".bin"},
		{"", ".bin"},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			assert.Equal(t, tt.want, Extension(tt.mime))
		})
	}
}

func TestDetectMIME(t *testing.T) {
	tests := []struct {
		name string
		file string
		data []byte
		want string
	}{
		{name: "known extension", file: "photo.PNG", want: "image/png"},
		{name: "jpeg spelling", file: "photo.jpeg", want: "image/jpeg"},
		{name: "pdf", file: "paper.pdf", want: "application/pdf"},
		{name: "sniffed", file: "noext", data: []byte("%PDF-1.7\n"), want: "application/pdf"},
		{name: "binary fallback", file: "blob", data: []byte{0, 1, 2, 3}, want: "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMIME(tt.file, tt.data))
		})
	}
}

func TestFileName(t *testing.T) {
	a, err := note.NewAttachment([]byte{1, 2, 3}, "image/png", "map.png", "")
	require.NoError(t, err)
	assert.Equal(t, tinySHA+".png", FileName(a))
}

func TestOpenDir(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		found []string
		gone  []string
	}{
		{
			name: "indexes regular files",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "map.png", "png")
				writeFile(t, dir, "notes.txt", "txt")
				return dir
			},
			found: []string{"map.png", "notes.txt"},
			gone:  []string{"other.png"},
		},
		{
			name: "empty for nonexistent directory",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			gone: []string{"map.png"},
		},
		{
			name: "skips dotfiles and subdirectories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, ".DS_Store", "junk")
				writeFile(t, dir, "keep.pdf", "pdf")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
				return dir
			},
			found: []string{"keep.pdf"},
			gone:  []string{".DS_Store", "nested"},
		},
		{
			name: "keeps empty files",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, "empty.bin", "")
				return dir
			},
			found: []string{"empty.bin"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := tt.setup(t)
			d, err := OpenDir(dir)
			require.NoError(t, err)
			assert.Equal(t, len(tt.found), d.Len())
			for _, name := range tt.found {
				path, ok := d.Lookup(name)
				assert.True(t, ok, name)
				assert.Equal(t, filepath.Join(dir, name), path)
			}
			for _, name := range tt.gone {
				_, ok := d.Lookup(name)
				assert.False(t, ok, name)
			}
		})
	}
}

func TestOpenDirNotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := OpenDir(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading attachments directory")
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
