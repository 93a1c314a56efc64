// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// maxStem bounds output names in bytes.
const maxStem = 100

// writeAtomic writes data to dest through a temporary file in the same
// directory, so that dest is either absent or complete.
func writeAtomic(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".enexconv-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("moving file to %s: %w", dest, err)
	}
	return nil
}

// linkFile hard-links dest to src, replacing dest if it exists.
func linkFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.Link(src, dest)
}

// sanitize turns a note title into a file name stem. Letters, digits and
// -_. survive; runs of anything else become a single hyphen.
func sanitize(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range title {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	s := strings.Trim(b.String(), "-.")
	if len(s) > maxStem {
		cut := maxStem
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = strings.Trim(s[:cut], "-.")
	}
	if s == "" {
		return "untitled"
	}
	return s
}

// stems hands out distinct file name stems. Names compare case-insensitively
// so that outputs stay distinct on case-folding filesystems.
type stems struct {
	mu    sync.Mutex
	taken map[string]bool
}

func newStems() *stems {
	return &stems{taken: make(map[string]bool)}
}

// claim returns sanitize(title), suffixed with _1, _2, ... when taken.
func (s *stems) claim(title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := sanitize(title)
	stem := base
	for i := 1; s.taken[strings.ToLower(stem)]; i++ {
		stem = base + "_" + strconv.Itoa(i)
	}
	s.taken[strings.ToLower(stem)] = true
	return stem
}

// fileStem is the name of path without directory and extension.
func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
