// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package attach

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dir indexes the regular, non-hidden files of an attachments directory by
// name. Contents are read by the caller on demand.
type Dir struct {
	path  string
	names map[string]bool
}

// OpenDir lists dir. A missing directory is not an error; the returned Dir
// is empty.
func OpenDir(dir string) (*Dir, error) {
	d := &Dir{path: dir, names: make(map[string]bool)}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return nil, fmt.Errorf("reading attachments directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !entry.Type().IsRegular() {
			continue
		}
		d.names[name] = true
	}
	return d, nil
}

// Lookup returns the path of the file called name, if the directory holds one.
func (d *Dir) Lookup(name string) (string, bool) {
	if !d.names[name] {
		return "", false
	}
	return filepath.Join(d.path, name), true
}

// Len returns the number of indexed files.
func (d *Dir) Len() int {
	return len(d.names)
}
