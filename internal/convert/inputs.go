// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/pdiddy/enexconv/internal/transcode"
	"github.com/pdiddy/enexconv/pkg/types"
)

// ErrNoInputs is returned by ExpandInputs when nothing matched.
var ErrNoInputs = errors.New("no input matched")

// dirPatterns select the files picked up from a directory argument.
var dirPatterns = map[types.Direction]string{
	types.DirectionParse:    "**/*.enex",
	types.DirectionGenerate: "**/*.{md,markdown,mdown,html,htm}",
}

// ExpandInputs turns command-line arguments into input files. A directory
// contributes every matching file below it, a pattern is expanded with
// doublestar syntax, and anything else is taken literally so that a missing
// file is reported as a failed item. Each argument's matches are sorted;
// duplicates are dropped.
func ExpandInputs(args []string, dir types.Direction) ([]string, error) {
	pattern, ok := dirPatterns[dir]
	if !ok {
		return nil, fmt.Errorf("unknown direction %q", dir)
	}

	var (
		inputs []string
		seen   = make(map[string]bool)
	)
	add := func(paths ...string) {
		for _, p := range paths {
			p = filepath.Clean(p)
			if !seen[p] {
				seen[p] = true
				inputs = append(inputs, p)
			}
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		switch {
		case err == nil && info.IsDir():
			matches, err := doublestar.Glob(os.DirFS(arg), pattern, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("scanning %s: %w", arg, err)
			}
			var paths []string
			for _, m := range matches {
				if dir == types.DirectionGenerate && inAttachmentDir(m) {
					continue
				}
				paths = append(paths, filepath.Join(arg, filepath.FromSlash(m)))
			}
			sort.Strings(paths)
			add(paths...)
		case err != nil && strings.ContainsAny(arg, "*?[{"):
			matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("expanding %s: %w", arg, err)
			}
			sort.Strings(matches)
			add(matches...)
		default:
			add(arg)
		}
	}

	if len(inputs) == 0 {
		return nil, ErrNoInputs
	}
	return inputs, nil
}

// inAttachmentDir reports whether a slash-separated relative path lies in
// an attachments directory written next to a document.
func inAttachmentDir(rel string) bool {
	parts := strings.Split(rel, "/")
	for _, p := range parts[:len(parts)-1] {
		if p == transcode.DefaultAttachmentDir {
			return true
		}
	}
	return false
}
