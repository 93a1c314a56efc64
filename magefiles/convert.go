//go:build mage

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/sh"
)

// Parse converts the Evernote exports under input into Markdown notes in output.
func Parse(input, output string) error {
	ensureBuilt()
	return sh.RunV(binPath, "parse", "--lenient", "-o", output, input)
}

// Generate builds Evernote exports from the Markdown or HTML documents under
// input, one per document, into output.
func Generate(input, output string) error {
	ensureBuilt()
	return sh.RunV(binPath, "generate", "-o", output, input)
}

// RoundTrip parses an export to Markdown and generates it back, leaving both
// stages in a temporary directory for inspection.
func RoundTrip(export string) error {
	ensureBuilt()
	dir, err := os.MkdirTemp("", "enexconv-roundtrip-")
	if err != nil {
		return fmt.Errorf("creating work dir: %w", err)
	}
	notes := filepath.Join(dir, "notes")
	exports := filepath.Join(dir, "exports") + string(filepath.Separator)

	if err := sh.RunV(binPath, "parse", "-o", notes, "--report", filepath.Join(dir, "parse.yaml"), export); err != nil {
		return err
	}
	if err := sh.RunV(binPath, "generate", "-o", exports, "--report", filepath.Join(dir, "generate.yaml"), notes); err != nil {
		return err
	}
	fmt.Println("Round trip written to", dir)
	return nil
}
