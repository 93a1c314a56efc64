// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package note

import "fmt"

// DefaultMaxDepth bounds list and blockquote nesting.
const DefaultMaxDepth = 8

// ValidateDocument checks that headings are within levels 1-6 and that
// lists and blockquotes nest no deeper than maxDepth (DefaultMaxDepth when
// maxDepth <= 0).
func ValidateDocument(doc Document, maxDepth int) error {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return validateBlocks(doc.Blocks, 0, maxDepth)
}

func validateBlocks(blocks []Block, depth, maxDepth int) error {
	for _, b := range blocks {
		switch b := b.(type) {
		case Heading:
			if b.Level < 1 || b.Level > 6 {
				return fmt.Errorf("%w: %d", ErrHeadingLevel, b.Level)
			}
		case List:
			if depth+1 > maxDepth {
				return fmt.Errorf("%w: depth %d exceeds %d", ErrTooDeep, depth+1, maxDepth)
			}
			for _, it := range b.Items {
				if err := validateBlocks(it.Blocks, depth+1, maxDepth); err != nil {
					return err
				}
			}
		case Blockquote:
			if depth+1 > maxDepth {
				return fmt.Errorf("%w: depth %d exceeds %d", ErrTooDeep, depth+1, maxDepth)
			}
			if err := validateBlocks(b.Blocks, depth+1, maxDepth); err != nil {
				return err
			}
		}
	}
	return nil
}
