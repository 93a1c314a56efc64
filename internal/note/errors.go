// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package note

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTitle is returned for titles containing control characters.
	ErrInvalidTitle = errors.New("invalid title")

	// ErrTooDeep is returned when lists nest deeper than the configured maximum.
	ErrTooDeep = errors.New("document nested too deeply")

	// ErrHeadingLevel is returned for headings outside levels 1-6.
	ErrHeadingLevel = errors.New("heading level out of range")

	// ErrMissingAttachment is returned when the body references a hash the
	// note does not store.
	ErrMissingAttachment = errors.New("attachment reference without payload")
)

// DecodeError reports malformed container markup. Index is the 1-based
// position of the offending note element, or 0 for document-level failures
// such as a missing root element.
type DecodeError struct {
	Index int
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Index == 0 {
		return fmt.Sprintf("decode: %v", e.Err)
	}
	return fmt.Sprintf("decode note %d: %v", e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IntegrityError reports a payload whose content hash disagrees with the
// hash declared for it.
type IntegrityError struct {
	Declared string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity: declared hash %s, payload hashes to %s", e.Declared, e.Actual)
}

// TranscodeError reports an unrecoverable structural problem while
// converting between text and a Document. Line is 1-based, 0 when unknown.
type TranscodeError struct {
	Line int
	Err  error
}

func (e *TranscodeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("transcode line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("transcode: %v", e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// Kind classifies err into the error taxonomy used in run reports:
// "decode", "integrity", "transcode", "io" or "other".
func Kind(err error) string {
	var (
		integrity *IntegrityError
		decode    *DecodeError
		transcode *TranscodeError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &integrity):
		return "integrity"
	case errors.As(err, &decode):
		return "decode"
	case errors.As(err, &transcode):
		return "transcode"
	case isIOError(err):
		return "io"
	default:
		return "other"
	}
}
