package abc

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Load Error Types
// ---------------------------------------------------------------------------

var (
	// ErrTruncated is returned when the buffer ends in the middle of a field.
	ErrTruncated = errors.New("truncated input")

	// ErrFormat is returned for malformed encodings: oversized variable-length
	// integers, unknown kind bytes, bad UTF-8 lengths.
	ErrFormat = errors.New("format error")

	// ErrVerify is returned for well-formed but semantically invalid payloads,
	// such as a class extending a class that was not defined before it.
	ErrVerify = errors.New("verify error")

	// ErrIndex is returned when a structure references a pool entry, method,
	// class or metadata record that does not exist.
	ErrIndex = errors.New("index out of range")
)

// DecodeError records where in the payload decoding failed.
type DecodeError struct {
	Section string // e.g. "constant pool", "method body 3"
	Offset  int    // byte offset of the failing read
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("abc: %s at offset %d: %v", e.Section, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// decodeErr wraps err with section/offset information unless it already
// carries it.
func decodeErr(section string, offset int, err error) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &DecodeError{Section: section, Offset: offset, Err: err}
}
