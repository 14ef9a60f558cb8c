package logline

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedLine is matched by every *ParseError.
	ErrMalformedLine = errors.New("logline: malformed line")

	// ErrUnencodable is returned by Encode for events that would not decode
	// back to the same value.
	ErrUnencodable = errors.New("logline: event cannot be encoded")

	// ErrUnknownFieldOrder is returned by ParseFieldOrder.
	ErrUnknownFieldOrder = errors.New("logline: unknown access field order")
)

// ParseError describes why a line could not be decoded.
type ParseError struct {
	Line   string
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("logline: malformed line: %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrMalformedLine.
func (e *ParseError) Unwrap() error {
	return ErrMalformedLine
}

func parseErr(line, field, reason string) *ParseError {
	return &ParseError{Line: line, Field: field, Reason: reason}
}
