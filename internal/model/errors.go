package model

import (
	"errors"
	"fmt"
)

// ErrUnsupportedRegime is returned for regime names outside the known set
var ErrUnsupportedRegime = errors.New("unsupported tax regime")

// ParseError represents ingestion errors with source context
type ParseError struct {
	Source  Source
	Field   string
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Source, e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Source, e.Field, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NewParseError creates a new parse error
func NewParseError(source Source, field, message string, cause error) *ParseError {
	return &ParseError{
		Source:  source,
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}

// RowError wraps an ingestion error with the 1-based input line
type RowError struct {
	Line  int
	Cause error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("linha %d: %v", e.Line, e.Cause)
}

func (e *RowError) Unwrap() error {
	return e.Cause
}
