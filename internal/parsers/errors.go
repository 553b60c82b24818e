// Package parsers converts raw annotation files into canonical records.
// Each parser is total over inputs matching its format tag: a mismatched
// top-level shape fails with a ParseError, while per-record anomalies are
// downgraded to warnings so one bad entry never discards a whole file.
package parsers

import "fmt"

// ErrorKind classifies why a parse failed outright.
type ErrorKind string

const (
	// StructuralError means the top-level shape does not match the format.
	StructuralError ErrorKind = "structural"
	// TypeMismatch means a required field held the wrong JSON type.
	TypeMismatch ErrorKind = "type_mismatch"
	// OutOfRange means a required numeric field held an impossible value.
	OutOfRange ErrorKind = "out_of_range"
)

// ParseError is a fatal, per-file parse failure. Soft issues are returned
// as warnings instead.
type ParseError struct {
	Kind   ErrorKind
	Format string
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s parse failed (%s): %s", e.Format, e.Kind, e.Msg)
}

func structural(format, msg string, args ...any) *ParseError {
	return &ParseError{Kind: StructuralError, Format: format, Msg: fmt.Sprintf(msg, args...)}
}

func warnf(warnings *[]string, msg string, args ...any) {
	*warnings = append(*warnings, fmt.Sprintf(msg, args...))
}
