package carerecipient

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("care recipient not found")
	// ErrAlreadyExists is returned when a unique column already holds the
	// value. It is an expected outcome when two requests race.
	ErrAlreadyExists = errors.New("care recipient already exists")
)

// FieldError is one rejected input field. Field is empty for errors that
// concern the record as a whole.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationError rejects a record before anything is persisted.
type ValidationError struct {
	Fields []FieldError
	// Err is the gateway failure when the subscription could not be created.
	Err error
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Field == "" {
			parts = append(parts, f.Message)
			continue
		}
		parts = append(parts, f.Field+": "+f.Message)
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) add(field, format string, args ...interface{}) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// DuplicateIdentifierError means another recipient already has the same
// NHS number.
type DuplicateIdentifierError struct {
	ProviderReferenceID string
}

func (e *DuplicateIdentifierError) Error() string {
	return fmt.Sprintf("Care recipient with this NHS number already exists in the database (with provider reference ID %s)",
		e.ProviderReferenceID)
}

// ImportKind classifies a structural import failure.
type ImportKind int

const (
	ImportMissingFile ImportKind = iota + 1
	ImportCorruptFile
	ImportInvalidColumns
	ImportTooManyLines
	ImportUnknownLocation
)

func (k ImportKind) String() string {
	switch k {
	case ImportMissingFile:
		return "missing_file"
	case ImportCorruptFile:
		return "corrupt_file"
	case ImportInvalidColumns:
		return "invalid_columns"
	case ImportTooManyLines:
		return "too_many_lines"
	case ImportUnknownLocation:
		return "unknown_location"
	default:
		return fmt.Sprintf("ImportKind(%d)", int(k))
	}
}

// ImportError aborts a whole import before any row is processed.
type ImportError struct {
	Kind    ImportKind
	Message string
	Err     error
}

func (e *ImportError) Error() string {
	return e.Message
}

func (e *ImportError) Unwrap() error {
	return e.Err
}
