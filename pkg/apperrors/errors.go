package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrInvalidRule = errors.New("invalid validation rule")
	ErrInvalidKind = errors.New("invalid table kind")
	ErrInvalidLink = errors.New("invalid link")
	ErrRunActive   = errors.New("validation run already in progress")
)

// LoadError reports that a stored table could not be read.
// It is surfaced as a warning in the validation report; the table is then
// treated as having zero rows.
type LoadError struct {
	Location string
	Reason   string
	Err      error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load %s: %s: %v", e.Location, e.Reason, e.Err)
	}
	return fmt.Sprintf("load %s: %s", e.Location, e.Reason)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// SetupErrorKind classifies why a table pair could not be validated.
type SetupErrorKind string

const (
	SetupMissingKey    SetupErrorKind = "missing_key"
	SetupDuplicateKey  SetupErrorKind = "duplicate_key"
	SetupMissingTable  SetupErrorKind = "missing_table"
	SetupMissingColumn SetupErrorKind = "missing_column"
)

// SetupError aborts validation of a single table pair. Other pairs continue.
type SetupError struct {
	Pair    string         `json:"pair"`
	Kind    SetupErrorKind `json:"kind"`
	Message string         `json:"message"`
}

func (e *SetupError) Error() string {
	return e.Message
}

// IsLoadError reports whether err carries a *LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}
