package core

import (
	"errors"
	"fmt"

	"github.com/JonMunkholm/promptfactory/internal/store"
)

// ErrNoValidRecords is returned when a dataset holds no decodable record.
var ErrNoValidRecords = errors.New("no valid JSON records in dataset")

// ErrEmptyTemplate is returned when a run is started without a prompt template.
var ErrEmptyTemplate = errors.New("prompt template is empty")

// Lookup failures. Both also match store.ErrNotFound.
var (
	ErrProjectNotFound  = fmt.Errorf("project %w", store.ErrNotFound)
	ErrTemplateNotFound = fmt.Errorf("template %w", store.ErrNotFound)
)

// DecodeError reports a dataset line that is not a JSON object.
type DecodeError struct {
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("line %d: invalid JSON: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ValidationError rejects caller input before anything is stored or run.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func requiredField(field string) error {
	return &ValidationError{Field: field, Message: field + " is required"}
}
