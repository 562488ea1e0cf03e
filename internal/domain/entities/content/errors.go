package content

import (
	"errors"
	"fmt"
)

// ErrNotFound marks a page, path, style or version with no stored data.
var ErrNotFound = errors.New("not found")

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// InvalidPageID is the validation failure for an empty or dotted page id.
func InvalidPageID() error {
	return NewValidationError("pageId", "page id is required and must not contain '.'")
}

// ConflictError is returned when an import would overwrite existing content
// without the force flag.
type ConflictError struct {
	PageID  string
	Entries int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("page %s already has %d content entries; pass force to overwrite", e.PageID, e.Entries)
}

// StoreError wraps a failure of the backing content store. These always
// propagate to the caller.
type StoreError struct {
	Op      string
	Err     error
	details map[string]any
}

// NewStoreError wraps err for op. details may carry driver codes.
func NewStoreError(op string, err error, details map[string]any) *StoreError {
	return &StoreError{Op: op, Err: err, details: details}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("content store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Details returns driver-reported diagnostics such as error codes.
func (e *StoreError) Details() map[string]any { return e.details }
