package apperror

import (
	"errors"
	"sort"
	"strings"
)

// Error taxonomy shared by the payment core. Callers wrap these with %w and
// the HTTP layer maps them with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrAuthentication    = errors.New("authentication failed")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrGateway           = errors.New("gateway error")
	ErrPersistence       = errors.New("persistence error")
)

// ValidationError carries field-level messages for a rejected request.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
