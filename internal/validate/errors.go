package validate

import (
	"fmt"
	"strings"
)

// Kind classifies a validation error.
type Kind string

// Error kinds.
const (
	KindRequired Kind = "required"
	KindFormat   Kind = "format"
	KindImages   Kind = "images"
)

// Error is a single field-addressable validation failure.
type Error struct {
	Field   string `json:"fieldName"`
	Message string `json:"errorMessage"`
	Kind    Kind   `json:"-"`
}

// Errors is the ordered list of failures for one request.
type Errors []Error

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, err := range e {
		parts = append(parts, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether e contains an error for field of the given kind.
func (e Errors) Has(field string, kind Kind) bool {
	for _, err := range e {
		if err.Field == field && err.Kind == kind {
			return true
		}
	}
	return false
}

func required(field string) *Error {
	return &Error{Field: field, Message: "is required", Kind: KindRequired}
}

func invalid(field, message string) *Error {
	return &Error{Field: field, Message: message, Kind: KindFormat}
}
