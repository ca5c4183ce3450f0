package tools

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ValidationError is returned when the arguments of a tool call are invalid.
// Its text is returned to the model as the tool result.
type ValidationError struct {
	Tool    string
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	switch len(e.Fields) {
	case 0:
		return "Invalid arguments for " + e.Tool
	case 1:
		return "Missing required field: " + e.Fields[0] + " is required"
	}
	return "Missing required fields: " + strings.Join(e.Fields, ", ") + " are required"
}

// ValidationMessager is implemented by argument types
// that report missing fields with their own text.
type ValidationMessager interface {
	ValidationMessage() string
}

// IsValidationError returns true when err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
