package copilot

import (
	"fmt"
)

// ValidationError reports a malformed request body field. The HTTP layer
// maps it to 400 with the field and reason in the message.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

func invalidField(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
