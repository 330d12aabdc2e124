package store

import "fmt"

// ValidationError is returned when message content fails validation.
// It is user-correctable and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid message: %s", e.Reason)
}
