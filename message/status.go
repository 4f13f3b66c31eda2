package message

import "github.com/pkg/errors"

// StatusError is a parse or dispatch failure carrying the HTTP status
// code the connection handler should respond with. Grounded on the
// pkg/errors "wrap with a stack, compare the cause" idiom used throughout
// the teacher's error paths; Cause is always a plain sentinel here since
// the stack trace at the Wrap call site is what matters for diagnostics.
type StatusError struct {
	Code    int
	Message string
	cause   error
}

func (e *StatusError) Error() string { return e.Message }

func (e *StatusError) Unwrap() error { return e.cause }

// NewStatusError builds a StatusError with an attached stack trace.
func NewStatusError(code int, message string) error {
	return errors.WithStack(&StatusError{Code: code, Message: message, cause: errors.New(message)})
}

// StatusCodeOf extracts the HTTP status code from err if it (or something
// it wraps) is a *StatusError, defaulting to fallback otherwise.
func StatusCodeOf(err error, fallback int) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return fallback
}
