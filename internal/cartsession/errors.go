package cartsession

import (
	"context"
	"errors"
	"fmt"
)

// ErrSessionClosed is returned by operations on a closed session
var ErrSessionClosed = errors.New("cart session closed")

// ValidationError reports bad caller input; it is raised before any I/O
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NetworkError reports a failed store read or write (timeout, non-2xx,
// connectivity, open circuit breaker).
type NetworkError struct {
	Op      string
	Message string // human readable message from the store, if any
	Err     error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op + ": network error"
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a line that no longer exists. It is a signal to
// refresh, not a fatal error.
type NotFoundError struct {
	LineID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cart line %s not found", e.LineID)
}

// IsNotFound reports whether err carries a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// classify maps store errors onto the session taxonomy. Typed errors pass
// through; anything else becomes a NetworkError for op.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		nf  *NotFoundError
		ne  *NetworkError
		val *ValidationError
	)
	switch {
	case errors.As(err, &nf), errors.As(err, &ne), errors.As(err, &val):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return &NetworkError{Op: op, Message: "request timed out", Err: err}
	}
	return &NetworkError{Op: op, Err: err}
}
