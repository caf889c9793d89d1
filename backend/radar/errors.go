package radar

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the radar core.
type ErrorKind string

const (
	// KindInvalidArgument marks malformed coordinates, radii or parameters.
	KindInvalidArgument ErrorKind = "INVALID_ARGUMENT"

	// KindNotFound marks a lookup of a record that does not exist.
	KindNotFound ErrorKind = "NOT_FOUND"

	// KindTransient marks a datastore or channel failure the caller may retry.
	KindTransient ErrorKind = "TRANSIENT_IO"
)

// Error is the error type returned by the radar core and its storage backends.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// InvalidArgument creates an INVALID_ARGUMENT error.
func InvalidArgument(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a NOT_FOUND error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Transient wraps err as a TRANSIENT_IO error.
func Transient(message string, err error) *Error {
	return &Error{Kind: KindTransient, Message: message, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain, or "" when there is none.
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
