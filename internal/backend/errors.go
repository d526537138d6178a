package backend

import (
	"errors"
	"fmt"
)

// ErrMalformed marks a 2xx response whose body could not be parsed into the
// expected shape.
var ErrMalformed = errors.New("malformed backend response")

// StatusError is a non-2xx backend response, with the detail message when
// the backend supplied one.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend rejected request (status %d): %s", e.Code, e.Detail)
	}
	return fmt.Sprintf("backend rejected request (status %d)", e.Code)
}

// IsServerRejected reports whether err wraps a non-2xx backend response.
func IsServerRejected(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr)
}
