package fetcher

import (
	"errors"
	"fmt"
)

// TransportError indicates a network level failure: connection refused,
// timeout, TLS failure, or a body that could not be read.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error fetching %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError indicates the origin answered with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.StatusCode, e.URL)
}

// IsTransport reports whether err belongs to the fetcher's transport error
// kind, status errors included.
func IsTransport(err error) bool {
	var te *TransportError
	var se *StatusError
	return errors.As(err, &te) || errors.As(err, &se)
}
