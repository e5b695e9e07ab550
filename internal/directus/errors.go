package directus

import (
	"errors"
	"fmt"
)

// ErrInvalidDSN is returned for malformed or incomplete connection strings.
var ErrInvalidDSN = errors.New("directus: invalid dsn")

// ErrMissingPassword is returned, along with ErrInvalidDSN, for a connection
// string that is complete except for the password. Interactive callers may
// prompt for it.
var ErrMissingPassword = errors.New("user password is required")

// ClientError reports a transport-level failure: the request could not be
// sent, or the response could not be understood.
type ClientError struct {
	Op  string
	Err error
}

func (e *ClientError) Error() string {
	if e.Err == nil {
		return "directus: " + e.Op
	}
	return fmt.Sprintf("directus: %s: %v", e.Op, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// ResponseError reports an API failure returned by the server.
type ResponseError struct {
	// Status is the HTTP status code.
	Status int
	// Code is the Directus error code from the response body.
	Code int
	// Message is the server's error message.
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("directus: %s (status %d, code %d)", e.Message, e.Status, e.Code)
}
