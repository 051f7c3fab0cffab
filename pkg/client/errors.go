package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrMalformedRequest matches any *MalformedRequestError.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrUnsupportedMethod matches any *UnsupportedMethodError.
	ErrUnsupportedMethod = errors.New("unsupported method")

	// ErrTransport wraps network-level failures (refused, reset, timeout).
	ErrTransport = errors.New("transport failure")
)

// MalformedRequestError is returned when the target URL cannot be built
// from the request coordinates.
type MalformedRequestError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *MalformedRequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed request URL %q: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("malformed request URL %q", e.URL)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *MalformedRequestError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrMalformedRequest.
func (e *MalformedRequestError) Is(target error) bool {
	return target == ErrMalformedRequest
}

// UnsupportedMethodError is returned for a method token outside
// GET, HEAD, OPTIONS, DELETE, POST and PUT.
type UnsupportedMethodError struct {
	Method string
}

// Error implements the error interface.
func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("invalid method %q", e.Method)
}

// Is reports whether target is ErrUnsupportedMethod.
func (e *UnsupportedMethodError) Is(target error) bool {
	return target == ErrUnsupportedMethod
}
