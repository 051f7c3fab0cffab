package client

import (
	"errors"
	"fmt"
	"testing"
)

func TestMalformedRequestError(t *testing.T) {
	inner := errors.New("host is required")
	err := &MalformedRequestError{URL: "https://", Err: inner}

	if got, want := err.Error(), `malformed request URL "https://": host is required`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrMalformedRequest) {
		t.Error("errors.Is(err, ErrMalformedRequest) = false")
	}
	if !errors.Is(err, inner) {
		t.Error("errors.Is(err, inner) = false, Unwrap broken")
	}

	wrapped := fmt.Errorf("invoke: %w", err)
	var target *MalformedRequestError
	if !errors.As(wrapped, &target) || target.URL != "https://" {
		t.Errorf("errors.As() did not recover the request error: %v", target)
	}
}

func TestUnsupportedMethodError(t *testing.T) {
	err := &UnsupportedMethodError{Method: "PATCH"}

	if got, want := err.Error(), `invalid method "PATCH"`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrUnsupportedMethod) {
		t.Error("errors.Is(err, ErrUnsupportedMethod) = false")
	}
	if errors.Is(err, ErrMalformedRequest) {
		t.Error("unsupported method must not match ErrMalformedRequest")
	}
}

func TestTransportErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("%w: %w", ErrTransport, cause)

	if !errors.Is(err, ErrTransport) || !errors.Is(err, cause) {
		t.Errorf("wrapped transport error lost a cause: %v", err)
	}
}
