package client

import (
	"errors"
	"fmt"
)

// Kind distinguishes a request that never got a response from one that got a failing response
type Kind int

const (
	// KindNetwork means no response was received (DNS, connect, reset, cancelled context)
	KindNetwork Kind = iota + 1
	// KindHTTP means a response was received with a non-success status
	KindHTTP
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindHTTP:
		return "http"
	default:
		return "unknown"
	}
}

// Error is the only error shape produced by Call. Downstream classification
// works on this value, never on raw response payloads.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	switch e.Kind {
	case KindNetwork:
		if e.Err != nil {
			return fmt.Sprintf("network error: %v", e.Err)
		}
		return "network error"
	default:
		return e.Message
	}
}

// Unwrap returns the underlying transport or decode error
func (e *Error) Unwrap() error {
	return e.Err
}

// errorPayload is the structured error body the backend may send
type errorPayload struct {
	Error   bool   `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

// AsError extracts the *Error from err's chain
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsNetwork reports whether err is a transport-level failure
func IsNetwork(err error) bool {
	apiErr, ok := AsError(err)
	return ok && apiErr.Kind == KindNetwork
}

// StatusOf returns the HTTP status carried by err, or 0
func StatusOf(err error) int {
	if apiErr, ok := AsError(err); ok && apiErr.Kind == KindHTTP {
		return apiErr.Status
	}
	return 0
}

// MessageOf returns the user-facing message carried by err
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	if apiErr, ok := AsError(err); ok {
		return apiErr.Error()
	}
	return err.Error()
}
