package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable matches any UnreachableError.
	ErrUnreachable = errors.New("backend unreachable")
	// ErrMalformedResponse marks a response that failed the shape check.
	ErrMalformedResponse = errors.New("malformed backend response")
)

const fallbackScheduleMessage = "Failed to schedule"

// UnreachableError is a connectivity failure. Its message tells the user how to
// check whether the backend is running.
type UnreachableError struct {
	BaseURL string
	Err     error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("Cannot reach the backend. Is it running? Open %s/health in your browser to check.", e.BaseURL)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

func (e *UnreachableError) Is(target error) bool {
	return target == ErrUnreachable
}

// APIError is a non-2xx answer. Message is the backend's own error text when it
// sent one.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}
