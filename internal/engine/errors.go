package engine

import (
	"errors"
	"fmt"
)

// ErrBackendUnavailable indicates the inference worker is not reachable.
var ErrBackendUnavailable = errors.New("inference backend unavailable")

// ErrBackendTimeout indicates the inference worker took too long to respond.
var ErrBackendTimeout = errors.New("inference backend timeout")

// ErrEmptyText indicates a generation call without any text to synthesize.
var ErrEmptyText = errors.New("text to generate is empty")

// BackendError represents an error returned by the inference worker.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Message)
}

// IsBackendError checks if an error is a BackendError.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// CommandError reports a failed inference subprocess with its captured stderr.
type CommandError struct {
	Err    error
	Stderr string
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("inference command failed: %v", e.Err)
	}
	return fmt.Sprintf("inference command failed: %v: %s", e.Err, e.Stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
