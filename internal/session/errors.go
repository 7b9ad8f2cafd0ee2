package session

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	// ErrInvalidCredentials means the array rejected the username or password.
	// It is never retried.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrSessionExpired marks a response carrying a session-invalid status.
	// It drives the single re-authentication and is only surfaced through
	// observer events.
	ErrSessionExpired = errors.New("session expired or in use")

	// ErrNoDevice is returned by operations that need a resolved device
	// identity before Login has found one.
	ErrNoDevice = errors.New("storage device not resolved")

	// ErrNotLoggedIn is returned when the transport handle is gone.
	ErrNotLoggedIn = errors.New("no active session")
)

// UnreachableError is returned by a Transport when the request never got an
// HTTP status back (DNS, connect, TLS, timeout).
type UnreachableError struct {
	Method string
	URL    string
	Err    error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("backend unreachable: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// HardFaultError is returned when the array answers 503. It is not retried.
type HardFaultError struct {
	StatusCode int
	Body       string
}

func (e *HardFaultError) Error() string {
	return fmt.Sprintf("invalid results from backend (status %d): %s", e.StatusCode, e.Body)
}

// BackendError wraps an unexpected reply from the array.
type BackendError struct {
	Op         string // "login", "token", "discovery"
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("storage backend %s error (status %d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("storage backend %s error: %s", e.Op, e.Message)
}

// LogoutError wraps any failure raised while tearing a session down.
type LogoutError struct {
	Err error
}

func (e *LogoutError) Error() string {
	return fmt.Sprintf("failed to logout from restful: %v", e.Err)
}

func (e *LogoutError) Unwrap() error {
	return e.Err
}

// IsUnreachable reports whether err came from a transport-level failure.
func IsUnreachable(err error) bool {
	var ue *UnreachableError
	return errors.As(err, &ue)
}

// IsHardFault reports whether err is a 503 from the array.
func IsHardFault(err error) bool {
	var hf *HardFaultError
	return errors.As(err, &hf)
}
