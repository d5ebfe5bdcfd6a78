package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrConflict marks a creation call whose resource already exists.
var ErrConflict = errors.New("resource already exists")

// Error is a failed or conflicting remote call.
type Error struct {
	// Code is the remote status code, e.g. 409 or 500. Zero for transport
	// failures that never produced a response.
	Code int `json:"code"`

	// Type is the remote's machine-readable error type, if any.
	Type string `json:"type,omitempty"`

	// Message is the human-readable message returned by the remote.
	Message string `json:"message"`

	// Op is the client operation, e.g. "create_attribute".
	Op string `json:"op,omitempty"`

	// Resource identifies what the call tried to create.
	Resource string `json:"resource,omitempty"`

	// Err is the underlying error, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Resource != "" {
		return fmt.Sprintf("%s %s: %s (code %d)", e.Op, e.Resource, msg, e.Code)
	}
	return fmt.Sprintf("%s: %s (code %d)", e.Op, msg, e.Code)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a non-conflict remote error.
func NewError(op, resource string, code int, message string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Op:       op,
		Resource: resource,
	}
}

// NewConflict creates a conflict error for a resource that already exists.
func NewConflict(op, resource string) *Error {
	return &Error{
		Code:     http.StatusConflict,
		Message:  "already exists",
		Op:       op,
		Resource: resource,
		Err:      ErrConflict,
	}
}

// IsConflict reports whether err means the resource already exists. Both an
// ErrConflict in the chain and a *Error with code 409 count.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) {
		return true
	}
	var e *Error
	return errors.As(err, &e) && e.Code == http.StatusConflict
}

// Outcome is the classification of a creation call.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeConflict Outcome = "conflict"
	OutcomeFailed   Outcome = "failed"
)

// Classify maps a call result to its outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case IsConflict(err):
		return OutcomeConflict
	default:
		return OutcomeFailed
	}
}

// StatusCode extracts the remote status code from err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}
