// Package domainerrors defines the coded error type returned by services.
// Stores return sentinel errors (pkg/platform/sentinel); services translate
// them into coded errors here so transport layers can map codes to HTTP
// statuses without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error.
type Code string

const (
	// CodeValidation marks malformed input rejected before any state change.
	CodeValidation Code = "validation"

	// CodeBadRequest marks a structurally valid request that cannot be
	// honored (unknown enum value, out-of-range priority).
	CodeBadRequest Code = "bad_request"

	// CodeInvalidTransition marks an operation attempted from a state that
	// does not permit it. Duplicate submissions surface as this code.
	CodeInvalidTransition Code = "invalid_transition"

	// CodeForbidden marks an actor lacking the required role or department
	// scope.
	CodeForbidden Code = "forbidden"

	// CodeUnauthorized marks a request with no resolved actor at all.
	CodeUnauthorized Code = "unauthorized"

	// CodeNotFound marks a missing entity.
	CodeNotFound Code = "not_found"

	// CodeConflict marks an invariant collision, e.g. a non-terminal routing
	// record already existing for a letter.
	CodeConflict Code = "conflict"

	// CodeInternal marks store and infrastructure failures.
	CodeInternal Code = "internal"
)

// Error is a coded domain error. It wraps an optional cause so errors.Is and
// errors.As keep working through the translation boundary.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap builds a coded error around an underlying cause.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or CodeInternal when err is not a
// coded error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to its HTTP status for the transport layer.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidTransition, CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
