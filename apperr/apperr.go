package apperr

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnauthenticated   Code = "UNAUTHENTICATED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotBacker         Code = "NOT_BACKER" // Caller has no contribution to the project
	CodeNotFound          Code = "NOT_FOUND"
	CodeProjectNotFound   Code = "PROJECT_NOT_FOUND"
	CodeMilestoneNotFound Code = "MILESTONE_NOT_FOUND"
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeInvalidAmount     Code = "INVALID_AMOUNT"
	CodeInvalidState      Code = "INVALID_STATE"
	CodeDuplicateVote     Code = "DUPLICATE_VOTE"
	CodeUpstreamFailure   Code = "UPSTREAM_FAILURE"
	CodeInternal          Code = "INTERNAL"
)

// Category groups codes into the caller-visible failure classes.
type Category string

const (
	CategoryUnauthenticated Category = "Unauthenticated"
	CategoryForbidden       Category = "Forbidden"
	CategoryNotFound        Category = "NotFound"
	CategoryValidation      Category = "ValidationError"
	CategoryInvalidState    Category = "InvalidState"
	CategoryDuplicateVote   Category = "DuplicateVote"
	CategoryUpstreamFailure Category = "UpstreamFailure"
	CategoryInternal        Category = "Internal"
)

// Category returns the failure class of the code.
func (c Code) Category() Category {
	switch c {
	case CodeUnauthenticated:
		return CategoryUnauthenticated
	case CodeForbidden, CodeNotBacker:
		return CategoryForbidden
	case CodeNotFound, CodeProjectNotFound, CodeMilestoneNotFound:
		return CategoryNotFound
	case CodeValidation, CodeInvalidAmount:
		return CategoryValidation
	case CodeInvalidState:
		return CategoryInvalidState
	case CodeDuplicateVote:
		return CategoryDuplicateVote
	case CodeUpstreamFailure:
		return CategoryUpstreamFailure
	default:
		return CategoryInternal
	}
}

// Error is the domain error type.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Caller-facing message
	Cause   error  // Wrapped underlying error, never shown to callers
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Internal wraps an unexpected failure. The message shown to callers is
// generic; the cause is kept for logs.
func Internal(cause error) *Error {
	return &Error{Code: CodeInternal, Message: "internal error", Cause: cause}
}

// CodeOf extracts the code from err. Errors that are not domain errors are
// reported as CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// CategoryOf is shorthand for CodeOf(err).Category().
func CategoryOf(err error) Category {
	return CodeOf(err).Category()
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, c Category) bool {
	return err != nil && CategoryOf(err) == c
}

// PublicMessage returns the message safe to show to a caller.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != CodeInternal {
		return e.Message
	}
	return "internal error"
}

// Retryable reports whether a failed operation may succeed if repeated
// unchanged. Only internal and upstream failures qualify.
func Retryable(err error) bool {
	switch CategoryOf(err) {
	case CategoryInternal, CategoryUpstreamFailure:
		return true
	}
	return false
}
