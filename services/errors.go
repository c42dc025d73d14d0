package services

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable reason code returned with every rejected command.
type ErrorCode string

const (
	// CodeConditionalCheckFailed signals expected contention on a
	// conditional write. Callers treat it as partial success, never a fault.
	CodeConditionalCheckFailed ErrorCode = "conditional_check_failed"
	CodeAlreadyCalled          ErrorCode = "already_called"
	CodeInvalidTransition      ErrorCode = "invalid_transition"
	CodeInvalidArgument        ErrorCode = "invalid_argument"
	CodeInsufficientInventory  ErrorCode = "insufficient_inventory"
	CodePaymentNotAuthorized   ErrorCode = "payment_not_authorized"
	CodePaymentTimeout         ErrorCode = "payment_timeout"
	CodeIntegrityViolation     ErrorCode = "integrity_violation"
	CodeStorageUnavailable     ErrorCode = "storage_unavailable"
	CodeNotFound               ErrorCode = "not_found"
)

// Error carries a stable code and a human-readable message across the
// engine boundary. Internal storage error text never leaks: the cause is
// wrapped for logs and unwrapping, not for display.
type Error struct {
	Code    ErrorCode
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

// NewError builds a typed engine error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf builds a typed engine error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a cause to a typed engine error.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// CodeOf extracts the reason code from err, or empty when err is not an
// engine error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given reason code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// storageErr wraps an infrastructure fault as a retryable engine error.
func storageErr(op string, cause error) *Error {
	return WrapError(CodeStorageUnavailable, op+" failed", cause)
}

// ErrSubscriberGone marks a delivery failure whose cause is a departed
// endpoint; the hub unregisters the subscriber on sight of it.
var ErrSubscriberGone = errors.New("subscriber gone")
