package types

import "fmt"

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Request / auth error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrAuthentication ErrorCode = "AUTHENTICATION"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrForbidden      ErrorCode = "FORBIDDEN"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrNotFound       ErrorCode = "NOT_FOUND"
)

// Execution error codes
const (
	ErrScriptValidation    ErrorCode = "SCRIPT_VALIDATION"
	ErrParamValidation     ErrorCode = "PARAM_VALIDATION"
	ErrInterpreterNotFound ErrorCode = "INTERPRETER_NOT_FOUND"
	ErrExecutionTimeout    ErrorCode = "EXECUTION_TIMEOUT"
	ErrExecutionFailed     ErrorCode = "EXECUTION_FAILED"
)

// Infrastructure error codes
const (
	ErrStoreUnavailable   ErrorCode = "STORE_UNAVAILABLE"
	ErrBrokerUnavailable  ErrorCode = "BROKER_UNAVAILABLE"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// CodeOf extracts the ErrorCode from an error, or ErrInternalError for
// errors that are not *Error.
func CodeOf(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ErrInternalError
}

// AsError converts any error into a *Error, wrapping foreign errors as
// internal errors.
func AsError(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return NewError(ErrInternalError, "internal error").WithCause(err)
}
