package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures coming back from the feed provider
type ErrorType string

const (
	ErrorTypeRateLimited      ErrorType = "rate_limited"
	ErrorTypeNotAuthenticated ErrorType = "not_authenticated"
	ErrorTypeProvider         ErrorType = "provider"
	ErrorTypeInvalidInput     ErrorType = "invalid_input"
	ErrorTypeUnknown          ErrorType = "unknown"
)

// Error represents a classified provider or validation error
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// New creates a classified error
func New(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// Newf creates a classified error with a formatted message
func Newf(errorType ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: errorType, Message: fmt.Sprintf(format, args...)}
}

// WithCode creates a classified error carrying an HTTP status code
func WithCode(errorType ErrorType, code int, message string) *Error {
	return &Error{Type: errorType, Message: message, Code: code}
}

// TypeOf returns the classification of err, or ErrorTypeUnknown
// for errors that did not originate from this package.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsRateLimited reports whether err is a provider backpressure signal.
func IsRateLimited(err error) bool {
	return TypeOf(err) == ErrorTypeRateLimited
}

// IsNotAuthenticated reports whether err indicates a missing or expired session.
func IsNotAuthenticated(err error) bool {
	return TypeOf(err) == ErrorTypeNotAuthenticated
}

// IsInvalidInput reports whether err is a synchronous request validation failure.
func IsInvalidInput(err error) bool {
	return TypeOf(err) == ErrorTypeInvalidInput
}

// IsRetryable reports whether an error type is worth retrying at the
// transport layer. Rate limiting is deliberately excluded: it pauses
// the whole job instead of being retried per request.
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeProvider:
		return true
	case ErrorTypeRateLimited, ErrorTypeNotAuthenticated, ErrorTypeInvalidInput:
		return false
	default:
		return false
	}
}

// TypeForStatusCode maps an HTTP status code from the provider to an error type.
func TypeForStatusCode(statusCode int) ErrorType {
	switch {
	case statusCode == 429:
		return ErrorTypeRateLimited
	case statusCode == 401 || statusCode == 403:
		return ErrorTypeNotAuthenticated
	case statusCode == 0 || statusCode >= 500:
		return ErrorTypeProvider
	default:
		return ErrorTypeProvider
	}
}
