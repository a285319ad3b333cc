package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is the closed set of failure classes surfaced to every caller of
// the image generation core. Callers map these to user-facing copy.
type ErrorCode string

const (
	ErrQuotaExceeded       ErrorCode = "QUOTA_EXCEEDED"
	ErrRateLimited         ErrorCode = "RATE_LIMITED"
	ErrServiceUnavailable  ErrorCode = "SERVICE_UNAVAILABLE"
	ErrInvalidParameters   ErrorCode = "INVALID_PARAMETERS"
	ErrInsufficientCredits ErrorCode = "INSUFFICIENT_CREDITS"
	ErrUnknown             ErrorCode = "UNKNOWN"
)

// Codes lists every ErrorCode in declaration order.
var Codes = []ErrorCode{
	ErrQuotaExceeded,
	ErrRateLimited,
	ErrServiceUnavailable,
	ErrInvalidParameters,
	ErrInsufficientCredits,
	ErrUnknown,
}

// Valid reports whether c belongs to the closed set.
func (c ErrorCode) Valid() bool {
	for _, known := range Codes {
		if c == known {
			return true
		}
	}
	return false
}

// Retryable reports whether a caller may reasonably retry an error of this class.
// UNKNOWN is never retryable.
func (c ErrorCode) Retryable() bool {
	return c == ErrRateLimited || c == ErrServiceUnavailable
}

// HTTPStatus returns the status code an HTTP surface should use for c.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrInvalidParameters:
		return http.StatusBadRequest
	case ErrInsufficientCredits, ErrQuotaExceeded:
		return http.StatusPaymentRequired
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure: code, offending provider and detail.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := string(e.Code)
	if e.Provider != "" {
		prefix += " " + e.Provider
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", prefix, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates an Error whose status and retry flag follow the code.
// Codes outside the closed set are coerced to UNKNOWN.
func NewError(code ErrorCode, message string) *Error {
	if !code.Valid() {
		code = ErrUnknown
	}
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: code.HTTPStatus(),
		Retryable:  code.Retryable(),
	}
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

// WithRetryable overrides the retry flag.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error, or "" when err carries none.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
