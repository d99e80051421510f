// Package errors provides custom error types for the application.
// It defines domain-specific errors with stable error codes for API responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application error codes
type ErrorCode string

// Error codes for different error categories
const (
	// General errors (1xxx)
	ErrCodeInternal     ErrorCode = "E1000"
	ErrCodeValidation   ErrorCode = "E1001"
	ErrCodeNotFound     ErrorCode = "E1002"
	ErrCodeConflict     ErrorCode = "E1003"
	ErrCodeForbidden    ErrorCode = "E1004"
	ErrCodeUnauthorized ErrorCode = "E1005"
	ErrCodeRateLimited  ErrorCode = "E1006"
	ErrCodeTimeout      ErrorCode = "E1007"

	// Git platform errors (2xxx)
	ErrCodeGitAPI      ErrorCode = "E2001"
	ErrCodeGitAuth     ErrorCode = "E2002"
	ErrCodeGitNotFound ErrorCode = "E2003"
	ErrCodeGitDiff     ErrorCode = "E2004"

	// AI errors (3xxx)
	ErrCodeAIUnavailable ErrorCode = "E3001"
	ErrCodeAITimeout     ErrorCode = "E3002"
	ErrCodeAITransient   ErrorCode = "E3003"
	ErrCodeAIIntegrity   ErrorCode = "E3004"

	// Review errors (4xxx)
	ErrCodeReviewFailed    ErrorCode = "E4001"
	ErrCodeDuplicateEvent  ErrorCode = "E4002"
	ErrCodeStrategyFailure ErrorCode = "E4003"

	// Store errors (5xxx)
	ErrCodeDBConnection ErrorCode = "E5001"
	ErrCodeDBQuery      ErrorCode = "E5002"
	ErrCodeDBMigration  ErrorCode = "E5003"

	// Configuration errors (6xxx)
	ErrCodeConfigNotFound ErrorCode = "E6001"
	ErrCodeConfigInvalid  ErrorCode = "E6002"
	ErrCodeConfigParse    ErrorCode = "E6003"
)

// Exit codes for application startup failures
const (
	// ExitCodeConfigValidation indicates configuration validation failure
	ExitCodeConfigValidation = 2
)

// AppError represents an application-level error with code and context
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
	Details any       `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code for the error
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeNotFound, ErrCodeGitNotFound:
		return http.StatusNotFound
	case ErrCodeValidation, ErrCodeGitDiff:
		return http.StatusBadRequest
	case ErrCodeUnauthorized, ErrCodeGitAuth:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeConflict, ErrCodeDuplicateEvent:
		return http.StatusConflict
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeAIUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeTimeout, ErrCodeAITimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with AppError
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// Common error constructors for convenience

// ErrInternal creates an internal server error
func ErrInternal(message string, err error) *AppError {
	return Wrap(ErrCodeInternal, message, err)
}

// ErrValidation creates a validation error
func ErrValidation(message string) *AppError {
	return New(ErrCodeValidation, message)
}

// ErrNotFound creates a not found error
func ErrNotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

// ErrUnauthorized creates an unauthorized error
func ErrUnauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

// ErrRateLimited creates a rate-limited error
func ErrRateLimited(message string) *AppError {
	return New(ErrCodeRateLimited, message)
}

// ErrServiceUnavailable creates a breaker-open error for a downstream service
func ErrServiceUnavailable(service string) *AppError {
	return New(ErrCodeAIUnavailable, fmt.Sprintf("%s is unavailable (circuit open)", service))
}

// ErrTimeout creates a timeout error
func ErrTimeout(operation string) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out", operation))
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError attempts to convert an error to AppError
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// CodeOf returns the error code for an error, defaulting to ErrCodeInternal
func CodeOf(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
