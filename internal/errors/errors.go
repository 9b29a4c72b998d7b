package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeUnauthenticated indicates a missing or unverifiable bearer token.
	ErrCodeUnauthenticated ErrorCode = "unauthenticated"
	// ErrCodeForbidden indicates the caller's role is too low.
	ErrCodeForbidden ErrorCode = "forbidden"
	// ErrCodeAdminExists indicates the first-admin bootstrap is closed.
	ErrCodeAdminExists ErrorCode = "admin_exists"
	// ErrCodeNotAuthorizedEmail indicates a production bootstrap attempt from
	// an account other than the configured initial admin.
	ErrCodeNotAuthorizedEmail ErrorCode = "not_authorized_email"
	// ErrCodeMisconfigured indicates required server configuration is missing.
	ErrCodeMisconfigured ErrorCode = "misconfigured"
	// ErrCodeUpstreamUnavailable indicates the GraphQL upstream could not be reached.
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError with the given code.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Unauthenticated creates a new Unauthenticated error.
func Unauthenticated(message string) *AppError {
	return New(ErrCodeUnauthenticated, message)
}

// Forbidden creates a new Forbidden error.
func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

// AdminExists creates the error returned once bootstrap is closed.
func AdminExists() *AppError {
	return New(ErrCodeAdminExists, "An admin user already exists. Contact an existing admin for role changes.")
}

// NotAuthorizedEmail creates the error returned for a non-designated bootstrap caller.
func NotAuthorizedEmail() *AppError {
	return New(ErrCodeNotAuthorizedEmail, "This account is not authorized to become the initial admin.")
}

// Misconfigured creates a new Misconfigured error.
func Misconfigured(message string) *AppError {
	return New(ErrCodeMisconfigured, message)
}

// UpstreamUnavailable wraps a transport or upstream failure.
func UpstreamUnavailable(err error, message string) *AppError {
	return &AppError{Code: ErrCodeUpstreamUnavailable, Message: message, Cause: err}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return New(ErrCodeNotFound, message)
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf(format, args...))
}

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return New(ErrCodeValidation, message)
}

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return New(ErrCodeValidation, fmt.Sprintf(format, args...))
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Field:   field,
	}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsUnauthenticated checks if an error is an Unauthenticated error.
func IsUnauthenticated(err error) bool {
	return isCode(err, ErrCodeUnauthenticated)
}

// IsForbidden checks if an error is a Forbidden error.
func IsForbidden(err error) bool {
	return isCode(err, ErrCodeForbidden)
}

// IsAdminExists checks if an error reports a closed bootstrap.
func IsAdminExists(err error) bool {
	return isCode(err, ErrCodeAdminExists)
}

// IsNotAuthorizedEmail checks if an error is a NotAuthorizedEmail error.
func IsNotAuthorizedEmail(err error) bool {
	return isCode(err, ErrCodeNotAuthorizedEmail)
}

// IsMisconfigured checks if an error is a Misconfigured error.
func IsMisconfigured(err error) bool {
	return isCode(err, ErrCodeMisconfigured)
}

// IsUpstreamUnavailable checks if an error is an UpstreamUnavailable error.
func IsUpstreamUnavailable(err error) bool {
	return isCode(err, ErrCodeUpstreamUnavailable)
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool {
	return isCode(err, ErrCodeConflict)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool {
	return isCode(err, ErrCodeInternal)
}

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool {
	return isCode(err, ErrCodeTimeout)
}

// IsCanceled checks if an error is a Canceled error.
func IsCanceled(err error) bool {
	return isCode(err, ErrCodeCanceled)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
