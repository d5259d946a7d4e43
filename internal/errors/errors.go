// Package errors provides the structured error taxonomy for the enhancement
// orchestration engine. Admission-path errors (authentication, replay,
// validation) are returned synchronously to webhook callers; processing-path
// errors are absorbed where a safe fallback exists and surfaced as job
// failures only when none does.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeAuthentication indicates an invalid webhook signature. Rejected, no retry.
	ErrCodeAuthentication ErrorCode = "authentication"
	// ErrCodeReplay indicates a stale or future webhook timestamp. Rejected, no retry.
	ErrCodeReplay ErrorCode = "replay"
	// ErrCodeValidation indicates a payload that fails schema validation. Rejected, no retry.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeTransientProvider indicates a recoverable AI or backend call
	// failure. Retried or handled by fallback, never surfaced to the caller.
	ErrCodeTransientProvider ErrorCode = "transient_provider"
	// ErrCodePermanentAdapter indicates the backend rejected the update for a
	// non-retryable reason. The job is marked failed.
	ErrCodePermanentAdapter ErrorCode = "permanent_adapter"
	// ErrCodeInfrastructure indicates queue/database unavailability. The job
	// is left pending for reprocessing rather than marked failed.
	ErrCodeInfrastructure ErrorCode = "infrastructure"
	// ErrCodeForbidden indicates a tenant/backend mismatch or inactive tenant.
	ErrCodeForbidden ErrorCode = "forbidden"
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeTimeout indicates a deadline elapsed.
	ErrCodeTimeout ErrorCode = "timeout"
)

// AppError represents a structured application error with a code, message,
// and optional cause. It supports errors.Is and errors.As via Unwrap.
type AppError struct {
	// Code categorizes the error type.
	Code ErrorCode
	// Message is a human-readable error message.
	Message string
	// Cause is the underlying error that caused this error (optional).
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors).
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

// Authentication creates a new Authentication error.
func Authentication(message string) *AppError {
	return &AppError{Code: ErrCodeAuthentication, Message: message}
}

// Authenticationf creates a new Authentication error with formatted message.
func Authenticationf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeAuthentication, Message: fmt.Sprintf(format, args...)}
}

// Replay creates a new Replay error.
func Replay(message string) *AppError {
	return &AppError{Code: ErrCodeReplay, Message: message}
}

// Replayf creates a new Replay error with formatted message.
func Replayf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeReplay, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// TransientProvider creates a new TransientProvider error.
func TransientProvider(message string) *AppError {
	return &AppError{Code: ErrCodeTransientProvider, Message: message}
}

// TransientProviderf creates a new TransientProvider error with formatted message.
func TransientProviderf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeTransientProvider, Message: fmt.Sprintf(format, args...)}
}

// PermanentAdapter creates a new PermanentAdapter error.
func PermanentAdapter(message string) *AppError {
	return &AppError{Code: ErrCodePermanentAdapter, Message: message}
}

// PermanentAdapterf creates a new PermanentAdapter error with formatted message.
func PermanentAdapterf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodePermanentAdapter, Message: fmt.Sprintf(format, args...)}
}

// Infrastructure creates a new Infrastructure error.
func Infrastructure(message string) *AppError {
	return &AppError{Code: ErrCodeInfrastructure, Message: message}
}

// Infrastructuref creates a new Infrastructure error with formatted message.
func Infrastructuref(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeInfrastructure, Message: fmt.Sprintf(format, args...)}
}

// Forbidden creates a new Forbidden error.
func Forbidden(message string) *AppError {
	return &AppError{Code: ErrCodeForbidden, Message: message}
}

// Forbiddenf creates a new Forbidden error with formatted message.
func Forbiddenf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeForbidden, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: message}
}

// Timeout creates a new Timeout error.
func Timeout(message string) *AppError {
	return &AppError{Code: ErrCodeTimeout, Message: message}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsAuthentication checks if an error is an Authentication error.
func IsAuthentication(err error) bool {
	return isCode(err, ErrCodeAuthentication)
}

// IsReplay checks if an error is a Replay error.
func IsReplay(err error) bool {
	return isCode(err, ErrCodeReplay)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsTransientProvider checks if an error is a TransientProvider error.
func IsTransientProvider(err error) bool {
	return isCode(err, ErrCodeTransientProvider)
}

// IsPermanentAdapter checks if an error is a PermanentAdapter error.
func IsPermanentAdapter(err error) bool {
	return isCode(err, ErrCodePermanentAdapter)
}

// IsInfrastructure checks if an error is an Infrastructure error.
func IsInfrastructure(err error) bool {
	return isCode(err, ErrCodeInfrastructure)
}

// IsForbidden checks if an error is a Forbidden error.
func IsForbidden(err error) bool {
	return isCode(err, ErrCodeForbidden)
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool {
	return isCode(err, ErrCodeConflict)
}

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool {
	return isCode(err, ErrCodeTimeout)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Retryable reports whether the outbound retry policy may re-attempt after
// this error. Only transient provider/backend failures qualify.
func Retryable(err error) bool {
	return isCode(err, ErrCodeTransientProvider)
}
