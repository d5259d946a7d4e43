// Package errors provides error classification helpers for metric tagging.
package errors

import (
	goerrors "errors"

	apperrors "github.com/ticketwise/enhancer/internal/errors"
)

// Classify returns a normalized error class name suitable for tagging
// metrics and logs. Application errors classify by taxonomy code; anything
// else is unknown.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	var appErr *apperrors.AppError
	if goerrors.As(err, &appErr) {
		return string(appErr.Code)
	}
	return "unknown"
}
