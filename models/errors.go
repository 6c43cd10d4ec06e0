package models

import (
	"errors"
	"fmt"
)

// Error codes for the client-facing error taxonomy.
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeNotFound         = "NOT_FOUND"
	CodeForbidden        = "FORBIDDEN"
	CodeConflict         = "CONFLICT"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
)

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined error constructors

func NewInvalidInputError(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: message,
	}
}

func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
	}
}

// NewStoreError wraps a transient store failure. The primary operation that
// hit it is reported as failed with no partial state assumed committed.
func NewStoreError(err error) *AppError {
	return &AppError{
		Code:    CodeStoreUnavailable,
		Message: "store operation failed",
		Err:     err,
	}
}

// ErrorCode extracts the taxonomy code from err, or "" if err is not an AppError.
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func IsInvalidInput(err error) bool { return ErrorCode(err) == CodeInvalidInput }
func IsNotFound(err error) bool     { return ErrorCode(err) == CodeNotFound }
func IsForbidden(err error) bool    { return ErrorCode(err) == CodeForbidden }
func IsConflict(err error) bool     { return ErrorCode(err) == CodeConflict }
func IsStoreError(err error) bool   { return ErrorCode(err) == CodeStoreUnavailable }
