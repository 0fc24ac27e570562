// Package errors defines the error taxonomy of the analytics engine and the
// HTTP error responses of the transport layer.
//
// The engine distinguishes four failure classes: insufficient data (recovered
// locally via fallback or component omission), a missing upstream computed
// dependency (fatal for that call), malformed raw input (the offending
// component is dropped), and store I/O failures (propagated unchanged).
package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies an application error
type ErrorType string

const (
	ErrTypeInsufficientData  ErrorType = "INSUFFICIENT_DATA"
	ErrTypeDependencyMissing ErrorType = "DEPENDENCY_MISSING"
	ErrTypeMalformedInput    ErrorType = "MALFORMED_INPUT"
	ErrTypeStorage           ErrorType = "STORAGE"
	ErrTypeValidation        ErrorType = "VALIDATION"
	ErrTypeNotFound          ErrorType = "NOT_FOUND"
	ErrTypeConfig            ErrorType = "CONFIG"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewInsufficientData signals that a statistic had fewer observations than
// required. Engines recover from this locally; it never crosses the engine
// boundary on its own.
func NewInsufficientData(message string) *AppError {
	return NewAppError(ErrTypeInsufficientData, message, nil)
}

// NewDependencyMissing signals that a required upstream computed result does
// not exist for the target date. Fatal for the specific call.
func NewDependencyMissing(message string) *AppError {
	return NewAppError(ErrTypeDependencyMissing, message, nil)
}

// NewMalformedInput signals a non-numeric or out-of-range raw value.
func NewMalformedInput(message string, cause error) *AppError {
	return NewAppError(ErrTypeMalformedInput, message, cause)
}

// NewStorageError wraps a persistence failure. Not retried inside the
// engine; retry policy belongs to the batch orchestrator.
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *AppError {
	return NewAppError(ErrTypeValidation, message, cause)
}

// NewNotFoundError creates a not-found error
func NewNotFoundError(message string) *AppError {
	return NewAppError(ErrTypeNotFound, message, nil)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// IsType reports whether err is (or wraps) an AppError of the given type
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

// IsInsufficientData reports whether err is an insufficient-data error
func IsInsufficientData(err error) bool {
	return IsType(err, ErrTypeInsufficientData)
}

// IsDependencyMissing reports whether err is a dependency-missing error
func IsDependencyMissing(err error) bool {
	return IsType(err, ErrTypeDependencyMissing)
}

// IsMalformedInput reports whether err is a malformed-input error
func IsMalformedInput(err error) bool {
	return IsType(err, ErrTypeMalformedInput)
}

// IsStorage reports whether err is a storage error
func IsStorage(err error) bool {
	return IsType(err, ErrTypeStorage)
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return IsType(err, ErrTypeNotFound)
}
