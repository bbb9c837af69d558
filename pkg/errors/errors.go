// Package errors provides a unified error handling mechanism for openrmt.
// It defines a structured error system with error codes, types, and helpful
// formatting capabilities to standardize error handling across the toolkit.
package errors

import (
	"encoding/json"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation indicates invalid input or parameters
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeData indicates a dataset or batch shape problem
	ErrorTypeData ErrorType = "DATA"

	// ErrorTypeTraining indicates a failure inside the training loop
	ErrorTypeTraining ErrorType = "TRAINING"

	// ErrorTypeNotFound indicates resource not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeInfrastructure indicates infrastructure/external service error
	ErrorTypeInfrastructure ErrorType = "INFRASTRUCTURE"

	// ErrorTypeInternal indicates unexpected internal error
	ErrorTypeInternal ErrorType = "INTERNAL"
)

// AppError represents a structured application error
type AppError struct {
	// Code is the error code (e.g., "TRAIN_001")
	Code string `json:"code"`

	// Type categorizes the error
	Type ErrorType `json:"type"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Details contains additional error context
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error
	Cause error `json:"-"`

	// Stack contains the stack trace (for internal errors)
	Stack string `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error chain unwrapping
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds additional context to the error
func (e *AppError) WithDetails(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// ToJSON serializes the error to JSON for API responses
func (e *AppError) ToJSON() []byte {
	data, _ := json.Marshal(e)
	return data
}

// New creates a new AppError
func New(code string, errType ErrorType, message string) *AppError {
	return &AppError{
		Code:    code,
		Type:    errType,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new AppError with formatted message
func Newf(code string, errType ErrorType, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with AppError context
func Wrap(err error, code string, message string) *AppError {
	if err == nil {
		return nil
	}

	// If already an AppError, keep its type
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    code,
			Type:    appErr.Type,
			Message: message,
			Cause:   appErr,
			Details: make(map[string]interface{}),
		}
	}

	return &AppError{
		Code:    code,
		Type:    ErrorTypeInternal,
		Message: message,
		Cause:   err,
		Details: make(map[string]interface{}),
	}
}

// WrapWithStack wraps an error and captures stack trace
func WrapWithStack(err error, code string, message string) *AppError {
	appErr := Wrap(err, code, message)
	if appErr != nil {
		appErr.Stack = captureStack()
	}
	return appErr
}

// captureStack captures the current stack trace
func captureStack() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// Is checks if an error matches a specific code
func Is(err error, code string) bool {
	if err == nil {
		return false
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}

	return appErr.Code == code
}

// IsType checks if an error matches a specific type
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}

	return appErr.Type == errType
}

// GetCode extracts the error code from an error
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	appErr, ok := err.(*AppError)
	if !ok {
		return "UNKNOWN"
	}

	return appErr.Code
}
