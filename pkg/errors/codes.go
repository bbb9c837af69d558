package errors

// Error codes used across the toolkit. Grouped by concern.
const (
	// Validation / configuration
	CodeInvalidParameter = "VALIDATION_001"
	CodeInvalidConfig    = "VALIDATION_002"

	// Data pipeline
	CodeBadBatchShape   = "DATA_001"
	CodeDatasetDecode   = "DATA_002"
	CodeDatasetNotFound = "DATA_003"

	// Training loop
	CodeForwardFailed   = "TRAIN_001"
	CodeBackwardFailed  = "TRAIN_002"
	CodeOptimizerFailed = "TRAIN_003"
	CodeEvalFailed      = "TRAIN_004"
	CodeLogWriteFailed  = "TRAIN_005"

	// Infrastructure
	CodeStorageFailed  = "INFRA_001"
	CodeDatabaseFailed = "INFRA_002"
	CodeCacheFailed    = "INFRA_003"
	CodeMessageFailed  = "INFRA_004"

	// Generic
	CodeNotFound = "NOT_FOUND"
	CodeInternal = "INTERNAL_ERROR"
)

// Common error constructors for frequent use cases

// ValidationError creates a validation error
func ValidationError(message string) *AppError {
	return New(CodeInvalidParameter, ErrorTypeValidation, message)
}

// ValidationErrorf creates a validation error with formatted message
func ValidationErrorf(format string, args ...interface{}) *AppError {
	return Newf(CodeInvalidParameter, ErrorTypeValidation, format, args...)
}

// DataError creates a dataset/batch error
func DataError(code, message string) *AppError {
	return New(code, ErrorTypeData, message)
}

// TrainingError creates a training loop error
func TrainingError(code, message string) *AppError {
	return New(code, ErrorTypeTraining, message)
}

// NotFoundError creates a not found error
func NotFoundError(resource string) *AppError {
	return Newf(CodeNotFound, ErrorTypeNotFound, "%s not found", resource)
}

// InternalError creates an internal error with a captured stack
func InternalError(message string) *AppError {
	appErr := New(CodeInternal, ErrorTypeInternal, message)
	appErr.Stack = captureStack()
	return appErr
}

// InfrastructureError wraps an external service failure
func InfrastructureError(service string, err error) *AppError {
	wrapped := Wrap(err, CodeInternal, "infrastructure service '"+service+"' error")
	if wrapped != nil {
		wrapped.Type = ErrorTypeInfrastructure
	}
	return wrapped
}
