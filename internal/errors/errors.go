package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the ScaleOCR Worker
 *
 * Two families live here:
 * - Extraction errors raised by the recognition cascade. Only INVALID_INPUT and
 *   NO_NUMBER_DETECTED ever leave the cascade; ENGINE_FAILURE and NO_CANDIDATE
 *   are absorbed per strategy.
 * - Job errors raised by the worker around the cascade (timeouts, storage).
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Extraction errors
	ErrorInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrorEngineFailure    ErrorCode = "ENGINE_FAILURE"
	ErrorNoCandidate      ErrorCode = "NO_CANDIDATE"
	ErrorNoNumberDetected ErrorCode = "NO_NUMBER_DETECTED"

	// Processing errors
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"

	// Storage errors
	ErrorStorageFailed  ErrorCode = "STORAGE_FAILED"
	ErrorDatabaseFailed ErrorCode = "DATABASE_FAILED"
)

// Sentinels for errors.Is checks. Matching is by code only.
var (
	ErrInvalidInput     = &ProcessingError{Code: ErrorInvalidInput}
	ErrEngineFailure    = &ProcessingError{Code: ErrorEngineFailure}
	ErrNoCandidate      = &ProcessingError{Code: ErrorNoCandidate}
	ErrNoNumberDetected = &ProcessingError{Code: ErrorNoNumberDetected}
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a ProcessingError with the same code.
func (e *ProcessingError) Is(target error) bool {
	t, ok := target.(*ProcessingError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// CodeOf returns the code of the first ProcessingError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// Factory functions for common errors

func NewInvalidInputError(reason string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInvalidInput,
		Message:   fmt.Sprintf("Invalid input: %s", reason),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"reason": reason,
		},
		Cause: cause,
	}
}

func NewUnsupportedFormatError(mimeType string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInvalidInput,
		Message:   fmt.Sprintf("Unsupported image type: %s (only JPEG, JPG and PNG are allowed)", mimeType),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"mime_type": mimeType,
		},
	}
}

func NewEngineFailureError(engine string, config string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorEngineFailure,
		Message:   fmt.Sprintf("Recognition failed on engine %s", engine),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"engine": engine,
			"config": config,
		},
		Cause: cause,
	}
}

func NewNoCandidateError(strategy string, reason string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorNoCandidate,
		Message:   fmt.Sprintf("Strategy %s produced no candidate: %s", strategy, reason),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"strategy": strategy,
			"reason":   reason,
		},
	}
}

func NewNoNumberDetectedError(strategiesTried int, attempts int) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorNoNumberDetected,
		Message:   "Could not read a number from this image",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"strategies_tried": strategiesTried,
			"attempts":         attempts,
		},
	}
}

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store reading",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewDatabaseFailedError(operation string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDatabaseFailed,
		Message:   fmt.Sprintf("Database operation failed: %s", operation),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"operation": operation,
		},
		Cause: cause,
	}
}

// WithJobID returns a copy of e tagged with the job it belongs to
func (e *ProcessingError) WithJobID(jobID string) *ProcessingError {
	cp := *e
	cp.JobID = jobID
	return &cp
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.JobID != "" {
		result["job_id"] = e.JobID
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
