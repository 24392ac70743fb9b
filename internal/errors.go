package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "VALIDATION_ERROR"
	ErrorTypeCapacity    ErrorType = "CAPACITY_ERROR"
	ErrorTypeNotFound    ErrorType = "NOT_FOUND"
	ErrorTypeUnavailable ErrorType = "REMOTE_UNAVAILABLE"
	ErrorTypeRejected    ErrorType = "REMOTE_REJECTED"
	ErrorTypeInternal    ErrorType = "INTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeInvalidPercentage ErrorCode = "INVALID_PERCENTAGE"
	ErrCodeWorkloadExceeded  ErrorCode = "WORKLOAD_EXCEEDED"
	ErrCodeRemoteUnavailable ErrorCode = "REMOTE_UNAVAILABLE"
	ErrCodeRemoteRejected    ErrorCode = "REMOTE_REJECTED"

	ErrCodeUserNotFound       ErrorCode = "USER_NOT_FOUND"
	ErrCodeProjectNotFound    ErrorCode = "PROJECT_NOT_FOUND"
	ErrCodeAllocationNotFound ErrorCode = "ALLOCATION_NOT_FOUND"

	ErrCodeInvalidSession ErrorCode = "INVALID_SESSION"
)

// AppError is the error shape surfaced to callers and serialized over HTTP.
// Pre-flight failures (InvalidPercentage, WorkloadExceeded) are resolved
// without any network call; WorkloadExceeded carries the full validation
// breakdown in Details so the user can self-correct without guessing.
type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	clone := *e
	clone.Cause = cause
	return &clone
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	clone := *e
	clone.Details = details
	return &clone
}

// WithMessage replaces the message, keeping type/code/status. Used to carry
// a backend rejection message verbatim instead of re-deriving one.
func (e *AppError) WithMessage(message string) *AppError {
	clone := *e
	clone.Message = message
	return &clone
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewCapacityError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeCapacity,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnavailableError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnavailable,
		Code:       ErrCodeRemoteUnavailable,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
	}
}

func NewRejectedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeRejected,
		Code:       ErrCodeRemoteRejected,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

var (
	ErrInvalidPercentage = NewValidationError("workload percentage must be greater than 0 and at most 100", ErrCodeInvalidPercentage)
	ErrWorkloadExceeded  = NewCapacityError("workload would exceed available capacity", ErrCodeWorkloadExceeded)
	ErrRemoteUnavailable = NewUnavailableError("workload backend unavailable, capacity unknown")
	ErrRemoteRejected    = NewRejectedError("workload backend rejected the change")

	ErrUserNotFound       = NewNotFoundError("user not found", ErrCodeUserNotFound)
	ErrProjectNotFound    = NewNotFoundError("project not found", ErrCodeProjectNotFound)
	ErrAllocationNotFound = NewNotFoundError("allocation not found", ErrCodeAllocationNotFound)

	ErrInvalidSession = NewValidationError("session token is missing or malformed", ErrCodeInvalidSession)
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err is an AppError carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Code == code
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
