package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Remote collaborators
	ErrCodeTransport ErrorCode = "TRANSPORT_ERROR"
	ErrCodeProtocol  ErrorCode = "PROTOCOL_ERROR"

	// Handshake
	ErrCodeSessionExpired ErrorCode = "SESSION_EXPIRED"
	ErrCodePairingFailed  ErrorCode = "PAIRING_FAILED"

	// Speech platform
	ErrCodeCapture  ErrorCode = "CAPTURE_ERROR"
	ErrCodePlayback ErrorCode = "PLAYBACK_ERROR"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Resource / state
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeNoActiveSession ErrorCode = "NO_ACTIVE_SESSION"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeStore    ErrorCode = "STORE_ERROR"
)

// AppError is a structured error that can be returned to surface clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func Transport(op string, cause error) *AppError {
	return Wrap(ErrCodeTransport, fmt.Sprintf("%s: request failed", op), cause)
}

func Protocol(op string, cause error) *AppError {
	return Wrap(ErrCodeProtocol, fmt.Sprintf("%s: unexpected response", op), cause)
}

func SessionExpired() *AppError {
	return New(ErrCodeSessionExpired, "Session expired or invalid.")
}

func PairingFailed(reason string) *AppError {
	return New(ErrCodePairingFailed, reason)
}

func Capture(cause error) *AppError {
	return Wrap(ErrCodeCapture, "Speech capture failed", cause)
}

func Playback(cause error) *AppError {
	return Wrap(ErrCodePlayback, "Speech playback failed", cause)
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
}

func NoActiveSession() *AppError {
	return New(ErrCodeNoActiveSession, "No active session")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Store(cause error) *AppError {
	return Wrap(ErrCodeStore, "Store error", cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
