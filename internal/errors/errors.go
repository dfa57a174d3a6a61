package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Authentication & Authorization
	ErrCodeUnauthorized          ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidToken          ErrorCode = "INVALID_TOKEN"
	ErrCodeForbidden             ErrorCode = "FORBIDDEN"
	ErrCodeIdentityMismatch      ErrorCode = "IDENTITY_MISMATCH"
	ErrCodeParticipantNotAllowed ErrorCode = "PARTICIPANT_NOT_ALLOWED"
	ErrCodeParticipantNotJoined  ErrorCode = "PARTICIPANT_NOT_JOINED"

	// Validation
	ErrCodeValidation                   ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput                 ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired              ErrorCode = "MISSING_REQUIRED"
	ErrCodeInvalidSessionType           ErrorCode = "INVALID_SESSION_TYPE"
	ErrCodeMissingWalletID              ErrorCode = "MISSING_WALLET_ID"
	ErrCodeInvalidThreshold             ErrorCode = "INVALID_THRESHOLD"
	ErrCodeMissingParticipants          ErrorCode = "MISSING_PARTICIPANTS"
	ErrCodeThresholdExceedsParticipants ErrorCode = "THRESHOLD_EXCEEDS_PARTICIPANTS"

	// Resource
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSessionExists   ErrorCode = "SESSION_EXISTS"
	ErrCodeSessionExpired  ErrorCode = "SESSION_EXPIRED"
	ErrCodeConflict        ErrorCode = "CONFLICT"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
)

// AppError is a structured error that can be returned to clients
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

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func InvalidToken(message string) *AppError {
	return New(ErrCodeInvalidToken, message)
}

func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
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

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

// MPC session errors

func InvalidSessionType() *AppError {
	return New(ErrCodeInvalidSessionType, "Invalid session type")
}

func MissingWalletID() *AppError {
	return New(ErrCodeMissingWalletID, "Missing walletId")
}

func InvalidThreshold() *AppError {
	return New(ErrCodeInvalidThreshold, "Invalid threshold")
}

func MissingParticipants() *AppError {
	return New(ErrCodeMissingParticipants, "Missing participants")
}

func ThresholdExceedsParticipants() *AppError {
	return New(ErrCodeThresholdExceedsParticipants, "Threshold exceeds participants")
}

func SessionNotFound() *AppError {
	return New(ErrCodeSessionNotFound, "Session not found")
}

func SessionExists() *AppError {
	return New(ErrCodeSessionExists, "Session already exists")
}

func SessionExpired() *AppError {
	return New(ErrCodeSessionExpired, "Session expired")
}

func ParticipantNotAllowed() *AppError {
	return New(ErrCodeParticipantNotAllowed, "Participant not allowed")
}

func ParticipantNotJoined() *AppError {
	return New(ErrCodeParticipantNotJoined, "Participant not joined")
}

func IdentityMismatch() *AppError {
	return New(ErrCodeIdentityMismatch, "Identity mismatch")
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
