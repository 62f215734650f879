package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeAuthorization ErrorType = "authorization"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeAlreadyExists ErrorType = "already_exists"
	ErrorTypeStateConflict ErrorType = "state_conflict"
	ErrorTypeConcurrency   ErrorType = "concurrency_conflict"
	ErrorTypeEndorsement   ErrorType = "endorsement_mismatch"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeUnavailable   ErrorType = "unavailable"
	ErrorTypeIdentity      ErrorType = "identity"
	ErrorTypeInternal      ErrorType = "internal"
)

// Common error codes. Chaincode encodes the code as an error-string prefix so
// the gateway can translate failures back into the taxonomy without leaking
// platform error shapes to callers.
const (
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeInvalidRange        = "INVALID_RANGE"
	ErrCodeAccessDenied        = "ACCESS_DENIED"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeAlreadyExists       = "ALREADY_EXISTS"
	ErrCodeStateConflict       = "STATE_CONFLICT"
	ErrCodeAlreadyRevoked      = "ALREADY_REVOKED"
	ErrCodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	ErrCodeEndorsementMismatch = "ENDORSEMENT_MISMATCH"
	ErrCodeTimeout             = "TIMEOUT"
	ErrCodeUnavailable         = "UNAVAILABLE"
	ErrCodeIdentityNotFound    = "IDENTITY_NOT_FOUND"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// LedgerError represents a structured error in the HealthLink system
type LedgerError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *LedgerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *LedgerError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(code, message string) *LedgerError {
	return &LedgerError{Type: ErrorTypeValidation, Code: code, Message: message}
}

// NewAccessDeniedError creates a new authorization error
func NewAccessDeniedError(message string) *LedgerError {
	return &LedgerError{Type: ErrorTypeAuthorization, Code: ErrCodeAccessDenied, Message: message}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *LedgerError {
	return &LedgerError{Type: ErrorTypeNotFound, Code: ErrCodeNotFound, Message: message}
}

// NewAlreadyExistsError creates a new duplicate-id error
func NewAlreadyExistsError(message string) *LedgerError {
	return &LedgerError{Type: ErrorTypeAlreadyExists, Code: ErrCodeAlreadyExists, Message: message}
}

// NewStateConflictError creates a new illegal-transition error
func NewStateConflictError(code, message string) *LedgerError {
	return &LedgerError{Type: ErrorTypeStateConflict, Code: code, Message: message}
}

// NewConcurrencyConflictError creates a new optimistic-locking error.
// Callers may safely retry this error with fresh data.
func NewConcurrencyConflictError(message string) *LedgerError {
	return &LedgerError{Type: ErrorTypeConcurrency, Code: ErrCodeConcurrencyConflict, Message: message}
}

// NewEndorsementMismatchError creates a new non-determinism error.
// This error is fatal and must never be silently retried.
func NewEndorsementMismatchError(message string) *LedgerError {
	return &LedgerError{Type: ErrorTypeEndorsement, Code: ErrCodeEndorsementMismatch, Message: message}
}

// NewTimeoutError creates a new timeout error. The transaction's actual fate
// is unknown: it may still commit after the caller stops waiting.
func NewTimeoutError(message string) *LedgerError {
	return &LedgerError{Type: ErrorTypeTimeout, Code: ErrCodeTimeout, Message: message}
}

// NewUnavailableError creates a new transport-level error
func NewUnavailableError(message string, cause error) *LedgerError {
	return &LedgerError{Type: ErrorTypeUnavailable, Code: ErrCodeUnavailable, Message: message, Cause: cause}
}

// NewIdentityNotFoundError creates a new unknown-caller error
func NewIdentityNotFoundError(callerID string) *LedgerError {
	return &LedgerError{
		Type:    ErrorTypeIdentity,
		Code:    ErrCodeIdentityNotFound,
		Message: fmt.Sprintf("no signing identity enrolled for caller %s", callerID),
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *LedgerError {
	return &LedgerError{Type: ErrorTypeInternal, Code: ErrCodeInternalError, Message: message, Cause: cause}
}

// AsLedgerError extracts a *LedgerError from err, or nil
func AsLedgerError(err error) *LedgerError {
	var le *LedgerError
	if errors.As(err, &le) {
		return le
	}
	return nil
}

// IsRetryable reports whether the caller may safely resubmit after err.
// Only optimistic-concurrency conflicts are unconditionally retryable;
// timeouts are retryable only for operations the ledger makes idempotent.
func IsRetryable(err error) bool {
	le := AsLedgerError(err)
	return le != nil && le.Type == ErrorTypeConcurrency
}

// codeTypes maps chaincode error codes back onto taxonomy types
var codeTypes = map[string]ErrorType{
	ErrCodeInvalidInput:        ErrorTypeValidation,
	ErrCodeInvalidRange:        ErrorTypeValidation,
	ErrCodeAccessDenied:        ErrorTypeAuthorization,
	ErrCodeNotFound:            ErrorTypeNotFound,
	ErrCodeAlreadyExists:       ErrorTypeAlreadyExists,
	ErrCodeStateConflict:       ErrorTypeStateConflict,
	ErrCodeAlreadyRevoked:      ErrorTypeStateConflict,
	ErrCodeConcurrencyConflict: ErrorTypeConcurrency,
	ErrCodeEndorsementMismatch: ErrorTypeEndorsement,
	ErrCodeTimeout:             ErrorTypeTimeout,
	ErrCodeUnavailable:         ErrorTypeUnavailable,
	ErrCodeIdentityNotFound:    ErrorTypeIdentity,
}

// ParseChaincodeError translates a chaincode error message of the form
// "CODE: message" into a typed error. Unknown shapes become internal errors
// so platform details never leak to callers.
func ParseChaincodeError(message string) *LedgerError {
	code, rest, found := strings.Cut(message, ":")
	if found {
		code = strings.TrimSpace(code)
		if et, ok := codeTypes[code]; ok {
			return &LedgerError{Type: et, Code: code, Message: strings.TrimSpace(rest)}
		}
	}
	return &LedgerError{Type: ErrorTypeInternal, Code: ErrCodeInternalError, Message: message}
}
