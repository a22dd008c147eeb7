package types

import (
	"errors"
	"fmt"
)

// ErrorKind represents different categories of errors
type ErrorKind string

const (
	ErrKindValidation     ErrorKind = "validation"
	ErrKindAuthentication ErrorKind = "authentication"
	ErrKindAuthorization  ErrorKind = "authorization"
	ErrKindNotFound       ErrorKind = "not_found"
	ErrKindConflict       ErrorKind = "conflict"
	ErrKindChain          ErrorKind = "chain"
	ErrKindPersistence    ErrorKind = "persistence"
	ErrKindAuditWrite     ErrorKind = "audit_write"
	ErrKindInternal       ErrorKind = "internal"
)

// MediSecureError represents a structured error in the MediSecure system.
// Chain and persistence errors are fatal to the triggering request; audit
// write errors are caught and logged, never surfaced to callers.
type MediSecureError struct {
	Kind    ErrorKind              `json:"kind"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *MediSecureError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *MediSecureError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(code, message string, details map[string]interface{}) *MediSecureError {
	return &MediSecureError{Kind: ErrKindValidation, Code: code, Message: message, Details: details}
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(code, message string) *MediSecureError {
	return &MediSecureError{Kind: ErrKindAuthentication, Code: code, Message: message}
}

// NewAuthError creates a new authorization error
func NewAuthError(code, message string) *MediSecureError {
	return &MediSecureError{Kind: ErrKindAuthorization, Code: code, Message: message}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(code, message string) *MediSecureError {
	return &MediSecureError{Kind: ErrKindNotFound, Code: code, Message: message}
}

// NewConflictError creates a new conflict error
func NewConflictError(code, message string) *MediSecureError {
	return &MediSecureError{Kind: ErrKindConflict, Code: code, Message: message}
}

// NewChainError creates a new ledger call error
func NewChainError(code, message string, cause error) *MediSecureError {
	return &MediSecureError{Kind: ErrKindChain, Code: code, Message: message, Cause: cause}
}

// NewPersistenceError creates a new local store error
func NewPersistenceError(code, message string, cause error) *MediSecureError {
	return &MediSecureError{Kind: ErrKindPersistence, Code: code, Message: message, Cause: cause}
}

// NewAuditWriteError creates a new audit write error
func NewAuditWriteError(message string, cause error) *MediSecureError {
	return &MediSecureError{Kind: ErrKindAuditWrite, Code: ErrCodeAuditWriteFailed, Message: message, Cause: cause}
}

// NewInternalError creates a new internal error
func NewInternalError(code, message string, cause error) *MediSecureError {
	return &MediSecureError{Kind: ErrKindInternal, Code: code, Message: message, Cause: cause}
}

// KindOf returns the error kind, or ErrKindInternal for untyped errors.
func KindOf(err error) ErrorKind {
	var mse *MediSecureError
	if errors.As(err, &mse) {
		return mse.Kind
	}
	return ErrKindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error kind to the response status the API surface uses.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case ErrKindValidation:
		return 400
	case ErrKindAuthentication:
		return 401
	case ErrKindAuthorization:
		return 403
	case ErrKindNotFound:
		return 404
	case ErrKindConflict:
		return 409
	case ErrKindChain:
		return 502
	case ErrKindPersistence:
		return 503
	default:
		return 500
	}
}

// Common error codes
const (
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeInvalidRole      = "INVALID_ROLE"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeChainCallFailed  = "CHAIN_CALL_FAILED"
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"
	ErrCodeAuditWriteFailed = "AUDIT_WRITE_FAILED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)
