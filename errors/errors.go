// Package errors defines the typed error taxonomy used across the oracle:
// configuration, decryption, not-found, chain-rejection, and confirmation-timeout
// errors each carry a distinct code so callers can branch without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents different categories of oracle errors
type ErrorCode string

const (
	// ErrCodeValidation indicates input validation errors
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeConfig indicates configuration errors, fatal at construction time
	ErrCodeConfig ErrorCode = "CONFIG"

	// ErrCodeDatabase indicates local store operation errors
	ErrCodeDatabase ErrorCode = "DATABASE"

	// ErrCodeDecryption indicates a malformed stored ciphertext or wrong key
	ErrCodeDecryption ErrorCode = "DECRYPTION"

	// ErrCodeNotFound indicates a missing commitment record (nothing to reveal)
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeChain indicates the chain rejected a transaction (revert,
	// insufficient funds, gas too low)
	ErrCodeChain ErrorCode = "CHAIN"

	// ErrCodeTimeout indicates a confirmation wait exceeded its deadline.
	// The transaction may still confirm later; re-check by hash before retrying.
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	// ErrCodeRPC indicates RPC transport errors
	ErrCodeRPC ErrorCode = "RPC"

	// ErrCodeInternal indicates internal errors
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// OracleError is an error with a category code, an optional cause, and
// free-form context for logging.
type OracleError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// New creates a new OracleError
func New(code ErrorCode, message string, cause error) *OracleError {
	return &OracleError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Error implements the error interface
func (e *OracleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *OracleError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *OracleError) WithContext(key string, value interface{}) *OracleError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsRetryable returns true if the error is worth retrying
func (e *OracleError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeRPC, ErrCodeTimeout:
		return true
	default:
		return false
	}
}

// Common error constructors

// NewConfigError creates a configuration error
func NewConfigError(message string) *OracleError {
	return New(ErrCodeConfig, message, nil)
}

// NewValidationError creates a validation error
func NewValidationError(message string) *OracleError {
	return New(ErrCodeValidation, message, nil)
}

// NewDatabaseError creates a local store error
func NewDatabaseError(message string, cause error) *OracleError {
	return New(ErrCodeDatabase, message, cause)
}

// NewDecryptionError creates a decryption error
func NewDecryptionError(message string, cause error) *OracleError {
	return New(ErrCodeDecryption, message, cause)
}

// NewNotFoundError creates a not-found error for a question
func NewNotFoundError(questionID string) *OracleError {
	return New(ErrCodeNotFound, fmt.Sprintf("no commitment found for question %s", questionID), nil)
}

// NewChainError creates a chain-rejection error
func NewChainError(message string, cause error) *OracleError {
	return New(ErrCodeChain, message, cause)
}

// NewTimeoutError creates a confirmation-timeout error
func NewTimeoutError(message string) *OracleError {
	return New(ErrCodeTimeout, message, nil)
}

// NewRPCError creates an RPC transport error
func NewRPCError(message string, cause error) *OracleError {
	return New(ErrCodeRPC, message, cause)
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *OracleError {
	return New(ErrCodeInternal, message, cause)
}

// CodeOf extracts the error code from err, or ErrCodeInternal if err is not
// an OracleError.
func CodeOf(err error) ErrorCode {
	var oe *OracleError
	if stderrors.As(err, &oe) {
		return oe.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	var oe *OracleError
	if stderrors.As(err, &oe) {
		return oe.Code == code
	}
	return false
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return HasCode(err, ErrCodeNotFound)
}

// IsTimeout reports whether err is a confirmation-timeout error
func IsTimeout(err error) bool {
	return HasCode(err, ErrCodeTimeout)
}

// As is a convenience wrapper around the standard errors.As
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
