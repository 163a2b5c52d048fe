package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeProvisioning  = "PROVISIONING_FAILED"
	ErrCodeSessionBroken = "SESSION_BROKEN"
	ErrCodeShutDown      = "POOL_SHUT_DOWN"
	ErrCodeTimeout       = "ACQUIRE_TIMEOUT"
	ErrCodeFetch         = "FETCH_FAILED"
	ErrCodeInvalidConfig = "INVALID_CONFIG"
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PoolError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type PoolError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *PoolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PoolError) Unwrap() error {
	return e.Err
}

// NewPoolError creates a new PoolError.
func NewPoolError(code, message string, err error) *PoolError {
	return &PoolError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *PoolError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf extracts the error code from err, or ErrCodeInternal if err is
// not a PoolError.
func CodeOf(err error) string {
	var pe *PoolError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrCodeInternal
}

// IsShutDown reports whether err signals that the pool has begun shutdown.
// Callers must treat this as terminal and stop retrying.
func IsShutDown(err error) bool {
	return CodeOf(err) == ErrCodeShutDown
}

// IsRetryable reports whether the failed operation may be retried at a
// higher level (a broken session or a transient fetch failure).
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeSessionBroken, ErrCodeFetch, ErrCodeTimeout:
		return true
	}
	return false
}
