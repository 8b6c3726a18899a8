package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes used across the service.
const (
	CodeValidation                = "VALIDATION_FAILED"
	CodeInvalidStateTransition    = "INVALID_STATE_TRANSITION"
	CodeStaleWriteConflict        = "STALE_WRITE_CONFLICT"
	CodeNotFound                  = "NOT_FOUND"
	CodeDuplicateDetectionTimeout = "DUPLICATE_DETECTION_TIMEOUT"
	CodePersistence               = "PERSISTENCE_ERROR"
	CodeUnauthorized              = "UNAUTHORIZED"
	CodeForbidden                 = "FORBIDDEN"
	CodeInternal                  = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewInvalidStateTransition(workflow, action, state string) error {
	return NewDomainError(
		CodeInvalidStateTransition,
		fmt.Sprintf("action %q is not legal from state %q", action, state),
		http.StatusConflict,
		map[string]any{"workflow": workflow, "action": action, "state": state},
	)
}

func NewStaleWriteConflict(expectedVersion int64) error {
	return NewDomainError(
		CodeStaleWriteConflict,
		"entity was modified concurrently; re-read and retry",
		http.StatusConflict,
		map[string]any{"expected_version": expectedVersion},
	)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewDuplicateDetectionTimeout marks a duplicate scan that exceeded its time
// bound. Soft condition: callers proceed with an empty candidate list.
func NewDuplicateDetectionTimeout() error {
	return NewDomainError(CodeDuplicateDetectionTimeout, "duplicate detection exceeded its time bound", http.StatusServiceUnavailable, nil)
}

func NewPersistenceError(err error) error {
	return &DomainError{
		Code:       CodePersistence,
		Message:    "storage operation failed",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// CodeOf extracts the domain error code; empty string for nil errors.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return ToDomainError(err).Code
}
