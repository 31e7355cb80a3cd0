// Package apperr defines the error taxonomy shared by services and transports.
// Each kind is a distinct type so callers can branch with errors.As; HTTPStatus maps
// a kind to the status code the API returns.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed input. The caller can fix it and resubmit.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidation returns a ValidationError for a single field.
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// InvalidTransitionError reports a state machine violation, e.g. approving an application
// that is already terminal.
type InvalidTransitionError struct {
	ID   string
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for %s: %s -> %s", e.ID, e.From, e.To)
}

// PartialApprovalError reports that an application was approved but the applicant's role
// promotion failed. The status change is persisted; the promotion must be re-driven.
type PartialApprovalError struct {
	ApplicationID string
	UserID        string
	Err           error
}

func (e *PartialApprovalError) Error() string {
	return fmt.Sprintf("application %s approved but role promotion for user %s failed: %v", e.ApplicationID, e.UserID, e.Err)
}

func (e *PartialApprovalError) Unwrap() error { return e.Err }

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// NewNotFound returns a NotFoundError for entity/id.
func NewNotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// AuthorizationError reports that the caller's role or ownership does not permit the
// operation. Unauthenticated is set when no identity was presented at all.
type AuthorizationError struct {
	Reason          string
	Unauthenticated bool
}

func (e *AuthorizationError) Error() string {
	if e.Reason == "" {
		return "not authorized"
	}
	return "not authorized: " + e.Reason
}

// NewForbidden returns an AuthorizationError for an authenticated caller.
func NewForbidden(reason string) *AuthorizationError {
	return &AuthorizationError{Reason: reason}
}

// NewUnauthenticated returns an AuthorizationError for a caller with no identity.
func NewUnauthenticated(reason string) *AuthorizationError {
	return &AuthorizationError{Reason: reason, Unauthenticated: true}
}

// BackendUnavailableError wraps a network or service failure of the backend data service.
type BackendUnavailableError struct {
	Op  string
	Err error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("backend unavailable during %s: %v", e.Op, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

// DuplicateApplicationError reports that the user already has an application that blocks
// a new submission under the configured re-application policy.
type DuplicateApplicationError struct {
	UserID     string
	ExistingID string
	Status     string
}

func (e *DuplicateApplicationError) Error() string {
	return fmt.Sprintf("user %s already has a %s application (%s)", e.UserID, e.Status, e.ExistingID)
}

// Kind returns a short machine-readable code for err, used in API error bodies.
func Kind(err error) string {
	var (
		ve *ValidationError
		te *InvalidTransitionError
		pe *PartialApprovalError
		ne *NotFoundError
		ae *AuthorizationError
		be *BackendUnavailableError
		de *DuplicateApplicationError
	)
	switch {
	case errors.As(err, &pe):
		return "partial_approval"
	case errors.As(err, &ve):
		return "validation_failed"
	case errors.As(err, &te):
		return "invalid_transition"
	case errors.As(err, &de):
		return "duplicate_application"
	case errors.As(err, &ne):
		return "not_found"
	case errors.As(err, &ae):
		if ae.Unauthenticated {
			return "unauthenticated"
		}
		return "forbidden"
	case errors.As(err, &be):
		return "backend_unavailable"
	default:
		return "internal"
	}
}

// HTTPStatus maps err to an HTTP status code.
// PartialApprovalError maps to 207: the first half of the operation was applied.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case "partial_approval":
		return http.StatusMultiStatus
	case "validation_failed":
		return http.StatusBadRequest
	case "invalid_transition", "duplicate_application":
		return http.StatusConflict
	case "not_found":
		return http.StatusNotFound
	case "unauthenticated":
		return http.StatusUnauthorized
	case "forbidden":
		return http.StatusForbidden
	case "backend_unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may retry err without changing its input.
func Retryable(err error) bool {
	switch Kind(err) {
	case "partial_approval", "backend_unavailable":
		return true
	default:
		return false
	}
}
