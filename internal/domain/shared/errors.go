package shared

import (
	"errors"
	"fmt"
	"strings"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrForbidden           = NewDomainError("FORBIDDEN", "Access to this resource is forbidden")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
)

// Violation is a single business-rule failure tied to a field path such as
// "allocations.0.amount".
type Violation struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewViolation creates a violation
func NewViolation(field, code, message string) Violation {
	return Violation{Field: field, Code: code, Message: message}
}

// ValidationError aggregates every violation found for a rejected command.
// It is never retried.
type ValidationError struct {
	Violations []Violation `json:"violations"`
}

// NewValidationError creates a validation error from one or more violations
func NewValidationError(violations ...Violation) *ValidationError {
	return &ValidationError{Violations: violations}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Fields returns the distinct field paths carried by the error, in order
func (e *ValidationError) Fields() []string {
	seen := make(map[string]struct{}, len(e.Violations))
	fields := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		if _, ok := seen[v.Field]; ok {
			continue
		}
		seen[v.Field] = struct{}{}
		fields = append(fields, v.Field)
	}
	return fields
}

// HasField reports whether any violation targets the given field path
func (e *ValidationError) HasField(field string) bool {
	for _, v := range e.Violations {
		if v.Field == field {
			return true
		}
	}
	return false
}

// PolicyError is returned when the caller lacks a capability or addresses an
// entity outside its company. It is always fatal.
type PolicyError struct {
	Code    string `json:"code"`
	Action  string `json:"action,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *PolicyError) Error() string {
	return e.Message
}

// NewPolicyError creates a policy error
func NewPolicyError(code, action, message string) *PolicyError {
	return &PolicyError{Code: code, Action: action, Message: message}
}

// Policy error codes
const (
	PolicyCodeForbidden      = "FORBIDDEN"
	PolicyCodeTenantMismatch = "TENANT_MISMATCH"
	PolicyCodeNotFound       = "NOT_FOUND"
)

// IsValidationError reports whether err wraps a *ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPolicyError reports whether err wraps a *PolicyError
func IsPolicyError(err error) bool {
	var pe *PolicyError
	return errors.As(err, &pe)
}

// AsValidationError extracts a *ValidationError from err
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// ErrorClass classifies an error for audit and metric labels
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsPolicyError(err):
		return "policy"
	case IsValidationError(err):
		return "validation"
	default:
		var de *DomainError
		if errors.As(err, &de) && de.Code == ErrConcurrencyConflict.Code {
			return "conflict"
		}
		return "error"
	}
}
