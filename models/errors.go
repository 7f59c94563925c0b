package models

import (
	"errors"
	"fmt"
)

// ValidationError is returned for malformed input and disallowed transitions.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError is returned when a referenced entity or candidate pool is missing.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// ConflictError is returned when a concurrent writer won a claim or version race.
type ConflictError struct {
	Code    string
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// Conflict codes surfaced to clients.
const (
	ConflictAlreadyAssigned = "already_assigned"
	ConflictVersion         = "version_conflict"
	ConflictDuplicate       = "duplicate"
	ConflictIntakeLimit     = "intake_limit"
)

// ProviderError wraps a failure from an external delivery provider.
type ProviderError struct {
	Provider  string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// PolicyError is logged when no SLA rule matches and the default rule is used.
type PolicyError struct {
	CategoryID string
	Priority   Priority
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("no SLA rule for category=%s priority=%s, using default", e.CategoryID, e.Priority)
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func NewConflictError(code, message string) error {
	return &ConflictError{Code: code, Message: message}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

func IsProvider(err error) bool {
	var target *ProviderError
	return errors.As(err, &target)
}
