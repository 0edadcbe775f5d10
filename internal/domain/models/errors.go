package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates a missing document on read.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a required field is missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrWriteFailure indicates the store or storage service rejected a write.
	ErrWriteFailure = errors.New("write failed")
	// ErrPartialFailure indicates only one side of a dual write was applied.
	ErrPartialFailure = errors.New("partial failure")
	// ErrIllegalTransition indicates the requested lifecycle move is not allowed from the current state.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrAlreadyOnLoan indicates the unit already has an open loan.
	ErrAlreadyOnLoan = errors.New("equipment already has an open loan")
	// ErrStatusChanged indicates a conditional status write found the unit in another status.
	ErrStatusChanged = errors.New("equipment status changed concurrently")
	// ErrLoanClosed indicates the loan was already returned, completed or cancelled.
	ErrLoanClosed = errors.New("loan already closed")
	// ErrOpenLoan indicates the operation requires the loan (or the unit's loan) to be closed first.
	ErrOpenLoan = errors.New("loan still open")
	// ErrUnauthorized indicates missing or invalid credentials or session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrEmailTaken indicates a sign up with an email that already has an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrRateLimited indicates too many attempts in a short period.
	ErrRateLimited = errors.New("too many attempts")
)

// ValidationError lists the offending fields of a rejected write.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

func (e *ValidationError) add(field, reason string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = reason
}

func (e *ValidationError) require(field, value string) {
	if strings.TrimSpace(value) == "" {
		e.add(field, "is required")
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// PartialFailureError reports a dual write where the first write landed,
// the second failed and the compensation could not undo the first.
type PartialFailureError struct {
	Op         string
	Cause      error
	Compensate error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s: %s: %v (compensation: %v)", ErrPartialFailure.Error(), e.Op, e.Cause, e.Compensate)
}

func (e *PartialFailureError) Unwrap() []error { return []error{ErrPartialFailure, e.Cause} }
