package entity

import (
	"errors"
	"fmt"
)

// Domain errors. Callers match them with errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrMissingParent   = fmt.Errorf("%w: exactly one of budget_id or site_id is required", ErrValidation)
	ErrPeriodMismatch  = fmt.Errorf("%w: month/year reference does not match period", ErrValidation)
	ErrDuplicatePeriod = errors.New("a measurement already exists for this period")
	ErrInvalidState    = errors.New("operation not allowed in current measurement state")
	ErrNotFound        = errors.New("not found")
	ErrStorage         = errors.New("storage failure")
)

// ValidationError carries field-level detail for malformed input.
type ValidationError struct {
	Field   string
	Message string
	base    error
}

// NewValidationError creates a ValidationError that matches ErrValidation.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message, base: ErrValidation}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.base != nil {
		return e.base
	}
	return ErrValidation
}

// DuplicatePeriodError identifies the measurement that already occupies a period.
type DuplicatePeriodError struct {
	Parent     Parent
	Period     Period
	ExistingID string
}

func (e *DuplicatePeriodError) Error() string {
	return fmt.Sprintf("a measurement already exists for the period %s", e.Period.Label())
}

func (e *DuplicatePeriodError) Unwrap() error {
	return ErrDuplicatePeriod
}

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// InvalidStateError explains why a measurement rejected an operation.
type InvalidStateError struct {
	MeasurementID string
	Status        string
	Operation     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s measurement %s with status %s", e.Operation, e.MeasurementID, e.Status)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}
