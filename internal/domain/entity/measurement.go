package entity

import (
	"errors"
	"strings"
	"time"

	"github.com/garyjia/crane-billing/internal/domain/workflow"
)

// Measurement is one billing period of a budget or a site.
type Measurement struct {
	ID              string         `json:"id"`
	Parent          Parent         `json:"-"`
	Number          string         `json:"number"`
	Period          Period         `json:"period"`
	MeasurementDate time.Time      `json:"measurement_date"`
	MonthReference  int            `json:"month_reference"`
	YearReference   int            `json:"year_reference"`
	Totals          Totals         `json:"totals"`
	Status          workflow.State `json:"status"`
	ApprovalStatus  string         `json:"approval_status,omitempty"`
	ApprovalNotes   string         `json:"approval_notes,omitempty"`
	FinalizedAt     *time.Time     `json:"finalized_at,omitempty"`
	SentAt          *time.Time     `json:"sent_at,omitempty"`
	ApprovedAt      *time.Time     `json:"approved_at,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	CreatedBy       string         `json:"created_by,omitempty"`
	UpdatedBy       string         `json:"updated_by,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// MeasurementDetail is a measurement with everything it owns.
type MeasurementDetail struct {
	Measurement *Measurement          `json:"measurement"`
	Items       LineItems             `json:"items"`
	Documents   []*DocumentAttachment `json:"documents"`
}

// Validate checks the header invariants of a new measurement.
func (m *Measurement) Validate() error {
	if err := m.Parent.Validate(); err != nil {
		return err
	}
	if m.Period.IsZero() {
		return NewValidationError("period", "is required")
	}
	if err := m.Period.CheckReferences(m.MonthReference, m.YearReference); err != nil {
		return err
	}
	if strings.TrimSpace(m.Number) == "" {
		return NewValidationError("number", "is required")
	}
	if m.MeasurementDate.IsZero() {
		return NewValidationError("measurement_date", "is required")
	}
	return nil
}

// SetPeriod assigns p and keeps the redundant month/year references in step.
func (m *Measurement) SetPeriod(p Period) {
	m.Period = p
	m.MonthReference = int(p.Month)
	m.YearReference = p.Year
}

// EnsureEditable fails with an InvalidStateError unless the measurement is pending.
func (m *Measurement) EnsureEditable(operation string) error {
	if m.Status.IsEditable() {
		return nil
	}
	return &InvalidStateError{MeasurementID: m.ID, Status: m.Status.String(), Operation: operation}
}

// Transition applies trigger to the measurement status and stamps the
// matching timestamp. Edges missing from the status table yield an
// InvalidStateError and leave m unchanged.
func (m *Measurement) Transition(trigger workflow.Trigger, now time.Time) error {
	next, err := workflow.NextState(m.Status, trigger)
	if err != nil {
		if errors.Is(err, workflow.ErrInvalidTransition) || errors.Is(err, workflow.ErrInvalidState) {
			return &InvalidStateError{
				MeasurementID: m.ID,
				Status:        m.Status.String(),
				Operation:     strings.ToLower(trigger.String()),
			}
		}
		return err
	}

	m.Status = next
	m.UpdatedAt = now
	switch next {
	case workflow.StateFinalized:
		m.FinalizedAt = &now
	case workflow.StateSent:
		m.SentAt = &now
		m.ApprovalStatus = ApprovalPending
	}
	return nil
}

// RecordApproval stores the client's decision on a sent measurement.
func (m *Measurement) RecordApproval(decision, notes string, now time.Time) error {
	if m.Status != workflow.StateSent {
		return &InvalidStateError{MeasurementID: m.ID, Status: m.Status.String(), Operation: "record approval for"}
	}
	if decision != ApprovalApproved && decision != ApprovalRejected {
		return NewValidationError("decision", "must be approved or rejected")
	}
	m.ApprovalStatus = decision
	m.ApprovalNotes = notes
	m.ApprovedAt = &now
	m.UpdatedAt = now
	return nil
}

// MeasurementFilter narrows measurement listings.
type MeasurementFilter struct {
	BudgetID string
	SiteID   string
	Period   *Period
	Status   workflow.State
	Limit    int
	Offset   int
}
