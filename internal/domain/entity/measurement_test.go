package entity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/crane-billing/internal/domain/workflow"
)

func newPendingMeasurement() *Measurement {
	m := &Measurement{
		ID:              "m-1",
		Parent:          BudgetParent("b-1"),
		Number:          "MED-2025-03-ORC-7",
		MeasurementDate: time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		Status:          workflow.StatePending,
	}
	m.SetPeriod(MustParsePeriod("2025-03"))
	return m
}

func TestMeasurement_Validate(t *testing.T) {
	m := newPendingMeasurement()
	require.NoError(t, m.Validate())

	m.Parent = Parent{}
	assert.ErrorIs(t, m.Validate(), ErrMissingParent)

	m = newPendingMeasurement()
	m.MonthReference = 4
	assert.ErrorIs(t, m.Validate(), ErrPeriodMismatch)

	m = newPendingMeasurement()
	m.Number = " "
	assert.ErrorIs(t, m.Validate(), ErrValidation)
}

func TestMeasurement_Transition(t *testing.T) {
	now := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)

	m := newPendingMeasurement()
	require.NoError(t, m.Transition(workflow.TriggerFinalize, now))
	assert.Equal(t, workflow.StateFinalized, m.Status)
	require.NotNil(t, m.FinalizedAt)
	assert.Equal(t, now, *m.FinalizedAt)

	err := m.Transition(workflow.TriggerFinalize, now)
	var ise *InvalidStateError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, "finalized", ise.Status)
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.ErrorIs(t, m.Transition(workflow.TriggerCancel, now), ErrInvalidState)

	require.NoError(t, m.Transition(workflow.TriggerSend, now))
	assert.Equal(t, workflow.StateSent, m.Status)
	assert.Equal(t, ApprovalPending, m.ApprovalStatus)
	require.NotNil(t, m.SentAt)

	m = newPendingMeasurement()
	assert.ErrorIs(t, m.Transition(workflow.TriggerSend, now), ErrInvalidState)
	assert.Equal(t, workflow.StatePending, m.Status)
}

func TestMeasurement_EnsureEditable(t *testing.T) {
	m := newPendingMeasurement()
	assert.NoError(t, m.EnsureEditable("update"))

	for _, s := range []workflow.State{workflow.StateFinalized, workflow.StateCancelled, workflow.StateSent} {
		m.Status = s
		assert.ErrorIs(t, m.EnsureEditable("update"), ErrInvalidState, s)
	}
}

func TestMeasurement_RecordApproval(t *testing.T) {
	now := time.Now()
	m := newPendingMeasurement()
	assert.ErrorIs(t, m.RecordApproval(ApprovalApproved, "", now), ErrInvalidState)

	m.Status = workflow.StateSent
	assert.ErrorIs(t, m.RecordApproval("maybe", "", now), ErrValidation)

	require.NoError(t, m.RecordApproval(ApprovalRejected, "wrong hours", now))
	assert.Equal(t, ApprovalRejected, m.ApprovalStatus)
	assert.Equal(t, "wrong hours", m.ApprovalNotes)
	assert.Equal(t, workflow.StateSent, m.Status)
}

func TestDocumentStatus_CanAdvanceTo(t *testing.T) {
	assert.True(t, DocumentPending.CanAdvanceTo(DocumentIssued))
	assert.True(t, DocumentPending.CanAdvanceTo(DocumentPaid))
	assert.True(t, DocumentSent.CanAdvanceTo(DocumentPaid))
	assert.False(t, DocumentPaid.CanAdvanceTo(DocumentSent))
	assert.False(t, DocumentIssued.CanAdvanceTo(DocumentIssued))
	assert.False(t, DocumentStatus("lost").CanAdvanceTo(DocumentPaid))

	_, err := ParseDocumentKind("receipt")
	assert.ErrorIs(t, err, ErrValidation)
}
