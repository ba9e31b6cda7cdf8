package workflow

// State is a measurement status.
type State string

const (
	StatePending   State = "pending"
	StateFinalized State = "finalized"
	StateCancelled State = "cancelled"
	StateSent      State = "sent"
)

// IsValid reports whether s is one of the known measurement statuses.
// It must not depend on package-level variables: the status table in
// measurement.go calls it during package initialization.
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateFinalized, StateCancelled, StateSent:
		return true
	}
	return false
}

// IsEditable reports whether header fields and line items may still change.
// Only pending measurements are editable.
func (s State) IsEditable() bool {
	return s == StatePending
}

// IsTerminal reports whether no trigger can leave s.
func (s State) IsTerminal() bool {
	return s == StateCancelled || s == StateSent
}

func (s State) String() string {
	return string(s)
}

// Trigger is an action that moves a measurement between statuses.
type Trigger string

const (
	TriggerFinalize Trigger = "FINALIZE"
	TriggerCancel   Trigger = "CANCEL"
	TriggerSend     Trigger = "SEND"
)

func (t Trigger) String() string {
	return string(t)
}
