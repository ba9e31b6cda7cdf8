package workflow

// measurementTransitions is the complete status table for measurements:
//
//	pending   --FINALIZE--> finalized
//	pending   --CANCEL-->   cancelled
//	finalized --SEND-->     sent
//
// Any edge not listed here is rejected.
var measurementTransitions = func() StateMachineBuilder {
	b := NewBuilder()
	b.Configure(StatePending).
		Permit(TriggerFinalize, StateFinalized).
		Permit(TriggerCancel, StateCancelled)
	b.Configure(StateFinalized).
		Permit(TriggerSend, StateSent)
	return b
}()

// NewMeasurementMachine returns a machine positioned at the given status.
func NewMeasurementMachine(current State) (StateMachine, error) {
	return measurementTransitions.Build(current)
}

// NextState resolves the status a trigger leads to from current.
func NextState(current State, trigger Trigger) (State, error) {
	m, err := NewMeasurementMachine(current)
	if err != nil {
		return "", err
	}
	return m.Target(trigger)
}
