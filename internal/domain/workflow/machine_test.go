package workflow

import (
	"errors"
	"testing"
)

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"pending", StatePending, true},
		{"finalized", StateFinalized, true},
		{"cancelled", StateCancelled, true},
		{"sent", StateSent, true},
		{"legacy portuguese value", State("finalizada"), false},
		{"empty state", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsEditable(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StatePending, true},
		{StateFinalized, false},
		{StateCancelled, false},
		{StateSent, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsEditable(); got != tt.expected {
				t.Errorf("State.IsEditable() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuilder_ConfigurePanicsOnInvalidState(t *testing.T) {
	builder := NewBuilder()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Configure() should panic on invalid state")
		}
	}()

	builder.Configure(State("INVALID"))
}

func TestBuilder_BuildRejectsInvalidInitialState(t *testing.T) {
	_, err := NewBuilder().Build(State("enviada"))
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Build() error = %v, want %v", err, ErrInvalidState)
	}
}

func TestStateMachine_Immutability(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StatePending).Permit(TriggerFinalize, StateFinalized)

	machine1, _ := builder.Build(StatePending)
	machine2, _ := builder.Build(StatePending)

	if err := machine1.Fire(TriggerFinalize); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}

	if machine2.State() != StatePending {
		t.Errorf("machine2 state = %v, want %v", machine2.State(), StatePending)
	}
	if machine1.State() != StateFinalized {
		t.Errorf("machine1 state = %v, want %v", machine1.State(), StateFinalized)
	}
}

func TestMeasurementMachine_Table(t *testing.T) {
	tests := []struct {
		from    State
		trigger Trigger
		want    State
		wantErr bool
	}{
		{StatePending, TriggerFinalize, StateFinalized, false},
		{StatePending, TriggerCancel, StateCancelled, false},
		{StatePending, TriggerSend, "", true},
		{StateFinalized, TriggerSend, StateSent, false},
		{StateFinalized, TriggerFinalize, "", true},
		{StateFinalized, TriggerCancel, "", true},
		{StateCancelled, TriggerFinalize, "", true},
		{StateCancelled, TriggerSend, "", true},
		{StateSent, TriggerFinalize, "", true},
		{StateSent, TriggerCancel, "", true},
		{StateSent, TriggerSend, "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.trigger), func(t *testing.T) {
			got, err := NextState(tt.from, tt.trigger)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("NextState() error = %v, want %v", err, ErrInvalidTransition)
				}
				return
			}
			if err != nil {
				t.Fatalf("NextState() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("NextState() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMeasurementMachine_FailedFireKeepsState(t *testing.T) {
	machine, err := NewMeasurementMachine(StateCancelled)
	if err != nil {
		t.Fatalf("NewMeasurementMachine() error = %v", err)
	}

	if err := machine.Fire(TriggerFinalize); err == nil {
		t.Fatal("Fire() should fail from cancelled")
	}
	if machine.State() != StateCancelled {
		t.Errorf("State after failed Fire() = %v, want %v", machine.State(), StateCancelled)
	}
}

func TestMeasurementMachine_PermittedTriggers(t *testing.T) {
	machine, _ := NewMeasurementMachine(StatePending)

	triggers := machine.PermittedTriggers()
	if len(triggers) != 2 {
		t.Fatalf("PermittedTriggers() returned %d triggers, want 2", len(triggers))
	}
	if triggers[0] != TriggerCancel || triggers[1] != TriggerFinalize {
		t.Errorf("PermittedTriggers() = %v, want [CANCEL FINALIZE]", triggers)
	}

	terminal, _ := NewMeasurementMachine(StateSent)
	if got := terminal.PermittedTriggers(); len(got) != 0 {
		t.Errorf("PermittedTriggers() from sent = %v, want none", got)
	}
}

func TestMeasurementMachine_CanFire(t *testing.T) {
	machine, _ := NewMeasurementMachine(StateFinalized)

	if !machine.CanFire(TriggerSend) {
		t.Error("CanFire(SEND) from finalized should be true")
	}
	if machine.CanFire(TriggerCancel) {
		t.Error("CanFire(CANCEL) from finalized should be false")
	}
}

func TestMeasurementMachine_BuildsFromEveryStatus(t *testing.T) {
	want := map[State]int{
		StatePending:   2,
		StateFinalized: 1,
		StateCancelled: 0,
		StateSent:      0,
	}

	for state, triggers := range want {
		m, err := NewMeasurementMachine(state)
		if err != nil {
			t.Fatalf("NewMeasurementMachine(%s) unexpected error: %v", state, err)
		}
		if m.State() != state {
			t.Errorf("State() = %s, want %s", m.State(), state)
		}
		if got := len(m.PermittedTriggers()); got != triggers {
			t.Errorf("%s: %d permitted triggers, want %d", state, got, triggers)
		}
	}
}
