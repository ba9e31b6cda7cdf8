package workflow

// StateMachine tracks the current status of one measurement and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is permitted in the current state
	CanFire(trigger Trigger) bool

	// Target returns the state the trigger would move to without changing the machine
	Target(trigger Trigger) (State, error)

	// Fire executes the trigger, moving to the new state if permitted
	Fire(trigger Trigger) error

	// PermittedTriggers returns all triggers that can be fired in the current state
	PermittedTriggers() []Trigger
}
