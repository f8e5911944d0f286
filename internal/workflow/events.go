package workflow

// Status names a workflow lifecycle state.
type Status string

// Workflow lifecycle states.
const (
	// StatusIdle is the initial state before the run loop starts.
	StatusIdle Status = "idle"

	// StatusRunning means an agent step is executing.
	StatusRunning Status = "running"

	// StatusAwaiting means the workflow is blocked on user input.
	StatusAwaiting Status = "awaiting"

	// StatusDelegated means a controller agent is supplying input
	// instead of the user.
	StatusDelegated Status = "delegated"

	// StatusPaused is a parallel flag state entered from any live
	// state; the pre-pause state is restored on resume.
	StatusPaused Status = "paused"

	// StatusFinal is the terminal success state.
	StatusFinal Status = "final"

	// StatusError is the terminal failure state. No event leaves it.
	StatusError Status = "error"
)

// Event names a workflow state machine trigger.
type Event string

// Workflow state machine events.
const (
	EventStart         Event = "START"
	EventWaitForInput  Event = "WAIT_FOR_INPUT"
	EventInputReceived Event = "INPUT_RECEIVED"
	EventEnterAuto     Event = "ENTER_AUTO"
	EventExitAuto      Event = "EXIT_AUTO"
	EventPause         Event = "PAUSE"
	EventResume        Event = "RESUME"
	EventStop          Event = "STOP"
	EventComplete      Event = "COMPLETE"
	EventFail          Event = "FAIL"
)

// Transition records a single state change made by the machine.
// Observers receive a copy after the new state is committed.
type Transition struct {
	From  Status
	To    Status
	Event Event
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusFinal || s == StatusError
}
