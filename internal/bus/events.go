package bus

import "time"

// EventType identifies the kind of control-plane event the runner emits for
// the UI layer. String values so events serialize cleanly if a UI forwards
// them as JSON.
type EventType string

const (
	// EventAgentStatus reports a lifecycle change for one unique agent id.
	EventAgentStatus EventType = "agent_status"

	// EventAgentLog carries one log line attributed to a unique agent id.
	EventAgentLog EventType = "agent_log"

	// EventInputState reports that the input prompt opened, advanced, or
	// closed; the payload snapshot lets the UI render the queue position.
	EventInputState EventType = "input_state"

	// EventCheckpoint reports an agent-requested checkpoint awaiting manual
	// review.
	EventCheckpoint EventType = "checkpoint"

	// EventWorkflowStatus reports the workflow-level status used for the
	// header line and the exit path.
	EventWorkflowStatus EventType = "workflow_status"

	// EventModeChanged reports that auto mode flipped.
	EventModeChanged EventType = "mode_changed"

	// EventPaused and EventResumed report pause-state changes regardless of
	// who initiated them (user keypress or agent directive).
	EventPaused  EventType = "paused"
	EventResumed EventType = "resumed"
)

// AgentStatus values an agent moves through, in the order the UI renders them.
type AgentStatus string

const (
	AgentPending   AgentStatus = "pending"
	AgentRunning   AgentStatus = "running"
	AgentCompleted AgentStatus = "completed"
	AgentSkipped   AgentStatus = "skipped"
	AgentFailed    AgentStatus = "failed"
	AgentRetrying  AgentStatus = "retrying"
)

// WorkflowStatus values for EventWorkflowStatus.
type WorkflowStatus string

const (
	WorkflowIdle      WorkflowStatus = "idle"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowPaused    WorkflowStatus = "paused"
	WorkflowError     WorkflowStatus = "error"
	WorkflowCompleted WorkflowStatus = "completed"
)

// InputState is the payload of EventInputState.
type InputState struct {
	// Active reports whether the orchestrator is currently waiting for input.
	Active bool `json:"active"`

	// QueuedPrompts holds the labels of the session's prompt queue.
	QueuedPrompts []string `json:"queuedPrompts,omitempty"`

	// CurrentIndex is the position within QueuedPrompts, -1 when inactive.
	CurrentIndex int `json:"currentIndex"`

	// MonitoringID identifies the step's telemetry stream.
	MonitoringID int `json:"monitoringId,omitempty"`
}

// Event is one control-plane emission. AgentID carries the unique agent id
// ("<agentId>:<stepIndex>") for agent-scoped events and is empty for
// workflow-scoped ones.
type Event struct {
	Type      EventType      `json:"type"`
	AgentID   string         `json:"agentId,omitempty"`
	Status    AgentStatus    `json:"status,omitempty"`
	Workflow  WorkflowStatus `json:"workflow,omitempty"`
	Message   string         `json:"message,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Auto      bool           `json:"auto,omitempty"`
	Input     *InputState    `json:"input,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Emitter publishes control-plane events to a single consumer channel. Sends
// never block the runner: when the consumer lags behind the buffer the event
// is dropped, matching the UI's tolerance for missed repaints.
type Emitter struct {
	ch chan Event
}

// defaultEventBuffer sizes the consumer channel. A busy step produces a
// handful of events; 128 absorbs an entire autonomous prompt replay.
const defaultEventBuffer = 128

// NewEmitter returns an Emitter with the given buffer capacity, or the
// default when buffer <= 0.
func NewEmitter(buffer int) *Emitter {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &Emitter{ch: make(chan Event, buffer)}
}

// Events returns the consumer channel. The channel is closed by Close.
func (e *Emitter) Events() <-chan Event { return e.ch }

// Emit publishes ev, stamping Timestamp when unset. Never blocks.
func (e *Emitter) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case e.ch <- ev:
	default:
	}
}

// AgentStatusEvent emits an EventAgentStatus for uid.
func (e *Emitter) AgentStatusEvent(uid string, status AgentStatus) {
	e.Emit(Event{Type: EventAgentStatus, AgentID: uid, Status: status})
}

// AgentLogEvent emits an EventAgentLog line attributed to uid.
func (e *Emitter) AgentLogEvent(uid, message string) {
	e.Emit(Event{Type: EventAgentLog, AgentID: uid, Message: message})
}

// InputStateEvent emits an EventInputState snapshot for uid.
func (e *Emitter) InputStateEvent(uid string, state InputState) {
	e.Emit(Event{Type: EventInputState, AgentID: uid, Input: &state})
}

// CheckpointEvent emits an EventCheckpoint with the agent-supplied reason.
func (e *Emitter) CheckpointEvent(uid, reason string) {
	e.Emit(Event{Type: EventCheckpoint, AgentID: uid, Reason: reason})
}

// WorkflowStatusEvent emits an EventWorkflowStatus.
func (e *Emitter) WorkflowStatusEvent(status WorkflowStatus) {
	e.Emit(Event{Type: EventWorkflowStatus, Workflow: status})
}

// ModeChangedEvent reports that auto mode flipped.
func (e *Emitter) ModeChangedEvent(auto bool) {
	e.Emit(Event{Type: EventModeChanged, Auto: auto})
}

// PausedEvent reports a workflow pause and who or what requested it.
func (e *Emitter) PausedEvent(reason string) {
	e.Emit(Event{Type: EventPaused, Reason: reason})
}

// ResumedEvent reports that a paused workflow resumed.
func (e *Emitter) ResumedEvent() {
	e.Emit(Event{Type: EventResumed})
}

// Close closes the consumer channel. Emit after Close panics; the runner owns
// the emitter and closes it only after the FSM reaches a terminal state.
func (e *Emitter) Close() { close(e.ch) }
