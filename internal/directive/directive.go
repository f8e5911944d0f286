// Package directive implements the file-based IPC channel agents use
// to steer the orchestrator. Agents write a small JSON document; the
// runner reads it after each step execution and evaluates it against
// the step's behavior.
package directive

// Action is the instruction vocabulary agents may write.
type Action string

const (
	// ActionContinue is the explicit no-op, and the value the runner
	// writes to clear the store.
	ActionContinue Action = "continue"

	// ActionLoop asks to rewind; it only takes effect on steps with a
	// loop behavior.
	ActionLoop Action = "loop"

	// ActionStop ends the workflow cleanly.
	ActionStop Action = "stop"

	// ActionError ends the workflow with a reported failure reason.
	ActionError Action = "error"

	// ActionCheckpoint pauses and surfaces the reason for manual
	// review; the workflow is resumable.
	ActionCheckpoint Action = "checkpoint"

	// ActionPause is an agent-initiated pause, distinct from a user
	// keypress pause.
	ActionPause Action = "pause"

	// ActionTrigger asks to execute a specific other agent before
	// advancing; it only takes effect on steps with a trigger
	// behavior.
	ActionTrigger Action = "trigger"
)

// Known reports whether a is part of the directive vocabulary.
func (a Action) Known() bool {
	switch a {
	case ActionContinue, ActionLoop, ActionStop, ActionError,
		ActionCheckpoint, ActionPause, ActionTrigger:
		return true
	}
	return false
}

// Directive is the parsed content of the directive file.
type Directive struct {
	Action Action `json:"action"`

	// Reason is free text shown to the user for error, checkpoint and
	// pause actions.
	Reason string `json:"reason,omitempty"`

	// TriggerAgentID names the agent a trigger directive wants to
	// run. When empty, the step behavior's default target applies.
	TriggerAgentID string `json:"triggerAgentId,omitempty"`
}

// Continue is the neutral directive: what a missing or cleared file
// means.
var Continue = Directive{Action: ActionContinue}
