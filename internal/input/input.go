// Package input supplies the "what next" answers an interactive step
// blocks on. Two providers implement the same contract: one asks the
// user through an inline terminal prompt, the other delegates to the
// workflow's controller agent. The Mode type decides which of the two
// is live at any moment.
package input

import (
	"context"
	"errors"
)

// Result sources.
const (
	// SourceUser marks input typed by the user.
	SourceUser = "user"

	// SourceController marks input produced by the controller agent.
	SourceController = "controller"
)

// Mode-switch sentinels. A provider returns one of these in Result.Mode
// to flip the workflow between manual and delegated input without
// resuming the step.
const (
	SwitchToAuto   = "__SWITCH_TO_AUTO__"
	SwitchToManual = "__SWITCH_TO_MANUAL__"
)

// ErrAborted is returned when the user abandons the input prompt
// (Ctrl+C or Esc) rather than answering it.
var ErrAborted = errors.New("input aborted by user")

// ErrDeactivated is returned when Deactivate interrupts an in-flight
// AwaitInput. The caller re-awaits on whichever provider is active now.
var ErrDeactivated = errors.New("input provider deactivated")

// StepContext tells a provider what the workflow is waiting on.
type StepContext struct {
	// AgentID and AgentName identify the awaiting step's agent.
	AgentID   string
	AgentName string

	// StepIndex is the step's position in the filtered step list.
	StepIndex int

	// MonitoringID is the awaiting step's telemetry stream id.
	MonitoringID int

	// NextPrompt is the label of the next queued prompt, or "" when
	// the queue is exhausted and the only options are free text or
	// advancing past the step.
	NextPrompt string

	// Remaining counts prompts still queued, including NextPrompt.
	Remaining int

	// Output is the step's subprocess output so far. The controller
	// provider reads it; the user sees it in their own terminal
	// already.
	Output string
}

// Result is a provider's answer.
type Result struct {
	// Source is SourceUser or SourceController.
	Source string

	// Text is the instruction to feed the agent. Empty text means
	// "advance": run the next queued prompt, or finish the step when
	// the queue is exhausted.
	Text string

	// MonitoringID attributes the input for the UI: the awaiting
	// step's id for user input, the controller's id for delegated
	// input.
	MonitoringID int

	// Mode, when set, is SwitchToAuto or SwitchToManual and replaces
	// the answer entirely: the runner flips the mode and awaits again.
	Mode string
}

// ModeSwitch reports whether the result is a mode flip rather than an
// answer.
func (r Result) ModeSwitch() bool { return r.Mode != "" }

// Provider is one source of input answers. Activate and Deactivate
// bracket the periods a provider may be awaited on; Deactivate must
// promptly interrupt an in-flight AwaitInput with ErrDeactivated.
// Providers tolerate repeated activation and deactivation in any order.
type Provider interface {
	Activate()
	Deactivate()
	AwaitInput(ctx context.Context, sc StepContext) (Result, error)
}

// waitGate implements the activate/deactivate bookkeeping both
// providers share. An in-flight wait registers its cancel func; a
// deactivation fires it.
type waitGate struct {
	active     bool
	cancelWait context.CancelFunc
}

func (g *waitGate) activate() { g.active = true }

func (g *waitGate) deactivate() context.CancelFunc {
	g.active = false
	cancel := g.cancelWait
	g.cancelWait = nil
	return cancel
}

func (g *waitGate) beginWait(cancel context.CancelFunc) {
	g.cancelWait = cancel
}

func (g *waitGate) endWait() {
	g.cancelWait = nil
}
