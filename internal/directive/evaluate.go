package directive

import (
	"fmt"

	"github.com/codemachine-ai/codemachine/internal/workflow"
)

// DecisionKind names what the runner does with an evaluated directive.
type DecisionKind string

const (
	// DecisionAdvance moves to the next step. It is the default when
	// no evaluator claims the directive.
	DecisionAdvance DecisionKind = "advance"

	// DecisionLoop rewinds the step index by StepsBack.
	DecisionLoop DecisionKind = "loop"

	// DecisionTrigger runs TriggerAgentID before advancing.
	DecisionTrigger DecisionKind = "trigger"

	// DecisionPause pauses the workflow until the user resumes it.
	DecisionPause DecisionKind = "pause"

	// DecisionCheckpoint pauses and surfaces Reason for review.
	DecisionCheckpoint DecisionKind = "checkpoint"

	// DecisionStop ends the workflow cleanly.
	DecisionStop DecisionKind = "stop"

	// DecisionError ends the workflow with a failure.
	DecisionError DecisionKind = "error"
)

// Decision is the outcome of evaluating a directive against a step.
type Decision struct {
	Kind   DecisionKind
	Reason string

	// StepsBack is how far a loop decision rewinds.
	StepsBack int

	// TriggerAgentID is the resolved target of a trigger decision.
	TriggerAgentID string
}

// EvalContext carries the runner state the evaluators need. Evaluators
// are pure: they read the context, they never mutate it.
type EvalContext struct {
	// StepIndex is the current position in the filtered step list.
	StepIndex int

	// Iterations counts executions of this step so far, including the
	// one that just finished.
	Iterations int

	// KnownAgent reports whether an agent id is registered. A trigger
	// naming an unknown agent is rejected.
	KnownAgent func(id string) bool
}

// Evaluator inspects one directive aspect and returns a decision, or
// nil when it does not apply.
type Evaluator func(b *workflow.Behavior, d Directive, ctx EvalContext) *Decision

// EvaluateError claims error directives. Universal: no behavior gate.
func EvaluateError(_ *workflow.Behavior, d Directive, _ EvalContext) *Decision {
	if d.Action != ActionError {
		return nil
	}
	return &Decision{Kind: DecisionError, Reason: d.Reason}
}

// EvaluateCheckpoint claims checkpoint directives. Universal.
func EvaluateCheckpoint(_ *workflow.Behavior, d Directive, _ EvalContext) *Decision {
	if d.Action != ActionCheckpoint {
		return nil
	}
	return &Decision{Kind: DecisionCheckpoint, Reason: d.Reason}
}

// EvaluateLoop claims loop directives on steps with a loop behavior.
// The iteration cap allows maxIterations repeats after the initial
// execution; once it is hit the decision degrades to an advance that
// carries the limit reason.
func EvaluateLoop(b *workflow.Behavior, d Directive, ctx EvalContext) *Decision {
	if d.Action != ActionLoop {
		return nil
	}
	if b == nil || b.Type != workflow.BehaviorLoop {
		return nil
	}

	if b.MaxIterations > 0 && ctx.Iterations > b.MaxIterations {
		return &Decision{
			Kind:   DecisionAdvance,
			Reason: fmt.Sprintf("loop limit reached (%d)", b.MaxIterations),
		}
	}
	return &Decision{Kind: DecisionLoop, StepsBack: b.Steps, Reason: d.Reason}
}

// EvaluateTrigger claims trigger directives on steps with a trigger
// behavior. The target is the directive's agent id, falling back to
// the behavior's default. An unknown or missing target rejects the
// directive entirely (nil), so the chain falls through to an advance.
func EvaluateTrigger(b *workflow.Behavior, d Directive, ctx EvalContext) *Decision {
	if d.Action != ActionTrigger {
		return nil
	}
	if b == nil || b.Type != workflow.BehaviorTrigger {
		return nil
	}

	target := d.TriggerAgentID
	if target == "" {
		target = b.TriggerAgentID
	}
	if target == "" {
		return nil
	}
	if ctx.KnownAgent != nil && !ctx.KnownAgent(target) {
		return nil
	}
	return &Decision{Kind: DecisionTrigger, TriggerAgentID: target, Reason: d.Reason}
}

// EvaluatePause claims pause directives. Universal.
func EvaluatePause(_ *workflow.Behavior, d Directive, _ EvalContext) *Decision {
	if d.Action != ActionPause {
		return nil
	}
	return &Decision{Kind: DecisionPause, Reason: d.Reason}
}

// EvaluateStop claims stop directives. Universal.
func EvaluateStop(_ *workflow.Behavior, d Directive, _ EvalContext) *Decision {
	if d.Action != ActionStop {
		return nil
	}
	return &Decision{Kind: DecisionStop, Reason: d.Reason}
}

// chain is the fixed priority order. The first non-nil result wins;
// later evaluators never override an earlier decision.
var chain = []Evaluator{
	EvaluateError,
	EvaluateCheckpoint,
	EvaluateLoop,
	EvaluateTrigger,
	EvaluatePause,
	EvaluateStop,
}

// Evaluate runs the priority chain over a directive and returns the
// winning decision. A continue directive, an unclaimed action, or a
// rejected trigger all come back as a plain advance.
func Evaluate(b *workflow.Behavior, d Directive, ctx EvalContext) Decision {
	for _, eval := range chain {
		if dec := eval(b, d, ctx); dec != nil {
			return *dec
		}
	}
	return Decision{Kind: DecisionAdvance}
}
