package workflow

import "fmt"

// Severity classifies a validation issue.
type Severity string

const (
	// SeverityError blocks the run.
	SeverityError Severity = "error"

	// SeverityWarning is reported but does not block the run.
	SeverityWarning Severity = "warning"
)

// Validation issue codes.
const (
	IssueEmptyTemplate     = "EMPTY_TEMPLATE"
	IssueNoExecutableSteps = "NO_EXECUTABLE_STEPS"
	IssueUnknownAgent      = "UNKNOWN_AGENT"
	IssueUnknownModule     = "UNKNOWN_MODULE"
	IssueUnknownTrigger    = "UNKNOWN_TRIGGER_TARGET"
	IssueUnknownTrack      = "UNKNOWN_TRACK"
	IssueUnknownCondition  = "UNKNOWN_CONDITION"
	IssueLoopRange         = "LOOP_RANGE"
	IssueMissingPrompt     = "MISSING_PROMPT"
	IssueBadAutonomous     = "BAD_AUTONOMOUS_MODE"
	IssueNoController      = "NO_CONTROLLER"
	IssueBadBehavior       = "BAD_BEHAVIOR"
)

// ValidationIssue is a single problem found in a template. StepIndex is
// -1 for template-level issues.
type ValidationIssue struct {
	Code      string
	Severity  Severity
	StepIndex int
	Message   string
}

func (i ValidationIssue) String() string {
	if i.StepIndex < 0 {
		return fmt.Sprintf("[%s] %s: %s", i.Severity, i.Code, i.Message)
	}
	return fmt.Sprintf("[%s] %s (step %d): %s", i.Severity, i.Code, i.StepIndex, i.Message)
}

// HasErrors reports whether any issue in the list is an error.
func HasErrors(issues []ValidationIssue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate checks a template against the registry and returns every
// issue found. Call it after Normalize so module references are already
// resolved; unresolved modules are still reported rather than panicking.
func Validate(t *Template, reg *Registry) []ValidationIssue {
	var issues []ValidationIssue

	tmpl := func(code string, sev Severity, format string, args ...any) {
		issues = append(issues, ValidationIssue{Code: code, Severity: sev, StepIndex: -1, Message: fmt.Sprintf(format, args...)})
	}
	step := func(code string, sev Severity, idx int, format string, args ...any) {
		issues = append(issues, ValidationIssue{Code: code, Severity: sev, StepIndex: idx, Message: fmt.Sprintf(format, args...)})
	}

	if len(t.Steps) == 0 {
		tmpl(IssueEmptyTemplate, SeverityError, "template %q has no steps", t.Name)
		return issues
	}
	if ExecutableCount(t.Steps) == 0 {
		tmpl(IssueNoExecutableSteps, SeverityWarning, "template %q contains only separators; a run will finish immediately", t.Name)
	}

	switch t.AutonomousMode {
	case "", AutoNever, AutoOptional, AutoAlways:
	default:
		tmpl(IssueBadAutonomous, SeverityError, "autonomousMode %q is not one of never, optional, always", t.AutonomousMode)
	}
	if t.AutonomousMode == AutoAlways && t.Controller == "" {
		tmpl(IssueNoController, SeverityError, "autonomousMode is always but no controller agent is set")
	}
	if t.Controller != "" && reg != nil && !reg.HasAgent(t.Controller) {
		tmpl(IssueUnknownAgent, SeverityError, "controller %q is not a registered agent", t.Controller)
	}

	for i, s := range t.Steps {
		if s.Separator {
			continue
		}

		if s.Module != nil && reg != nil {
			if _, ok := reg.ModuleByID(s.Module.ID); !ok {
				step(IssueUnknownModule, SeverityError, i, "unknown module %q", s.Module.ID)
			}
		}
		if s.AgentID == "" {
			step(IssueUnknownAgent, SeverityError, i, "step has no agent; was the template normalized?")
		} else if reg != nil && !reg.HasAgent(s.AgentID) {
			step(IssueUnknownAgent, SeverityError, i, "unknown agent %q", s.AgentID)
		}

		if len(s.PromptPath) == 0 {
			step(IssueMissingPrompt, SeverityWarning, i, "step %q queues no prompts", s.AgentID)
		}

		for _, tr := range s.Tracks {
			if !t.HasTrack(tr) {
				step(IssueUnknownTrack, SeverityError, i, "track %q is not declared by the template", tr)
			}
		}
		for _, c := range s.Conditions {
			if !t.HasCondition(c) {
				step(IssueUnknownCondition, SeverityError, i, "condition %q is not offered by any group", c)
			}
		}
		for _, c := range s.ConditionsAny {
			if !t.HasCondition(c) {
				step(IssueUnknownCondition, SeverityError, i, "condition %q is not offered by any group", c)
			}
		}

		issues = append(issues, validateBehavior(s, i, reg)...)
	}

	return issues
}

func validateBehavior(s Step, idx int, reg *Registry) []ValidationIssue {
	b := s.BehaviorSpec()
	if b == nil {
		return nil
	}

	var issues []ValidationIssue
	add := func(code string, sev Severity, format string, args ...any) {
		issues = append(issues, ValidationIssue{Code: code, Severity: sev, StepIndex: idx, Message: fmt.Sprintf(format, args...)})
	}

	switch b.Type {
	case BehaviorLoop:
		if b.Action != ActionStepBack {
			add(IssueBadBehavior, SeverityError, "loop behavior requires action %q, got %q", ActionStepBack, b.Action)
		}
		if b.Steps <= 0 {
			add(IssueLoopRange, SeverityError, "loop behavior must rewind at least one step, got %d", b.Steps)
		} else if b.Steps > idx {
			// The rewind clamps to step 0 at runtime; flag it so the
			// author knows the target is out of range.
			add(IssueLoopRange, SeverityWarning, "loop rewinds %d steps from index %d; target clamps to 0", b.Steps, idx)
		}
		if b.MaxIterations < 0 {
			add(IssueLoopRange, SeverityError, "maxIterations must be >= 0, got %d", b.MaxIterations)
		}
		for _, id := range b.Skip {
			if reg != nil && !reg.HasAgent(id) {
				add(IssueUnknownAgent, SeverityWarning, "loop skip entry %q is not a registered agent", id)
			}
		}
	case BehaviorTrigger:
		if b.Action != ActionMainAgentCall {
			add(IssueBadBehavior, SeverityError, "trigger behavior requires action %q, got %q", ActionMainAgentCall, b.Action)
		}
		if b.TriggerAgentID == "" {
			// Not fatal: a trigger directive can name its own target,
			// so the behavior default is optional.
			add(IssueUnknownTrigger, SeverityWarning, "trigger behavior names no default target agent")
		} else if reg != nil && !reg.HasAgent(b.TriggerAgentID) {
			add(IssueUnknownTrigger, SeverityError, "trigger target %q is not a registered agent", b.TriggerAgentID)
		}
	default:
		add(IssueBadBehavior, SeverityError, "unknown behavior type %q", b.Type)
	}

	return issues
}
