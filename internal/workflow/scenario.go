package workflow

// ModeKind names the handler that drives a step session.
type ModeKind string

const (
	// ModeInteractive waits for input between prompts, from the user
	// or from the controller agent.
	ModeInteractive ModeKind = "interactive"

	// ModeAutonomous replays the step's own prompt queue without
	// waiting, one engine run per queued prompt.
	ModeAutonomous ModeKind = "autonomous"

	// ModeContinuous advances to the next step as soon as the engine
	// run finishes.
	ModeContinuous ModeKind = "continuous"
)

// Scenario is the resolved execution shape for one step. It is keyed on
// three booleans: whether the step is interactive, whether the workflow
// is in autonomous mode, and whether the step queues chained prompts.
//
// The two non-interactive non-autonomous rows (7 and 8) cannot make
// progress on their own, so they are forced interactive and flagged
// with WasForced.
type Scenario struct {
	Number int

	Interactive       bool
	AutoMode          bool
	HasChainedPrompts bool

	// ShouldWait means the session blocks on an input provider
	// between prompts instead of advancing on its own.
	ShouldWait bool

	// AutonomousLoop marks scenario 5: the chained prompt queue is
	// replayed without waiting.
	AutonomousLoop bool

	// WasForced records that the step was promoted to interactive
	// because neither autonomous mode nor a meaningful non-interactive
	// shape applied.
	WasForced bool
}

// Mode returns the handler kind for the scenario.
func (s Scenario) Mode() ModeKind {
	switch {
	case s.AutonomousLoop:
		return ModeAutonomous
	case !s.ShouldWait:
		return ModeContinuous
	default:
		return ModeInteractive
	}
}

// ResolveScenario maps a step's effective flags onto one of the eight
// execution scenarios. interactive is three-valued: nil derives it from
// hasChained, so a step that queues chained prompts defaults to
// interactive and a single-prompt step defaults to non-interactive.
func ResolveScenario(interactive *bool, autoMode, hasChained bool) Scenario {
	eff := hasChained
	if interactive != nil {
		eff = *interactive
	}

	s := Scenario{
		Interactive:       eff,
		AutoMode:          autoMode,
		HasChainedPrompts: hasChained,
	}

	switch {
	case eff:
		// Scenarios 1-4: interactive steps always wait, whether or
		// not the workflow is autonomous. Autonomy only changes who
		// answers.
		s.ShouldWait = true
	case autoMode && hasChained:
		// Scenario 5: replay the chained prompts unattended.
		s.AutonomousLoop = true
	case autoMode:
		// Scenario 6: single prompt, no waiting, advance on exit.
	default:
		// Scenarios 7-8: a non-interactive step outside autonomous
		// mode would stall, so force it interactive.
		s.Interactive = true
		s.ShouldWait = true
		s.WasForced = true
	}

	s.Number = scenarioNumber(eff, autoMode, hasChained)
	return s
}

func scenarioNumber(interactive, autoMode, hasChained bool) int {
	n := 1
	if !interactive {
		n += 4
	}
	if !autoMode {
		n += 2
	}
	if !hasChained {
		n++
	}
	return n
}
