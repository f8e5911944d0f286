package workflow

// StepOption overrides a field on a step produced by one of the
// builders.
type StepOption func(*Step)

// WithPrompt queues the given prompt files on the step, replacing any
// module defaults. More than one path makes the step chained.
func WithPrompt(paths ...string) StepOption {
	return func(s *Step) { s.PromptPath = append([]string(nil), paths...) }
}

// WithAgentName overrides the display name shown for the step.
func WithAgentName(name string) StepOption {
	return func(s *Step) { s.AgentName = name }
}

// WithEngine pins the step to a specific engine id.
func WithEngine(id string) StepOption {
	return func(s *Step) { s.Engine = id }
}

// WithModel sets the model passed to the engine for this step.
func WithModel(model string) StepOption {
	return func(s *Step) { s.Model = model }
}

// WithReasoningEffort sets the engine's reasoning effort for this step.
func WithReasoningEffort(effort string) StepOption {
	return func(s *Step) { s.ModelReasoningEffort = effort }
}

// WithExecuteOnce marks the step as run-once: it is skipped on any
// later run that finds it completed, even after chains are cleared.
func WithExecuteOnce() StepOption {
	return func(s *Step) { s.ExecuteOnce = true }
}

// WithInteractive forces the step interactive or non-interactive.
// Builders leave the flag unset by default, in which case it derives
// from whether the step queues chained prompts.
func WithInteractive(v bool) StepOption {
	return func(s *Step) { s.Interactive = &v }
}

// WithTracks restricts the step to the named tracks.
func WithTracks(ids ...string) StepOption {
	return func(s *Step) { s.Tracks = append([]string(nil), ids...) }
}

// WithConditions requires every named condition to be selected.
func WithConditions(ids ...string) StepOption {
	return func(s *Step) { s.Conditions = append([]string(nil), ids...) }
}

// WithConditionsAny requires at least one named condition selected.
func WithConditionsAny(ids ...string) StepOption {
	return func(s *Step) { s.ConditionsAny = append([]string(nil), ids...) }
}

// NewStep builds a plain module step for the given agent.
func NewStep(agentID string, opts ...StepOption) Step {
	s := Step{AgentID: agentID}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// NewModule builds a step from a registered module. The module's agent,
// default prompts and behavior are resolved against the registry when
// the template is normalized, so unknown module ids surface as
// validation issues rather than panics here.
func NewModule(moduleID string, opts ...StepOption) Step {
	s := Step{Module: &ModuleRef{ID: moduleID}}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// NewSeparator builds a structural header step. Separators occupy an
// index but never execute and never record state.
func NewSeparator(text string) Step {
	return Step{Separator: true, Text: text}
}
