package workflow

// Built-in template names.
const (
	// TemplateBuild is the default plan-then-implement workflow.
	TemplateBuild = "build"

	// TemplateReview is the code-review workflow with fast and
	// thorough tracks.
	TemplateReview = "review"
)

// Built-in agent ids.
const (
	AgentArchitect   = "architect"
	AgentPlanner     = "planner"
	AgentImplementer = "implementer"
	AgentQA          = "qa"
	AgentReviewer    = "reviewer"
	AgentController  = "controller"
)

// Built-in module ids.
const (
	// ModuleImplementLoop wraps the implementer with a step-back loop
	// so it can request another pass over its own work.
	ModuleImplementLoop = "implement-loop"

	// ModuleQAGate wraps the QA agent with a trigger behavior that
	// can hand control back to the implementer.
	ModuleQAGate = "qa-gate"
)

func init() {
	RegisterBuiltins(DefaultRegistry)
}

// RegisterBuiltins installs the built-in agents, modules and templates
// into reg. Tests use it to populate a fresh registry without touching
// the shared one.
func RegisterBuiltins(reg *Registry) {
	reg.RegisterAgent(Agent{ID: AgentArchitect, Name: "Architect"})
	reg.RegisterAgent(Agent{ID: AgentPlanner, Name: "Planner"})
	reg.RegisterAgent(Agent{ID: AgentImplementer, Name: "Implementer"})
	reg.RegisterAgent(Agent{ID: AgentQA, Name: "QA"})
	reg.RegisterAgent(Agent{ID: AgentReviewer, Name: "Reviewer"})
	reg.RegisterAgent(Agent{ID: AgentController, Name: "Controller"})

	reg.RegisterModule(Module{
		ID:      ModuleImplementLoop,
		AgentID: AgentImplementer,
		Name:    "Implement",
		Behavior: &Behavior{
			Type:          BehaviorLoop,
			Action:        ActionStepBack,
			Steps:         1,
			MaxIterations: 3,
		},
	})
	reg.RegisterModule(Module{
		ID:      ModuleQAGate,
		AgentID: AgentQA,
		Name:    "QA Gate",
		Behavior: &Behavior{
			Type:           BehaviorTrigger,
			Action:         ActionMainAgentCall,
			TriggerAgentID: AgentImplementer,
		},
	})

	reg.RegisterTemplate(buildTemplate())
	reg.RegisterTemplate(reviewTemplate())
}

// buildTemplate is the default workflow: architecture and planning up
// front, then an implement/verify loop with a final review.
func buildTemplate() *Template {
	return &Template{
		Name:           TemplateBuild,
		Description:    "Plan the work, implement it in passes, verify and review",
		AutonomousMode: AutoOptional,
		Controller:     AgentController,
		Steps: []Step{
			NewSeparator("Plan"),
			NewStep(AgentArchitect,
				WithPrompt("prompts/build/architecture.md"),
				WithExecuteOnce(),
			),
			NewStep(AgentPlanner,
				WithPrompt(
					"prompts/build/plan-core.md",
					"prompts/build/plan-detail.md",
				),
			),
			NewSeparator("Build"),
			NewModule(ModuleImplementLoop,
				WithPrompt("prompts/build/implement.md"),
			),
			NewModule(ModuleQAGate,
				WithPrompt("prompts/build/verify.md"),
			),
			NewStep(AgentReviewer,
				WithPrompt("prompts/build/review.md"),
				WithInteractive(false),
			),
		},
	}
}

// reviewTemplate is the code-review workflow. The track picks review
// depth; condition flags add focused passes.
func reviewTemplate() *Template {
	return &Template{
		Name:           TemplateReview,
		Description:    "Review a change set at the chosen depth",
		AutonomousMode: AutoNever,
		Tracks: []Track{
			{ID: "fast", Label: "Fast single pass"},
			{ID: "thorough", Label: "Thorough multi-pass"},
		},
		ConditionGroups: []ConditionGroup{
			{
				ID:    "focus",
				Label: "Focus areas",
				Options: []ConditionOption{
					{ID: "security", Label: "Security"},
					{ID: "performance", Label: "Performance"},
					{ID: "style", Label: "Style and consistency"},
				},
			},
		},
		Steps: []Step{
			NewSeparator("Review"),
			NewStep(AgentReviewer,
				WithPrompt("prompts/review/context.md"),
				WithExecuteOnce(),
			),
			NewStep(AgentReviewer,
				WithPrompt("prompts/review/quick-pass.md"),
				WithTracks("fast"),
			),
			NewStep(AgentReviewer,
				WithPrompt(
					"prompts/review/deep-pass.md",
					"prompts/review/deep-followup.md",
				),
				WithTracks("thorough"),
			),
			NewStep(AgentReviewer,
				WithPrompt("prompts/review/risk-map.md"),
				WithTracks("thorough"),
				WithInteractive(false),
			),
			NewStep(AgentQA,
				WithPrompt("prompts/review/security.md"),
				WithConditions("security"),
			),
			NewStep(AgentQA,
				WithPrompt("prompts/review/perf-style.md"),
				WithConditionsAny("performance", "style"),
			),
			NewModule(ModuleQAGate,
				WithPrompt("prompts/review/verdict.md"),
			),
		},
	}
}
