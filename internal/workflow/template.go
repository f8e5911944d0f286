// Package workflow defines what a run executes: templates and their
// steps, the module/agent/template registries, launch-time filtering
// by track and condition, template validation, the workflow state
// machine, and the scenario resolver that decides how each step gets
// its input.
package workflow

import (
	"fmt"
	"strings"
)

// AutonomousMode controls whether a template may delegate input to a
// controller agent.
type AutonomousMode string

const (
	// AutoNever disables controller delegation for the template.
	AutoNever AutonomousMode = "never"

	// AutoOptional lets the user toggle delegation at launch and at
	// runtime. This is the default.
	AutoOptional AutonomousMode = "optional"

	// AutoAlways starts the workflow in delegated mode.
	AutoAlways AutonomousMode = "always"
)

// BehaviorType distinguishes the two module behaviors.
type BehaviorType string

const (
	// BehaviorLoop rewinds the workflow a fixed number of steps when
	// the module's agent asks for another pass.
	BehaviorLoop BehaviorType = "loop"

	// BehaviorTrigger hands control to a named agent when the
	// module's agent requests it.
	BehaviorTrigger BehaviorType = "trigger"
)

// Behavior actions.
const (
	// ActionStepBack is the loop behavior's rewind action.
	ActionStepBack = "stepBack"

	// ActionMainAgentCall is the trigger behavior's delegation action.
	ActionMainAgentCall = "mainAgentCall"
)

// Behavior describes the control-flow contract a module attaches to its
// step. Loop behaviors carry Steps and MaxIterations, trigger behaviors
// carry TriggerAgentID.
type Behavior struct {
	Type BehaviorType `json:"type"`

	// Action is ActionStepBack for loops and ActionMainAgentCall for
	// triggers.
	Action string `json:"action"`

	// Steps is how far a loop rewinds, counted in step-list positions
	// from the looping step. Values larger than the current index
	// clamp to the start of the workflow.
	Steps int `json:"steps,omitempty"`

	// MaxIterations caps how many times the looping step may execute.
	// Zero means unlimited.
	MaxIterations int `json:"maxIterations,omitempty"`

	// Skip lists agent ids that are passed over while the rewound
	// range replays.
	Skip []string `json:"skip,omitempty"`

	// TriggerAgentID names the default agent a trigger behavior
	// delegates to when the directive does not name one.
	TriggerAgentID string `json:"triggerAgentId,omitempty"`
}

// ModuleRef ties a step to a registered module. Behavior is resolved
// from the module registry when the template is normalized.
type ModuleRef struct {
	ID       string    `json:"id"`
	Behavior *Behavior `json:"behavior,omitempty"`
}

// Step is one entry in a template's step list. A step is either a
// separator (Text set, everything else empty) or a module step that
// executes an agent. Module steps produced by the module builder also
// carry a ModuleRef with the module's behavior.
type Step struct {
	// Separator marks a structural header. Separators occupy an index
	// in the step list but never execute and never record state.
	Separator bool   `json:"separator,omitempty"`
	Text      string `json:"text,omitempty"`

	AgentID   string `json:"agentId,omitempty"`
	AgentName string `json:"agentName,omitempty"`

	// PromptPath lists the prompt files queued for the step, in order.
	// A multi-entry path makes the step "chained": each file becomes
	// one queued prompt for the input provider.
	PromptPath []string `json:"promptPath,omitempty"`

	// Engine optionally pins the step to a specific engine. The
	// runner falls back to the registry order when the pinned engine
	// is not authenticated.
	Engine string `json:"engine,omitempty"`

	Model                string `json:"model,omitempty"`
	ModelReasoningEffort string `json:"modelReasoningEffort,omitempty"`

	// ExecuteOnce skips the step on any run after the one that
	// completed it, including reruns after ClearChains.
	ExecuteOnce bool `json:"executeOnce,omitempty"`

	// Interactive is three-valued: nil means "derive from the prompt
	// queue" (chained prompts imply interactive).
	Interactive *bool `json:"interactive,omitempty"`

	// Tracks, Conditions and ConditionsAny gate the step on the
	// user's launch selection. Empty slices impose no gate.
	Tracks        []string `json:"tracks,omitempty"`
	Conditions    []string `json:"conditions,omitempty"`
	ConditionsAny []string `json:"conditionsAny,omitempty"`

	Module *ModuleRef `json:"module,omitempty"`
}

// UID returns the step's unique agent id for the given step-list index,
// "<agentId>:<index>". Every subsystem that tracks per-step state keys
// on this id so that repeated agents stay distinguishable.
func (s Step) UID(index int) string {
	return fmt.Sprintf("%s:%d", s.AgentID, index)
}

// BehaviorSpec returns the step's module behavior, or nil for plain
// steps and separators.
func (s Step) BehaviorSpec() *Behavior {
	if s.Module == nil {
		return nil
	}
	return s.Module.Behavior
}

// Chained reports whether the step queues more than one prompt.
func (s Step) Chained() bool {
	return len(s.PromptPath) > 1
}

// Track is a labelled branch the user picks one of at launch.
type Track struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

// ConditionOption is a single selectable flag inside a condition group.
type ConditionOption struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

// ConditionGroup bundles related condition flags for the launch wizard.
type ConditionGroup struct {
	ID      string            `json:"id"`
	Label   string            `json:"label,omitempty"`
	Options []ConditionOption `json:"options"`
}

// Template is a complete workflow definition: an ordered step list plus
// the launch-time selection surface (tracks and condition groups) and
// the autonomous-mode policy.
type Template struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	AutonomousMode AutonomousMode `json:"autonomousMode,omitempty"`

	// Controller names the agent that supplies input while the
	// workflow runs in delegated mode. Empty disables delegation
	// regardless of AutonomousMode.
	Controller string `json:"controller,omitempty"`

	Tracks          []Track          `json:"tracks,omitempty"`
	ConditionGroups []ConditionGroup `json:"conditionGroups,omitempty"`

	Steps []Step `json:"steps"`
}

// Selection is the user's launch-time choice of track and condition
// flags. It is persisted with step tracking so resumed runs filter the
// step list the same way.
type Selection struct {
	Track      string
	Conditions []string
}

// HasTrack reports whether the template defines any tracks.
func (t *Template) HasTrack(id string) bool {
	for _, tr := range t.Tracks {
		if tr.ID == id {
			return true
		}
	}
	return false
}

// HasCondition reports whether any condition group offers id.
func (t *Template) HasCondition(id string) bool {
	for _, g := range t.ConditionGroups {
		for _, opt := range g.Options {
			if opt.ID == id {
				return true
			}
		}
	}
	return false
}

// DelegationAllowed reports whether the template can ever run in
// delegated mode.
func (t *Template) DelegationAllowed() bool {
	return t.Controller != "" && t.AutonomousMode != AutoNever
}

// FilterSteps returns the steps that survive the launch selection,
// preserving order. Separators carry no gates and always survive. A
// module step survives when:
//
//   - it declares no tracks, or the selected track is among them
//   - every entry of Conditions is selected
//   - ConditionsAny is empty, or at least one entry is selected
//
// Step indices, and therefore unique agent ids, refer to positions in
// the filtered list.
func FilterSteps(steps []Step, sel Selection) []Step {
	selected := make(map[string]bool, len(sel.Conditions))
	for _, c := range sel.Conditions {
		selected[c] = true
	}

	out := make([]Step, 0, len(steps))
	for _, s := range steps {
		if s.Separator {
			out = append(out, s)
			continue
		}
		if len(s.Tracks) > 0 && !containsString(s.Tracks, sel.Track) {
			continue
		}
		if !allSelected(s.Conditions, selected) {
			continue
		}
		if len(s.ConditionsAny) > 0 && !anySelected(s.ConditionsAny, selected) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// ExecutableCount returns the number of non-separator steps.
func ExecutableCount(steps []Step) int {
	n := 0
	for _, s := range steps {
		if !s.Separator {
			n++
		}
	}
	return n
}

func containsString(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

func allSelected(required []string, selected map[string]bool) bool {
	for _, r := range required {
		if !selected[r] {
			return false
		}
	}
	return true
}

func anySelected(candidates []string, selected map[string]bool) bool {
	for _, c := range candidates {
		if selected[c] {
			return true
		}
	}
	return false
}

// String returns a short human-readable summary of the template.
func (t *Template) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d steps", t.Name, ExecutableCount(t.Steps))
	if len(t.Tracks) > 0 {
		fmt.Fprintf(&b, ", %d tracks", len(t.Tracks))
	}
	if t.Controller != "" {
		fmt.Fprintf(&b, ", controller %s", t.Controller)
	}
	b.WriteString(")")
	return b.String()
}
