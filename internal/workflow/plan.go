package workflow

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// PlanAction says what the runner would do with a step.
type PlanAction string

const (
	PlanRun       PlanAction = "run"
	PlanSkip      PlanAction = "skip"
	PlanSeparator PlanAction = "separator"
)

// PlannedStep is one row of a dry-run plan.
type PlannedStep struct {
	Index  int
	UID    string
	Label  string
	Action PlanAction

	// Reason explains a skip ("completed", "execute-once").
	Reason string

	Scenario Scenario
}

// BuildPlan describes what a run over steps would do without executing
// anything. steps must already be filtered by the launch selection.
// isCompleted reports per-index completion from tracking; pass nil for
// a fresh run. autoMode is the launch-time autonomous flag, which
// decides each step's scenario.
func BuildPlan(steps []Step, isCompleted func(int) bool, autoMode bool) []PlannedStep {
	plan := make([]PlannedStep, 0, len(steps))
	for i, s := range steps {
		if s.Separator {
			plan = append(plan, PlannedStep{Index: i, Label: s.Text, Action: PlanSeparator})
			continue
		}

		p := PlannedStep{
			Index:    i,
			UID:      s.UID(i),
			Label:    s.AgentName,
			Action:   PlanRun,
			Scenario: ResolveScenario(s.Interactive, autoMode, s.Chained()),
		}
		if p.Label == "" {
			p.Label = s.AgentID
		}

		if isCompleted != nil && isCompleted(i) {
			p.Action = PlanSkip
			p.Reason = "completed"
			if s.ExecuteOnce {
				p.Reason = "execute-once"
			}
		}

		plan = append(plan, p)
	}
	return plan
}

// PlanFormatter renders a plan for terminal display. When styled is
// true, lipgloss ANSI styling is applied; when false, plain text is
// emitted.
type PlanFormatter struct {
	writer io.Writer
	styled bool
}

// NewPlanFormatter creates a PlanFormatter writing to w.
func NewPlanFormatter(w io.Writer, styled bool) *PlanFormatter {
	return &PlanFormatter{writer: w, styled: styled}
}

var (
	planHeaderStyle = lipgloss.NewStyle().Bold(true)
	planSepStyle    = lipgloss.NewStyle().Faint(true)
	planSkipStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	planRunStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

// Format writes the plan. Each executable step shows its unique id, the
// action the runner would take, and the resolved scenario.
func (f *PlanFormatter) Format(name string, plan []PlannedStep) error {
	var sb strings.Builder

	sb.WriteString(f.style(planHeaderStyle, fmt.Sprintf("Plan for %s", name)))
	sb.WriteString("\n\n")

	for _, p := range plan {
		switch p.Action {
		case PlanSeparator:
			sb.WriteString(f.style(planSepStyle, fmt.Sprintf("  -- %s --", p.Label)))
		case PlanSkip:
			sb.WriteString(f.style(planSkipStyle, fmt.Sprintf("  %2d  skip  %-24s (%s)", p.Index, p.UID, p.Reason)))
		default:
			line := fmt.Sprintf("  %2d  run   %-24s scenario %d", p.Index, p.UID, p.Scenario.Number)
			if p.Scenario.WasForced {
				line += " (forced interactive)"
			}
			sb.WriteString(f.style(planRunStyle, line))
		}
		sb.WriteString("\n")
	}

	_, err := io.WriteString(f.writer, sb.String())
	return err
}

func (f *PlanFormatter) style(s lipgloss.Style, text string) string {
	if !f.styled {
		return text
	}
	return s.Render(text)
}
