package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/codemachine-ai/codemachine/internal/tracking"
	"github.com/codemachine-ai/codemachine/internal/workflow"
)

// statusFlags holds the flag values for the status command.
type statusFlags struct {
	JSON    bool // --json for structured output
	Verbose bool // --verbose for per-step details
}

// statusStepOutput is the JSON output type for a single step.
type statusStepOutput struct {
	Index           int        `json:"index"`
	AgentID         string     `json:"agent_id,omitempty"`
	AgentName       string     `json:"agent_name,omitempty"`
	Separator       string     `json:"separator,omitempty"`
	Started         bool       `json:"started"`
	Completed       bool       `json:"completed"`
	CompletedChains []int      `json:"completed_chains,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	SessionID       string     `json:"session_id,omitempty"`
}

// statusOutput is the top-level JSON output type for the status command.
type statusOutput struct {
	ProjectName    string             `json:"project_name"`
	Template       string             `json:"template"`
	Track          string             `json:"track,omitempty"`
	Conditions     []string           `json:"conditions,omitempty"`
	Autonomous     bool               `json:"autonomous"`
	TotalSteps     int                `json:"total_steps"`
	CompletedSteps int                `json:"completed_steps"`
	Percent        float64            `json:"percent"`
	ResumeKind     string             `json:"resume_kind"`
	ResumeIndex    int                `json:"resume_index"`
	LastUpdated    time.Time          `json:"last_updated"`
	Steps          []statusStepOutput `json:"steps,omitempty"`
}

// newStatusCmd creates the "codemachine status" command.
func newStatusCmd() *cobra.Command {
	var flags statusFlags

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show workflow progress and where the next run resumes",
		Long: `Display the persisted progress of the active workflow: which steps
completed, which are still pending, and where the next invocation of
"codemachine run" will pick up.

Use --verbose to see per-step details. Use --json for structured output
suitable for scripting.`,
		Example: `  # Show workflow progress
  codemachine status

  # Show per-step details
  codemachine status --verbose

  # Structured JSON output
  codemachine status --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.JSON, "json", false, "Output structured JSON to stdout")
	cmd.Flags().BoolVar(&flags.Verbose, "verbose", false, "Show per-step status details")

	return cmd
}

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

// runStatus is the command's RunE function. It loads the tracking file,
// recomputes the filtered step list from the persisted selection, and
// renders progress.
func runStatus(cmd *cobra.Command, flags statusFlags) error {
	resolved, _, err := loadAndResolveConfig(nil)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	workDir := resolved.Paths.Cwd
	if workDir == "" {
		workDir = "."
	}
	workflowDir := filepath.Join(workDir, ".codemachine")
	tracker := tracking.NewManager(tracking.DefaultPath(workflowDir))

	tr, err := tracker.Load()
	if err != nil {
		return fmt.Errorf("loading tracking state: %w", err)
	}
	if tr == nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "No workflow state found. Run \"codemachine run\" to start one.")
		return nil
	}

	resume := tracking.ComputeResume(tr)

	// The persisted selection reproduces the step list the indices refer
	// to. An unknown template (renamed, or state copied from elsewhere)
	// still reports raw record counts.
	var steps []workflow.Step
	if tmpl, ok := workflow.DefaultRegistry.TemplateByName(tr.ActiveTemplate); ok {
		if err := workflow.DefaultRegistry.Normalize(tmpl); err == nil {
			steps = workflow.FilterSteps(tmpl.Steps, workflow.Selection{
				Track:      tr.SelectedTrack,
				Conditions: tr.SelectedConditions,
			})
		}
	}

	total := workflow.ExecutableCount(steps)
	completed := 0
	for idx, rec := range tr.CompletedSteps {
		if !rec.Completed() {
			continue
		}
		if steps == nil || (idx < len(steps) && !steps[idx].Separator) {
			completed++
		}
	}
	if total == 0 {
		// Unknown template: fall back to the record count so the output
		// still says something truthful.
		total = completed
	}

	if flags.JSON {
		return renderStatusJSON(cmd.OutOrStdout(), tr, resume, steps, total, completed)
	}

	out := cmd.ErrOrStderr()
	fmt.Fprintln(out, renderStatusSummary(tr, total, completed))
	fmt.Fprintln(out, renderResumeLine(resume))

	if flags.Verbose && len(steps) > 0 {
		fmt.Fprintln(out)
		fmt.Fprint(out, renderStepDetails(tr, steps, resume))
	}

	return nil
}

// renderStatusJSON serialises progress data to JSON and writes it to w.
func renderStatusJSON(w io.Writer, tr *tracking.Tracking, resume tracking.Resume, steps []workflow.Step, total, completed int) error {
	pct := 0.0
	if total > 0 {
		pct = float64(completed) / float64(total) * 100
	}

	out := statusOutput{
		ProjectName:    tr.ProjectName,
		Template:       tr.ActiveTemplate,
		Track:          tr.SelectedTrack,
		Conditions:     tr.SelectedConditions,
		Autonomous:     tr.AutonomousMode != nil && *tr.AutonomousMode,
		TotalSteps:     total,
		CompletedSteps: completed,
		Percent:        pct,
		ResumeKind:     string(resume.Kind),
		ResumeIndex:    resume.StepIndex,
		LastUpdated:    tr.LastUpdated,
	}

	for idx, step := range steps {
		so := statusStepOutput{Index: idx}
		if step.Separator {
			so.Separator = step.Text
			out.Steps = append(out.Steps, so)
			continue
		}
		so.AgentID = step.AgentID
		so.AgentName = step.AgentName
		if rec, ok := tr.CompletedSteps[idx]; ok {
			so.Started = rec.Started()
			so.Completed = rec.Completed()
			so.CompletedChains = rec.CompletedChains
			so.CompletedAt = rec.CompletedAt
			so.SessionID = rec.SessionID
		}
		out.Steps = append(out.Steps, so)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// renderStatusSummary returns the header block with a progress bar.
//
//	CodeMachine Status - my-project
//	===============================
//	Template: build (autonomous)
//	████████████░░░░░░░░ 60% (3/5)
func renderStatusSummary(tr *tracking.Tracking, total, completed int) string {
	const progressBarWidth = 40

	headerStyle := lipgloss.NewStyle().Bold(true)

	name := tr.ProjectName
	if name == "" {
		name = "codemachine"
	}
	title := fmt.Sprintf("CodeMachine Status - %s", name)
	sep := strings.Repeat("=", len(title))

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(title))
	sb.WriteString("\n")
	sb.WriteString(sep)
	sb.WriteString("\n")

	line := fmt.Sprintf("Template: %s", tr.ActiveTemplate)
	if tr.SelectedTrack != "" {
		line += fmt.Sprintf(" [track: %s]", tr.SelectedTrack)
	}
	if len(tr.SelectedConditions) > 0 {
		line += fmt.Sprintf(" [conditions: %s]", strings.Join(tr.SelectedConditions, ", "))
	}
	if tr.AutonomousMode != nil && *tr.AutonomousMode {
		line += " (autonomous)"
	}
	sb.WriteString(line)
	sb.WriteString("\n")

	pct := 0.0
	if total > 0 {
		pct = float64(completed) / float64(total)
	}

	// Static progress bar via bubbles/progress ViewAs; WithoutPercentage
	// because the fraction line carries the number.
	bar := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(progressBarWidth),
		progress.WithoutPercentage(),
	)
	sb.WriteString(bar.ViewAs(pct))
	sb.WriteString(fmt.Sprintf(" %.0f%% (%d/%d)", pct*100, completed, total))
	sb.WriteString("\n")

	return sb.String()
}

// renderResumeLine states what the next "codemachine run" would do.
func renderResumeLine(resume tracking.Resume) string {
	switch resume.Kind {
	case tracking.StartFresh:
		return "Next run: starts fresh from the first step."
	case tracking.ResumeFromChain:
		return fmt.Sprintf("Next run: resumes step %d at chained prompt %d (session %s).",
			resume.StepIndex, resume.NextChain, shortSession(resume.SessionID))
	case tracking.ResumeFromCrash:
		return fmt.Sprintf("Next run: resumes the interrupted session of step %d (session %s).",
			resume.StepIndex, shortSession(resume.SessionID))
	default: // ContinueAfterCompleted
		return fmt.Sprintf("Next run: continues at step %d.", resume.StepIndex)
	}
}

// renderStepDetails returns one line per step showing its recorded state.
func renderStepDetails(tr *tracking.Tracking, steps []workflow.Step, resume tracking.Resume) string {
	completedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	startedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11"))   // yellow
	separatorStyle := lipgloss.NewStyle().Bold(true)
	nextMark := lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Render("«") // blue

	var sb strings.Builder
	for idx, step := range steps {
		if step.Separator {
			sb.WriteString(separatorStyle.Render(fmt.Sprintf("--- %s ---", step.Text)))
			sb.WriteString("\n")
			continue
		}

		rec := tr.CompletedSteps[idx]
		var label string
		switch {
		case rec.Completed():
			label = completedStyle.Render("completed")
		case rec.Started():
			label = startedStyle.Render("started")
		default:
			label = "pending"
		}

		name := step.AgentName
		if name == "" {
			name = step.AgentID
		}
		line := fmt.Sprintf("  %2d  %-24s %s", idx, name, label)

		if len(rec.CompletedChains) > 0 && !rec.Completed() {
			done := append([]int(nil), rec.CompletedChains...)
			sort.Ints(done)
			chains := make([]string, len(done))
			for i, c := range done {
				chains[i] = fmt.Sprintf("%d", c)
			}
			line += fmt.Sprintf("  [chains done: %s]", strings.Join(chains, ","))
		}
		if rec.Completed() && rec.CompletedAt != nil {
			line += fmt.Sprintf("  (%s)", rec.CompletedAt.Format(time.RFC3339))
		}
		if idx == resume.StepIndex && resume.Kind != tracking.StartFresh {
			line += " " + nextMark
		}

		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// shortSession trims a session id for display.
func shortSession(id string) string {
	if id == "" {
		return "unknown"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
