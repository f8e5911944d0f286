package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
)

// ErrWizardCancelled is returned when the user cancels the launch
// wizard (either by pressing Ctrl+C or declining the confirmation).
var ErrWizardCancelled = errors.New("wizard cancelled by user")

// wizardWidth is the fixed form width used by the wizard.
const wizardWidth = 80

// LaunchOptions is the wizard's result: the track/condition selection
// plus whether the run starts in autonomous mode.
type LaunchOptions struct {
	Selection  Selection
	Autonomous bool
}

// RunWizard walks the user through launching a template: track choice,
// condition flags, autonomous mode, and a final confirmation. prior, if
// non-nil, pre-selects the values from an earlier run so resuming keeps
// the same shape by default.
//
// Returns ErrWizardCancelled if the user aborts or declines the
// confirmation page.
func RunWizard(t *Template, prior *Selection) (*LaunchOptions, error) {
	opts := &LaunchOptions{}
	if prior != nil {
		opts.Selection = *prior
	}

	if len(t.Tracks) > 0 {
		if err := runTrackPage(t.Tracks, &opts.Selection.Track); err != nil {
			return nil, mapWizardErr(err)
		}
	}

	if len(t.ConditionGroups) > 0 {
		if err := runConditionPage(t.ConditionGroups, &opts.Selection.Conditions); err != nil {
			return nil, mapWizardErr(err)
		}
	}

	switch t.AutonomousMode {
	case AutoAlways:
		opts.Autonomous = true
	case AutoOptional:
		if t.Controller != "" {
			if err := runAutonomousPage(t.Controller, &opts.Autonomous); err != nil {
				return nil, mapWizardErr(err)
			}
		}
	}

	confirmed := false
	if err := runConfirmPage(t, opts, &confirmed); err != nil {
		return nil, mapWizardErr(err)
	}
	if !confirmed {
		return nil, ErrWizardCancelled
	}

	return opts, nil
}

// runTrackPage asks the user to pick one of the template's tracks. The
// current value of selected, when it names a known track, stays as the
// pre-selected option.
func runTrackPage(tracks []Track, selected *string) error {
	options := make([]huh.Option[string], len(tracks))
	known := false
	for i, tr := range tracks {
		label := tr.Label
		if label == "" {
			label = tr.ID
		}
		options[i] = huh.NewOption(label, tr.ID)
		if tr.ID == *selected {
			known = true
		}
	}
	if !known && len(options) > 0 {
		*selected = options[0].Value
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which track?").
				Description("Tracks are alternative branches through the workflow.").
				Options(options...).
				Value(selected),
		),
	).
		WithTheme(huh.ThemeCharm()).
		WithWidth(wizardWidth).
		Run()
}

// runConditionPage shows one multi-select per condition group. All
// groups share the selected slice; option ids are globally unique
// within a template.
func runConditionPage(groups []ConditionGroup, selected *[]string) error {
	fields := make([]huh.Field, 0, len(groups))
	for _, g := range groups {
		options := make([]huh.Option[string], len(g.Options))
		for i, opt := range g.Options {
			label := opt.Label
			if label == "" {
				label = opt.ID
			}
			options[i] = huh.NewOption(label, opt.ID)
		}
		title := g.Label
		if title == "" {
			title = g.ID
		}
		fields = append(fields,
			huh.NewMultiSelect[string]().
				Title(title+":").
				Description("Use space to toggle. Unselected flags skip their steps.").
				Options(options...).
				Value(selected),
		)
	}

	return huh.NewForm(huh.NewGroup(fields...)).
		WithTheme(huh.ThemeCharm()).
		WithWidth(wizardWidth).
		Run()
}

// runAutonomousPage asks whether the controller agent should answer
// input prompts instead of the user.
func runAutonomousPage(controller string, autonomous *bool) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Run autonomously?").
				Description(fmt.Sprintf("The %s agent answers input prompts for you. You can switch back at any time.", controller)).
				Affirmative("Autonomous").
				Negative("Manual").
				Value(autonomous),
		),
	).
		WithTheme(huh.ThemeCharm()).
		WithWidth(wizardWidth).
		Run()
}

// runConfirmPage shows a final summary and asks for confirmation before
// starting the run.
func runConfirmPage(t *Template, opts *LaunchOptions, confirmed *bool) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Start %q?", t.Name)).
				Description(buildSummary(t, opts)).
				Affirmative("Start").
				Negative("Cancel").
				Value(confirmed),
		),
	).
		WithTheme(huh.ThemeCharm()).
		WithWidth(wizardWidth).
		Run()
}

// buildSummary returns a human-readable summary of the launch options
// suitable for display on the confirmation page.
func buildSummary(t *Template, opts *LaunchOptions) string {
	var sb strings.Builder

	steps := FilterSteps(t.Steps, opts.Selection)
	sb.WriteString(fmt.Sprintf("Steps:       %d\n", ExecutableCount(steps)))

	if opts.Selection.Track != "" {
		sb.WriteString(fmt.Sprintf("Track:       %s\n", opts.Selection.Track))
	}
	if len(opts.Selection.Conditions) > 0 {
		sb.WriteString(fmt.Sprintf("Conditions:  %s\n", strings.Join(opts.Selection.Conditions, ", ")))
	}

	mode := "manual"
	if opts.Autonomous {
		mode = fmt.Sprintf("autonomous (%s)", t.Controller)
	}
	sb.WriteString(fmt.Sprintf("Mode:        %s\n", mode))

	return sb.String()
}

// mapWizardErr converts huh-specific errors into ErrWizardCancelled so
// callers do not need to import the huh package.
func mapWizardErr(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrWizardCancelled
	}
	return fmt.Errorf("wizard: %w", err)
}
