package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codemachine-ai/codemachine/internal/bus"
	"github.com/codemachine-ai/codemachine/internal/config"
	"github.com/codemachine-ai/codemachine/internal/console"
	"github.com/codemachine-ai/codemachine/internal/directive"
	"github.com/codemachine-ai/codemachine/internal/logging"
	"github.com/codemachine-ai/codemachine/internal/prompt"
	"github.com/codemachine-ai/codemachine/internal/runner"
	"github.com/codemachine-ai/codemachine/internal/tracking"
	"github.com/codemachine-ai/codemachine/internal/workflow"
)

// runFlags holds parsed flag values for the run command.
type runFlags struct {
	// Track pre-selects a template track, skipping the wizard page.
	Track string
	// Conditions pre-selects condition flags, skipping the wizard page.
	Conditions []string
	// Autonomous starts the run with input delegated to the controller
	// agent. Overrides the configured default.
	Autonomous bool
	// Yes accepts defaults for everything the wizard would ask.
	Yes bool
	// Plan prints what the run would do without executing anything.
	Plan bool
	// Fresh discards persisted progress before starting.
	Fresh bool
}

// newRunCmd creates the "codemachine run" command.
func newRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run [template]",
		Short: "Run a workflow template",
		Long: `Run a workflow template from its first pending step to completion.

The template argument names a registered template; when omitted, the
configured default is used. Templates with tracks or condition groups open a
launch wizard unless the selection is given with flags, accepted with --yes,
or carried over from a previous run of the same template.

Progress is persisted under .codemachine/ after every step, so an
interrupted run picks up where it left off. Use --fresh to discard that
state and start over, or --plan to preview the step list without running.`,
		Example: `  # Run the default template
  codemachine run

  # Run the review template on its thorough track
  codemachine run review --track thorough

  # Start in autonomous mode, no questions asked
  codemachine run build --autonomous --yes

  # Preview what a run would do
  codemachine run review --track fast --plan

  # Discard previous progress and start over
  codemachine run build --fresh --yes`,
		Args: cobra.MaximumNArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return workflow.DefaultRegistry.Templates(), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.Track, "track", "", "Template track to run (skips the wizard page)")
	cmd.Flags().StringSliceVar(&flags.Conditions, "condition", nil, "Condition flags to enable (repeatable)")
	cmd.Flags().BoolVar(&flags.Autonomous, "autonomous", false, "Delegate input to the controller agent")
	cmd.Flags().BoolVar(&flags.Yes, "yes", false, "Skip the launch wizard, accepting defaults")
	cmd.Flags().BoolVar(&flags.Plan, "plan", false, "Show the step plan without executing")
	cmd.Flags().BoolVar(&flags.Fresh, "fresh", false, "Discard persisted progress before starting")

	return cmd
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}

// runWorkflow is the RunE implementation for the run command. It resolves
// configuration and launch selection, assembles the run state under
// <workdir>/.codemachine, and drives the workflow runner to a terminal
// state.
func runWorkflow(cmd *cobra.Command, args []string, flags runFlags) error {
	logger := logging.New("cli")

	// Step 1: Load and resolve configuration, with CLI overrides layered
	// on top.
	overrides := &config.Overrides{}
	if len(args) > 0 {
		overrides.Template = &args[0]
	}
	if cmd.Flags().Changed("autonomous") {
		overrides.Autonomous = &flags.Autonomous
	}
	resolved, meta, err := loadAndResolveConfig(overrides)
	if err != nil {
		return err
	}
	cfg := resolved.Config

	// Step 2: Validate. Warnings are logged; errors stop the run before
	// any subprocess launches.
	result := config.Validate(cfg, meta)
	for _, issue := range result.Warnings() {
		logger.Warn("config warning", "field", issue.Field, "message", issue.Message)
	}
	if result.HasErrors() {
		printValidationResult(cmd, result)
		return fmt.Errorf("configuration has %d error(s)", len(result.Errors()))
	}

	// Step 3: Look up the template.
	name := cfg.Workflow.Template
	tmpl, ok := workflow.DefaultRegistry.TemplateByName(name)
	if !ok {
		return fmt.Errorf("unknown template %q: available templates are: %s",
			name, strings.Join(workflow.DefaultRegistry.Templates(), ", "))
	}
	if err := workflow.DefaultRegistry.Normalize(tmpl); err != nil {
		return fmt.Errorf("template %q: %w", name, err)
	}

	// Step 4: Locate the workflow root and its persisted state.
	workDir := resolved.Paths.Cwd
	if workDir == "" {
		workDir = "."
	}
	workDir, err = filepath.Abs(workDir)
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}
	workflowDir := filepath.Join(workDir, ".codemachine")
	tracker := tracking.NewManager(tracking.DefaultPath(workflowDir))

	if flags.Fresh {
		if err := os.Remove(tracker.Path()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("discarding tracking state: %w", err)
		}
	}
	prior, _ := tracker.Load()
	if prior != nil && prior.ActiveTemplate != tmpl.Name {
		// Progress belongs to another template; Initialize will reset it.
		prior = nil
	}

	// Step 5: Resolve the launch selection: flags and persisted state
	// decide when they can, the wizard fills the rest.
	sel, autonomous, err := resolveLaunch(tmpl, prior, cfg, flags, cmd.ErrOrStderr())
	if err != nil {
		if errors.Is(err, workflow.ErrWizardCancelled) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Run cancelled.")
			return nil
		}
		return err
	}

	// Step 6: Plan mode stops here: print the step list and the action
	// the runner would take for each.
	if flags.Plan {
		steps := workflow.FilterSteps(tmpl.Steps, sel)
		var isCompleted func(int) bool
		if prior != nil {
			isCompleted = func(i int) bool {
				done, err := tracker.IsStepCompleted(i)
				return err == nil && done
			}
		}
		plan := workflow.BuildPlan(steps, isCompleted, autonomous)
		return workflow.NewPlanFormatter(cmd.OutOrStdout(), !flagNoColor).Format(tmpl.Name, plan)
	}

	// Step 7: Build the engine selector from the resolved [engines]
	// section.
	engines, err := config.BuildSelector(cfg.Engines)
	if err != nil {
		return fmt.Errorf("building engine registry: %w", err)
	}

	// Step 8: Assemble the remaining run state.
	promptRoot := resolved.Paths.PackageRoot
	if promptRoot == "" {
		promptRoot = workDir
	}
	directives := directive.NewStore(directive.DefaultPath(workDir))
	signals := bus.NewSignalBus()
	emitter := bus.NewEmitter(0)

	// Step 9: Start the console sink; it renders control-plane events to
	// stderr until the emitter closes.
	sink := console.New(cmd.ErrOrStderr(), flagVerbose)
	sinkDone := make(chan struct{})
	go func() {
		defer close(sinkDone)
		sink.Run(emitter.Events())
	}()
	defer func() {
		emitter.Close()
		<-sinkDone
	}()

	// Step 10: Optional directive debug watcher.
	if resolved.DebugTriggers {
		watcher, err := directive.NewWatcher(directives.Path())
		if err != nil {
			logger.Warn("directive debug watcher unavailable", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	// Step 11: Build the runner.
	r, err := runner.New(runner.Config{
		Template:    tmpl,
		Selection:   sel,
		Autonomous:  autonomous,
		ProjectName: filepath.Base(workDir),
		WorkDir:     workDir,
		WorkflowDir: workflowDir,
		RunTimeout:  cfg.Engines.RunTimeout.Duration,
		Tracker:     tracker,
		Directives:  directives,
		Prompts:     prompt.NewFileSource(promptRoot),
		Engines:     engines,
		Signals:     signals,
		Emitter:     emitter,
	})
	if err != nil {
		return err
	}

	// Step 12: Run with graceful Ctrl+C handling. An interrupt stops the
	// workflow cleanly; progress stays on disk for the next invocation.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting workflow",
		"template", tmpl.Name,
		"track", sel.Track,
		"conditions", sel.Conditions,
		"autonomous", autonomous,
	)

	return r.Run(ctx)
}

// resolveLaunch produces the track/condition selection and the starting
// mode for a run. Explicit flags win; a persisted selection from an earlier
// run of the same template is reused; --yes accepts template defaults; only
// when none of those decide does the wizard open.
func resolveLaunch(tmpl *workflow.Template, prior *tracking.Tracking, cfg *config.Config, flags runFlags, errOut interface{ Write([]byte) (int, error) }) (workflow.Selection, bool, error) {
	sel := workflow.Selection{Track: flags.Track, Conditions: flags.Conditions}
	autonomous := cfg.Workflow.Autonomous

	if sel.Track != "" && !tmpl.HasTrack(sel.Track) {
		return sel, false, fmt.Errorf("template %q has no track %q", tmpl.Name, sel.Track)
	}
	for _, c := range sel.Conditions {
		if !tmpl.HasCondition(c) {
			return sel, false, fmt.Errorf("template %q has no condition %q", tmpl.Name, c)
		}
	}

	// Carry over the persisted selection so a resumed run filters the
	// step list identically.
	persisted := prior != nil && prior.AutonomousMode != nil
	if persisted {
		if sel.Track == "" {
			sel.Track = prior.SelectedTrack
		}
		if len(sel.Conditions) == 0 {
			sel.Conditions = prior.SelectedConditions
		}
		if flags.Autonomous {
			autonomous = true
		} else {
			autonomous = *prior.AutonomousMode
		}
	}

	trackDecided := sel.Track != "" || len(tmpl.Tracks) == 0
	needWizard := !persisted && !flags.Yes && !(trackDecided && (len(tmpl.ConditionGroups) == 0 || len(sel.Conditions) > 0))

	if needWizard {
		opts, err := workflow.RunWizard(tmpl, &sel)
		if err != nil {
			return sel, false, err
		}
		sel = opts.Selection
		autonomous = opts.Autonomous || flags.Autonomous
	} else {
		// A track-bearing template still needs a track when the wizard
		// is skipped; the first one is the default.
		if sel.Track == "" && len(tmpl.Tracks) > 0 {
			sel.Track = tmpl.Tracks[0].ID
			fmt.Fprintf(errOut, "No track selected; defaulting to %q.\n", sel.Track)
		}
		if flags.Autonomous {
			autonomous = true
		}
	}

	// Templates that force a mode override everything above.
	switch tmpl.AutonomousMode {
	case workflow.AutoAlways:
		autonomous = true
	case workflow.AutoNever:
		autonomous = false
	}

	return sel, autonomous, nil
}
