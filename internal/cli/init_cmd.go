package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/codemachine-ai/codemachine/internal/config"
	"github.com/codemachine-ai/codemachine/internal/logging"
	"github.com/codemachine-ai/codemachine/internal/workflow"
)

// initFlagName and initFlagForce are the flag values for the init subcommand.
var (
	initFlagName  string
	initFlagForce bool
)

// initCmd implements "codemachine init [template]".
// It scaffolds a starter codemachine.toml plus the prompt files the chosen
// workflow template references, without requiring an existing config --
// making it safe to run in a fresh directory.
var initCmd = &cobra.Command{
	Use:   "init [template]",
	Short: "Initialize a project for a workflow template",
	Long: `Initialize the current directory for a workflow template: write a
starter codemachine.toml, create stub prompt files for every step the
template references, and create the .codemachine state directory.

Existing files are preserved unless --force is supplied.

Examples:
  codemachine init                      # scaffold the default build template
  codemachine init review --name my-app # scaffold the review template
  codemachine init build --force        # overwrite existing files`,
	Args: cobra.MaximumNArgs(1),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return workflow.DefaultRegistry.Templates(), cobra.ShellCompDirectiveNoFileComp
	},

	// Override PersistentPreRunE so the init command never attempts to load
	// a codemachine.toml. We still replicate the env-var checks, logging
	// setup, color disable, and --dir handling from the root
	// PersistentPreRunE.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Root().PersistentFlags().Changed("verbose") && os.Getenv("CODEMACHINE_VERBOSE") != "" {
			flagVerbose = true
		}
		if !cmd.Root().PersistentFlags().Changed("quiet") && os.Getenv("CODEMACHINE_QUIET") != "" {
			flagQuiet = true
		}
		if !cmd.Root().PersistentFlags().Changed("no-color") &&
			(os.Getenv("NO_COLOR") != "" || os.Getenv("CODEMACHINE_NO_COLOR") != "") {
			flagNoColor = true
		}

		jsonFormat := os.Getenv("CODEMACHINE_LOG_FORMAT") == "json"
		logging.Setup(flagVerbose, flagQuiet, jsonFormat)

		if flagNoColor {
			lipgloss.SetColorProfile(termenv.Ascii)
		}

		if flagDir != "" {
			if err := os.Chdir(flagDir); err != nil {
				return fmt.Errorf("changing directory to %s: %w", flagDir, err)
			}
		}

		return nil
	},

	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initFlagName, "name", "n", "", "Project name (defaults to current directory name)")
	initCmd.Flags().BoolVar(&initFlagForce, "force", false, "Overwrite existing files")
	rootCmd.AddCommand(initCmd)
}

// runInit is the RunE handler for the init command.
func runInit(cmd *cobra.Command, args []string) error {
	templateName := workflow.TemplateBuild
	if len(args) > 0 {
		templateName = args[0]
	}

	tmpl, ok := workflow.DefaultRegistry.TemplateByName(templateName)
	if !ok {
		return fmt.Errorf("template %q not found; available templates: %s",
			templateName, strings.Join(workflow.DefaultRegistry.Templates(), ", "))
	}
	if err := workflow.DefaultRegistry.Normalize(tmpl); err != nil {
		return fmt.Errorf("resolving template %q: %w", templateName, err)
	}

	// Destination is the current working directory after any --dir change
	// applied in PersistentPreRunE.
	destDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	projectName := initFlagName
	if projectName == "" {
		projectName = filepath.Base(destDir)
	}
	if strings.Contains(projectName, "../") || strings.Contains(projectName, "..\\") {
		return fmt.Errorf("invalid project name %q: must not contain path traversal sequences", projectName)
	}

	// Guard against clobbering an existing config unless --force is set.
	configPath := filepath.Join(destDir, config.ConfigFileName)
	if _, statErr := os.Stat(configPath); statErr == nil && !initFlagForce {
		return fmt.Errorf("%s already exists in %s; use --force to overwrite", config.ConfigFileName, destDir)
	}

	var created []string

	if err := os.WriteFile(configPath, []byte(starterConfig(projectName, templateName)), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", config.ConfigFileName, err)
	}
	created = append(created, configPath)

	promptFiles, err := scaffoldPrompts(destDir, tmpl)
	if err != nil {
		return err
	}
	created = append(created, promptFiles...)

	// State directory, including the memory/ subdirectory agents write
	// directives into.
	stateDir := filepath.Join(destDir, ".codemachine", "memory")
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	stderr := cmd.ErrOrStderr()
	fmt.Fprintf(stderr, "Initialized project %q for template %q\n\n", projectName, templateName)

	if len(created) > 0 {
		fmt.Fprintln(stderr, "Created files:")
		for _, f := range created {
			rel, relErr := filepath.Rel(destDir, f)
			if relErr != nil {
				rel = f
			}
			fmt.Fprintf(stderr, "  %s\n", rel)
		}
		fmt.Fprintln(stderr)
	}

	fmt.Fprintln(stderr, "Next steps:")
	fmt.Fprintf(stderr, "  1. Edit %s to configure engines\n", config.ConfigFileName)
	fmt.Fprintln(stderr, "  2. Fill in the prompt files under prompts/")
	fmt.Fprintf(stderr, "  3. Run: codemachine run %s\n", templateName)

	return nil
}

// scaffoldPrompts creates a stub file for every literal prompt path the
// template references. Glob patterns are skipped (the user supplies the
// matching files), as are files that already exist unless --force is set.
func scaffoldPrompts(destDir string, tmpl *workflow.Template) ([]string, error) {
	var created []string
	seen := make(map[string]bool)

	for _, step := range tmpl.Steps {
		if step.Separator {
			continue
		}
		for _, p := range step.PromptPath {
			if p == "" || strings.ContainsAny(p, "*?[{") || seen[p] {
				continue
			}
			seen[p] = true

			path := p
			if !filepath.IsAbs(path) {
				path = filepath.Join(destDir, p)
			}
			if _, err := os.Stat(path); err == nil && !initFlagForce {
				continue
			}
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, fmt.Errorf("creating prompt directory for %q: %w", p, err)
			}
			if err := os.WriteFile(path, []byte(promptStub(step, p)), 0644); err != nil {
				return nil, fmt.Errorf("writing prompt stub %q: %w", p, err)
			}
			created = append(created, path)
		}
	}
	return created, nil
}

// promptStub renders placeholder content for a prompt file.
func promptStub(step workflow.Step, path string) string {
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	title = strings.NewReplacer("_", " ", "-", " ").Replace(title)

	agent := step.AgentName
	if agent == "" {
		agent = step.AgentID
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", strings.TrimSpace(title))
	fmt.Fprintf(&sb, "<!-- Prompt for the %s step. Replace this stub with the\n", agent)
	sb.WriteString("     instructions the agent should receive. -->\n")
	return sb.String()
}

// starterConfig renders the scaffolded codemachine.toml.
func starterConfig(projectName, templateName string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s -- CodeMachine configuration.\n", projectName)
	sb.WriteString("# Resolution order: defaults < this file < environment < CLI flags.\n")
	sb.WriteString("\n")
	sb.WriteString("[workflow]\n")
	fmt.Fprintf(&sb, "template = %q\n", templateName)
	sb.WriteString("# autonomous = true\n")
	sb.WriteString("\n")
	sb.WriteString("[engines]\n")
	sb.WriteString("# Selection preference; the first authenticated engine wins.\n")
	sb.WriteString("# order = [\"claude\", \"codex\"]\n")
	sb.WriteString("# default = \"claude\"\n")
	sb.WriteString("# probe_ttl = \"10m\"\n")
	sb.WriteString("# run_timeout = \"2h\"\n")
	sb.WriteString("\n")
	sb.WriteString("# Custom engines are declared as [engines.spec.<id>]:\n")
	sb.WriteString("#\n")
	sb.WriteString("# [engines.spec.my-engine]\n")
	sb.WriteString("# name = \"My Engine\"\n")
	sb.WriteString("# command = \"my-engine\"\n")
	sb.WriteString("# args = [\"--yes\"]\n")
	sb.WriteString("# prompt_flag = \"-p\"\n")
	sb.WriteString("# resume_flag = \"--resume\"\n")
	sb.WriteString("# session_id_field = \"session_id\"\n")
	return sb.String()
}
