package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/codemachine-ai/codemachine/internal/logging"
)

// Compile-time check that CommandEngine implements Engine.
var _ Engine = (*CommandEngine)(nil)

// authProbeTimeout bounds a single auth probe. Probes are cheap status
// commands; anything slower than this is as good as unauthenticated.
const authProbeTimeout = 30 * time.Second

// CommandEngine implements Engine for any CLI described by a Spec. All five
// built-in engines are CommandEngine instances; only their Spec differs.
type CommandEngine struct {
	spec   Spec
	logger *log.Logger
}

// NewCommandEngine creates an engine adapter from a spec.
func NewCommandEngine(spec Spec) *CommandEngine {
	return &CommandEngine{
		spec:   spec,
		logger: logging.New("engine").With("engine", spec.ID),
	}
}

// ID returns the engine identifier from the spec.
func (e *CommandEngine) ID() string { return e.spec.ID }

// Name returns the display name from the spec, falling back to the id.
func (e *CommandEngine) Name() string { return e.spec.DisplayName() }

// Spec returns a copy of the engine's spec.
func (e *CommandEngine) Spec() Spec { return e.spec }

// Run launches the engine subprocess and blocks until it exits or ctx
// fires. stdout and stderr are pumped line-by-line to the OnStdout/OnStderr
// callbacks while the session sniffer watches stdout for the session id.
func (e *CommandEngine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := e.buildArgs(opts)
	cmd := exec.CommandContext(runCtx, e.spec.Command, args...)
	if opts.WorkDir != "" {
		cmd.Dir = opts.WorkDir
	}

	env := os.Environ()
	env = append(env, e.spec.Env...)
	env = append(env, opts.Env...)
	cmd.Env = env

	setProcGroup(cmd)

	e.logger.Debug("running engine",
		"command", e.spec.Command,
		"args", args,
		"work_dir", opts.WorkDir,
		"resume", opts.ResumeSessionID != "",
	)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", e.spec.Command, err)
	}

	sniffer := newSessionSniffer(e.spec.SessionIDField)

	// One pump goroutine per stream keeps each callback's lines in
	// arrival order.
	var g errgroup.Group
	g.Go(func() error {
		return pumpLines(stdoutPipe, func(line string) {
			sniffer.Scan(line)
			if opts.OnStdout != nil {
				opts.OnStdout(line)
			}
		})
	})
	g.Go(func() error {
		return pumpLines(stderrPipe, func(line string) {
			if opts.OnStderr != nil {
				opts.OnStderr(line)
			}
		})
	})

	// Drain all output before calling Wait.
	pumpErr := g.Wait()
	waitErr := cmd.Wait()

	// Context outcomes take precedence: the child was killed, whatever
	// exit status Wait reports is an artifact of the SIGKILL.
	if ctx.Err() != nil {
		return nil, fmt.Errorf("engine %s: %w", e.spec.ID, ErrCancelled)
	}
	if runCtx.Err() != nil {
		return nil, fmt.Errorf("engine %s: run exceeded %s: %w", e.spec.ID, timeout, ErrTimeout)
	}

	if pumpErr != nil {
		return nil, fmt.Errorf("reading %s output: %w", e.spec.ID, pumpErr)
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("waiting for %s: %w", e.spec.Command, waitErr)
		}
	}

	sessionID := sniffer.SessionID()
	if sessionID == "" {
		sessionID = opts.ResumeSessionID
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	e.logger.Debug("engine exited",
		"exit_code", exitCode,
		"session_id", sessionID,
	)

	return &RunResult{
		ExitCode:  exitCode,
		SessionID: sessionID,
	}, nil
}

// buildArgs constructs the argument slice for one invocation. Resume and
// fresh launches differ: a resume carries the session id and never the
// model flag, since passing a model to a resumed session makes some CLIs
// silently fork a fresh one.
func (e *CommandEngine) buildArgs(opts RunOptions) []string {
	args := append([]string(nil), e.spec.Args...)

	if opts.ResumeSessionID != "" {
		if e.spec.ResumeFlag != "" {
			args = append(args, e.spec.ResumeFlag, opts.ResumeSessionID)
		}
		prompt := opts.ResumePrompt
		if prompt == "" {
			prompt = opts.Prompt
		}
		return e.appendPrompt(args, prompt)
	}

	if opts.Model != "" && e.spec.ModelFlag != "" {
		args = append(args, e.spec.ModelFlag, opts.Model)
	}
	if opts.ReasoningEffort != "" && e.spec.EffortFlag != "" {
		args = append(args, e.spec.EffortFlag, opts.ReasoningEffort)
	}
	return e.appendPrompt(args, opts.Prompt)
}

// appendPrompt attaches the prompt text, either behind the spec's prompt
// flag or as the final positional argument. Empty prompts are omitted
// (a bare resume delivers no new instruction).
func (e *CommandEngine) appendPrompt(args []string, prompt string) []string {
	if prompt == "" {
		return args
	}
	if e.spec.PromptFlag != "" {
		return append(args, e.spec.PromptFlag, prompt)
	}
	return append(args, prompt)
}

// IsAuthenticated runs the spec's auth probe and reports whether it exited
// zero. Engines without a probe are always considered authenticated.
// Callers should prefer the auth Cache over probing directly.
func (e *CommandEngine) IsAuthenticated(ctx context.Context) bool {
	if len(e.spec.AuthProbe) == 0 {
		return true
	}

	probeCtx, cancel := context.WithTimeout(ctx, authProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, e.spec.AuthProbe[0], e.spec.AuthProbe[1:]...)
	setProcGroup(cmd)
	if err := cmd.Run(); err != nil {
		e.logger.Debug("auth probe failed", "probe", e.spec.AuthProbe, "error", err)
		return false
	}
	return true
}

// ConfigureMCP writes this engine's MCP configuration under workflowDir.
func (e *CommandEngine) ConfigureMCP(workflowDir string) error {
	return writeMCPConfig(workflowDir, e.spec.ID)
}

// CleanupMCP removes this engine's MCP configuration from workflowDir.
func (e *CommandEngine) CleanupMCP(workflowDir string) error {
	return removeMCPConfig(workflowDir)
}

// IsMCPConfigured reports whether this engine's MCP configuration is
// present under workflowDir.
func (e *CommandEngine) IsMCPConfigured(workflowDir string) bool {
	return isMCPConfigured(workflowDir, e.spec.ID)
}
