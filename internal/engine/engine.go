// Package engine runs AI coding-agent CLIs as supervised child
// processes. One config-driven adapter covers every engine: a Spec
// record names the binary and its flag dialect, and CommandEngine
// builds argv, merges env, pumps the stdio streams and sniffs the
// session id out of them. A registry plus selector pick which engine
// a step actually gets, with auth probes cached between launches.
package engine

import (
	"context"
	"errors"
	"time"
)

// DefaultRunTimeout bounds a single engine invocation when RunOptions.Timeout
// is zero. Agent steps routinely run for many minutes; half an hour is the
// point where a silent session is assumed wedged.
const DefaultRunTimeout = 30 * time.Minute

// ErrNoEnginesRegistered is returned by selection when the registry is empty.
var ErrNoEnginesRegistered = errors.New("no engines registered")

// ErrEngineNotFound is returned by Registry.Get when no engine with the
// requested id has been registered.
var ErrEngineNotFound = errors.New("engine not found")

// ErrDuplicateID is returned by Registry.Register when an engine with the
// same id is already present in the registry.
var ErrDuplicateID = errors.New("engine already registered")

// ErrInvalidID is returned by Registry.Register when the engine id is empty
// or contains invalid characters.
var ErrInvalidID = errors.New("invalid engine id")

// ErrNotAuthenticated is returned when an operation requires an
// authenticated engine and none is available.
var ErrNotAuthenticated = errors.New("engine not authenticated")

// ErrTimeout is returned by Run when the invocation exceeded its timeout.
// The child process group has already been killed when Run returns this.
var ErrTimeout = errors.New("engine run timed out")

// ErrCancelled is returned by Run when the caller's context was cancelled.
// Cancellation is a normal outcome (user skip, workflow stop), not a failure.
var ErrCancelled = errors.New("engine run cancelled")

// Engine is the contract every AI-agent CLI adapter implements. It hides the
// differences between claude, codex, cursor and friends behind a uniform
// launch/resume surface so the runner never touches argv details.
type Engine interface {
	// ID returns the engine's identifier (e.g., "claude", "codex").
	// The id is lowercase, alphanumeric plus hyphens.
	ID() string

	// Name returns the human-readable engine name for display.
	Name() string

	// Run launches the engine subprocess with the given options and blocks
	// until the child exits or ctx fires. On cancellation or timeout the
	// whole child process group is killed and Run returns promptly with
	// ErrCancelled or ErrTimeout. A non-zero child exit is not an error;
	// it is reported through RunResult.ExitCode.
	Run(ctx context.Context, opts RunOptions) (*RunResult, error)

	// IsAuthenticated reports whether the engine's CLI is logged in and
	// usable. Implementations may shell out; callers should go through the
	// auth Cache rather than probing directly.
	IsAuthenticated(ctx context.Context) bool

	// ConfigureMCP writes the engine's workflow-side MCP configuration
	// under workflowDir, telling the agent where to write directives.
	ConfigureMCP(workflowDir string) error

	// CleanupMCP removes the configuration written by ConfigureMCP.
	// Removing a configuration that does not exist is not an error.
	CleanupMCP(workflowDir string) error

	// IsMCPConfigured reports whether this engine's MCP configuration is
	// present under workflowDir.
	IsMCPConfigured(workflowDir string) bool
}

// RunOptions specifies a single engine invocation.
type RunOptions struct {
	// Prompt is the instruction text for a fresh session.
	Prompt string

	// WorkDir is the subprocess working directory. Empty inherits the
	// orchestrator's.
	WorkDir string

	// Model selects the model for a fresh session. Ignored when resuming:
	// resumed sessions keep their original model, and passing a model flag
	// makes some CLIs fork a new session instead.
	Model string

	// ReasoningEffort selects the reasoning effort level where the engine
	// supports one (e.g., "low", "medium", "high").
	ReasoningEffort string

	// ResumeSessionID, when set, resumes an existing engine session
	// instead of starting a fresh one.
	ResumeSessionID string

	// ResumePrompt is the instruction text delivered into a resumed
	// session. Falls back to Prompt when empty.
	ResumePrompt string

	// Timeout bounds the invocation. Zero means DefaultRunTimeout.
	Timeout time.Duration

	// OnStdout receives each stdout line as it arrives, in order.
	// May be nil. Must not block: it runs on the output pump.
	OnStdout func(chunk string)

	// OnStderr receives each stderr line as it arrives, in order.
	// May be nil. Must not block: it runs on the output pump.
	OnStderr func(chunk string)

	// Env holds extra KEY=VALUE entries appended to the inherited
	// environment.
	Env []string
}

// RunResult captures the outcome of an engine invocation.
type RunResult struct {
	// ExitCode is the child's exit code. Zero means success.
	ExitCode int

	// SessionID identifies the engine session for later resumption. It is
	// sniffed from the engine's output when possible; otherwise the resumed
	// session id is carried forward, or a fresh uuid is generated so every
	// run is resumable-in-principle.
	SessionID string
}

// Success reports whether the engine exited with code 0.
func (r *RunResult) Success() bool {
	return r.ExitCode == 0
}
