package config

import (
	"time"

	"github.com/codemachine-ai/codemachine/internal/engine"
)

// Built-in engine ids, in default selection order.
const (
	EngineClaude   = "claude"
	EngineCodex    = "codex"
	EngineCursor   = "cursor"
	EngineMistral  = "mistral"
	EngineOpencode = "opencode"
)

// NewDefaults returns a Config populated with all default values, including
// launch specs for the five built-in engines. Adding or changing an engine
// in codemachine.toml overrides the corresponding record wholesale.
func NewDefaults() *Config {
	return &Config{
		Workflow: WorkflowConfig{
			Template: "build",
		},
		Engines: EnginesConfig{
			ProbeTTL:   Duration{5 * time.Minute},
			RunTimeout: Duration{30 * time.Minute},
			Order:      []string{EngineClaude, EngineCodex, EngineCursor, EngineMistral, EngineOpencode},
			Default:    EngineClaude,
			Spec:       builtinSpecs(),
		},
	}
}

// builtinSpecs returns the launch descriptions for the built-in engines.
// These are plain data: the same CommandEngine adapter drives all of them.
func builtinSpecs() map[string]engine.Spec {
	return map[string]engine.Spec{
		EngineClaude: {
			ID:      EngineClaude,
			Name:    "Claude Code",
			Command: "claude",
			Args: []string{
				"--print",
				"--output-format", "stream-json",
				"--verbose",
				"--permission-mode", "acceptEdits",
			},
			ResumeFlag:     "--resume",
			ModelFlag:      "--model",
			SessionIDField: "session_id",
			// No cheap auth-status command; launch failures surface auth
			// problems directly.
		},
		EngineCodex: {
			ID:      EngineCodex,
			Name:    "Codex",
			Command: "codex",
			Args:    []string{"exec", "--json"},
			// `codex exec resume <id> <prompt>`: the resume token is a
			// subcommand, which the flag slot expresses just as well.
			ResumeFlag:     "resume",
			ModelFlag:      "--model",
			SessionIDField: "session_id",
			AuthProbe:      []string{"codex", "login", "status"},
		},
		EngineCursor: {
			ID:      EngineCursor,
			Name:    "Cursor Agent",
			Command: "cursor-agent",
			Args: []string{
				"--print",
				"--output-format", "stream-json",
			},
			ResumeFlag:     "--resume",
			ModelFlag:      "--model",
			SessionIDField: "chat_id",
			AuthProbe:      []string{"cursor-agent", "status"},
		},
		EngineMistral: {
			ID:             EngineMistral,
			Name:           "Mistral",
			Command:        "mistral",
			Args:           []string{"chat", "--json"},
			ResumeFlag:     "--resume",
			ModelFlag:      "--model",
			SessionIDField: "conversation_id",
			AuthProbe:      []string{"mistral", "auth", "status"},
		},
		EngineOpencode: {
			ID:             EngineOpencode,
			Name:           "opencode",
			Command:        "opencode",
			Args:           []string{"run", "--print-logs"},
			ResumeFlag:     "--session",
			ModelFlag:      "--model",
			SessionIDField: "sessionID",
			AuthProbe:      []string{"opencode", "auth", "list"},
		},
	}
}
