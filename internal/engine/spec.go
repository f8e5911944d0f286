package engine

// Spec declares how to drive one engine CLI. It maps to the
// [engines.spec.<id>] section in codemachine.toml; the built-in engines ship
// as Spec values too, so adding an engine is configuration, not code.
type Spec struct {
	// ID is the engine identifier ("claude", "codex", ...). For specs
	// decoded from configuration the section key supplies it.
	ID string `toml:"id"`

	// Name is the display name. Defaults to ID when empty.
	Name string `toml:"name"`

	// Command is the CLI executable name or path.
	Command string `toml:"command"`

	// Args are base arguments present on every invocation (output format,
	// permission mode, and the like).
	Args []string `toml:"args"`

	// PromptFlag names the flag that carries the prompt text. Empty means
	// the prompt is passed as the final positional argument.
	PromptFlag string `toml:"prompt_flag"`

	// ResumeFlag names the flag that resumes an existing session by id.
	ResumeFlag string `toml:"resume_flag"`

	// ModelFlag names the model-selection flag. Never passed on resume.
	ModelFlag string `toml:"model_flag"`

	// EffortFlag names the reasoning-effort flag, for engines that have one.
	EffortFlag string `toml:"effort_flag"`

	// SessionIDField is the JSON field holding the session id in the
	// engine's JSONL output. Empty disables sniffing and a generated uuid
	// stands in.
	SessionIDField string `toml:"session_id_field"`

	// AuthProbe is an argv run to check login state; exit 0 means
	// authenticated. Empty means the engine is always considered
	// authenticated.
	AuthProbe []string `toml:"auth_probe"`

	// Env holds extra KEY=VALUE entries for every invocation of this
	// engine.
	Env []string `toml:"env"`
}

// DisplayName returns Name, falling back to ID.
func (s Spec) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}
