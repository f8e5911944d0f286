// Package config loads codemachine.toml and resolves the effective settings
// from built-in defaults, the config file, environment variables and CLI
// flags, in that order of precedence.
package config

import (
	"time"

	"github.com/codemachine-ai/codemachine/internal/engine"
)

// Config is the top-level configuration structure mapping to codemachine.toml.
type Config struct {
	Workflow WorkflowConfig `toml:"workflow"`
	Engines  EnginesConfig  `toml:"engines"`
}

// WorkflowConfig maps to the [workflow] section.
type WorkflowConfig struct {
	// Template is the template id `codemachine run` uses when none is given
	// on the command line.
	Template string `toml:"template"`

	// Autonomous is the starting mode for templates that allow delegation.
	// Templates that force a mode override it.
	Autonomous bool `toml:"autonomous"`
}

// EnginesConfig maps to the [engines] section. The spec map holds one
// [engines.spec.<id>] record per engine; the section key supplies the id.
type EnginesConfig struct {
	// ProbeTTL is how long a cached auth-probe result stays fresh.
	ProbeTTL Duration `toml:"probe_ttl"`

	// RunTimeout bounds a single engine invocation.
	RunTimeout Duration `toml:"run_timeout"`

	// Order lists engine ids in selection-preference order. Engines not
	// listed here are not registered even when a spec exists for them.
	Order []string `toml:"order"`

	// Default names the fallback engine used when no listed engine passes
	// its auth probe. Empty falls back to the first entry of Order.
	Default string `toml:"default"`

	// Spec holds the per-engine launch descriptions.
	Spec map[string]engine.Spec `toml:"spec"`
}

// Duration wraps time.Duration so TOML values decode from strings like
// "5m" or "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}
