package config

import (
	"strings"

	"github.com/codemachine-ai/codemachine/internal/engine"
)

// Source identifies where a configuration value came from.
type Source string

const (
	// SourceDefault indicates the value came from built-in defaults.
	SourceDefault Source = "default"
	// SourceFile indicates the value came from codemachine.toml.
	SourceFile Source = "file"
	// SourceEnv indicates the value came from an environment variable.
	SourceEnv Source = "env"
	// SourceCLI indicates the value came from a CLI flag.
	SourceCLI Source = "cli"
)

// Paths holds the resolved working directories. Empty fields mean the caller
// decides (typically the process working directory).
type Paths struct {
	// Cwd is the workflow root: the directory holding .codemachine/ and the
	// directory agent subprocesses run in.
	Cwd string

	// PackageRoot is where bundled assets (prompt files, templates) live.
	PackageRoot string

	// InstallDir is where the binary's support files were installed.
	InstallDir string
}

// Resolved holds the fully-resolved configuration with source tracking.
type Resolved struct {
	Config *Config

	// Paths are the directories resolved from environment and flags.
	Paths Paths

	// DebugTriggers enables the directive-file debug watcher.
	DebugTriggers bool

	// Sources tracks where each value came from, keyed by dotted path
	// (e.g. "workflow.template").
	Sources map[string]Source

	// Path is the config file that was loaded, empty when none was found.
	// Filled in by the caller.
	Path string
}

// Overrides captures CLI flag values that can override configuration.
// Nil fields mean "not set" (do not override).
type Overrides struct {
	Template   *string
	Autonomous *bool
	Dir        *string
}

// EnvFunc looks up environment variables. The default implementation is
// os.LookupEnv; injected for testability.
type EnvFunc func(key string) (string, bool)

// Resolve merges configuration from all sources in priority order:
// CLI flags > environment variables > config file > defaults.
//
// fileConfig is the parsed codemachine.toml (nil if no file was found).
// Every spec in the result carries its section key as its ID.
func Resolve(defaults *Config, fileConfig *Config, envFn EnvFunc, overrides *Overrides) *Resolved {
	rc := &Resolved{
		Config:  &Config{},
		Sources: make(map[string]Source),
	}

	if defaults == nil {
		defaults = &Config{}
	}
	if envFn == nil {
		envFn = func(string) (string, bool) { return "", false }
	}
	if overrides == nil {
		overrides = &Overrides{}
	}

	resolveFromDefaults(rc, defaults)
	if fileConfig != nil {
		resolveFromFile(rc, fileConfig)
	}
	resolveFromEnv(rc, envFn)
	resolveFromCLI(rc, overrides)

	normalizeSpecIDs(rc.Config)
	return rc
}

// --- Layer 1: defaults ---

func resolveFromDefaults(rc *Resolved, defaults *Config) {
	c := rc.Config

	c.Workflow = defaults.Workflow
	rc.Sources["workflow.template"] = SourceDefault
	rc.Sources["workflow.autonomous"] = SourceDefault

	c.Engines.ProbeTTL = defaults.Engines.ProbeTTL
	c.Engines.RunTimeout = defaults.Engines.RunTimeout
	c.Engines.Default = defaults.Engines.Default
	c.Engines.Order = append([]string(nil), defaults.Engines.Order...)
	rc.Sources["engines.probe_ttl"] = SourceDefault
	rc.Sources["engines.run_timeout"] = SourceDefault
	rc.Sources["engines.default"] = SourceDefault
	rc.Sources["engines.order"] = SourceDefault

	c.Engines.Spec = make(map[string]engine.Spec, len(defaults.Engines.Spec))
	for id, spec := range defaults.Engines.Spec {
		c.Engines.Spec[id] = copySpec(spec)
		rc.Sources["engines.spec."+id] = SourceDefault
	}
}

// --- Layer 2: file ---

// File values override non-zero fields; the spec map merges by key, with a
// file record replacing the built-in record wholesale.
func resolveFromFile(rc *Resolved, file *Config) {
	c := rc.Config

	if file.Workflow.Template != "" {
		c.Workflow.Template = file.Workflow.Template
		rc.Sources["workflow.template"] = SourceFile
	}
	if file.Workflow.Autonomous {
		c.Workflow.Autonomous = true
		rc.Sources["workflow.autonomous"] = SourceFile
	}

	if file.Engines.ProbeTTL.Duration != 0 {
		c.Engines.ProbeTTL = file.Engines.ProbeTTL
		rc.Sources["engines.probe_ttl"] = SourceFile
	}
	if file.Engines.RunTimeout.Duration != 0 {
		c.Engines.RunTimeout = file.Engines.RunTimeout
		rc.Sources["engines.run_timeout"] = SourceFile
	}
	if file.Engines.Default != "" {
		c.Engines.Default = file.Engines.Default
		rc.Sources["engines.default"] = SourceFile
	}
	if len(file.Engines.Order) > 0 {
		c.Engines.Order = append([]string(nil), file.Engines.Order...)
		rc.Sources["engines.order"] = SourceFile
	}

	for id, spec := range file.Engines.Spec {
		c.Engines.Spec[id] = copySpec(spec)
		rc.Sources["engines.spec."+id] = SourceFile
	}
}

// --- Layer 3: environment ---

// Environment variable mapping:
//
//	CODEMACHINE_CWD            -> paths.cwd (workflow root)
//	CODEMACHINE_PACKAGE_ROOT   -> paths.package_root
//	CODEMACHINE_INSTALL_DIR    -> paths.install_dir
//	CODEMACHINE_SKIP_MISTRAL   -> drop the mistral engine from the registry
//	CODEMACHINE_DEBUG_TRIGGERS -> enable the directive debug watcher
func resolveFromEnv(rc *Resolved, envFn EnvFunc) {
	if val, ok := envFn("CODEMACHINE_CWD"); ok {
		rc.Paths.Cwd = val
		rc.Sources["paths.cwd"] = SourceEnv
	}
	if val, ok := envFn("CODEMACHINE_PACKAGE_ROOT"); ok {
		rc.Paths.PackageRoot = val
		rc.Sources["paths.package_root"] = SourceEnv
	}
	if val, ok := envFn("CODEMACHINE_INSTALL_DIR"); ok {
		rc.Paths.InstallDir = val
		rc.Sources["paths.install_dir"] = SourceEnv
	}

	if val, ok := envFn("CODEMACHINE_SKIP_MISTRAL"); ok && truthy(val) {
		removeEngine(rc.Config, EngineMistral)
		rc.Sources["engines.order"] = SourceEnv
	}

	if val, ok := envFn("CODEMACHINE_DEBUG_TRIGGERS"); ok && truthy(val) {
		rc.DebugTriggers = true
		rc.Sources["debug_triggers"] = SourceEnv
	}
}

// --- Layer 4: CLI overrides ---

func resolveFromCLI(rc *Resolved, overrides *Overrides) {
	if overrides.Template != nil {
		rc.Config.Workflow.Template = *overrides.Template
		rc.Sources["workflow.template"] = SourceCLI
	}
	if overrides.Autonomous != nil {
		rc.Config.Workflow.Autonomous = *overrides.Autonomous
		rc.Sources["workflow.autonomous"] = SourceCLI
	}
	if overrides.Dir != nil {
		rc.Paths.Cwd = *overrides.Dir
		rc.Sources["paths.cwd"] = SourceCLI
	}
}

// --- Helpers ---

// truthy reports whether an environment value enables a switch. Empty, "0"
// and "false" (any case) disable; everything else enables.
func truthy(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "", "0", "false":
		return false
	default:
		return true
	}
}

// removeEngine drops id from the order, the spec map and the default slot.
func removeEngine(c *Config, id string) {
	order := c.Engines.Order[:0]
	for _, entry := range c.Engines.Order {
		if entry != id {
			order = append(order, entry)
		}
	}
	c.Engines.Order = order
	delete(c.Engines.Spec, id)
	if c.Engines.Default == id {
		c.Engines.Default = ""
	}
}

// normalizeSpecIDs stamps each spec with its section key. The key is
// authoritative: a mismatched inline id would otherwise let two sections
// register the same engine.
func normalizeSpecIDs(c *Config) {
	for id, spec := range c.Engines.Spec {
		if spec.ID != id {
			spec.ID = id
			c.Engines.Spec[id] = spec
		}
	}
}

// copySpec returns a deep copy of an engine spec.
func copySpec(src engine.Spec) engine.Spec {
	dst := src
	if src.Args != nil {
		dst.Args = append([]string(nil), src.Args...)
	}
	if src.AuthProbe != nil {
		dst.AuthProbe = append([]string(nil), src.AuthProbe...)
	}
	if src.Env != nil {
		dst.Env = append([]string(nil), src.Env...)
	}
	return dst
}
