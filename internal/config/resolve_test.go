package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemachine-ai/codemachine/internal/engine"
)

// stringPtr returns a pointer to the given string value.
func stringPtr(s string) *string {
	return &s
}

// boolPtr returns a pointer to the given bool value.
func boolPtr(b bool) *bool {
	return &b
}

// mockEnvFunc creates an EnvFunc backed by a map.
func mockEnvFunc(vars map[string]string) EnvFunc {
	return func(key string) (string, bool) {
		val, ok := vars[key]
		return val, ok
	}
}

// noEnv is an EnvFunc that returns no environment variables.
func noEnv(_ string) (string, bool) {
	return "", false
}

// --- Resolve with only defaults ---

func TestResolve_OnlyDefaults(t *testing.T) {
	t.Parallel()
	defaults := NewDefaults()

	rc := Resolve(defaults, nil, noEnv, nil)

	require.NotNil(t, rc)
	require.NotNil(t, rc.Config)

	// All values should come from defaults.
	assert.Equal(t, "build", rc.Config.Workflow.Template)
	assert.False(t, rc.Config.Workflow.Autonomous)
	assert.Equal(t, 5*time.Minute, rc.Config.Engines.ProbeTTL.Duration)
	assert.Equal(t, 30*time.Minute, rc.Config.Engines.RunTimeout.Duration)
	assert.Equal(t, EngineClaude, rc.Config.Engines.Default)
	assert.Len(t, rc.Config.Engines.Spec, 5)

	// All sources should be "default".
	assert.Equal(t, SourceDefault, rc.Sources["workflow.template"])
	assert.Equal(t, SourceDefault, rc.Sources["workflow.autonomous"])
	assert.Equal(t, SourceDefault, rc.Sources["engines.probe_ttl"])
	assert.Equal(t, SourceDefault, rc.Sources["engines.run_timeout"])
	assert.Equal(t, SourceDefault, rc.Sources["engines.default"])
	assert.Equal(t, SourceDefault, rc.Sources["engines.order"])
	assert.Equal(t, SourceDefault, rc.Sources["engines.spec.claude"])
}

// --- Resolve with file overrides ---

func TestResolve_FileOverridesTemplate(t *testing.T) {
	t.Parallel()
	defaults := NewDefaults()
	fileConfig := &Config{
		Workflow: WorkflowConfig{Template: "plan"},
	}

	rc := Resolve(defaults, fileConfig, noEnv, nil)

	// workflow.template should come from file.
	assert.Equal(t, "plan", rc.Config.Workflow.Template)
	assert.Equal(t, SourceFile, rc.Sources["workflow.template"])

	// Other fields remain from defaults.
	assert.Equal(t, EngineClaude, rc.Config.Engines.Default)
	assert.Equal(t, SourceDefault, rc.Sources["engines.default"])
}

func TestResolve_FileOverridesEngineSettings(t *testing.T) {
	t.Parallel()
	defaults := NewDefaults()
	fileConfig := &Config{
		Engines: EnginesConfig{
			ProbeTTL:   Duration{time.Minute},
			RunTimeout: Duration{time.Hour},
			Order:      []string{EngineCodex, EngineClaude},
			Default:    EngineCodex,
		},
	}

	rc := Resolve(defaults, fileConfig, noEnv, nil)

	assert.Equal(t, time.Minute, rc.Config.Engines.ProbeTTL.Duration)
	assert.Equal(t, time.Hour, rc.Config.Engines.RunTimeout.Duration)
	assert.Equal(t, []string{EngineCodex, EngineClaude}, rc.Config.Engines.Order)
	assert.Equal(t, EngineCodex, rc.Config.Engines.Default)
	assert.Equal(t, SourceFile, rc.Sources["engines.probe_ttl"])
	assert.Equal(t, SourceFile, rc.Sources["engines.run_timeout"])
	assert.Equal(t, SourceFile, rc.Sources["engines.order"])
	assert.Equal(t, SourceFile, rc.Sources["engines.default"])

	// Specs were not touched by the file.
	assert.Len(t, rc.Config.Engines.Spec, 5)
	assert.Equal(t, SourceDefault, rc.Sources["engines.spec.codex"])
}

func TestResolve_FileAutonomous(t *testing.T) {
	t.Parallel()
	defaults := NewDefaults()
	fileConfig := &Config{
		Workflow: WorkflowConfig{Autonomous: true},
	}

	rc := Resolve(defaults, fileConfig, noEnv, nil)

	assert.True(t, rc.Config.Workflow.Autonomous)
	assert.Equal(t, SourceFile, rc.Sources["workflow.autonomous"])
}

func TestResolve_FileSpecReplacesBuiltinWholesale(t *testing.T) {
	t.Parallel()
	defaults := NewDefaults()
	fileConfig := &Config{
		Engines: EnginesConfig{
			Spec: map[string]engine.Spec{
				EngineClaude: {Command: "claude-nightly"},
			},
		},
	}

	rc := Resolve(defaults, fileConfig, noEnv, nil)

	claude := rc.Config.Engines.Spec[EngineClaude]
	assert.Equal(t, "claude-nightly", claude.Command)
	// A file record replaces the built-in wholesale: no args survive.
	assert.Empty(t, claude.Args)
	assert.Empty(t, claude.ResumeFlag)
	assert.Equal(t, SourceFile, rc.Sources["engines.spec.claude"])

	// Other built-ins are untouched.
	assert.Equal(t, "codex", rc.Config.Engines.Spec[EngineCodex].Command)
	assert.Equal(t, SourceDefault, rc.Sources["engines.spec.codex"])
}

func TestResolve_FileAddsNewSpec(t *testing.T) {
	t.Parallel()
	defaults := NewDefaults()
	fileConfig := &Config{
		Engines: EnginesConfig{
			Spec: map[string]engine.Spec{
				"gemini": {Command: "gemini", ModelFlag: "--model"},
			},
		},
	}

	rc := Resolve(defaults, fileConfig, noEnv, nil)

	// Built-ins plus the new one.
	require.Len(t, rc.Config.Engines.Spec, 6)
	gemini, ok := rc.Config.Engines.Spec["gemini"]
	require.True(t, ok)
	assert.Equal(t, "gemini", gemini.Command)
	assert.Equal(t, SourceFile, rc.Sources["engines.spec.gemini"])
	assert.Equal(t, SourceDefault, rc.Sources["engines.spec.claude"])
}

// --- Environment variable tests ---

func TestResolve_EnvPaths(t *testing.T) {
	t.Parallel()
	defaults := NewDefaults()
	envFn := mockEnvFunc(map[string]string{
		"CODEMACHINE_CWD":          "/work/project",
		"CODEMACHINE_PACKAGE_ROOT": "/opt/codemachine",
		"CODEMACHINE_INSTALL_DIR":  "/usr/local/lib/codemachine",
	})

	rc := Resolve(defaults, nil, envFn, nil)

	assert.Equal(t, "/work/project", rc.Paths.Cwd)
	assert.Equal(t, "/opt/codemachine", rc.Paths.PackageRoot)
	assert.Equal(t, "/usr/local/lib/codemachine", rc.Paths.InstallDir)
	assert.Equal(t, SourceEnv, rc.Sources["paths.cwd"])
	assert.Equal(t, SourceEnv, rc.Sources["paths.package_root"])
	assert.Equal(t, SourceEnv, rc.Sources["paths.install_dir"])
}

func TestResolve_EnvPathsUnsetByDefault(t *testing.T) {
	t.Parallel()
	rc := Resolve(NewDefaults(), nil, noEnv, nil)

	assert.Empty(t, rc.Paths.Cwd)
	assert.Empty(t, rc.Paths.PackageRoot)
	assert.Empty(t, rc.Paths.InstallDir)
}

func TestResolve_EnvSkipMistral(t *testing.T) {
	t.Parallel()
	defaults := NewDefaults()
	envFn := mockEnvFunc(map[string]string{
		"CODEMACHINE_SKIP_MISTRAL": "1",
	})

	rc := Resolve(defaults, nil, envFn, nil)

	assert.NotContains(t, rc.Config.Engines.Order, EngineMistral)
	assert.NotContains(t, rc.Config.Engines.Spec, EngineMistral)
	assert.Equal(t, SourceEnv, rc.Sources["engines.order"])

	// The default engine is claude and survives the removal.
	assert.Equal(t, EngineClaude, rc.Config.Engines.Default)
	assert.Len(t, rc.Config.Engines.Order, 4)
}

func TestResolve_EnvSkipMistral_ClearsMatchingDefault(t *testing.T) {
	t.Parallel()
	defaults := NewDefaults()
	defaults.Engines.Default = EngineMistral
	envFn := mockEnvFunc(map[string]string{
		"CODEMACHINE_SKIP_MISTRAL": "true",
	})

	rc := Resolve(defaults, nil, envFn, nil)

	// An empty default falls back to the first registered engine.
	assert.Empty(t, rc.Config.Engines.Default)
	assert.NotContains(t, rc.Config.Engines.Order, EngineMistral)
}

func TestResolve_EnvSkipMistral_FalsyValuesIgnored(t *testing.T) {
	t.Parallel()
	for _, val := range []string{"", "0", "false", "FALSE"} {
		envFn := mockEnvFunc(map[string]string{
			"CODEMACHINE_SKIP_MISTRAL": val,
		})

		rc := Resolve(NewDefaults(), nil, envFn, nil)

		assert.Contains(t, rc.Config.Engines.Order, EngineMistral,
			"value %q should not skip mistral", val)
		assert.Contains(t, rc.Config.Engines.Spec, EngineMistral)
	}
}

func TestResolve_EnvDebugTriggers(t *testing.T) {
	t.Parallel()
	envFn := mockEnvFunc(map[string]string{
		"CODEMACHINE_DEBUG_TRIGGERS": "1",
	})

	rc := Resolve(NewDefaults(), nil, envFn, nil)

	assert.True(t, rc.DebugTriggers)
	assert.Equal(t, SourceEnv, rc.Sources["debug_triggers"])
}

func TestResolve_EnvDebugTriggers_OffByDefault(t *testing.T) {
	t.Parallel()
	rc := Resolve(NewDefaults(), nil, noEnv, nil)
	assert.False(t, rc.DebugTriggers)
}

func TestTruthy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		val  string
		want bool
	}{
		{val: "", want: false},
		{val: "0", want: false},
		{val: "false", want: false},
		{val: "FALSE", want: false},
		{val: " false ", want: false},
		{val: "1", want: true},
		{val: "true", want: true},
		{val: "yes", want: true},
		{val: "anything", want: true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truthy(tt.val), "truthy(%q)", tt.val)
	}
}

// --- CLI override tests ---

func TestResolve_CLITemplate(t *testing.T) {
	t.Parallel()
	defaults := NewDefaults()
	fileConfig := &Config{
		Workflow: WorkflowConfig{Template: "plan"},
	}
	overrides := &Overrides{
		Template: stringPtr("hotfix"),
	}

	rc := Resolve(defaults, fileConfig, noEnv, overrides)

	assert.Equal(t, "hotfix", rc.Config.Workflow.Template)
	assert.Equal(t, SourceCLI, rc.Sources["workflow.template"])
}

func TestResolve_CLIAutonomous(t *testing.T) {
	t.Parallel()
	defaults := NewDefaults()
	fileConfig := &Config{
		Workflow: WorkflowConfig{Autonomous: true},
	}
	overrides := &Overrides{
		Autonomous: boolPtr(false),
	}

	rc := Resolve(defaults, fileConfig, noEnv, overrides)

	// A false pointer is an explicit override, unlike a false file value.
	assert.False(t, rc.Config.Workflow.Autonomous)
	assert.Equal(t, SourceCLI, rc.Sources["workflow.autonomous"])
}

func TestResolve_CLIDirOverridesEnvCwd(t *testing.T) {
	t.Parallel()
	envFn := mockEnvFunc(map[string]string{
		"CODEMACHINE_CWD": "/from/env",
	})
	overrides := &Overrides{
		Dir: stringPtr("/from/flag"),
	}

	rc := Resolve(NewDefaults(), nil, envFn, overrides)

	assert.Equal(t, "/from/flag", rc.Paths.Cwd)
	assert.Equal(t, SourceCLI, rc.Sources["paths.cwd"])
}

func TestResolve_CLIEmptyTemplate_Overrides(t *testing.T) {
	t.Parallel()
	overrides := &Overrides{
		Template: stringPtr(""),
	}

	rc := Resolve(NewDefaults(), nil, noEnv, overrides)

	// Empty string via CLI pointer means "override to empty string";
	// Validate flags it afterwards.
	assert.Equal(t, "", rc.Config.Workflow.Template)
	assert.Equal(t, SourceCLI, rc.Sources["workflow.template"])
}

// --- Nil and empty inputs ---

func TestResolve_NilFileConfig(t *testing.T) {
	t.Parallel()
	rc := Resolve(NewDefaults(), nil, noEnv, nil)

	assert.Equal(t, "build", rc.Config.Workflow.Template)
	assert.Equal(t, SourceDefault, rc.Sources["workflow.template"])
}

func TestResolve_NilOverrides(t *testing.T) {
	t.Parallel()
	fileConfig := &Config{
		Workflow: WorkflowConfig{Template: "plan"},
	}

	rc := Resolve(NewDefaults(), fileConfig, noEnv, nil)

	assert.Equal(t, "plan", rc.Config.Workflow.Template)
	assert.Equal(t, SourceFile, rc.Sources["workflow.template"])
}

func TestResolve_EmptyOverrides(t *testing.T) {
	t.Parallel()
	fileConfig := &Config{
		Workflow: WorkflowConfig{Template: "plan"},
	}
	overrides := &Overrides{}

	rc := Resolve(NewDefaults(), fileConfig, noEnv, overrides)

	assert.Equal(t, "plan", rc.Config.Workflow.Template)
	assert.Equal(t, SourceFile, rc.Sources["workflow.template"])
}

func TestResolve_NilDefaults(t *testing.T) {
	t.Parallel()

	rc := Resolve(nil, nil, noEnv, nil)

	require.NotNil(t, rc)
	require.NotNil(t, rc.Config)
	assert.Empty(t, rc.Config.Workflow.Template)
	assert.NotNil(t, rc.Config.Engines.Spec)
	assert.Empty(t, rc.Config.Engines.Spec)
}

func TestResolve_NilEnvFunc(t *testing.T) {
	t.Parallel()

	rc := Resolve(NewDefaults(), nil, nil, nil)

	require.NotNil(t, rc)
	assert.Equal(t, "build", rc.Config.Workflow.Template)
}

func TestResolve_FileEmpty_KeepsDefaults(t *testing.T) {
	t.Parallel()
	fileConfig := &Config{} // empty config from an empty toml file

	rc := Resolve(NewDefaults(), fileConfig, noEnv, nil)

	// All defaults should be preserved since the file has only zero values.
	assert.Equal(t, "build", rc.Config.Workflow.Template)
	assert.Equal(t, SourceDefault, rc.Sources["workflow.template"])
	assert.Equal(t, 5*time.Minute, rc.Config.Engines.ProbeTTL.Duration)
	assert.Equal(t, SourceDefault, rc.Sources["engines.probe_ttl"])
	assert.Len(t, rc.Config.Engines.Spec, 5)
}

// --- Spec normalization and copying ---

func TestResolve_NormalizesSpecIDs(t *testing.T) {
	t.Parallel()
	fileConfig := &Config{
		Engines: EnginesConfig{
			// Inline id disagrees with the section key; the key wins.
			Spec: map[string]engine.Spec{
				"claude-max": {ID: "claude", Command: "claude"},
			},
		},
	}

	rc := Resolve(NewDefaults(), fileConfig, noEnv, nil)

	spec := rc.Config.Engines.Spec["claude-max"]
	assert.Equal(t, "claude-max", spec.ID)
}

func TestResolve_DeepCopy_SpecsNotShared(t *testing.T) {
	t.Parallel()
	defaults := NewDefaults()

	rc := Resolve(defaults, nil, noEnv, nil)

	// Mutate the resolved spec's slices; defaults must be unaffected.
	spec := rc.Config.Engines.Spec[EngineClaude]
	spec.Args[0] = "--mutated"
	rc.Config.Engines.Spec[EngineClaude] = spec

	assert.Equal(t, "--print", defaults.Engines.Spec[EngineClaude].Args[0],
		"defaults should not be mutated")
}

func TestResolve_DeepCopy_OrderNotShared(t *testing.T) {
	t.Parallel()
	defaults := NewDefaults()

	rc := Resolve(defaults, nil, noEnv, nil)

	rc.Config.Engines.Order[0] = "mutated"

	assert.Equal(t, EngineClaude, defaults.Engines.Order[0],
		"defaults should not be mutated")
}

func TestResolve_DeepCopy_FileSpecNotShared(t *testing.T) {
	t.Parallel()
	fileConfig := &Config{
		Engines: EnginesConfig{
			Spec: map[string]engine.Spec{
				"gemini": {Command: "gemini", Args: []string{"--yolo"}},
			},
		},
	}

	rc := Resolve(NewDefaults(), fileConfig, noEnv, nil)

	spec := rc.Config.Engines.Spec["gemini"]
	spec.Args[0] = "--mutated"
	rc.Config.Engines.Spec["gemini"] = spec

	assert.Equal(t, "--yolo", fileConfig.Engines.Spec["gemini"].Args[0],
		"file config should not be mutated")
}

// --- Sources map ---

func TestResolve_SourcesMap_Complete(t *testing.T) {
	t.Parallel()
	rc := Resolve(NewDefaults(), nil, noEnv, nil)

	expectedKeys := []string{
		"workflow.template",
		"workflow.autonomous",
		"engines.probe_ttl",
		"engines.run_timeout",
		"engines.order",
		"engines.default",
		"engines.spec.claude",
		"engines.spec.codex",
		"engines.spec.cursor",
		"engines.spec.mistral",
		"engines.spec.opencode",
	}
	for _, key := range expectedKeys {
		_, ok := rc.Sources[key]
		assert.True(t, ok, "expected Sources to contain key %q", key)
	}
}

func TestResolve_Path_EmptyByDefault(t *testing.T) {
	t.Parallel()
	rc := Resolve(NewDefaults(), nil, noEnv, nil)

	assert.Empty(t, rc.Path, "Path should be empty when no config file is used")
}

// --- All four layers providing different values ---

func TestResolve_PriorityOrder_AllLayers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		fileConfig *Config
		envVars    map[string]string
		overrides  *Overrides
		wantCwd    string
		wantSource Source
	}{
		{
			name:    "env only",
			envVars: map[string]string{"CODEMACHINE_CWD": "/env"},
			wantCwd: "/env", wantSource: SourceEnv,
		},
		{
			name:      "cli only",
			overrides: &Overrides{Dir: stringPtr("/cli")},
			wantCwd:   "/cli", wantSource: SourceCLI,
		},
		{
			name:      "cli overrides env",
			envVars:   map[string]string{"CODEMACHINE_CWD": "/env"},
			overrides: &Overrides{Dir: stringPtr("/cli")},
			wantCwd:   "/cli", wantSource: SourceCLI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			envFn := noEnv
			if tt.envVars != nil {
				envFn = mockEnvFunc(tt.envVars)
			}
			rc := Resolve(NewDefaults(), tt.fileConfig, envFn, tt.overrides)
			assert.Equal(t, tt.wantCwd, rc.Paths.Cwd)
			assert.Equal(t, tt.wantSource, rc.Sources["paths.cwd"])
		})
	}
}

func TestResolve_TemplatePrecedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		fileConfig *Config
		overrides  *Overrides
		want       string
		wantSource Source
	}{
		{
			name: "default only",
			want: "build", wantSource: SourceDefault,
		},
		{
			name:       "file overrides default",
			fileConfig: &Config{Workflow: WorkflowConfig{Template: "file-tpl"}},
			want:       "file-tpl", wantSource: SourceFile,
		},
		{
			name:       "cli overrides file",
			fileConfig: &Config{Workflow: WorkflowConfig{Template: "file-tpl"}},
			overrides:  &Overrides{Template: stringPtr("cli-tpl")},
			want:       "cli-tpl", wantSource: SourceCLI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rc := Resolve(NewDefaults(), tt.fileConfig, noEnv, tt.overrides)
			assert.Equal(t, tt.want, rc.Config.Workflow.Template)
			assert.Equal(t, tt.wantSource, rc.Sources["workflow.template"])
		})
	}
}
