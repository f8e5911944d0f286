package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/codemachine-ai/codemachine/internal/engine"
)

// ValidationSeverity indicates whether a validation issue is an error or warning.
type ValidationSeverity string

const (
	// SeverityError indicates a fatal validation issue; the configuration is unusable.
	SeverityError ValidationSeverity = "error"
	// SeverityWarning indicates an informational validation issue; the configuration works
	// but may have problems.
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue represents a single validation finding.
type ValidationIssue struct {
	Severity ValidationSeverity
	Field    string // dotted path, e.g., "engines.default"
	Message  string
}

// ValidationResult holds all validation findings.
type ValidationResult struct {
	Issues []ValidationIssue
}

// HasErrors returns true if any issue has error severity.
func (vr *ValidationResult) HasErrors() bool {
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// HasWarnings returns true if any issue has warning severity.
func (vr *ValidationResult) HasWarnings() bool {
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityWarning {
			return true
		}
	}
	return false
}

// Errors returns only error-severity issues.
func (vr *ValidationResult) Errors() []ValidationIssue {
	var errs []ValidationIssue
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityError {
			errs = append(errs, issue)
		}
	}
	return errs
}

// Warnings returns only warning-severity issues.
func (vr *ValidationResult) Warnings() []ValidationIssue {
	var warns []ValidationIssue
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityWarning {
			warns = append(warns, issue)
		}
	}
	return warns
}

// engineIDRe validates engine ids: lowercase alphanumerics and hyphens.
var engineIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Validate checks a resolved configuration for correctness. meta is the TOML
// metadata from loading (nil when no file was loaded); it feeds unknown-key
// warnings. Check HasErrors() to determine whether the config is usable.
func Validate(cfg *Config, meta *toml.MetaData) *ValidationResult {
	vr := &ValidationResult{}

	if cfg == nil {
		addError(vr, "", "configuration is nil")
		return vr
	}

	validateWorkflow(vr, &cfg.Workflow)
	validateEngines(vr, &cfg.Engines)
	validateUnknownKeys(vr, meta)

	return vr
}

// validateWorkflow checks the [workflow] section.
func validateWorkflow(vr *ValidationResult, w *WorkflowConfig) {
	if w.Template == "" {
		addError(vr, "workflow.template", "must not be empty")
	}
}

// validateEngines checks the [engines] section and every spec record.
func validateEngines(vr *ValidationResult, e *EnginesConfig) {
	// Error: the order must name at least one engine.
	if len(e.Order) == 0 {
		addError(vr, "engines.order", "must list at least one engine")
	}

	// Error: order entries must be unique and backed by a spec.
	seen := make(map[string]bool, len(e.Order))
	for i, id := range e.Order {
		field := fmt.Sprintf("engines.order[%d]", i)
		if seen[id] {
			addError(vr, field, fmt.Sprintf("duplicate engine %q", id))
			continue
		}
		seen[id] = true
		if _, ok := e.Spec[id]; !ok {
			addError(vr, field, fmt.Sprintf("no [engines.spec.%s] record exists", id))
		}
	}

	// Error: the default engine must be in the selection order.
	if e.Default != "" && !seen[e.Default] {
		addError(vr, "engines.default",
			fmt.Sprintf("engine %q is not in engines.order", e.Default))
	}

	// Probe TTL and run timeout sanity.
	if e.ProbeTTL.Duration < 0 {
		addError(vr, "engines.probe_ttl", "must not be negative")
	}
	if e.RunTimeout.Duration < 0 {
		addError(vr, "engines.run_timeout", "must not be negative")
	}

	for id, spec := range e.Spec {
		validateSpec(vr, id, spec)
	}

	// Warning: a spec nothing in the order can reach is dead weight.
	for id := range e.Spec {
		if !seen[id] {
			addWarning(vr, "engines.spec."+id, "not listed in engines.order; never registered")
		}
	}
}

// validateSpec checks one [engines.spec.<id>] record.
func validateSpec(vr *ValidationResult, id string, spec engine.Spec) {
	prefix := "engines.spec." + id

	if !engineIDRe.MatchString(id) {
		addError(vr, prefix,
			fmt.Sprintf("invalid engine id %q; use lowercase alphanumerics and hyphens", id))
	}

	if spec.Command == "" {
		addError(vr, prefix+".command", "must not be empty")
	}

	for i, arg := range spec.AuthProbe {
		if arg == "" {
			addError(vr, fmt.Sprintf("%s.auth_probe[%d]", prefix, i),
				"must not be an empty string")
		}
	}

	for i, entry := range spec.Env {
		if !strings.Contains(entry, "=") {
			addError(vr, fmt.Sprintf("%s.env[%d]", prefix, i),
				fmt.Sprintf("%q is not a KEY=VALUE entry", entry))
		}
	}
}

// validateUnknownKeys checks for TOML keys that did not map to any config struct field.
func validateUnknownKeys(vr *ValidationResult, meta *toml.MetaData) {
	if meta == nil {
		return
	}

	for _, key := range meta.Undecoded() {
		path := strings.Join(key, ".")
		addWarning(vr, path, "unknown configuration key")
	}
}

// addError appends an error-severity issue to the validation result.
func addError(vr *ValidationResult, field, message string) {
	vr.Issues = append(vr.Issues, ValidationIssue{
		Severity: SeverityError,
		Field:    field,
		Message:  message,
	})
}

// addWarning appends a warning-severity issue to the validation result.
func addWarning(vr *ValidationResult, field, message string) {
	vr.Issues = append(vr.Issues, ValidationIssue{
		Severity: SeverityWarning,
		Field:    field,
		Message:  message,
	})
}
