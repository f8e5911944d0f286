package e2e_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testProject is an isolated workflow directory with a freshly built
// codemachine binary and a stub engine directory on PATH.
type testProject struct {
	Dir        string
	BinaryPath string
	StubDir    string
	t          *testing.T
}

// newTestProject builds the codemachine binary into a fresh temp directory
// and prepares an empty stub-engine bin directory. It deliberately writes no
// config and no prompts; tests scaffold exactly what they exercise.
func newTestProject(t *testing.T) *testProject {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("E2E tests with bash stub engines are not supported on Windows")
	}

	dir := t.TempDir()

	binary := filepath.Join(dir, "codemachine")
	build := exec.Command("go", "build", "-o", binary, "./cmd/codemachine")
	build.Dir = projectRoot()
	out, err := build.CombinedOutput()
	require.NoError(t, err, "building codemachine: %s", string(out))

	tp := &testProject{
		Dir:        dir,
		BinaryPath: binary,
		StubDir:    filepath.Join(dir, "stub-bin"),
		t:          t,
	}
	require.NoError(t, os.MkdirAll(tp.StubDir, 0o755))
	return tp
}

// projectRoot returns the absolute path to the repository root. It uses
// runtime.Caller(0) to find this source file's location and navigates two
// directories up (tests/e2e/ -> tests/ -> repo root).
func projectRoot() string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "..")
}

// stubEngineScript is the default stand-in for an agent CLI. It records its
// argv (newlines flattened so multi-line prompts stay one log entry), emits
// a session id in the JSONL shape the sniffer watches for, and ends stdout
// with a continue reply so controller delegation always advances.
const stubEngineScript = `#!/usr/bin/env bash
printf '%s' "$*" | tr '\n' ' ' >> stub-calls.log
echo >> stub-calls.log
echo '{"type":"system","session_id":"stub-session"}'
echo 'stub engine output'
echo '{"action":"continue"}'
`

// stopStubScript behaves like stubEngineScript but also leaves a stop
// directive behind, the way a real agent asks the orchestrator to end the
// workflow cleanly.
const stopStubScript = `#!/usr/bin/env bash
printf '%s' "$*" | tr '\n' ' ' >> stub-calls.log
echo >> stub-calls.log
mkdir -p .codemachine/memory
printf '{"action": "stop", "reason": "nothing left to do"}' > .codemachine/memory/directive.json
echo '{"type":"system","session_id":"stub-session"}'
echo '{"action":"continue"}'
`

// crashStubScript exits non-zero after announcing a session, simulating an
// engine CLI that falls over mid-step.
const crashStubScript = `#!/usr/bin/env bash
printf '%s' "$*" | tr '\n' ' ' >> stub-calls.log
echo >> stub-calls.log
echo '{"type":"system","session_id":"stub-session"}'
echo 'stub engine giving up'
exit 3
`

// writeStubEngine installs script as the executable "stub-engine" on the
// project's PATH prefix.
func (tp *testProject) writeStubEngine(script string) {
	tp.t.Helper()
	path := filepath.Join(tp.StubDir, "stub-engine")
	require.NoError(tp.t, os.WriteFile(path, []byte(script), 0o755))
}

// stubConfig returns a codemachine.toml that registers only the stub engine,
// so every step and the controller run through it deterministically.
func stubConfig() string {
	return `[workflow]
template = "build"

[engines]
order = ["stub"]
default = "stub"
run_timeout = "1m"

[engines.spec.stub]
name = "Stub Engine"
command = "stub-engine"
prompt_flag = "-p"
resume_flag = "--resume"
session_id_field = "session_id"
`
}

// writeConfig writes content to codemachine.toml in tp.Dir.
func (tp *testProject) writeConfig(content string) {
	tp.t.Helper()
	err := os.WriteFile(filepath.Join(tp.Dir, "codemachine.toml"), []byte(content), 0o644)
	require.NoError(tp.t, err)
}

// scaffoldBuildPrompts writes minimal prompt files for every step of the
// built-in build template.
func (tp *testProject) scaffoldBuildPrompts() {
	tp.t.Helper()
	prompts := map[string]string{
		"prompts/build/architecture.md": "Design the architecture.\n",
		"prompts/build/plan-core.md":    "Draft the core plan.\n",
		"prompts/build/plan-detail.md":  "Detail the plan.\n",
		"prompts/build/implement.md":    "Implement the plan.\n",
		"prompts/build/verify.md":       "Verify the implementation.\n",
		"prompts/build/review.md":       "Review the result.\n",
	}
	for rel, content := range prompts {
		path := filepath.Join(tp.Dir, rel)
		require.NoError(tp.t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(tp.t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// run creates an exec.Cmd for codemachine with the stub engine directory
// prepended to PATH. NO_COLOR keeps output plain; JSON logs are easier to
// grep than styled ones.
func (tp *testProject) run(args ...string) *exec.Cmd {
	cmd := exec.Command(tp.BinaryPath, args...)
	cmd.Dir = tp.Dir
	cmd.Env = append(os.Environ(),
		"PATH="+tp.StubDir+string(os.PathListSeparator)+os.Getenv("PATH"),
		"NO_COLOR=1",
		"CODEMACHINE_LOG_FORMAT=json",
	)
	return cmd
}

// runWithEnv is run with extra KEY=VALUE environment entries appended.
func (tp *testProject) runWithEnv(extraEnv []string, args ...string) *exec.Cmd {
	cmd := tp.run(args...)
	cmd.Env = append(cmd.Env, extraEnv...)
	return cmd
}

// runExpectSuccess runs codemachine and asserts exit code 0. Returns
// combined stdout+stderr output.
func (tp *testProject) runExpectSuccess(args ...string) string {
	tp.t.Helper()
	cmd := tp.run(args...)
	out, err := cmd.CombinedOutput()
	require.NoError(tp.t, err, "codemachine %v failed:\n%s", args, string(out))
	return string(out)
}

// runExpectFailure runs codemachine and asserts a non-zero exit code.
// Returns combined output and the exit code.
func (tp *testProject) runExpectFailure(args ...string) (string, int) {
	tp.t.Helper()
	cmd := tp.run(args...)
	out, err := cmd.CombinedOutput()
	require.Error(tp.t, err, "codemachine %v expected to fail but succeeded:\n%s", args, string(out))
	var exitErr *exec.ExitError
	require.True(tp.t, errors.As(err, &exitErr), "expected *exec.ExitError, got %T: %v", err, err)
	return string(out), exitErr.ExitCode()
}

// runExpectStdout runs codemachine, asserts success, and returns stdout
// alone. Used where the command's machine-readable output (plan listings,
// JSON status) must be parsed without log noise.
func (tp *testProject) runExpectStdout(args ...string) string {
	tp.t.Helper()
	cmd := tp.run(args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	require.NoError(tp.t, err, "codemachine %v failed:\nstdout:\n%s\nstderr:\n%s",
		args, stdout.String(), stderr.String())
	return stdout.String()
}

// stubCalls returns one entry per stub-engine invocation: the argv the
// engine was launched with, space-joined.
func (tp *testProject) stubCalls() []string {
	tp.t.Helper()
	data, err := os.ReadFile(filepath.Join(tp.Dir, "stub-calls.log"))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(tp.t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

// clearStubCalls truncates the invocation log between runs.
func (tp *testProject) clearStubCalls() {
	tp.t.Helper()
	err := os.Remove(filepath.Join(tp.Dir, "stub-calls.log"))
	if !os.IsNotExist(err) {
		require.NoError(tp.t, err)
	}
}

// trackingFile mirrors the persisted tracking document. The e2e suite
// decodes it with local types so the on-disk format stays an explicit
// contract rather than whatever the internal struct happens to be.
type trackingFile struct {
	ActiveTemplate string                    `json:"activeTemplate"`
	LastUpdated    time.Time                 `json:"lastUpdated"`
	CompletedSteps map[string]trackingRecord `json:"completedSteps"`
	SelectedTrack  string                    `json:"selectedTrack"`
	ProjectName    string                    `json:"projectName"`
	AutonomousMode *bool                     `json:"autonomousMode"`
	Controller     *trackingController       `json:"controllerConfig"`
}

type trackingRecord struct {
	SessionID   string     `json:"sessionId"`
	CompletedAt *time.Time `json:"completedAt"`
}

type trackingController struct {
	AgentID   string `json:"agentId"`
	SessionID string `json:"sessionId"`
}

// trackingPath returns the tracking file location under the project root.
func (tp *testProject) trackingPath() string {
	return filepath.Join(tp.Dir, ".codemachine", "template.json")
}

// readTracking loads and decodes the tracking file, failing the test when
// it is missing or malformed.
func (tp *testProject) readTracking() trackingFile {
	tp.t.Helper()
	data, err := os.ReadFile(tp.trackingPath())
	require.NoError(tp.t, err, "reading tracking file")
	var tf trackingFile
	require.NoError(tp.t, json.Unmarshal(data, &tf), "decoding tracking file:\n%s", string(data))
	return tf
}

// completedIndices returns the sorted-ish set of step indices with a
// completion timestamp.
func (tf trackingFile) completedIndices() map[string]bool {
	done := make(map[string]bool)
	for idx, rec := range tf.CompletedSteps {
		if rec.CompletedAt != nil {
			done[idx] = true
		}
	}
	return done
}
