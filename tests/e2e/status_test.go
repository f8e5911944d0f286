package e2e_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// statusJSON mirrors the status command's --json document.
type statusJSON struct {
	ProjectName    string  `json:"project_name"`
	Template       string  `json:"template"`
	Autonomous     bool    `json:"autonomous"`
	TotalSteps     int     `json:"total_steps"`
	CompletedSteps int     `json:"completed_steps"`
	Percent        float64 `json:"percent"`
	ResumeKind     string  `json:"resume_kind"`
	ResumeIndex    int     `json:"resume_index"`
	Steps          []struct {
		Index     int    `json:"index"`
		AgentID   string `json:"agent_id"`
		Separator string `json:"separator"`
		Completed bool   `json:"completed"`
		SessionID string `json:"session_id"`
	} `json:"steps"`
}

// TestStatus_NoState checks the hint printed before any workflow has run.
func TestStatus_NoState(t *testing.T) {
	tp := newTestProject(t)
	tp.writeConfig(stubConfig())

	out := tp.runExpectSuccess("status")

	require.Contains(t, out, "No workflow state found")
	require.Contains(t, out, "codemachine run")
}

// TestStatus_AfterCompletedRun renders progress for a finished build
// workflow: full bar, autonomous marker, and a resume line pointing past
// the last step.
func TestStatus_AfterCompletedRun(t *testing.T) {
	tp := newTestProject(t)
	tp.writeStubEngine(stubEngineScript)
	tp.writeConfig(stubConfig())
	tp.scaffoldBuildPrompts()
	tp.runExpectSuccess("run", "build", "--autonomous", "--yes")

	out := tp.runExpectSuccess("status")

	require.Contains(t, out, "CodeMachine Status")
	require.Contains(t, out, "Template: build")
	require.Contains(t, out, "(autonomous)")
	require.Contains(t, out, "100% (5/5)")
	require.Contains(t, out, "Next run: continues at step 7.")
}

// TestStatus_AfterPartialRun shows a stopped workflow mid-progress and
// where the next invocation picks up.
func TestStatus_AfterPartialRun(t *testing.T) {
	tp := newTestProject(t)
	tp.writeStubEngine(stopStubScript)
	tp.writeConfig(stubConfig())
	tp.scaffoldBuildPrompts()
	tp.runExpectSuccess("run", "build", "--autonomous", "--yes")

	out := tp.runExpectSuccess("status")

	require.Contains(t, out, "20% (1/5)")
	require.Contains(t, out, "Next run: continues at step 2.")
}

// TestStatus_VerboseListsSteps includes the per-step roster with separator
// headings and per-step states.
func TestStatus_VerboseListsSteps(t *testing.T) {
	tp := newTestProject(t)
	tp.writeStubEngine(stopStubScript)
	tp.writeConfig(stubConfig())
	tp.scaffoldBuildPrompts()
	tp.runExpectSuccess("run", "build", "--autonomous", "--yes")

	out := tp.runExpectSuccess("status", "--verbose")

	require.Contains(t, out, "--- Plan ---")
	require.Contains(t, out, "--- Build ---")
	require.Contains(t, out, "Architect")
	require.Contains(t, out, "completed")
	require.Contains(t, out, "pending")
}

// TestStatus_JSONOutput decodes the machine-readable form and checks the
// figures against a completed run.
func TestStatus_JSONOutput(t *testing.T) {
	tp := newTestProject(t)
	tp.writeStubEngine(stubEngineScript)
	tp.writeConfig(stubConfig())
	tp.scaffoldBuildPrompts()
	tp.runExpectSuccess("run", "build", "--autonomous", "--yes")

	stdout := tp.runExpectStdout("status", "--json")

	var st statusJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &st), "decoding status JSON:\n%s", stdout)

	require.Equal(t, "build", st.Template)
	require.True(t, st.Autonomous)
	require.Equal(t, 5, st.TotalSteps)
	require.Equal(t, 5, st.CompletedSteps)
	require.InDelta(t, 100.0, st.Percent, 0.01)
	require.Equal(t, "CONTINUE_AFTER_COMPLETED", st.ResumeKind)
	require.Equal(t, 7, st.ResumeIndex)

	require.Len(t, st.Steps, 7)
	require.Equal(t, "Plan", st.Steps[0].Separator)
	require.Equal(t, "architect", st.Steps[1].AgentID)
	require.True(t, st.Steps[1].Completed)
	require.Equal(t, "stub-session", st.Steps[1].SessionID)
}
