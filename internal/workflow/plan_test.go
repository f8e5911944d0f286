package workflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planFixture() []Step {
	return []Step{
		NewSeparator("Plan"),
		NewStep("architect", WithPrompt("a.md"), WithExecuteOnce()),
		NewStep("planner", WithPrompt("p1.md", "p2.md")),
		NewStep("implementer", WithPrompt("i.md"), WithInteractive(false)),
	}
}

// TestBuildPlan_FreshRun verifies every executable step plans to run
// when no tracking exists.
func TestBuildPlan_FreshRun(t *testing.T) {
	t.Parallel()

	plan := BuildPlan(planFixture(), nil, false)
	require.Len(t, plan, 4)

	assert.Equal(t, PlanSeparator, plan[0].Action)
	assert.Equal(t, "Plan", plan[0].Label)

	for _, p := range plan[1:] {
		assert.Equal(t, PlanRun, p.Action)
	}
	assert.Equal(t, "architect:1", plan[1].UID)
	assert.Equal(t, "planner:2", plan[2].UID)
}

// TestBuildPlan_CompletedStepsSkip verifies tracked completion turns
// into skips with reasons.
func TestBuildPlan_CompletedStepsSkip(t *testing.T) {
	t.Parallel()

	completed := map[int]bool{1: true, 2: true}
	plan := BuildPlan(planFixture(), func(i int) bool { return completed[i] }, false)

	assert.Equal(t, PlanSkip, plan[1].Action)
	assert.Equal(t, "execute-once", plan[1].Reason)
	assert.Equal(t, PlanSkip, plan[2].Action)
	assert.Equal(t, "completed", plan[2].Reason)
	assert.Equal(t, PlanRun, plan[3].Action)
}

// TestBuildPlan_Scenarios verifies the plan carries each step's
// resolved scenario, including forced rows.
func TestBuildPlan_Scenarios(t *testing.T) {
	t.Parallel()

	plan := BuildPlan(planFixture(), nil, false)

	// Chained planner in manual mode: scenario 3.
	assert.Equal(t, 3, plan[2].Scenario.Number)
	// Non-interactive single prompt in manual mode: forced scenario 8.
	assert.Equal(t, 8, plan[3].Scenario.Number)
	assert.True(t, plan[3].Scenario.WasForced)

	auto := BuildPlan(planFixture(), nil, true)
	// The same step in autonomous mode: scenario 6, no forcing.
	assert.Equal(t, 6, auto[3].Scenario.Number)
	assert.False(t, auto[3].Scenario.WasForced)
}

// TestPlanFormatter_PlainOutput verifies the unstyled rendering.
func TestPlanFormatter_PlainOutput(t *testing.T) {
	t.Parallel()

	plan := BuildPlan(planFixture(), func(i int) bool { return i == 1 }, false)

	var sb strings.Builder
	f := NewPlanFormatter(&sb, false)
	require.NoError(t, f.Format("build", plan))

	out := sb.String()
	assert.Contains(t, out, "Plan for build")
	assert.Contains(t, out, "-- Plan --")
	assert.Contains(t, out, "skip")
	assert.Contains(t, out, "execute-once")
	assert.Contains(t, out, "planner:2")
	assert.Contains(t, out, "scenario 3")
	assert.Contains(t, out, "(forced interactive)")
	assert.NotContains(t, out, "\x1b[", "plain output must carry no ANSI codes")
}
