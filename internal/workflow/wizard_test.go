package workflow

import (
	"errors"
	"testing"

	"github.com/charmbracelet/huh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestErrWizardCancelled verifies that the sentinel error exists and
// carries the expected message text.
func TestErrWizardCancelled(t *testing.T) {
	t.Parallel()
	require.NotNil(t, ErrWizardCancelled)
	assert.Equal(t, "wizard cancelled by user", ErrWizardCancelled.Error())
}

// TestMapWizardErr_UserAborted verifies huh's abort error maps to the
// cancellation sentinel.
func TestMapWizardErr_UserAborted(t *testing.T) {
	t.Parallel()
	err := mapWizardErr(huh.ErrUserAborted)
	assert.True(t, errors.Is(err, ErrWizardCancelled))
}

// TestMapWizardErr_OtherErrorWrapped verifies other errors keep their
// identity under the wizard prefix.
func TestMapWizardErr_OtherErrorWrapped(t *testing.T) {
	t.Parallel()
	cause := errors.New("terminal too small")
	err := mapWizardErr(cause)
	require.Error(t, err)
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrWizardCancelled))
	assert.Contains(t, err.Error(), "wizard:")
}

// TestBuildSummary_ManualRun verifies the confirmation summary for a
// run without autonomy.
func TestBuildSummary_ManualRun(t *testing.T) {
	t.Parallel()

	tmpl := &Template{
		Name:  "review",
		Steps: []Step{NewSeparator("Review"), NewStep("reviewer"), NewStep("qa")},
	}
	opts := &LaunchOptions{Selection: Selection{Track: "fast", Conditions: []string{"security", "style"}}}

	s := buildSummary(tmpl, opts)
	assert.Contains(t, s, "Steps:       2")
	assert.Contains(t, s, "Track:       fast")
	assert.Contains(t, s, "security, style")
	assert.Contains(t, s, "Mode:        manual")
}

// TestBuildSummary_AutonomousRun verifies the controller shows up when
// autonomy is selected.
func TestBuildSummary_AutonomousRun(t *testing.T) {
	t.Parallel()

	tmpl := &Template{
		Name:       "build",
		Controller: "controller",
		Steps:      []Step{NewStep("architect")},
	}
	opts := &LaunchOptions{Autonomous: true}

	s := buildSummary(tmpl, opts)
	assert.Contains(t, s, "autonomous (controller)")
	assert.NotContains(t, s, "Track:")
	assert.NotContains(t, s, "Conditions:")
}

// TestBuildSummary_CountsFilteredSteps verifies the step count reflects
// the selection, not the raw template.
func TestBuildSummary_CountsFilteredSteps(t *testing.T) {
	t.Parallel()

	tmpl := &Template{
		Name:   "t",
		Tracks: []Track{{ID: "fast"}, {ID: "thorough"}},
		Steps: []Step{
			NewStep("a"),
			NewStep("b", WithTracks("thorough")),
		},
	}
	opts := &LaunchOptions{Selection: Selection{Track: "fast"}}
	assert.Contains(t, buildSummary(tmpl, opts), "Steps:       1")
}
