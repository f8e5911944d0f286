package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codemachine-ai/codemachine/internal/engine"
)

// --- BuildRegistry tests ---

func TestBuildRegistry_Defaults(t *testing.T) {
	t.Parallel()
	cfg := NewDefaults()

	reg, err := BuildRegistry(cfg.Engines)
	require.NoError(t, err)

	assert.Equal(t, cfg.Engines.Order, reg.IDs(), "registration preserves order")

	def, err := reg.Default()
	require.NoError(t, err)
	assert.Equal(t, EngineClaude, def.ID())
}

func TestBuildRegistry_RespectsConfiguredOrder(t *testing.T) {
	t.Parallel()
	e := EnginesConfig{
		Order: []string{"beta", "alpha"},
		Spec: map[string]engine.Spec{
			"alpha": {ID: "alpha", Command: "alpha"},
			"beta":  {ID: "beta", Command: "beta"},
		},
	}

	reg, err := BuildRegistry(e)
	require.NoError(t, err)
	assert.Equal(t, []string{"beta", "alpha"}, reg.IDs())
}

func TestBuildRegistry_SkipsUnlistedSpecs(t *testing.T) {
	t.Parallel()
	e := EnginesConfig{
		Order: []string{"alpha"},
		Spec: map[string]engine.Spec{
			"alpha": {ID: "alpha", Command: "alpha"},
			"spare": {ID: "spare", Command: "spare"},
		},
	}

	reg, err := BuildRegistry(e)
	require.NoError(t, err)
	assert.True(t, reg.Has("alpha"))
	assert.False(t, reg.Has("spare"), "specs outside the order are not registered")
}

func TestBuildRegistry_MissingSpec(t *testing.T) {
	t.Parallel()
	e := EnginesConfig{
		Order: []string{"ghost"},
		Spec:  map[string]engine.Spec{},
	}

	_, err := BuildRegistry(e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `engine "ghost" listed in order has no spec`)
}

func TestBuildRegistry_DuplicateOrderEntry(t *testing.T) {
	t.Parallel()
	e := EnginesConfig{
		Order: []string{"alpha", "alpha"},
		Spec: map[string]engine.Spec{
			"alpha": {ID: "alpha", Command: "alpha"},
		},
	}

	_, err := BuildRegistry(e)
	require.ErrorIs(t, err, engine.ErrDuplicateID)
}

func TestBuildRegistry_InvalidSpecID(t *testing.T) {
	t.Parallel()
	e := EnginesConfig{
		Order: []string{"UPPER"},
		Spec: map[string]engine.Spec{
			"UPPER": {ID: "UPPER", Command: "upper"},
		},
	}

	_, err := BuildRegistry(e)
	require.ErrorIs(t, err, engine.ErrInvalidID)
}

func TestBuildRegistry_UnknownDefault(t *testing.T) {
	t.Parallel()
	e := EnginesConfig{
		Order:   []string{"alpha"},
		Default: "ghost",
		Spec: map[string]engine.Spec{
			"alpha": {ID: "alpha", Command: "alpha"},
		},
	}

	_, err := BuildRegistry(e)
	require.ErrorIs(t, err, engine.ErrEngineNotFound)
}

func TestBuildRegistry_EmptyDefault_FallsBackToFirst(t *testing.T) {
	t.Parallel()
	e := EnginesConfig{
		Order: []string{"beta", "alpha"},
		Spec: map[string]engine.Spec{
			"alpha": {ID: "alpha", Command: "alpha"},
			"beta":  {ID: "beta", Command: "beta"},
		},
	}

	reg, err := BuildRegistry(e)
	require.NoError(t, err)

	def, err := reg.Default()
	require.NoError(t, err)
	assert.Equal(t, "beta", def.ID(), "no configured default means the first entry wins")
}

// --- BuildSelector tests ---

func TestBuildSelector(t *testing.T) {
	t.Parallel()
	cfg := NewDefaults()
	cfg.Engines.ProbeTTL = Duration{time.Minute}

	sel, err := BuildSelector(cfg.Engines)
	require.NoError(t, err)
	assert.NotNil(t, sel)
}

func TestBuildSelector_PropagatesRegistryError(t *testing.T) {
	t.Parallel()
	e := EnginesConfig{
		Order: []string{"ghost"},
		Spec:  map[string]engine.Spec{},
	}

	_, err := BuildSelector(e)
	require.Error(t, err)
}
