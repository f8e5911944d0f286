package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	m := NewMock("claude")
	require.NoError(t, r.Register(m))

	got, err := r.Get("claude")
	require.NoError(t, err)
	assert.Same(t, Engine(m), got)
	assert.True(t, r.Has("claude"))
	assert.False(t, r.Has("codex"))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_GetUnknown(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.Get("ghost")
	assert.ErrorIs(t, err, ErrEngineNotFound)
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(NewMock("claude")))
	err := r.Register(NewMock("claude"))
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestRegistry_RegisterInvalidID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		id   string
	}{
		{name: "empty", id: ""},
		{name: "uppercase", id: "Claude"},
		{name: "leading hyphen", id: "-claude"},
		{name: "space", id: "my engine"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewRegistry()
			err := r.Register(NewMock(tt.id))
			assert.ErrorIs(t, err, ErrInvalidID)
		})
	}
}

func TestRegistry_RegisterNil(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	assert.ErrorIs(t, r.Register(nil), ErrInvalidID)
}

func TestRegistry_OrderPreserved(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(NewMock("claude")))
	require.NoError(t, r.Register(NewMock("codex")))
	require.NoError(t, r.Register(NewMock("cursor")))

	assert.Equal(t, []string{"claude", "codex", "cursor"}, r.IDs())

	engines := r.Engines()
	require.Len(t, engines, 3)
	assert.Equal(t, "claude", engines[0].ID())
	assert.Equal(t, "cursor", engines[2].ID())
}

func TestRegistry_Default(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(NewMock("claude")))
	require.NoError(t, r.Register(NewMock("codex")))

	// Without SetDefault the first registered engine is the default.
	def, err := r.Default()
	require.NoError(t, err)
	assert.Equal(t, "claude", def.ID())

	require.NoError(t, r.SetDefault("codex"))
	def, err = r.Default()
	require.NoError(t, err)
	assert.Equal(t, "codex", def.ID())
}

func TestRegistry_SetDefaultUnknown(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	assert.ErrorIs(t, r.SetDefault("ghost"), ErrEngineNotFound)
}

func TestRegistry_DefaultEmpty(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.Default()
	assert.ErrorIs(t, err, ErrNoEnginesRegistered)
}
