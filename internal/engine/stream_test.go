package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// pumpLines
// ---------------------------------------------------------------------------

func TestPumpLines_OrderPreserved(t *testing.T) {
	t.Parallel()

	input := "alpha\nbeta\ngamma\n"
	var lines []string
	err := pumpLines(strings.NewReader(input), func(line string) {
		lines = append(lines, line)
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, lines)
}

func TestPumpLines_NoTrailingNewline(t *testing.T) {
	t.Parallel()

	var lines []string
	err := pumpLines(strings.NewReader("only line"), func(line string) {
		lines = append(lines, line)
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"only line"}, lines)
}

func TestPumpLines_LargeLine(t *testing.T) {
	t.Parallel()

	// Tool results can be huge single lines; anything under the 1MB cap
	// must pass through intact.
	big := strings.Repeat("x", 512*1024)
	var lines []string
	err := pumpLines(strings.NewReader(big+"\n"), func(line string) {
		lines = append(lines, line)
	})

	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Len(t, lines[0], 512*1024)
}

func TestPumpLines_EmptyInput(t *testing.T) {
	t.Parallel()

	calls := 0
	err := pumpLines(strings.NewReader(""), func(string) { calls++ })
	require.NoError(t, err)
	assert.Zero(t, calls)
}

// ---------------------------------------------------------------------------
// sessionSniffer
// ---------------------------------------------------------------------------

func TestSessionSniffer_FindsID(t *testing.T) {
	t.Parallel()

	s := newSessionSniffer("session_id")
	s.Scan(`{"type":"system","subtype":"init","session_id":"sess-1"}`)
	assert.Equal(t, "sess-1", s.SessionID())
}

func TestSessionSniffer_FirstSightingWins(t *testing.T) {
	t.Parallel()

	s := newSessionSniffer("session_id")
	s.Scan(`{"session_id":"first"}`)
	s.Scan(`{"session_id":"second"}`)
	assert.Equal(t, "first", s.SessionID())
}

func TestSessionSniffer_SkipsNoise(t *testing.T) {
	t.Parallel()

	s := newSessionSniffer("session_id")
	s.Scan("plain text line")
	s.Scan("")
	s.Scan(`{"broken json`)
	s.Scan(`{"type":"assistant"}`)
	s.Scan(`{"session_id":42}`)
	assert.Empty(t, s.SessionID())

	s.Scan(`  {"session_id":"found-late"}  `)
	assert.Equal(t, "found-late", s.SessionID())
}

func TestSessionSniffer_CustomField(t *testing.T) {
	t.Parallel()

	s := newSessionSniffer("sessionId")
	s.Scan(`{"sessionId":"camel-1","session_id":"snake-1"}`)
	assert.Equal(t, "camel-1", s.SessionID())
}

func TestSessionSniffer_DisabledWhenFieldEmpty(t *testing.T) {
	t.Parallel()

	s := newSessionSniffer("")
	s.Scan(`{"session_id":"sess-1"}`)
	assert.Empty(t, s.SessionID())
}
