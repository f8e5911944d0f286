// Package console renders the control-plane event stream as styled lines on
// a plain writer. It is the minimal built-in stand-in for an external UI:
// one line per event, no screen management, safe to interleave with the
// stderr logger.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/codemachine-ai/codemachine/internal/bus"
)

// ---------------------------------------------------------------------------
// Palette
// ---------------------------------------------------------------------------

var (
	colorAccent  = lipgloss.AdaptiveColor{Light: "#0D9488", Dark: "#2DD4BF"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "#16A34A", Dark: "#4ADE80"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}
	colorError   = lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#F87171"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "#2563EB", Dark: "#60A5FA"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
)

// Styles holds the lipgloss styles the sink renders with. Every field is a
// ready-to-use style; DefaultStyles initializes all of them.
type Styles struct {
	Timestamp lipgloss.Style
	AgentID   lipgloss.Style

	Pending   lipgloss.Style
	Running   lipgloss.Style
	Completed lipgloss.Style
	Skipped   lipgloss.Style
	Failed    lipgloss.Style
	Retrying  lipgloss.Style

	LogText    lipgloss.Style
	Input      lipgloss.Style
	Checkpoint lipgloss.Style
	Notice     lipgloss.Style
}

// DefaultStyles returns the standard adaptive-color styles.
func DefaultStyles() Styles {
	return Styles{
		Timestamp: lipgloss.NewStyle().Foreground(colorMuted),
		AgentID:   lipgloss.NewStyle().Bold(true),

		Pending:   lipgloss.NewStyle().Foreground(colorMuted),
		Running:   lipgloss.NewStyle().Foreground(colorAccent),
		Completed: lipgloss.NewStyle().Foreground(colorSuccess),
		Skipped:   lipgloss.NewStyle().Foreground(colorMuted),
		Failed:    lipgloss.NewStyle().Bold(true).Foreground(colorError),
		Retrying:  lipgloss.NewStyle().Foreground(colorWarning),

		LogText:    lipgloss.NewStyle().Foreground(colorMuted),
		Input:      lipgloss.NewStyle().Foreground(colorInfo),
		Checkpoint: lipgloss.NewStyle().Bold(true).Foreground(colorWarning),
		Notice:     lipgloss.NewStyle().Foreground(colorInfo),
	}
}

// statusStyle returns the style for an agent status. Unknown values render
// muted like pending.
func (s Styles) statusStyle(status bus.AgentStatus) lipgloss.Style {
	switch status {
	case bus.AgentRunning:
		return s.Running
	case bus.AgentCompleted:
		return s.Completed
	case bus.AgentSkipped:
		return s.Skipped
	case bus.AgentFailed:
		return s.Failed
	case bus.AgentRetrying:
		return s.Retrying
	default:
		return s.Pending
	}
}

// statusGlyph returns the one-rune indicator for an agent status.
//
// Mapping:
//   - pending   → "○"
//   - running   → "●"
//   - completed → "✓"
//   - skipped   → "×"
//   - failed    → "!"
//   - retrying  → "◌"
func statusGlyph(status bus.AgentStatus) string {
	switch status {
	case bus.AgentRunning:
		return "●"
	case bus.AgentCompleted:
		return "✓"
	case bus.AgentSkipped:
		return "×"
	case bus.AgentFailed:
		return "!"
	case bus.AgentRetrying:
		return "◌"
	default:
		return "○"
	}
}

// workflowGlyph maps a workflow status onto the same indicator vocabulary.
func workflowGlyph(status bus.WorkflowStatus) string {
	switch status {
	case bus.WorkflowRunning:
		return "●"
	case bus.WorkflowCompleted:
		return "✓"
	case bus.WorkflowError:
		return "!"
	case bus.WorkflowPaused:
		return "◌"
	default:
		return "○"
	}
}

// workflowStyle returns the style for a workflow status line.
func (s Styles) workflowStyle(status bus.WorkflowStatus) lipgloss.Style {
	switch status {
	case bus.WorkflowRunning:
		return s.Running
	case bus.WorkflowCompleted:
		return s.Completed
	case bus.WorkflowError:
		return s.Failed
	case bus.WorkflowPaused:
		return s.Retrying
	default:
		return s.Pending
	}
}

// ---------------------------------------------------------------------------
// Sink
// ---------------------------------------------------------------------------

// Sink consumes control-plane events and writes one styled line per event.
// Agent log lines are suppressed unless verbose is set; everything else is
// always rendered. Writes are serialized, so a Sink may be shared.
type Sink struct {
	w       io.Writer
	styles  Styles
	verbose bool

	mu sync.Mutex
}

// New returns a Sink writing to w. verbose controls whether per-agent output
// lines (EventAgentLog) are rendered.
func New(w io.Writer, verbose bool) *Sink {
	return &Sink{w: w, styles: DefaultStyles(), verbose: verbose}
}

// Run renders events until the channel is closed. It is the consumer loop
// the caller runs in its own goroutine next to the workflow runner.
func (s *Sink) Run(events <-chan bus.Event) {
	for ev := range events {
		s.Render(ev)
	}
}

// Render writes the line for a single event. Events that have no rendering
// (unknown types, suppressed log lines) are dropped silently.
func (s *Sink) Render(ev bus.Event) {
	line := s.format(ev)
	if line == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, line)
}

// format builds the styled line for ev, or "" when the event is not rendered.
func (s *Sink) format(ev bus.Event) string {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	stamp := s.styles.Timestamp.Render(ts.Format("15:04:05"))

	switch ev.Type {
	case bus.EventAgentStatus:
		style := s.styles.statusStyle(ev.Status)
		return join(stamp,
			style.Render(statusGlyph(ev.Status)),
			s.styles.AgentID.Render(ev.AgentID),
			style.Render(string(ev.Status)))

	case bus.EventAgentLog:
		if !s.verbose {
			return ""
		}
		return join(stamp,
			s.styles.AgentID.Render(ev.AgentID),
			s.styles.LogText.Render("│ "+ev.Message))

	case bus.EventInputState:
		return s.formatInput(stamp, ev)

	case bus.EventCheckpoint:
		text := "checkpoint"
		if ev.Reason != "" {
			text += ": " + ev.Reason
		}
		return join(stamp,
			s.styles.Checkpoint.Render("◆"),
			s.styles.AgentID.Render(ev.AgentID),
			s.styles.Checkpoint.Render(text))

	case bus.EventWorkflowStatus:
		style := s.styles.workflowStyle(ev.Workflow)
		return join(stamp,
			style.Render(workflowGlyph(ev.Workflow)),
			style.Render("workflow "+string(ev.Workflow)))

	case bus.EventModeChanged:
		mode := "manual"
		if ev.Auto {
			mode = "auto"
		}
		return join(stamp, s.styles.Notice.Render("» mode: "+mode))

	case bus.EventPaused:
		text := "paused"
		if ev.Reason != "" {
			text += ": " + ev.Reason
		}
		return join(stamp, s.styles.Retrying.Render("◌ "+text))

	case bus.EventResumed:
		return join(stamp, s.styles.Running.Render("● resumed"))

	default:
		return ""
	}
}

// formatInput renders the input-state transitions: one line when the prompt
// opens (with the queue position when known) and one muted line when it
// closes.
func (s *Sink) formatInput(stamp string, ev bus.Event) string {
	if ev.Input == nil {
		return ""
	}
	if !ev.Input.Active {
		return join(stamp,
			s.styles.LogText.Render("·"),
			s.styles.AgentID.Render(ev.AgentID),
			s.styles.LogText.Render("input closed"))
	}

	text := "awaiting input"
	if n := len(ev.Input.QueuedPrompts); n > 0 {
		idx := ev.Input.CurrentIndex
		if idx >= 0 && idx < n {
			text = fmt.Sprintf("awaiting input (%d/%d %s)", idx+1, n, ev.Input.QueuedPrompts[idx])
		} else {
			text = fmt.Sprintf("awaiting input (%d prompts)", n)
		}
	}
	return join(stamp,
		s.styles.Input.Render("?"),
		s.styles.AgentID.Render(ev.AgentID),
		s.styles.Input.Render(text))
}

// join concatenates the non-empty parts with single spaces.
func join(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
