// Package session owns a single executed step's life: its identifiers, the
// resolved prompt queue, the live output accumulator, and the cancellation
// handle every subprocess launch and input wait hangs off. The runner opens
// one session per step execution and closes it when the step completes, is
// skipped, or errors.
package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/codemachine-ai/codemachine/internal/bus"
	"github.com/codemachine-ai/codemachine/internal/prompt"
	"github.com/codemachine-ai/codemachine/internal/workflow"
)

// MonitoringID derives the telemetry stream id for a unique agent id. The
// hash is masked into the positive int32 range so the value survives JSON
// round-trips through systems that treat numbers as doubles.
func MonitoringID(uid string) int {
	return int(xxhash.Sum64String(uid) & 0x7FFFFFFF)
}

// QueuedPrompt is one entry in a session's prompt queue.
type QueuedPrompt struct {
	Name    string
	Label   string
	Content string
}

// Session is the per-step execution context. One goroutine (the runner)
// drives it, but output chunks arrive from the adapter's pump goroutines
// and skips arrive from the signal dispatcher, so the mutable state is
// locked.
type Session struct {
	step         workflow.Step
	index        int
	uid          string
	monitoringID int

	ctx     context.Context
	cancel  context.CancelFunc
	skipped atomic.Bool

	mu              sync.Mutex
	queue           []QueuedPrompt
	queueIdx        int
	output          strings.Builder
	engineSessionID string
}

// Open creates a session for the step at index. The session's context is
// derived from ctx: cancelling the parent cancels every launch and wait
// tied to this step.
func Open(ctx context.Context, step workflow.Step, index int) *Session {
	uid := step.UID(index)
	sessionCtx, cancel := context.WithCancel(ctx)
	return &Session{
		step:         step,
		index:        index,
		uid:          uid,
		monitoringID: MonitoringID(uid),
		ctx:          sessionCtx,
		cancel:       cancel,
	}
}

// Step returns the step this session executes.
func (s *Session) Step() workflow.Step { return s.step }

// Index returns the step's position in the filtered step list.
func (s *Session) Index() int { return s.index }

// UID returns the unique agent id "<agentId>:<stepIndex>".
func (s *Session) UID() string { return s.uid }

// MonitoringID returns the session's telemetry stream id.
func (s *Session) MonitoringID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitoringID
}

// Context returns the session-scoped context. Every subprocess launch and
// provider wait for this step must use it.
func (s *Session) Context() context.Context { return s.ctx }

// Skip cancels the session and marks it user-skipped, so the runner
// records the step as skipped rather than failed.
func (s *Session) Skip() {
	if s.skipped.CompareAndSwap(false, true) {
		s.cancel()
	}
}

// Skipped reports whether Skip was called.
func (s *Session) Skipped() bool { return s.skipped.Load() }

// Close releases the session's context. Idempotent; does not mark the
// session as skipped.
func (s *Session) Close() { s.cancel() }

// AdoptIdentity primes the session with identifiers persisted by an
// earlier run, so the first engine call resumes the recorded conversation
// and telemetry stays attached to the same stream. A zero monitoringID
// keeps the derived one.
func (s *Session) AdoptIdentity(sessionID string, monitoringID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engineSessionID = sessionID
	if monitoringID != 0 {
		s.monitoringID = monitoringID
	}
}

// SetEngineSession records the engine session id reported by the adapter.
// Later launches in the same step (chained prompts, interactive rounds)
// resume it.
func (s *Session) SetEngineSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		s.engineSessionID = id
	}
}

// EngineSessionID returns the engine session to resume, or "" when the
// step has not launched yet.
func (s *Session) EngineSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engineSessionID
}

// LoadPrompts resolves the step's prompt patterns through src and fills
// the queue. Called once, before the first launch.
func (s *Session) LoadPrompts(src prompt.Source) error {
	prompts, err := src.Resolve(s.step.PromptPath)
	if err != nil {
		return err
	}

	queue := make([]QueuedPrompt, 0, len(prompts))
	for _, p := range prompts {
		queue = append(queue, QueuedPrompt{
			Name:    p.Name,
			Label:   p.Label,
			Content: p.Content,
		})
	}

	s.mu.Lock()
	s.queue = queue
	s.queueIdx = 0
	s.mu.Unlock()
	return nil
}

// Queue returns a copy of the prompt queue.
func (s *Session) Queue() []QueuedPrompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]QueuedPrompt(nil), s.queue...)
}

// QueueIndex returns the position of the next prompt to run.
func (s *Session) QueueIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queueIdx
}

// Remaining returns how many prompts are still queued.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) - s.queueIdx
}

// HasChainedPrompts reports whether the queue holds more than one prompt.
func (s *Session) HasChainedPrompts() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) > 1
}

// SkipToChain positions the queue at chain index n, clamped into range.
// Used when resuming a partially completed step: the chains recorded as
// done are not replayed.
func (s *Session) SkipToChain(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n > len(s.queue) {
		n = len(s.queue)
	}
	s.queueIdx = n
}

// NextPrompt returns the next queued prompt and its chain index, advancing
// the queue. ok is false when the queue is exhausted.
func (s *Session) NextPrompt() (p QueuedPrompt, chain int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queueIdx >= len(s.queue) {
		return QueuedPrompt{}, s.queueIdx, false
	}
	p = s.queue[s.queueIdx]
	chain = s.queueIdx
	s.queueIdx++
	return p, chain, true
}

// AppendOutput records one output chunk. Chunks are newline-joined in
// arrival order; the adapter's per-stream pump guarantees that order.
func (s *Session) AppendOutput(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.output.Len() > 0 {
		s.output.WriteByte('\n')
	}
	s.output.WriteString(chunk)
}

// Output returns everything the step's subprocesses wrote so far. The
// controller provider mines it for the next instruction.
func (s *Session) Output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output.String()
}

// InputState snapshots the queue for an EventInputState emission.
func (s *Session) InputState(active bool) bus.InputState {
	s.mu.Lock()
	defer s.mu.Unlock()

	labels := make([]string, 0, len(s.queue))
	for _, q := range s.queue {
		labels = append(labels, q.Label)
	}
	idx := s.queueIdx
	if !active {
		idx = -1
	}
	return bus.InputState{
		Active:        active,
		QueuedPrompts: labels,
		CurrentIndex:  idx,
		MonitoringID:  s.monitoringID,
	}
}
