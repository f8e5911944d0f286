// Package bus carries the two event planes of a workflow invocation: inbound
// control signals (pause, skip, stop, mode-change, error) delivered to the
// runner, and outbound control-plane events the runner emits for the UI.
//
// Signal names are part of the external contract and must not change; agents
// and UI layers address them by exact string.
package bus

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/codemachine-ai/codemachine/internal/logging"
)

// Process-level signal names. These are the exact strings external layers use
// to address the orchestrator.
const (
	SignalPause      = "workflow:pause"
	SignalSkip       = "workflow:skip"
	SignalStop       = "workflow:stop"
	SignalModeChange = "workflow:mode-change"
	SignalError      = "workflow:error"
)

// Signal is one inbound control message. Name is always set; the payload
// fields are populated per signal: AutonomousMode for SignalModeChange and
// Reason for SignalError.
type Signal struct {
	Name           string `json:"name"`
	AutonomousMode bool   `json:"autonomousMode,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// subscriberBuffer is the channel capacity handed to each subscriber. Sixteen
// pending signals is far beyond what a single workflow produces between runner
// suspension points.
const subscriberBuffer = 16

// SignalBus fans inbound signals out to subscribers. Emit never blocks: a
// subscriber that has fallen subscriberBuffer signals behind misses the new
// signal, which is acceptable because every signal is either idempotent
// (pause, stop) or re-derivable from state (mode-change).
type SignalBus struct {
	mu     sync.RWMutex
	subs   map[string][]chan Signal
	closed bool
	logger *log.Logger
}

// NewSignalBus returns an empty bus ready for subscriptions.
func NewSignalBus() *SignalBus {
	return &SignalBus{
		subs:   make(map[string][]chan Signal),
		logger: logging.New("bus"),
	}
}

// Subscribe registers interest in the given signal names and returns a
// receive channel plus a cancel function. Cancel removes the subscription and
// closes the channel; it is safe to call more than once. Subscribing to no
// names returns a channel that never receives.
func (b *SignalBus) Subscribe(names ...string) (<-chan Signal, func()) {
	ch := make(chan Signal, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	for _, name := range names {
		b.subs[name] = append(b.subs[name], ch)
	}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			for _, name := range names {
				b.subs[name] = removeChan(b.subs[name], ch)
			}
			alreadyClosed := b.closed
			b.mu.Unlock()
			if !alreadyClosed {
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Emit delivers sig to every subscriber of sig.Name without blocking. Signals
// emitted after Close are dropped.
func (b *SignalBus) Emit(sig Signal) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs[sig.Name] {
		select {
		case ch <- sig:
		default:
			b.logger.Debug("dropping signal for slow subscriber", "signal", sig.Name)
		}
	}
}

// Close shuts the bus down and closes every subscriber channel. Subsequent
// Emit and Subscribe calls are no-ops.
func (b *SignalBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	seen := make(map[chan Signal]bool)
	for _, chans := range b.subs {
		for _, ch := range chans {
			if !seen[ch] {
				seen[ch] = true
				close(ch)
			}
		}
	}
	b.subs = make(map[string][]chan Signal)
}

// removeChan returns chans with the first occurrence of target removed.
func removeChan(chans []chan Signal, target chan Signal) []chan Signal {
	for i, ch := range chans {
		if ch == target {
			return append(chans[:i], chans[i+1:]...)
		}
	}
	return chans
}
