package input

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/codemachine-ai/codemachine/internal/bus"
	"github.com/codemachine-ai/codemachine/internal/logging"
)

// Mode decides which provider answers input waits. Delegated input is
// only live while the workflow is in auto mode and not paused; pausing
// always puts the user back in charge, and resuming restores whatever
// mode was active before.
type Mode struct {
	user       Provider
	controller Provider
	emitter    *bus.Emitter
	logger     *log.Logger

	mu       sync.Mutex
	autoMode bool
	paused   bool
}

// NewMode wires the two providers and activates the starting one.
// controller may be nil when the template defines none; auto mode is
// then refused. emitter receives mode-changed, paused and resumed
// events.
func NewMode(user, controller Provider, emitter *bus.Emitter, autonomous bool) *Mode {
	m := &Mode{
		user:       user,
		controller: controller,
		emitter:    emitter,
		logger:     logging.New("input").With("component", "mode"),
	}
	if autonomous && controller == nil {
		m.logger.Warn("autonomous launch without a controller, starting in manual mode")
		autonomous = false
	}
	m.autoMode = autonomous
	m.Active().Activate()
	return m
}

// Active returns the provider currently answering input waits.
func (m *Mode) Active() Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked()
}

func (m *Mode) activeLocked() Provider {
	if m.paused || !m.autoMode {
		return m.user
	}
	return m.controller
}

// AutoMode reports whether input is delegated to the controller.
func (m *Mode) AutoMode() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.autoMode
}

// Paused reports whether the mode is pause-overridden to the user.
func (m *Mode) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// SetAutoMode flips delegation on or off. Setting the current value is
// a no-op. On a real change the outgoing provider is deactivated before
// the incoming one activates, then a mode-changed event is emitted.
// Returns whether the mode changed.
func (m *Mode) SetAutoMode(v bool) bool {
	m.mu.Lock()
	if m.autoMode == v {
		m.mu.Unlock()
		return false
	}
	if v && m.controller == nil {
		m.mu.Unlock()
		m.logger.Warn("no controller configured, staying in manual mode")
		return false
	}
	out := m.activeLocked()
	m.autoMode = v
	in := m.activeLocked()
	m.mu.Unlock()

	if out != in {
		out.Deactivate()
		in.Activate()
	}
	m.emitter.ModeChangedEvent(v)
	m.logger.Info("auto mode changed", "auto", v)
	return true
}

// Pause overrides delegation so the user answers input waits until
// Resume. Pausing while paused is a no-op. Returns whether the state
// changed.
func (m *Mode) Pause(reason string) bool {
	m.mu.Lock()
	if m.paused {
		m.mu.Unlock()
		return false
	}
	out := m.activeLocked()
	m.paused = true
	in := m.activeLocked()
	m.mu.Unlock()

	if out != in {
		out.Deactivate()
		in.Activate()
	}
	m.emitter.PausedEvent(reason)
	m.logger.Info("paused", "reason", reason)
	return true
}

// Resume lifts a pause, restoring the pre-pause provider. Resuming
// while not paused is a no-op. Returns whether the state changed.
func (m *Mode) Resume() bool {
	m.mu.Lock()
	if !m.paused {
		m.mu.Unlock()
		return false
	}
	out := m.activeLocked()
	m.paused = false
	in := m.activeLocked()
	m.mu.Unlock()

	if out != in {
		out.Deactivate()
		in.Activate()
	}
	m.emitter.ResumedEvent()
	m.logger.Info("resumed")
	return true
}

// Close deactivates both providers. Called once during teardown.
func (m *Mode) Close() {
	m.user.Deactivate()
	if m.controller != nil {
		m.controller.Deactivate()
	}
}
