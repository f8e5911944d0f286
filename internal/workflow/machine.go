package workflow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/codemachine-ai/codemachine/internal/logging"
)

// ErrInvalidTransition is returned by Fire when the requested event is
// not legal in the machine's current state.
var ErrInvalidTransition = errors.New("invalid workflow transition")

// transitions maps the deterministic part of the state machine. Pause,
// resume and the terminal events cut across states and are handled in
// Fire directly.
var transitions = map[Status]map[Event]Status{
	StatusIdle: {
		EventStart: StatusRunning,
	},
	StatusRunning: {
		EventWaitForInput: StatusAwaiting,
		EventEnterAuto:    StatusDelegated,
	},
	StatusAwaiting: {
		EventInputReceived: StatusRunning,
	},
	StatusDelegated: {
		EventExitAuto: StatusRunning,
	},
}

// Machine is the workflow lifecycle state machine. A single machine
// instance is shared between the runner loop and the signal dispatcher,
// so all access is serialized behind a mutex.
//
// Pausing is modeled as a parallel state: PAUSE from any live state
// stashes that state and moves to paused, RESUME restores it. STOP and
// COMPLETE move to final from any live state, FAIL moves to error.
// Terminal states accept no events at all.
type Machine struct {
	mu       sync.Mutex
	state    Status
	resumeTo Status
	subs     map[int]func(Transition)
	nextSub  int
	logger   *log.Logger
}

// NewMachine returns a machine in the idle state.
func NewMachine() *Machine {
	return &Machine{
		state:  StatusIdle,
		subs:   make(map[int]func(Transition)),
		logger: logging.New("workflow"),
	}
}

// State returns the current state.
func (m *Machine) State() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Paused reports whether the machine is currently paused.
func (m *Machine) Paused() bool {
	return m.State() == StatusPaused
}

// Subscribe registers fn to be called after every committed transition.
// The returned function removes the subscription. Callbacks run on the
// goroutine that called Fire, outside the machine lock.
func (m *Machine) Subscribe(fn func(Transition)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Fire applies event to the machine. It returns ErrInvalidTransition
// (wrapped with state and event context) when the event is not legal in
// the current state. Firing PAUSE while already paused is a no-op.
func (m *Machine) Fire(event Event) error {
	m.mu.Lock()

	from := m.state
	if from.Terminal() {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s in terminal state %s", ErrInvalidTransition, event, from)
	}

	var to Status
	switch event {
	case EventPause:
		if from == StatusPaused {
			m.mu.Unlock()
			return nil
		}
		m.resumeTo = from
		to = StatusPaused
	case EventResume:
		if from != StatusPaused {
			m.mu.Unlock()
			return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, event, from)
		}
		to = m.resumeTo
		m.resumeTo = ""
	case EventStop, EventComplete:
		to = StatusFinal
	case EventFail:
		to = StatusError
	default:
		next, ok := transitions[from][event]
		if !ok {
			m.mu.Unlock()
			return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, event, from)
		}
		to = next
	}

	m.state = to
	subs := make([]func(Transition), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	logger := m.logger
	m.mu.Unlock()

	logger.Debug("workflow transition", "from", from, "to", to, "event", event)
	tr := Transition{From: from, To: to, Event: event}
	for _, fn := range subs {
		fn(tr)
	}
	return nil
}

// Can reports whether event would be accepted in the current state
// without applying it.
func (m *Machine) Can(event Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state
	if from.Terminal() {
		return false
	}
	switch event {
	case EventPause, EventStop, EventComplete, EventFail:
		return true
	case EventResume:
		return from == StatusPaused
	default:
		_, ok := transitions[from][event]
		return ok
	}
}
