package engine

import (
	"fmt"
	"regexp"
)

// engineIDRe validates engine ids: alphanumeric characters and hyphens only.
var engineIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Registry stores engines in registration order. Order matters: engine
// selection walks it front to back, so the configuration's registry order is
// a preference list. Registry is safe for concurrent reads after all
// registrations are complete.
type Registry struct {
	order     []string
	engines   map[string]Engine
	defaultID string
}

// NewRegistry creates an empty engine registry.
func NewRegistry() *Registry {
	return &Registry{
		engines: make(map[string]Engine),
	}
}

// Register adds an engine under its ID(), preserving insertion order.
// Returns ErrInvalidID for a nil engine or malformed id, ErrDuplicateID
// when the id is already present.
func (r *Registry) Register(e Engine) error {
	if e == nil {
		return fmt.Errorf("register engine: %w", ErrInvalidID)
	}
	id := e.ID()
	if id == "" || !engineIDRe.MatchString(id) {
		return fmt.Errorf("register engine %q: %w", id, ErrInvalidID)
	}
	if _, exists := r.engines[id]; exists {
		return fmt.Errorf("register engine %q: %w", id, ErrDuplicateID)
	}
	r.engines[id] = e
	r.order = append(r.order, id)
	return nil
}

// Get returns the engine registered under id.
// Returns ErrEngineNotFound if no engine with that id is registered.
func (r *Registry) Get(id string) (Engine, error) {
	e, ok := r.engines[id]
	if !ok {
		return nil, fmt.Errorf("get engine %q: %w", id, ErrEngineNotFound)
	}
	return e, nil
}

// Has reports whether an engine with the given id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.engines[id]
	return ok
}

// IDs returns all registered engine ids in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Engines returns all registered engines in registration order.
func (r *Registry) Engines() []Engine {
	out := make([]Engine, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.engines[id])
	}
	return out
}

// Len returns the number of registered engines.
func (r *Registry) Len() int {
	return len(r.order)
}

// SetDefault marks id as the fallback engine used when no registered engine
// is authenticated. The engine must already be registered.
func (r *Registry) SetDefault(id string) error {
	if !r.Has(id) {
		return fmt.Errorf("set default engine %q: %w", id, ErrEngineNotFound)
	}
	r.defaultID = id
	return nil
}

// Default returns the fallback engine: the one named by SetDefault, else the
// first registered engine. Returns ErrNoEnginesRegistered when empty.
func (r *Registry) Default() (Engine, error) {
	if r.defaultID != "" {
		return r.Get(r.defaultID)
	}
	if len(r.order) == 0 {
		return nil, ErrNoEnginesRegistered
	}
	return r.engines[r.order[0]], nil
}
