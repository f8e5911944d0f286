package engine

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/codemachine-ai/codemachine/internal/logging"
)

// Selector picks the engine for a step: the step's requested engine when it
// is authenticated, else the first authenticated engine in registry order,
// else the registry default so the run at least fails with the engine's own
// login error instead of a generic one.
type Selector struct {
	registry *Registry
	cache    *Cache
	logger   *log.Logger
}

// NewSelector creates a Selector over the given registry and auth cache.
func NewSelector(registry *Registry, cache *Cache) *Selector {
	return &Selector{
		registry: registry,
		cache:    cache,
		logger:   logging.New("engine"),
	}
}

// Select resolves the engine for a step. preferred is the step's engine id
// and may be empty. Returns ErrNoEnginesRegistered when the registry is
// empty; otherwise Select always yields an engine.
func (s *Selector) Select(ctx context.Context, preferred string) (Engine, error) {
	if s.registry.Len() == 0 {
		return nil, ErrNoEnginesRegistered
	}

	if preferred != "" {
		e, err := s.registry.Get(preferred)
		switch {
		case err != nil:
			s.logger.Warn("requested engine not registered, selecting another",
				"engine", preferred)
		case s.authenticated(ctx, e):
			return e, nil
		default:
			s.logger.Warn("requested engine not authenticated, selecting another",
				"engine", preferred)
		}
	}

	for _, e := range s.registry.Engines() {
		if e.ID() == preferred {
			continue
		}
		if s.authenticated(ctx, e) {
			return e, nil
		}
	}

	// Nothing is authenticated. Hand back the default anyway: its own
	// login failure is the most actionable error the user can get.
	def, err := s.registry.Default()
	if err != nil {
		return nil, err
	}
	s.logger.Warn("no authenticated engine found, falling back to default",
		"engine", def.ID())
	return def, nil
}

// authenticated consults the auth cache, probing via the engine itself on a
// miss.
func (s *Selector) authenticated(ctx context.Context, e Engine) bool {
	return s.cache.IsAuthenticated(ctx, e.ID(), e.IsAuthenticated)
}
