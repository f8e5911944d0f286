package config

import (
	"fmt"

	"github.com/codemachine-ai/codemachine/internal/engine"
)

// BuildRegistry materializes the engine registry from a resolved [engines]
// section: one CommandEngine per order entry, registered in order, with the
// configured default. Call Validate first; BuildRegistry reports wiring
// problems but not spec-content ones.
func BuildRegistry(e EnginesConfig) (*engine.Registry, error) {
	reg := engine.NewRegistry()

	for _, id := range e.Order {
		spec, ok := e.Spec[id]
		if !ok {
			return nil, fmt.Errorf("engine %q listed in order has no spec", id)
		}
		if err := reg.Register(engine.NewCommandEngine(spec)); err != nil {
			return nil, err
		}
	}

	if e.Default != "" {
		if err := reg.SetDefault(e.Default); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// BuildSelector wires the registry and a TTL auth cache into an engine
// selector, the object the runner consults per step.
func BuildSelector(e EnginesConfig) (*engine.Selector, error) {
	reg, err := BuildRegistry(e)
	if err != nil {
		return nil, err
	}
	return engine.NewSelector(reg, engine.NewCache(e.ProbeTTL.Duration)), nil
}
