package workflow

import (
	"fmt"
	"sort"
	"sync"
)

// Agent describes a registered agent identity. The runner resolves a
// step's display name and default prompts through this record.
type Agent struct {
	ID   string
	Name string
}

// Module describes a reusable step bundle: an agent plus the behavior
// contract the step carries. Templates reference modules by id through
// the NewModule builder.
type Module struct {
	ID         string
	AgentID    string
	Name       string
	PromptPath []string
	Behavior   *Behavior
}

// Registry holds the agents, modules and templates available to the
// runner. Registration happens at init time or during startup wiring;
// lookups happen concurrently afterwards, so the registry is locked.
type Registry struct {
	mu            sync.RWMutex
	agents        map[string]Agent
	modules       map[string]Module
	templates     map[string]*Template
	templateOrder []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		agents:    make(map[string]Agent),
		modules:   make(map[string]Module),
		templates: make(map[string]*Template),
	}
}

// RegisterAgent adds an agent to the registry. It panics on an empty id
// or a duplicate registration, the same way handler registries do:
// both indicate a programming error, not a runtime condition.
func (r *Registry) RegisterAgent(a Agent) {
	if a.ID == "" {
		panic("workflow: RegisterAgent called with empty id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.agents[a.ID]; dup {
		panic(fmt.Sprintf("workflow: RegisterAgent called twice for %q", a.ID))
	}
	r.agents[a.ID] = a
}

// RegisterModule adds a module to the registry. It panics on an empty
// id, a duplicate registration, or a module without an agent.
func (r *Registry) RegisterModule(m Module) {
	if m.ID == "" {
		panic("workflow: RegisterModule called with empty id")
	}
	if m.AgentID == "" {
		panic(fmt.Sprintf("workflow: module %q has no agent", m.ID))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.modules[m.ID]; dup {
		panic(fmt.Sprintf("workflow: RegisterModule called twice for %q", m.ID))
	}
	r.modules[m.ID] = m
}

// RegisterTemplate adds a template. It panics on an empty or duplicate
// name. Templates are listed in registration order.
func (r *Registry) RegisterTemplate(t *Template) {
	if t == nil || t.Name == "" {
		panic("workflow: RegisterTemplate called with empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.templates[t.Name]; dup {
		panic(fmt.Sprintf("workflow: RegisterTemplate called twice for %q", t.Name))
	}
	r.templates[t.Name] = t
	r.templateOrder = append(r.templateOrder, t.Name)
}

// AgentByID returns the agent registered under id.
func (r *Registry) AgentByID(id string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// HasAgent reports whether id names a registered agent.
func (r *Registry) HasAgent(id string) bool {
	_, ok := r.AgentByID(id)
	return ok
}

// ModuleByID returns the module registered under id.
func (r *Registry) ModuleByID(id string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[id]
	return m, ok
}

// TemplateByName returns the template registered under name.
func (r *Registry) TemplateByName(name string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	return t, ok
}

// Templates returns the registered template names in registration
// order.
func (r *Registry) Templates() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.templateOrder))
	copy(out, r.templateOrder)
	return out
}

// Agents returns the registered agent ids, sorted.
func (r *Registry) Agents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.agents))
	for id := range r.agents {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Normalize resolves a template's module references and agent names in
// place. Module steps inherit the module's agent, display name, default
// prompts and behavior wherever the step itself left them blank. It
// returns an error naming the first unknown module or agent id; the
// runner treats that as a startup failure.
func (r *Registry) Normalize(t *Template) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range t.Steps {
		s := &t.Steps[i]
		if s.Separator {
			continue
		}
		if s.Module != nil {
			m, ok := r.modules[s.Module.ID]
			if !ok {
				return fmt.Errorf("template %q step %d: unknown module %q", t.Name, i, s.Module.ID)
			}
			if s.AgentID == "" {
				s.AgentID = m.AgentID
			}
			if s.AgentName == "" {
				s.AgentName = m.Name
			}
			if len(s.PromptPath) == 0 {
				s.PromptPath = append([]string(nil), m.PromptPath...)
			}
			if s.Module.Behavior == nil {
				s.Module.Behavior = m.Behavior
			}
		}
		if s.AgentID == "" {
			return fmt.Errorf("template %q step %d: no agent", t.Name, i)
		}
		if a, ok := r.agents[s.AgentID]; ok && s.AgentName == "" {
			s.AgentName = a.Name
		}
	}
	return nil
}

// DefaultRegistry is the shared registry populated with the built-in
// agents, modules and templates.
var DefaultRegistry = NewRegistry()
