package adapter

import (
	"fmt"
	"sync"
)

// Role identifies which orchestration step a model binding serves.
type Role string

const (
	RolePlanner     Role = "planner"
	RoleRetriever   Role = "retriever"
	RoleEvaluator   Role = "evaluator"
	RoleSynthesizer Role = "synthesizer"
)

// Roles lists all bindable roles in execution order.
func Roles() []Role {
	return []Role{RolePlanner, RoleRetriever, RoleEvaluator, RoleSynthesizer}
}

// Binding resolves a role to a concrete adapter and model.
type Binding struct {
	Adapter Adapter
	Model   string
}

// RoleSet is an immutable role → binding snapshot handed to a run at start.
// Switching the registry after the snapshot is taken does not affect it.
type RoleSet map[Role]Binding

// Registry holds the available adapters and the active role bindings.
// It is safe for concurrent use; runs snapshot their bindings once.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	bindings map[Role]namedBinding
}

type namedBinding struct {
	adapter string
	model   string
}

// NewRegistry creates a registry over the given adapters.
func NewRegistry(adapters map[string]Adapter) *Registry {
	r := &Registry{
		adapters: make(map[string]Adapter, len(adapters)),
		bindings: make(map[Role]namedBinding),
	}
	for name, a := range adapters {
		r.adapters[name] = a
	}
	return r
}

// Register adds or replaces an adapter.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns an adapter by name.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Adapters returns metadata for all registered adapters.
func (r *Registry) Adapters() []AdapterInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]AdapterInfo, 0, len(r.adapters))
	for _, a := range r.adapters {
		info := AdapterInfo{Name: a.Name()}
		for _, m := range a.Models() {
			info.Models = append(info.Models, ModelInfo{ID: m})
		}
		infos = append(infos, info)
	}
	return infos
}

// Bind assigns a role to an adapter/model pair. An empty model selects the
// adapter's first supported model.
func (r *Registry) Bind(role Role, adapterName, model string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bindLocked(role, adapterName, model)
}

func (r *Registry) bindLocked(role Role, adapterName, model string) error {
	a, ok := r.adapters[adapterName]
	if !ok {
		return fmt.Errorf("adapter %q not registered", adapterName)
	}
	if model == "" {
		models := a.Models()
		if len(models) == 0 {
			return fmt.Errorf("adapter %q has no models", adapterName)
		}
		model = models[0]
	}
	r.bindings[role] = namedBinding{adapter: adapterName, model: model}
	return nil
}

// Switch rebinds every role to the given adapter. Fast roles (planner,
// retriever, evaluator) use fastModel; the synthesizer uses proModel. Empty
// models fall back to the adapter's defaults. In-flight runs keep the
// RoleSet they snapshotted before the switch.
func (r *Registry) Switch(adapterName, fastModel, proModel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[adapterName]; !ok {
		return fmt.Errorf("adapter %q not registered", adapterName)
	}
	if proModel == "" {
		proModel = fastModel
	}
	for _, role := range Roles() {
		model := fastModel
		if role == RoleSynthesizer {
			model = proModel
		}
		if err := r.bindLocked(role, adapterName, model); err != nil {
			return err
		}
	}
	return nil
}

// Active returns the currently bound adapter/model names per role.
func (r *Registry) Active() map[Role]struct{ Adapter, Model string } {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Role]struct{ Adapter, Model string }, len(r.bindings))
	for role, b := range r.bindings {
		out[role] = struct{ Adapter, Model string }{b.adapter, b.model}
	}
	return out
}

// Snapshot resolves the current bindings into an immutable RoleSet.
// Every role must be bound; a missing binding is a configuration defect.
func (r *Registry) Snapshot() (RoleSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := make(RoleSet, len(r.bindings))
	for _, role := range Roles() {
		b, ok := r.bindings[role]
		if !ok {
			return nil, fmt.Errorf("role %q not bound", role)
		}
		a, ok := r.adapters[b.adapter]
		if !ok {
			return nil, fmt.Errorf("role %q bound to unknown adapter %q", role, b.adapter)
		}
		set[role] = Binding{Adapter: a, Model: b.model}
	}
	return set, nil
}
