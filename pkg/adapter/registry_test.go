package adapter

import (
	"testing"
)

func newTestRegistry() *Registry {
	r := NewRegistry(map[string]Adapter{"mock": NewMockAdapter()})
	for _, role := range Roles() {
		if err := r.Bind(role, "mock", "mock-1"); err != nil {
			panic(err)
		}
	}
	return r
}

func TestRegistryBindUnknownAdapter(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Bind(RolePlanner, "nope", ""); err == nil {
		t.Error("Bind() should fail for unregistered adapter")
	}
}

func TestRegistrySnapshotRequiresAllRoles(t *testing.T) {
	r := NewRegistry(map[string]Adapter{"mock": NewMockAdapter()})
	if err := r.Bind(RolePlanner, "mock", ""); err != nil {
		t.Fatalf("Bind() error: %v", err)
	}
	if _, err := r.Snapshot(); err == nil {
		t.Error("Snapshot() should fail with unbound roles")
	}
}

func TestRegistrySwitchDoesNotAffectSnapshot(t *testing.T) {
	r := newTestRegistry()

	snap, err := r.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}

	second := NewMockAdapter()
	r.Register(&renamedMock{MockAdapter: second, name: "other"})
	if err := r.Switch("other", "mock-1", "mock-1"); err != nil {
		t.Fatalf("Switch() error: %v", err)
	}

	// Pre-switch snapshot still points at the original adapter.
	if got := snap[RolePlanner].Adapter.Name(); got != "mock" {
		t.Errorf("snapshot adapter = %s, want mock", got)
	}

	active := r.Active()
	if got := active[RolePlanner].Adapter; got != "other" {
		t.Errorf("active adapter = %s, want other", got)
	}
}

func TestRegistrySwitchProModel(t *testing.T) {
	r := newTestRegistry()
	if err := r.Switch("mock", "mock-1", "mock-1"); err != nil {
		t.Fatalf("Switch() error: %v", err)
	}
	active := r.Active()
	if active[RoleSynthesizer].Model != "mock-1" {
		t.Errorf("synthesizer model = %s, want mock-1", active[RoleSynthesizer].Model)
	}
}

// renamedMock lets a second mock register under a different name.
type renamedMock struct {
	*MockAdapter
	name string
}

func (a *renamedMock) Name() string { return a.name }
