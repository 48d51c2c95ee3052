package fixture

import (
	"testing"

	"go.uber.org/zap"
)

func newTestFixture(name, toolchain string) *Fixture {
	return &Fixture{
		Manifest: &Manifest{
			Name:      name,
			Toolchain: toolchain,
			dir:       "/tmp/" + name,
		},
	}
}

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry(zap.NewNop())

	if err := registry.Register(newTestFixture("rust-ref", "rust")); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	if registry.Count() != 1 {
		t.Errorf("expected count 1, got %d", registry.Count())
	}
}

func TestRegistry_Duplicate(t *testing.T) {
	registry := NewRegistry(zap.NewNop())

	if err := registry.Register(newTestFixture("rust-ref", "rust")); err != nil {
		t.Fatalf("First Register() failed: %v", err)
	}

	err := registry.Register(newTestFixture("rust-ref", "rust"))
	if err == nil {
		t.Fatal("Register() should fail for duplicate fixture")
	}
	if _, ok := err.(*FixtureAlreadyRegisteredError); !ok {
		t.Errorf("expected FixtureAlreadyRegisteredError, got %T", err)
	}
}

func TestRegistry_Get(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	fixture := newTestFixture("go-ref", "go")
	registry.Register(fixture)

	got, ok := registry.Get("go-ref")
	if !ok {
		t.Fatal("Get() should find registered fixture")
	}
	if got != fixture {
		t.Error("Get() returned a different fixture")
	}

	if _, ok := registry.Get("missing"); ok {
		t.Error("Get() should not find unregistered fixture")
	}
}

func TestRegistry_LookupByToolchain(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	registry.Register(newTestFixture("go-a", "go"))
	registry.Register(newTestFixture("go-b", "go"))
	registry.Register(newTestFixture("rust-a", "rust"))

	if got := registry.LookupByToolchain("go"); len(got) != 2 {
		t.Errorf("expected 2 go fixtures, got %d", len(got))
	}
	if got := registry.LookupByToolchain("rust"); len(got) != 1 {
		t.Errorf("expected 1 rust fixture, got %d", len(got))
	}
	if got := registry.LookupByToolchain("tinygo"); len(got) != 0 {
		t.Errorf("expected no tinygo fixtures, got %d", len(got))
	}
}

func TestRegistry_List(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	registry.Register(newTestFixture("zeta", "go"))
	registry.Register(newTestFixture("alpha", "rust"))
	registry.Register(newTestFixture("mid", "tinygo"))

	list := registry.List()
	want := []string{"alpha", "mid", "zeta"}
	if len(list) != len(want) {
		t.Fatalf("expected %d fixtures, got %d", len(want), len(list))
	}
	for i, name := range want {
		if list[i].Name() != name {
			t.Errorf("List()[%d] = %s, want %s", i, list[i].Name(), name)
		}
	}
}

func TestRegistry_Unregister(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	registry.Register(newTestFixture("go-a", "go"))
	registry.Register(newTestFixture("go-b", "go"))

	registry.Unregister("go-a")
	registry.Unregister("never-registered")

	if registry.Count() != 1 {
		t.Errorf("expected count 1, got %d", registry.Count())
	}
	got := registry.LookupByToolchain("go")
	if len(got) != 1 || got[0].Name() != "go-b" {
		t.Errorf("expected only go-b left in the toolchain index, got %v", got)
	}
}
