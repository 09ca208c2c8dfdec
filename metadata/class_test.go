package metadata

import "testing"

// countingResolver records how many times each phase actually runs, so
// tests can check ensurePhase's prerequisite ordering and idempotency
// without a real image-backed Module.
type countingResolver struct {
	runs  []ClassInitPart
	order []ClassInitPart
}

func (r *countingResolver) RunPhase(c *Class, part ClassInitPart) error {
	r.runs = append(r.runs, part)
	return nil
}

func newTestClass(r Resolver) *Class {
	return &Class{Image: &Module{Resolver: r}, Namespace: "Test", Name: "C"}
}

func TestEnsurePhaseRunsPrerequisitesFirst(t *testing.T) {
	r := &countingResolver{}
	c := newTestClass(r)

	if err := c.EnsureVirtualTable(phaseFn(c, InitVirtualTable)); err != nil {
		t.Fatalf("EnsureVirtualTable: %v", err)
	}

	// InitVirtualTable depends on InitMethod which depends on
	// InitSuperTypes; both must run before InitVirtualTable itself.
	want := []ClassInitPart{InitSuperTypes, InitMethod, InitVirtualTable}
	if len(r.runs) != len(want) {
		t.Fatalf("got %d phase runs %v, want %v", len(r.runs), r.runs, want)
	}
	for i, p := range want {
		if r.runs[i] != p {
			t.Fatalf("run %d: got phase %d, want %d", i, r.runs[i], p)
		}
	}
}

func TestEnsurePhaseIsIdempotent(t *testing.T) {
	r := &countingResolver{}
	c := newTestClass(r)

	for i := 0; i < 3; i++ {
		if err := c.EnsureFields(phaseFn(c, InitField)); err != nil {
			t.Fatalf("EnsureFields call %d: %v", i, err)
		}
	}

	count := 0
	for _, p := range r.runs {
		if p == InitField {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("InitField ran %d times, want 1", count)
	}
	if !c.HasInit(InitField) {
		t.Fatal("HasInit(InitField) false after EnsureFields")
	}
}

func TestRunStaticConstructorRunsOnce(t *testing.T) {
	c := newTestClass(&countingResolver{})
	n := 0
	run := func() error { n++; return nil }

	if err := c.RunStaticConstructor(run); err != nil {
		t.Fatalf("RunStaticConstructor: %v", err)
	}
	if err := c.RunStaticConstructor(run); err != nil {
		t.Fatalf("RunStaticConstructor (second call): %v", err)
	}
	if n != 1 {
		t.Fatalf("cctor ran %d times, want 1", n)
	}
}

func TestClassPredicates(t *testing.T) {
	c := &Class{ExtraFlags: ExtraValueType, Flags: TypeInterface}
	if !c.IsValueType() {
		t.Error("IsValueType() false for ExtraValueType class")
	}
	if !c.IsInterface() {
		t.Error("IsInterface() false for TypeInterface class")
	}

	ref := &Class{}
	if ref.IsValueType() || ref.IsInterface() {
		t.Error("zero-value Class reported as value type or interface")
	}
}
