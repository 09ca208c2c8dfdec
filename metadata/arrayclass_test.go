package metadata

import "testing"

func newTestModule() *Module {
	return &Module{Pool: NewInternPool()}
}

func TestArrayClassOfCachesSZArrayByElement(t *testing.T) {
	m := newTestModule()
	elem := &Class{Namespace: "System", Name: "Int32"}

	a := m.ArrayClassOf(elem, 1)
	b := m.ArrayClassOf(elem, 1)
	if a != b {
		t.Fatal("ArrayClassOf(elem, 1) returned distinct pointers on repeated calls")
	}
	if a.Family != FamilyArrayOrSZArray {
		t.Fatalf("got family %v, want FamilyArrayOrSZArray", a.Family)
	}
	if a.Name != "Int32[]" {
		t.Fatalf("got name %q, want Int32[]", a.Name)
	}
}

func TestArrayClassOfDistinguishesRank(t *testing.T) {
	m := newTestModule()
	elem := &Class{Namespace: "System", Name: "Int32"}

	vector := m.ArrayClassOf(elem, 1)
	matrix := m.ArrayClassOf(elem, 2)
	if vector == matrix {
		t.Fatal("rank-1 and rank-2 arrays of the same element collapsed to one class")
	}
	if matrix.Name != "Int32[,]" {
		t.Fatalf("got rank-2 name %q, want Int32[,]", matrix.Name)
	}
}

func TestArrayClassMethodSet(t *testing.T) {
	m := newTestModule()
	elem := &Class{Namespace: "System", Name: "Int32"}
	arr := m.ArrayClassOf(elem, 1)

	names := map[string]int{}
	for _, meth := range arr.Methods {
		names[meth.Name]++
		if meth.IFlags&ImplInternalCall == 0 {
			t.Errorf("method %s not marked ImplInternalCall", meth.Name)
		}
	}
	for _, want := range []string{".ctor", "Set", "Get", "Address"} {
		if names[want] != 1 {
			t.Errorf("got %d %s methods, want 1", names[want], want)
		}
	}
}

func TestArrayClassMultiDimGetsSecondCtor(t *testing.T) {
	m := newTestModule()
	elem := &Class{Namespace: "System", Name: "Int32"}
	arr := m.ArrayClassOf(elem, 3)

	ctors := 0
	for _, meth := range arr.Methods {
		if meth.Name == ".ctor" {
			ctors++
		}
	}
	if ctors != 2 {
		t.Fatalf("rank-3 array got %d .ctor overloads, want 2", ctors)
	}
}
