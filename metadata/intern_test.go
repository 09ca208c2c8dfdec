package metadata

import "testing"

func TestInternReturnsSamePointerForEqualSignatures(t *testing.T) {
	p := NewInternPool()
	a := p.Intern(&TypeSignature{Element: ElementValueType, TypeDefGID: 42})
	b := p.Intern(&TypeSignature{Element: ElementValueType, TypeDefGID: 42})
	if a != b {
		t.Fatal("Intern returned distinct pointers for structurally equal signatures")
	}
}

func TestInternDistinguishesDifferentGIDs(t *testing.T) {
	p := NewInternPool()
	a := p.Intern(&TypeSignature{Element: ElementValueType, TypeDefGID: 1})
	b := p.Intern(&TypeSignature{Element: ElementValueType, TypeDefGID: 2})
	if a == b {
		t.Fatal("Intern collapsed two different GIDs to one pointer")
	}
}

func TestInternStripsPinnedAndNumMods(t *testing.T) {
	p := NewInternPool()
	plain := p.Intern(&TypeSignature{Element: ElementValueType, TypeDefGID: 7})
	decorated := p.Intern(&TypeSignature{Element: ElementValueType, TypeDefGID: 7, Pinned: true, NumMods: 3})
	if plain != decorated {
		t.Fatal("Pinned/NumMods decorations were not canonicalized away before interning")
	}
	if decorated.Pinned || decorated.NumMods != 0 {
		t.Fatal("interned signature retained Pinned/NumMods from the decorated input")
	}
}

func TestInternStringIsIdempotent(t *testing.T) {
	p := NewInternPool()
	a := p.InternString("hello")
	b := p.InternString("hello")
	if a != b {
		t.Fatal("InternString returned distinct pointers for the same string")
	}
	c := p.InternString("world")
	if a == c {
		t.Fatal("InternString collapsed two different strings to one pointer")
	}
}

func TestInternGenericInstanceKeyedByArgs(t *testing.T) {
	p := NewInternPool()
	intSig := p.Intern(&TypeSignature{Element: ElementValueType, TypeDefGID: 1})
	strSig := p.Intern(&TypeSignature{Element: ElementValueType, TypeDefGID: 2})

	a := p.InternGenericInstance([]*TypeSignature{intSig})
	b := p.InternGenericInstance([]*TypeSignature{intSig})
	if a != b {
		t.Fatal("InternGenericInstance returned distinct pointers for the same arg list")
	}
	c := p.InternGenericInstance([]*TypeSignature{strSig})
	if a == c {
		t.Fatal("InternGenericInstance collapsed two different instantiations to one pointer")
	}
}
