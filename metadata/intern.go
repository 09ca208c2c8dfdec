package metadata

import (
	"fmt"
	"sync"
)

// InternPool is the process-wide, insert-only cache for canonical type
// signatures, generic instances, and generic classes (clrhost §5 "Intern
// tables"). Lookups are hash-table reads guarded by a single coarse lock;
// the pool owns every canonical allocation it hands out.
type InternPool struct {
	mu        sync.Mutex
	sigs      map[string]*TypeSignature
	instances map[string]*GenericInstance
	classes   map[string]*GenericClass
	strings   map[string]*InternedString
}

// InternedString backs ldstr/InternalIntern (clrhost §5: "String interning
// is likewise process-wide").
type InternedString struct {
	Value string
}

// NewInternPool constructs an empty pool.
func NewInternPool() *InternPool {
	return &InternPool{
		sigs:      make(map[string]*TypeSignature),
		instances: make(map[string]*GenericInstance),
		classes:   make(map[string]*GenericClass),
		strings:   make(map[string]*InternedString),
	}
}

func sigKey(s *TypeSignature) string {
	base := fmt.Sprintf("%d:%t:", s.Element, s.ByRef)
	switch s.Element {
	case ElementValueType, ElementClass:
		return base + fmt.Sprintf("gid=%d", s.TypeDefGID)
	case ElementPtr, ElementSZArray:
		return base + fmt.Sprintf("elem=%p", s.Elem)
	case ElementArray:
		return base + fmt.Sprintf("elem=%p,rank=%d", s.Array.Element, s.Array.Rank)
	case ElementGenericInst:
		return base + fmt.Sprintf("base=%d,args=%s", s.Generic.BaseTypeDefGID, s.Generic.Inst.key())
	case ElementVar, ElementMVar:
		return base + fmt.Sprintf("param=%p", s.Param)
	default:
		return base
	}
}

// Intern canonicalizes and returns the unique pointer for a structurally
// equal signature (clrhost Invariant 1 and "intern(sig) is idempotent").
// Canonicalization strips Pinned and NumMods, and an Array's sizes and
// lower bounds, before interning, per §4.2.
func (p *InternPool) Intern(s *TypeSignature) *TypeSignature {
	canon := *s
	canon.Pinned = false
	canon.NumMods = 0
	if canon.Array != nil && !canon.Array.IsCanonical() {
		canon.Array = &ArrayType{Element: canon.Array.Element, Rank: canon.Array.Rank}
	}

	key := sigKey(&canon)
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.sigs[key]; ok {
		return existing
	}
	stored := canon
	p.sigs[key] = &stored
	return &stored
}

// InternGenericInstance returns the unique *GenericInstance for args.
func (p *InternPool) InternGenericInstance(args []*TypeSignature) *GenericInstance {
	gi := &GenericInstance{Args: args}
	key := gi.key()
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.instances[key]; ok {
		return existing
	}
	p.instances[key] = gi
	return gi
}

// InternGenericClass returns the unique *GenericClass for (base, inst).
func (p *InternPool) InternGenericClass(base GID, inst *GenericInstance) *GenericClass {
	key := fmt.Sprintf("%d:%s", base, inst.key())
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.classes[key]; ok {
		return existing
	}
	gc := &GenericClass{BaseTypeDefGID: base, Inst: inst}
	p.classes[key] = gc
	return gc
}

// InternString returns the unique *InternedString for s.
func (p *InternPool) InternString(s string) *InternedString {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.strings[s]; ok {
		return existing
	}
	is := &InternedString{Value: s}
	p.strings[s] = is
	return is
}
