package metadata

import (
	"sync"

	"github.com/clrhost/clrhost/rterr"
)

// TypeAttribute mirrors ECMA-335 TypeAttributes (II.23.1.15).
type TypeAttribute uint32

const (
	TypeVisibilityMask    TypeAttribute = 0x00000007
	TypePublic            TypeAttribute = 0x00000001
	TypeLayoutMask        TypeAttribute = 0x00000018
	TypeSequentialLayout  TypeAttribute = 0x00000008
	TypeExplicitLayout    TypeAttribute = 0x00000010
	TypeInterface         TypeAttribute = 0x00000020
	TypeAbstract          TypeAttribute = 0x00000080
	TypeSealed            TypeAttribute = 0x00000100
	TypeBeforeFieldInit   TypeAttribute = 0x00100000
)

// InterfaceOffset records where an implemented interface's vtable slots
// begin within the class's own vtable (clrhost §3 "Vtable and interface
// dispatch").
type InterfaceOffset struct {
	Interface  *Class
	BaseOffset uint16
}

// VirtualInvokeData is one vtable slot: the declaring (possibly
// abstract/interface) method and the most-derived implementation.
type VirtualInvokeData struct {
	Method     *Method
	MethodImpl *Method
}

// Property is a class member exposing get/set method pairs.
type Property struct {
	Parent    *Class
	Name      string
	TypeSig   *TypeSignature
	Params    []*TypeSignature
	Flags     uint16
	GetMethod *Method
	SetMethod *Method
	Token     Token
}

// Event is a class member exposing add/remove/raise method triples.
type Event struct {
	Parent       *Class
	Name         string
	TypeSig      *TypeSignature
	Flags        uint16
	AddMethod    *Method
	RemoveMethod *Method
	RaiseMethod  *Method
	Token        Token
}

// Class is the central runtime entity (clrhost §3 Class). It is created
// empty when first referenced and filled in lazily, phase by phase, per
// InitFlags (clrhost §4.2 "Class initialization phases").
type Class struct {
	Image            *Module
	Parent           *Class
	Namespace        string
	Name             string
	ByValSig         *TypeSignature
	ByRefSig         *TypeSignature
	ElementClass     *Class // array/ptr element, or nil
	CastClass        *Class
	SuperTypes       []*Class
	Interfaces       []*Class
	DeclaringClass   *Class
	NestedClasses    []*Class
	GenericContainer *GenericContainer
	GenericClassRef  *GenericClass // non-nil iff Family == FamilyGenericInst

	Fields     []*Field
	Methods    []*Method
	Properties []*Property
	Events     []*Event

	VTable                []VirtualInvokeData
	InterfaceVTableOffsets []InterfaceOffset

	StaticFieldsData []byte

	Token                       Token
	InstanceSizeWithoutHeader   uint32
	StaticSize                  uint32
	Flags                       TypeAttribute
	ExtraFlags                  ClassExtraFlag
	Family                      ClassFamily
	HierarchyDepth              uint8
	Alignment                   uint8

	initFlags ClassInitPart
	initMu    sync.Mutex

	cctorNotFinished bool
	cctorMu          sync.Mutex
}

// HasReferences reports whether any instance field (own or inherited)
// needs GC tracing (clrhost §3 "Object layout").
func (c *Class) HasReferences() bool { return c.ExtraFlags&ExtraHasReferences != 0 }

// IsValueType reports whether the class is a value type (struct/enum).
func (c *Class) IsValueType() bool { return c.ExtraFlags&ExtraValueType != 0 }

// IsInterface reports whether the TypeDef declares an interface.
func (c *Class) IsInterface() bool { return c.Flags&TypeInterface != 0 }

// InitFlags returns the current (already-completed) phase bitmask.
func (c *Class) InitFlags() ClassInitPart {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	return c.initFlags
}

// HasInit reports whether phase part is already complete.
func (c *Class) HasInit(part ClassInitPart) bool {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	return c.initFlags&part != 0
}

// ensurePhase runs fn to compute phase exactly once, after first running
// every prerequisite phase it declares (clrhost Invariant 2: a class
// reaches phase P only after every phase P' it depends on is set).
// Idempotent: re-entering after the phase is already set is a no-op,
// satisfying the "initialize_all on an already-initialized class is a
// no-op" testable property (§8).
func (c *Class) ensurePhase(part ClassInitPart, fn func() error) error {
	c.initMu.Lock()
	if c.initFlags&part != 0 {
		c.initMu.Unlock()
		return nil
	}
	c.initMu.Unlock()

	for _, prereq := range prereqs[part] {
		if err := c.ensurePhase(prereq, phaseFn(c, prereq)); err != nil {
			return err
		}
	}

	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.initFlags&part != 0 {
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	c.initFlags |= part
	return nil
}

// phaseFn resolves the Resolver-registered function for a prerequisite
// phase. Classes keep a back-pointer to their owning Module's resolver
// so prerequisite phases can be driven recursively without a global.
func phaseFn(c *Class, part ClassInitPart) func() error {
	return func() error {
		if c.Image == nil || c.Image.Resolver == nil {
			return rterr.New(rterr.ExecutionEngine, "class %s.%s has no resolver to run phase %d", c.Namespace, c.Name, part)
		}
		return c.Image.Resolver.RunPhase(c, part)
	}
}

// EnsureSuperTypes runs the SuperTypes phase (and its prerequisites, of
// which there are none).
func (c *Class) EnsureSuperTypes(fn func() error) error { return c.ensurePhase(InitSuperTypes, fn) }

// EnsureFields runs the Fields phase.
func (c *Class) EnsureFields(fn func() error) error { return c.ensurePhase(InitField, fn) }

// EnsureMethods runs the Methods phase.
func (c *Class) EnsureMethods(fn func() error) error { return c.ensurePhase(InitMethod, fn) }

// EnsureVirtualTable runs the VirtualTable phase.
func (c *Class) EnsureVirtualTable(fn func() error) error { return c.ensurePhase(InitVirtualTable, fn) }

// EnsureInterfaceTypes runs the InterfaceTypes phase.
func (c *Class) EnsureInterfaceTypes(fn func() error) error { return c.ensurePhase(InitInterfaceTypes, fn) }

// EnsureNestedClasses runs the NestedClasses phase.
func (c *Class) EnsureNestedClasses(fn func() error) error { return c.ensurePhase(InitNestedClasses, fn) }

// EnsureProperty runs the Property phase.
func (c *Class) EnsureProperty(fn func() error) error { return c.ensurePhase(InitProperty, fn) }

// EnsureEvent runs the Event phase.
func (c *Class) EnsureEvent(fn func() error) error { return c.ensurePhase(InitEvent, fn) }

// EnsureAll runs every phase in dependency order.
func (c *Class) EnsureAll(fn func() error) error { return c.ensurePhase(InitAll, fn) }

// RunStaticConstructor runs the class's cctor at most once (clrhost §5
// "Class initialization": the not-finished flag is set before invoking
// the cctor so recursive initialization during the cctor does not
// re-enter).
func (c *Class) RunStaticConstructor(run func() error) error {
	c.cctorMu.Lock()
	if c.cctorNotFinished {
		c.cctorMu.Unlock()
		return nil
	}
	c.cctorNotFinished = true
	c.cctorMu.Unlock()

	return c.ensurePhase(InitRuntimeClassInit, run)
}
