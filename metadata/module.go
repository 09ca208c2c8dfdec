package metadata

import (
	"sync"

	"github.com/clrhost/clrhost/image"
	"github.com/clrhost/clrhost/internal/log"
	"github.com/clrhost/clrhost/rterr"
)

// Resolver drives a Class's lazily-computed initialization phases. The
// Resolver (built in resolver.go) is the one place that knows how to turn
// raw image rows into Fields/Methods/VTable/etc; Class.ensurePhase calls
// back into it so a phase's prerequisites can themselves be lazily
// computed (clrhost §4.2).
type Resolver interface {
	RunPhase(class *Class, part ClassInitPart) error
}

// Module is one loaded CLI assembly: the decoded image plus the
// registry of classes/generic containers resolved from it so far
// (clrhost §3 "Module registration").
type Module struct {
	Name     string
	ID       uint32 // 1..=MaxAssemblyID, fused into every GID minted for this module
	Image    *image.Image
	Pool     *InternPool
	Resolver Resolver
	logger   *log.Helper

	mu                sync.Mutex
	classesByTypeDef  map[uint32]*Class // rid -> Class, lazily populated
	genericContainers map[Token]*GenericContainer
	externalClasses   map[string]*Class // fully-qualified name -> placeholder Class for unloaded references
	szArrayClasses    map[*Class]*Class // element Class -> interned SZArray Class
	mdArrayClasses    map[string]*Class // "elem-ptr:rank" -> interned multi-dim Array Class

	layoutLoaded     bool
	fieldOffsets     map[uint32]uint32        // Field rid -> explicit offset (FieldLayout table)
	classLayouts     map[uint32]classLayoutRow // TypeDef rid -> packing/class size (ClassLayout table)
}

// classLayoutRow is a decoded ClassLayout row (clrhost §4.2 "explicit/
// sequential layout", grounded on module_def.cpp's setup_class_layouts).
type classLayoutRow struct {
	PackingSize uint16
	ClassSize   uint32
}

// registry is the process-wide module registry keyed by name and id
// (clrhost §3 "a singleton registry maps name → module and id → module").
type registry struct {
	mu        sync.Mutex
	byName    map[string]*Module
	byID      map[uint32]*Module
	nextID    uint32
}

var globalRegistry = &registry{
	byName: make(map[string]*Module),
	byID:   make(map[uint32]*Module),
	nextID: 1,
}

// NewModule registers img under name and assigns it the next module id.
func NewModule(name string, img *image.Image, pool *InternPool, logger *log.Helper) (*Module, error) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if globalRegistry.nextID > MaxAssemblyID {
		return nil, rterr.New(rterr.ExceedMaxImageCount, "module registry exhausted its 12-bit id space")
	}
	id := globalRegistry.nextID
	globalRegistry.nextID++

	m := &Module{
		Name:              name,
		ID:                id,
		Image:             img,
		Pool:              pool,
		logger:            logger,
		classesByTypeDef:  make(map[uint32]*Class),
		genericContainers: make(map[Token]*GenericContainer),
		externalClasses:   make(map[string]*Class),
		szArrayClasses:    make(map[*Class]*Class),
		mdArrayClasses:    make(map[string]*Class),
	}
	m.Resolver = NewResolver(m, logger)
	globalRegistry.byName[name] = m
	globalRegistry.byID[id] = m
	return m, nil
}

// LookupModuleByName returns a previously-registered module by name.
func LookupModuleByName(name string) (*Module, bool) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	m, ok := globalRegistry.byName[name]
	return m, ok
}

// LookupModuleByID returns a previously-registered module by id.
func LookupModuleByID(id uint32) (*Module, bool) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	m, ok := globalRegistry.byID[id]
	return m, ok
}

// GID fuses this module's id with rid.
func (m *Module) GID(rid uint32) GID { return EncodeGID(m.ID, rid) }

// ensureLayoutTables lazily decodes the FieldLayout and ClassLayout
// tables once per module (clrhost §4.2, grounded on module_def.cpp's
// setup_field_offsets/setup_class_layouts). Most modules carry neither
// table, so the common case is two empty-row reads cached forever.
func (m *Module) ensureLayoutTables() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.layoutLoaded {
		return
	}
	m.layoutLoaded = true
	m.fieldOffsets = make(map[uint32]uint32)
	m.classLayouts = make(map[uint32]classLayoutRow)

	if rows, err := m.Image.FieldLayoutRows(); err == nil {
		for _, r := range rows {
			m.fieldOffsets[r.Field] = r.Offset
		}
	}
	if rows, err := m.Image.ClassLayoutRows(); err == nil {
		for _, r := range rows {
			m.classLayouts[r.Parent] = classLayoutRow{PackingSize: r.PackingSize, ClassSize: r.ClassSize}
		}
	}
}

// fieldExplicitOffset returns the FieldLayout-row offset for a Field
// rid, if one was specified.
func (m *Module) fieldExplicitOffset(rid uint32) (uint32, bool) {
	m.ensureLayoutTables()
	m.mu.Lock()
	defer m.mu.Unlock()
	off, ok := m.fieldOffsets[rid]
	return off, ok
}

// classLayoutFor returns the ClassLayout row for a TypeDef rid, if one
// was specified.
func (m *Module) classLayoutFor(rid uint32) (classLayoutRow, bool) {
	m.ensureLayoutTables()
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.classLayouts[rid]
	return row, ok
}

// GetClassByTypeDefRid lazily constructs the Class skeleton for a TypeDef
// row and caches it (clrhost §4.2 "Class lookup and resolution").
func (m *Module) GetClassByTypeDefRid(rid uint32) (*Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.classesByTypeDef[rid]; ok {
		return c, nil
	}
	rows, err := m.Image.TypeDefRows()
	if err != nil {
		return nil, rterr.New(rterr.BadImageFormat, "TypeDef table: %v", err)
	}
	if rid == 0 || int(rid) > len(rows) {
		return nil, rterr.New(rterr.BadImageFormat, "TypeDef rid %d out of range (%d rows)", rid, len(rows))
	}
	row := rows[rid-1]

	name, err := m.Image.GetMetadataString(row.TypeName)
	if err != nil {
		return nil, rterr.New(rterr.BadImageFormat, "TypeDef rid %d name: %v", rid, err)
	}
	namespace, err := m.Image.GetMetadataString(row.TypeNamespace)
	if err != nil {
		return nil, rterr.New(rterr.BadImageFormat, "TypeDef rid %d namespace: %v", rid, err)
	}

	c := &Class{
		Image:     m,
		Token:     Token{Table: image.TypeDef, Rid: rid},
		Family:    FamilyTypeDef,
		Name:      name,
		Namespace: namespace,
		Flags:     TypeAttribute(row.Flags),
	}
	c.ByValSig = m.Pool.Intern(&TypeSignature{Element: ElementValueType, TypeDefGID: m.GID(rid)})
	c.ByRefSig = m.Pool.Intern(&TypeSignature{Element: ElementClass, TypeDefGID: m.GID(rid), ByRef: true})

	m.classesByTypeDef[rid] = c
	return c, nil
}

// RegisterGenericContainer associates a GenericContainer with its owning
// TypeDef/MethodDef token.
func (m *Module) RegisterGenericContainer(owner Token, gc *GenericContainer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.genericContainers[owner] = gc
}

// GenericContainerFor returns the GenericContainer registered for owner,
// if any.
func (m *Module) GenericContainerFor(owner Token) (*GenericContainer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gc, ok := m.genericContainers[owner]
	return gc, ok
}

// FindClassByName looks up a TypeDef by namespace and name, exported for
// hosts (clrhost's invocation entry point, cmd/clrhost) that need to
// locate a class by its source-level name rather than a token.
func (m *Module) FindClassByName(namespace, name string) (*Class, error) {
	return m.findTypeDefByName(namespace, name)
}

// FindMethod locates a method by its declaring type and method name,
// fully resolving the declaring class's method list first. typeName may
// be dotted ("Namespace.Type"); the method name is matched exactly and
// unqualified (this core does not disambiguate overloads by signature,
// see DESIGN.md).
func (m *Module) FindMethod(typeName, methodName string) (*Method, error) {
	namespace, name := splitTypeName(typeName)
	c, err := m.FindClassByName(namespace, name)
	if err != nil {
		return nil, err
	}
	if err := c.EnsureMethods(phaseFn(c, InitMethod)); err != nil {
		return nil, err
	}
	for _, meth := range c.Methods {
		if meth.Name == methodName {
			return meth, nil
		}
	}
	return nil, rterr.New(rterr.MissingMethod, "method %s::%s not found", typeName, methodName)
}

func splitTypeName(typeName string) (namespace, name string) {
	idx := -1
	for i := len(typeName) - 1; i >= 0; i-- {
		if typeName[i] == '.' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", typeName
	}
	return typeName[:idx], typeName[idx+1:]
}
