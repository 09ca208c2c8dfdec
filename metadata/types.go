// Package metadata is the canonical metadata model (clrhost §4.2): it
// turns the raw table rows decoded by the image package into
// cross-referenced, interned runtime entities — Class, Field, Method,
// Property, Event, TypeSignature, GenericInstance, GenericClass,
// GenericParam and GenericContainer graphs.
package metadata

// ElementType is the one-byte discriminant that opens every encoded type
// signature in the #Blob heap (ECMA-335 §II.23.1.16).
type ElementType uint8

const (
	ElementEnd          ElementType = 0x0
	ElementVoid         ElementType = 0x1
	ElementBoolean      ElementType = 0x2
	ElementChar         ElementType = 0x3
	ElementI1           ElementType = 0x4
	ElementU1           ElementType = 0x5
	ElementI2           ElementType = 0x6
	ElementU2           ElementType = 0x7
	ElementI4           ElementType = 0x8
	ElementU4           ElementType = 0x9
	ElementI8           ElementType = 0xA
	ElementU8           ElementType = 0xB
	ElementR4           ElementType = 0xC
	ElementR8           ElementType = 0xD
	ElementString       ElementType = 0xE
	ElementPtr          ElementType = 0xF
	ElementByRef        ElementType = 0x10
	ElementValueType    ElementType = 0x11
	ElementClass        ElementType = 0x12
	ElementVar          ElementType = 0x13
	ElementArray        ElementType = 0x14
	ElementGenericInst  ElementType = 0x15
	ElementTypedByRef   ElementType = 0x16
	ElementI            ElementType = 0x18
	ElementU            ElementType = 0x19
	ElementFnPtr        ElementType = 0x1B
	ElementObject       ElementType = 0x1C
	ElementSZArray      ElementType = 0x1D
	ElementMVar         ElementType = 0x1E
	ElementCModReqd     ElementType = 0x1F
	ElementCModOpt      ElementType = 0x20
	ElementInternal     ElementType = 0x21
	ElementModifier     ElementType = 0x40
	ElementSentinel     ElementType = 0x41
	ElementPinned       ElementType = 0x45
)

// ReduceType classifies a signature for opcode-variant selection and
// argument/return marshaling (clrhost §3 "Evaluation Stack and Reduce
// Type", §4.5 argument marshaling).
type ReduceType uint8

const (
	ReduceUnspecific ReduceType = iota
	ReduceVoid
	ReduceI1
	ReduceU1
	ReduceI2
	ReduceU2
	ReduceI4
	ReduceI8
	ReduceI
	ReduceR4
	ReduceR8
	ReduceRef
	ReduceOther
)

// ClassInitPart is a bit in Class.InitFlags; each phase is idempotent and
// guarded per clrhost §4.2 "Class initialization phases".
type ClassInitPart uint32

const (
	InitField            ClassInitPart = 0x1
	InitMethod           ClassInitPart = 0x2
	InitProperty         ClassInitPart = 0x4
	InitEvent            ClassInitPart = 0x8
	InitVirtualTable     ClassInitPart = 0x10
	InitSuperTypes       ClassInitPart = 0x20
	InitInterfaceTypes   ClassInitPart = 0x40
	InitNestedClasses    ClassInitPart = 0x80
	InitAll              ClassInitPart = 0x10000
	InitRuntimeClassInit ClassInitPart = 0x20000
)

// prereqs lists, for each phase, the phases that must already be set in
// init_flags before it may run (clrhost §4.2 table; Invariant 2 in §3).
var prereqs = map[ClassInitPart][]ClassInitPart{
	InitSuperTypes:       nil,
	InitField:            {InitSuperTypes},
	InitMethod:           {InitSuperTypes},
	InitVirtualTable:     {InitMethod},
	InitInterfaceTypes:   {InitSuperTypes},
	InitNestedClasses:    nil,
	InitProperty:         {InitMethod},
	InitEvent:            {InitMethod},
	InitAll: {
		InitSuperTypes, InitField, InitMethod, InitVirtualTable,
		InitInterfaceTypes, InitNestedClasses, InitProperty, InitEvent,
	},
	InitRuntimeClassInit: {InitAll},
}

// ClassExtraFlag carries derived attributes computed during layout
// (HasReferences) or class-family classification (ValueType, Generic, …).
type ClassExtraFlag uint32

const (
	ExtraValueType            ClassExtraFlag = 0x1
	ExtraNullable             ClassExtraFlag = 0x2
	ExtraEnum                 ClassExtraFlag = 0x4
	ExtraHasReferences        ClassExtraFlag = 0x8
	ExtraArrayOrSZArray       ClassExtraFlag = 0x10
	ExtraGeneric              ClassExtraFlag = 0x20
	ExtraHasStaticConstructor ClassExtraFlag = 0x40
	ExtraHasFinalizer         ClassExtraFlag = 0x80
	ExtraReferenceType        ClassExtraFlag = 0x100
)

// ClassFamily distinguishes the four ways a Class can come into being.
type ClassFamily uint8

const (
	FamilyTypeDef ClassFamily = iota
	FamilyGenericInst
	FamilyArrayOrSZArray
	FamilyGenericParam
	FamilyTypeOrFnPtr
)

// InvokerType is the kind of invoker the invocation shim (invoke package)
// selected for a Method, per clrhost §4.5's decision table.
type InvokerType uint8

const (
	InvokerNotImplemented InvokerType = iota
	InvokerInternalCall
	InvokerIntrinsic
	InvokerCustomIntrinsic
	InvokerPInvoke
	InvokerInterpreter
	InvokerInterpreterVirtualAdjustThunk
	InvokerRuntimeImpl
	InvokerNewObjInternalCall
	InvokerNewObjIntrinsic
)

// MaxAssemblyID bounds the 12-bit module-id field of a GID (clrhost §3).
const MaxAssemblyID = 1<<12 - 1

// Token addresses a row in a metadata table: (TableType, Rid). Rid is
// 1-based; 0 means "none".
type Token struct {
	Table int
	Rid   uint32
}

// IsNil reports whether the token addresses no row.
func (t Token) IsNil() bool { return t.Rid == 0 }

// TokenFromRaw splits a raw 32-bit metadata token (table id in the top
// byte, rid in the low three bytes, ECMA-335 §II.22.1) into a Token.
// Exception clauses carry their class token this way rather than as a
// ResolvedData index, since the clause table isn't itself part of the
// lowered instruction stream.
func TokenFromRaw(raw uint32) Token {
	return Token{Table: int(raw >> 24), Rid: raw & 0x00FFFFFF}
}

// GID is a process-unique identifier for a type-def or method-def,
// fusing a 12-bit module id with a 20-bit rid (clrhost §3).
type GID uint32

// EncodeGID fuses moduleID and rid into a GID.
func EncodeGID(moduleID uint32, rid uint32) GID {
	return GID((moduleID << 20) | (rid & 0xFFFFF))
}

// ModuleID extracts the module-id component of a GID.
func (g GID) ModuleID() uint32 { return uint32(g) >> 20 }

// Rid extracts the row-id component of a GID.
func (g GID) Rid() uint32 { return uint32(g) & 0xFFFFF }
