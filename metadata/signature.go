package metadata

import "fmt"

// ArrayType describes a multi-dimensional Array signature payload
// (clrhost §3 TypeSignature payload table).
type ArrayType struct {
	Element  *TypeSignature
	Rank     uint8
	Sizes    []uint32
	LoBounds []int32
}

// IsCanonical reports whether this array carries no explicit sizes or
// bounds (the shape every interned ArrayType is reduced to).
func (a *ArrayType) IsCanonical() bool { return len(a.Sizes) == 0 && len(a.LoBounds) == 0 }

// GenericInstance is an interned, immutable tuple of type-argument
// signatures used to instantiate a generic type or method.
type GenericInstance struct {
	Args []*TypeSignature
}

func (g *GenericInstance) key() string {
	s := ""
	for _, a := range g.Args {
		s += fmt.Sprintf("%p,", a)
	}
	return s
}

// GenericClass is (base type-def GID, GenericInstance), with cached
// value/reference-type signatures and the inflated Class once built.
type GenericClass struct {
	BaseTypeDefGID GID
	Inst           *GenericInstance
	ByValSig       *TypeSignature
	ByRefSig       *TypeSignature
	cachedBase     *Class
	cachedClass    *Class
}

// GenericParam is a declared generic parameter of a TypeDef or MethodDef.
type GenericParam struct {
	GID         GID
	Name        string
	Flags       uint16
	Index       uint16
	Constraints []*TypeSignature
	Owner       *GenericContainer

	byValSig *TypeSignature
	byRefSig *TypeSignature
}

// GenericContainer is the owner record attached to a TypeDef or MethodDef
// declaring generic parameters. A method's container's ParentClassContext
// is always set (clrhost §4.2 GenericContainer invariant).
type GenericContainer struct {
	OwnerGID           GID
	Params             []*GenericParam
	IsMethod           bool
	ParentClassContext *GenericContainer
}

// GenericContainerContext pairs the enclosing class's and (if any)
// method's GenericContainer, used while reading signatures.
type GenericContainerContext struct {
	Class  *GenericContainer
	Method *GenericContainer
}

// GenericContext supplies concrete type arguments for Var/MVar
// resolution during signature reading and generic inflation.
type GenericContext struct {
	ClassInst  *GenericInstance
	MethodInst *GenericInstance
}

// TypeSignature is the canonical, interned description of a type
// (clrhost §3). Two canonical signatures are equal iff they share a
// pointer (Invariant 1); canonicalization strips pinned and custom
// modifiers before interning.
type TypeSignature struct {
	Element            ElementType
	FieldOrParamAttrs  uint32
	ByRef              bool
	Pinned             bool
	NumMods            uint8

	// Exactly one of the following is meaningful, selected by Element:
	TypeDefGID  GID              // ValueType, Class
	Elem        *TypeSignature   // Ptr, SZArray
	Array       *ArrayType       // Array
	Generic     *GenericClass    // GenericInst
	Param       *GenericParam    // Var, MVar
}

// IsCanonical reports pinned==false && numMods==0 (clrhost §3).
func (s *TypeSignature) IsCanonical() bool { return !s.Pinned && s.NumMods == 0 }

// IsPrimitive reports whether Element names a no-payload primitive kind.
func (s *TypeSignature) IsPrimitive() bool {
	switch s.Element {
	case ElementVoid, ElementBoolean, ElementChar, ElementI1, ElementU1,
		ElementI2, ElementU2, ElementI4, ElementU4, ElementI8, ElementU8,
		ElementR4, ElementR8, ElementI, ElementU, ElementObject,
		ElementString, ElementTypedByRef:
		return true
	}
	return false
}

// Reduce classifies the signature per clrhost §3's reduce-type table.
func (s *TypeSignature) Reduce() ReduceType {
	if s.ByRef {
		return ReduceRef
	}
	switch s.Element {
	case ElementVoid:
		return ReduceVoid
	case ElementBoolean, ElementI1:
		return ReduceI1
	case ElementU1:
		return ReduceU1
	case ElementChar, ElementI2:
		return ReduceI2
	case ElementU2:
		return ReduceU2
	case ElementI4, ElementU4:
		return ReduceI4
	case ElementI8, ElementU8:
		return ReduceI8
	case ElementI, ElementU:
		return ReduceI
	case ElementR4:
		return ReduceR4
	case ElementR8:
		return ReduceR8
	case ElementString, ElementObject, ElementPtr, ElementSZArray,
		ElementArray, ElementClass:
		return ReduceRef
	default:
		return ReduceOther
	}
}

func (s *TypeSignature) String() string {
	switch s.Element {
	case ElementValueType, ElementClass:
		return fmt.Sprintf("gid(%d)", s.TypeDefGID)
	case ElementSZArray:
		return s.Elem.String() + "[]"
	case ElementPtr:
		return s.Elem.String() + "*"
	case ElementGenericInst:
		return fmt.Sprintf("gid(%d)<%d args>", s.Generic.BaseTypeDefGID, len(s.Generic.Inst.Args))
	default:
		return fmt.Sprintf("elem(0x%x)", uint8(s.Element))
	}
}
