package metadata

import "fmt"

// ArrayClassOf returns the (cached) synthesized Class for an array of elem
// with the given rank, creating it on first request. Rank 1 produces the
// SZArray family (vector, the common `T[]` case); rank > 1 produces a
// general multi-dimensional Array (clrhost §4.2 "Array classes": array
// classes are synthesized rather than read from TypeDef rows). The
// synthesized class has no Parent and no Interfaces: it is not linked to
// System.Array, and an SZArray does not implement IList<T>,
// ICollection<T>, IEnumerable<T>, IReadOnlyList<T> or
// IReadOnlyCollection<T>.
func (m *Module) ArrayClassOf(elem *Class, rank uint8) *Class {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rank <= 1 {
		if m.szArrayClasses == nil {
			m.szArrayClasses = make(map[*Class]*Class)
		}
		if c, ok := m.szArrayClasses[elem]; ok {
			return c
		}
		c := m.newArrayClass(elem, 1, true)
		m.szArrayClasses[elem] = c
		return c
	}

	if m.mdArrayClasses == nil {
		m.mdArrayClasses = make(map[string]*Class)
	}
	key := fmt.Sprintf("%p:%d", elem, rank)
	if c, ok := m.mdArrayClasses[key]; ok {
		return c
	}
	c := m.newArrayClass(elem, rank, false)
	m.mdArrayClasses[key] = c
	return c
}

// newArrayClass builds the Class for an array type, including its
// synthesized method set (clrhost §4.2 "Array classes"; ArrayClass::
// setup_methods): a .ctor(int32 x rank), a Set(int32 x rank, T),
// a Get(int32 x rank) -> T, and an Address(int32 x rank) -> byref T. Every
// array class is marked InitAll complete immediately, since it has no
// TypeDef row to drive the ordinary phase machinery; a multi-dimensional
// array gets a second, doubled-arity .ctor overload exactly as the
// original does for rank > 1.
func (m *Module) newArrayClass(elem *Class, rank uint8, sz bool) *Class {
	name := elem.Name + "[]"
	if !sz {
		name = fmt.Sprintf("%s[%s]", elem.Name, commaRank(rank))
	}
	c := &Class{
		Image:          m,
		Namespace:      elem.Namespace,
		Name:           name,
		ElementClass:   elem,
		Family:         FamilyArrayOrSZArray,
		ExtraFlags:     ExtraArrayOrSZArray | ExtraReferenceType,
		HierarchyDepth: elem.HierarchyDepth + 1,
	}
	c.ByValSig = m.Pool.Intern(&TypeSignature{Element: ElementSZArray, Elem: elem.ByValSig})
	if !sz {
		c.ByValSig = m.Pool.Intern(&TypeSignature{
			Element: ElementArray,
			Array:   &ArrayType{Element: elem.ByValSig, Rank: rank},
		})
	}
	c.ByRefSig = m.Pool.Intern(&TypeSignature{Element: c.ByValSig.Element, Elem: c.ByValSig.Elem, Array: c.ByValSig.Array, ByRef: true})

	indices := func(n uint8) []*TypeSignature {
		ps := make([]*TypeSignature, n)
		i32 := m.Pool.Intern(&TypeSignature{Element: ElementI4})
		for i := range ps {
			ps[i] = i32
		}
		return ps
	}
	voidSig := m.Pool.Intern(&TypeSignature{Element: ElementVoid})
	ctorParams := indices(rank)
	c.Methods = append(c.Methods, arrayMethod(c, ".ctor", voidSig, ctorParams))
	if rank > 1 {
		c.Methods = append(c.Methods, arrayMethod(c, ".ctor", voidSig, append(append([]*TypeSignature{}, ctorParams...), ctorParams...)))
	}
	c.Methods = append(c.Methods, arrayMethod(c, "Set", voidSig, append(indices(rank), elem.ByValSig)))
	c.Methods = append(c.Methods, arrayMethod(c, "Get", elem.ByValSig, indices(rank)))
	c.Methods = append(c.Methods, arrayMethod(c, "Address", elem.ByRefSig, indices(rank)))

	c.initFlags = InitSuperTypes | InitField | InitMethod | InitVirtualTable | InitInterfaceTypes | InitNestedClasses | InitProperty | InitEvent | InitAll
	return c
}

// arrayMethod builds one InternalCall-implemented synthetic method
// (ArrayClass::build_array_method): no backing token, resolved by name
// rather than MethodDef rid.
func arrayMethod(c *Class, name string, ret *TypeSignature, params []*TypeSignature) *Method {
	flags := MethodPublic
	if name == ".ctor" {
		flags |= MethodSpecialName | MethodRTSpecialName
	}
	return &Method{
		Parent:    c,
		Name:      name,
		ReturnSig: ret,
		Params:    params,
		Flags:     flags,
		IFlags:    ImplInternalCall,
	}
}

func commaRank(rank uint8) string {
	s := ""
	for i := uint8(0); i < rank; i++ {
		if i > 0 {
			s += ","
		}
	}
	return s
}
