package metadata

import (
	"github.com/clrhost/clrhost/image"
	"github.com/clrhost/clrhost/internal/log"
	"github.com/clrhost/clrhost/rterr"
)

// fieldSigTag is the leading byte ECMA-335 §II.23.2.4 requires on Field
// signature blobs; the sig* constants are the calling-convention bits and
// the sentinel marker of MethodDef/MethodRef signature blobs (§II.23.2.1).
const (
	fieldSigTag        = 0x06
	sigHasThis         = 0x20
	sigExplicitThis    = 0x40
	sigGeneric         = 0x10
	sigSentinel        = 0x41
)

// imageResolver is the concrete Resolver every Module built by this
// package installs on itself (clrhost §4.2 "Class initialization
// phases"). It turns TypeDef-table rows into the Class fields each phase
// promises, driving prerequisite phases transitively through
// Class.ensurePhase / phaseFn.
type imageResolver struct {
	module *Module
	logger *log.Helper
}

// NewResolver builds the Resolver a Module should install on itself
// before any Class on it is touched.
func NewResolver(m *Module, logger *log.Helper) Resolver {
	return &imageResolver{module: m, logger: logger}
}

func (r *imageResolver) RunPhase(c *Class, part ClassInitPart) error {
	switch part {
	case InitSuperTypes:
		return r.buildSuperTypes(c)
	case InitField:
		return r.buildFields(c)
	case InitMethod:
		return r.buildMethods(c)
	case InitVirtualTable:
		return r.buildVTable(c)
	case InitInterfaceTypes:
		return r.buildInterfaceTypes(c)
	case InitNestedClasses:
		return r.buildNestedClasses(c)
	case InitProperty:
		return r.buildProperties(c)
	case InitEvent:
		return r.buildEvents(c)
	case InitAll:
		// every component phase already ran as a prerequisite; nothing
		// further to do for the umbrella bit itself.
		return nil
	case InitRuntimeClassInit:
		// driven by Class.RunStaticConstructor with a caller-supplied
		// invoker callback, never reached as a prerequisite of another
		// phase, so there is nothing for the resolver to compute here.
		return nil
	default:
		return rterr.New(rterr.ExecutionEngine, "unknown class init phase %d", part)
	}
}

func (r *imageResolver) typeDefRow(c *Class) (image.TypeDefTableRow, error) {
	if c.Family != FamilyTypeDef || c.Token.IsNil() {
		return image.TypeDefTableRow{}, rterr.New(rterr.ExecutionEngine, "class %s.%s has no backing TypeDef row", c.Namespace, c.Name)
	}
	rows, err := r.module.Image.TypeDefRows()
	if err != nil {
		return image.TypeDefTableRow{}, err
	}
	if c.Token.Rid == 0 || int(c.Token.Rid) > len(rows) {
		return image.TypeDefTableRow{}, rterr.New(rterr.BadImageFormat, "TypeDef rid %d out of range", c.Token.Rid)
	}
	return rows[c.Token.Rid-1], nil
}

// buildSuperTypes resolves TypeDef.Extends into Parent/SuperTypes and
// classifies the value-type/enum/interface extra flags (clrhost §4.2
// "SuperTypes phase"). Array, generic-instance, generic-parameter and
// pointer classes are returned unchanged: no System.Array or base-class
// chain is appended to them.
func (r *imageResolver) buildSuperTypes(c *Class) error {
	switch c.Family {
	case FamilyArrayOrSZArray, FamilyGenericInst, FamilyGenericParam, FamilyTypeOrFnPtr:
		return nil
	}

	row, err := r.typeDefRow(c)
	if err != nil {
		return err
	}
	if row.Extends == 0 {
		// System.Object and interfaces with no base both encode Extends==0.
		return nil
	}
	token, err := DecodeTypeDefOrRefSpec(row.Extends)
	if err != nil {
		return err
	}
	parent, err := r.resolveTypeToken(token, GenericContainerContext{Class: c.GenericContainer}, nil)
	if err != nil {
		return err
	}
	c.Parent = parent
	c.SuperTypes = append([]*Class{parent}, parent.SuperTypes...)
	c.HierarchyDepth = parent.HierarchyDepth + 1

	switch parent.Namespace + "." + parent.Name {
	case "System.ValueType":
		c.ExtraFlags |= ExtraValueType
	case "System.Enum":
		c.ExtraFlags |= ExtraValueType | ExtraEnum
	default:
		if parent.IsValueType() {
			c.ExtraFlags |= ExtraValueType
		} else {
			c.ExtraFlags |= ExtraReferenceType
		}
	}
	return nil
}

func (r *imageResolver) resolveTypeToken(token Token, gcc GenericContainerContext, gc *GenericContext) (*Class, error) {
	switch token.Table {
	case image.TypeDef:
		return r.module.GetClassByTypeDefRid(token.Rid)
	case image.TypeRef:
		return r.module.GetClassByTypeRefRid(token.Rid)
	case image.TypeSpec:
		return r.module.GetClassByTypeSpecRid(token.Rid, gcc, gc)
	default:
		return nil, rterr.New(rterr.BadImageFormat, "unexpected table %d in TypeDefOrRefSpec", token.Table)
	}
}

// buildFields decodes the contiguous run of Field rows this TypeDef owns
// (clrhost §4.2 "Field phase"). Field signatures are read with
// ReadTypeSignature after stripping the mandatory FIELD tag
// byte (ECMA-335 §II.23.2.4).
func (r *imageResolver) buildFields(c *Class) error {
	if c.Family != FamilyTypeDef {
		return nil
	}
	if c.Parent != nil {
		if err := c.Parent.EnsureFields(phaseFn(c.Parent, InitField)); err != nil {
			return err
		}
	}
	row, err := r.typeDefRow(c)
	if err != nil {
		return err
	}
	rows, err := r.module.Image.TypeDefRows()
	if err != nil {
		return err
	}
	fieldRows, err := r.module.Image.FieldRows()
	if err != nil {
		return err
	}
	start := row.FieldList
	end := uint32(len(fieldRows)) + 1
	if int(c.Token.Rid) < len(rows) {
		end = rows[c.Token.Rid].FieldList
	}
	gcc := GenericContainerContext{Class: c.GenericContainer}

	for rid := start; rid < end; rid++ {
		if rid == 0 || int(rid) > len(fieldRows) {
			continue
		}
		fr := fieldRows[rid-1]
		name, err := r.module.Image.GetMetadataString(fr.Name)
		if err != nil {
			return err
		}
		blob, err := r.module.Image.GetMetadataBlob(fr.Signature)
		if err != nil {
			return err
		}
		br := newBlobReader(blob)
		if tag, err := br.readByte(); err != nil {
			return err
		} else if tag != fieldSigTag {
			return rterr.New(rterr.BadImageFormat, "field %s: signature missing FIELD tag (got 0x%x)", name, tag)
		}
		sig, err := r.module.ReadTypeSignature(br, gcc, nil)
		if err != nil {
			return err
		}
		f := &Field{
			Parent:    c,
			Name:      name,
			Signature: sig,
			Flags:     FieldAttribute(fr.Flags),
			Token:     Token{Table: image.Field, Rid: rid},
		}
		c.Fields = append(c.Fields, f)
		if sig.HasReferences() {
			c.ExtraFlags |= ExtraHasReferences
		}
	}
	computeLayout(c)
	return nil
}

// HasReferences reports whether a slot of this exact signature needs GC
// tracing: class, string, object and array signatures and every generic
// instantiation count. ElementPtr does not, and the ByRef flag is not
// considered.
func (s *TypeSignature) HasReferences() bool {
	switch s.Element {
	case ElementClass, ElementString, ElementObject, ElementSZArray, ElementArray:
		return true
	case ElementGenericInst:
		return true
	default:
		return false
	}
}

// buildMethods decodes the contiguous run of MethodDef rows this TypeDef
// owns, including parameter names from the Param table and the method
// signature's return/parameter types (clrhost §4.2 "Method phase").
func (r *imageResolver) buildMethods(c *Class) error {
	if c.Family != FamilyTypeDef {
		return nil
	}
	row, err := r.typeDefRow(c)
	if err != nil {
		return err
	}
	rows, err := r.module.Image.TypeDefRows()
	if err != nil {
		return err
	}
	methodRows, err := r.module.Image.MethodDefRows()
	if err != nil {
		return err
	}
	start := row.MethodList
	end := uint32(len(methodRows)) + 1
	if int(c.Token.Rid) < len(rows) {
		end = rows[c.Token.Rid].MethodList
	}
	gcc := GenericContainerContext{Class: c.GenericContainer}

	for rid := start; rid < end; rid++ {
		if rid == 0 || int(rid) > len(methodRows) {
			continue
		}
		mr := methodRows[rid-1]
		name, err := r.module.Image.GetMetadataString(mr.Name)
		if err != nil {
			return err
		}
		m := &Method{
			Parent: c,
			Name:   name,
			Token:  Token{Table: image.MethodDef, Rid: rid},
			RVA:    mr.RVA,
			Flags:  MethodAttribute(mr.Flags),
			IFlags: MethodImplAttribute(mr.ImplFlags),
		}
		blob, err := r.module.Image.GetMetadataBlob(mr.Signature)
		if err != nil {
			return err
		}
		if err := r.readMethodSignature(m, blob, gcc); err != nil {
			return err
		}
		c.Methods = append(c.Methods, m)
	}
	return nil
}

// readMethodSignature decodes a MethodDefSig (ECMA-335 §II.23.2.1): a
// calling-convention byte, optional generic-param count, param count,
// return type, then that many parameter types.
func (r *imageResolver) readMethodSignature(m *Method, blob []byte, gcc GenericContainerContext) error {
	br := newBlobReader(blob)
	flags, err := br.readByte()
	if err != nil {
		return err
	}
	if flags&sigGeneric != 0 {
		if _, err := br.readCompressed(); err != nil {
			return err
		}
	}
	paramCount, err := br.readCompressed()
	if err != nil {
		return err
	}
	retSig, err := r.module.ReadTypeSignature(br, gcc, nil)
	if err != nil {
		return err
	}
	m.ReturnSig = retSig
	for i := uint32(0); i < paramCount; i++ {
		if br.atEnd() {
			break
		}
		ps, err := r.module.ReadTypeSignature(br, gcc, nil)
		if err != nil {
			return err
		}
		m.Params = append(m.Params, ps)
	}

	m.ArgDescs = make([]MethodArgDesc, 0, m.ParamCountIncludingThis())
	if !m.IsStatic() {
		m.ArgDescs = append(m.ArgDescs, MethodArgDesc{Reduce: ReduceRef, StackSlotSize: 1})
		m.TotalArgStackSlots++
	}
	for _, p := range m.Params {
		m.ArgDescs = append(m.ArgDescs, MethodArgDesc{Reduce: p.Reduce(), StackSlotSize: 1})
		m.TotalArgStackSlots++
	}
	if retSig.Element != ElementVoid {
		m.RetStackSlots = 1
	}
	return nil
}

// buildVTable inherits the parent's vtable and appends/overrides slots
// for this class's own virtual methods (clrhost §4.2 "Vtable
// construction"): a virtual method without NewSlot whose name and
// parameter signatures match an inherited slot overrides it (HideBySig is
// not checked); NewSlot (or no matching parent slot) appends.
func (r *imageResolver) buildVTable(c *Class) error {
	if c.Parent != nil {
		c.VTable = append(c.VTable, c.Parent.VTable...)
	}
	for _, m := range c.Methods {
		if !m.IsVirtual() {
			continue
		}
		slot := -1
		if !m.IsNewSlot() {
			for i, v := range c.VTable {
				if v.Method.Name == m.Name && sameParams(v.Method.Params, m.Params) {
					slot = i
					break
				}
			}
		}
		if slot >= 0 {
			c.VTable[slot].MethodImpl = m
			m.Slot = uint16(slot)
		} else {
			m.Slot = uint16(len(c.VTable))
			c.VTable = append(c.VTable, VirtualInvokeData{Method: m, MethodImpl: m})
		}
	}
	return nil
}

func sameParams(a, b []*TypeSignature) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// buildInterfaceTypes resolves InterfaceImpl rows naming this class and
// assigns each a contiguous block of interface-dispatch vtable offsets
// appended after the class's own slots (clrhost §4.2 "Interface
// dispatch").
func (r *imageResolver) buildInterfaceTypes(c *Class) error {
	if c.Family != FamilyTypeDef {
		return nil
	}
	rows, err := r.module.Image.InterfaceImplRows()
	if err != nil {
		return err
	}
	gcc := GenericContainerContext{Class: c.GenericContainer}
	offset := uint16(len(c.VTable))
	for rid, row := range rows {
		if row.Class != c.Token.Rid {
			continue
		}
		token, err := DecodeTypeDefOrRefSpec(row.Interface)
		if err != nil {
			return err
		}
		iface, err := r.resolveTypeToken(token, gcc, nil)
		if err != nil {
			return err
		}
		c.Interfaces = append(c.Interfaces, iface)
		c.InterfaceVTableOffsets = append(c.InterfaceVTableOffsets, InterfaceOffset{Interface: iface, BaseOffset: offset})
		offset += uint16(len(iface.VTable))
		_ = rid
	}
	return nil
}

// buildNestedClasses resolves NestedClass rows enclosed by this TypeDef.
func (r *imageResolver) buildNestedClasses(c *Class) error {
	if c.Family != FamilyTypeDef {
		return nil
	}
	rows, err := r.module.Image.NestedClassRows()
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.EnclosingClass != c.Token.Rid {
			continue
		}
		nested, err := r.module.GetClassByTypeDefRid(row.NestedClass)
		if err != nil {
			return err
		}
		nested.DeclaringClass = c
		c.NestedClasses = append(c.NestedClasses, nested)
	}
	return nil
}

// buildProperties resolves this class's PropertyMap-owned Property rows
// and wires each to its get/set methods via MethodSemantics.
func (r *imageResolver) buildProperties(c *Class) error {
	if c.Family != FamilyTypeDef {
		return nil
	}
	maps, err := r.module.Image.PropertyMapRows()
	if err != nil {
		return err
	}
	propRows, err := r.module.Image.PropertyRows()
	if err != nil {
		return err
	}
	semRows, err := r.module.Image.MethodSemanticsRows()
	if err != nil {
		return err
	}
	for mi, pm := range maps {
		if pm.Parent != c.Token.Rid {
			continue
		}
		start := pm.PropertyList
		end := uint32(len(propRows)) + 1
		if mi+1 < len(maps) {
			end = maps[mi+1].PropertyList
		}
		for rid := start; rid < end; rid++ {
			if rid == 0 || int(rid) > len(propRows) {
				continue
			}
			pr := propRows[rid-1]
			name, err := r.module.Image.GetMetadataString(pr.Name)
			if err != nil {
				return err
			}
			p := &Property{Parent: c, Name: name, Flags: pr.Flags, Token: Token{Table: image.Property, Rid: rid}}
			assocToken := Token{Table: image.Property, Rid: rid}
			for _, sem := range semRows {
				assoc, err := DecodeHasSemantics(sem.Association)
				if err != nil {
					continue
				}
				if assoc != assocToken {
					continue
				}
				method := findMethodByDefRid(c, sem.Method)
				switch sem.Semantics & 0x3 {
				case 0x1:
					p.GetMethod = method
				case 0x2:
					p.SetMethod = method
				}
			}
			c.Properties = append(c.Properties, p)
		}
	}
	return nil
}

// buildEvents mirrors buildProperties for the Event table.
func (r *imageResolver) buildEvents(c *Class) error {
	if c.Family != FamilyTypeDef {
		return nil
	}
	maps, err := r.module.Image.EventMapRows()
	if err != nil {
		return err
	}
	evRows, err := r.module.Image.EventRows()
	if err != nil {
		return err
	}
	semRows, err := r.module.Image.MethodSemanticsRows()
	if err != nil {
		return err
	}
	for mi, em := range maps {
		if em.Parent != c.Token.Rid {
			continue
		}
		start := em.EventList
		end := uint32(len(evRows)) + 1
		if mi+1 < len(maps) {
			end = maps[mi+1].EventList
		}
		for rid := start; rid < end; rid++ {
			if rid == 0 || int(rid) > len(evRows) {
				continue
			}
			er := evRows[rid-1]
			name, err := r.module.Image.GetMetadataString(er.Name)
			if err != nil {
				return err
			}
			ev := &Event{Parent: c, Name: name, Flags: er.EventFlags, Token: Token{Table: image.Event, Rid: rid}}
			assocToken := Token{Table: image.Event, Rid: rid}
			for _, sem := range semRows {
				assoc, err := DecodeHasSemantics(sem.Association)
				if err != nil {
					continue
				}
				if assoc != assocToken {
					continue
				}
				method := findMethodByDefRid(c, sem.Method)
				switch sem.Semantics & 0x3 {
				case 0x1:
					ev.AddMethod = method
				case 0x2:
					ev.RemoveMethod = method
				case 0x3:
					ev.RaiseMethod = method
				}
			}
			c.Events = append(c.Events, ev)
		}
	}
	return nil
}

func findMethodByDefRid(c *Class, rid uint32) *Method {
	for _, m := range c.Methods {
		if m.Token.Rid == rid {
			return m
		}
	}
	return nil
}
