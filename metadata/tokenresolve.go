package metadata

import (
	"github.com/clrhost/clrhost/image"
	"github.com/clrhost/clrhost/rterr"
)

// usStringTag is the reserved top byte ECMA-335 §II.23.2.3 gives the
// pseudo-token ldstr carries — it is not a real metadata table, just a
// marker that Rid indexes the #US heap rather than a row.
const usStringTag = 0x70

// ResolveToken turns a raw token captured during IL lowering (clrhost
// §4.4 "token resolution") into the concrete object a dispatched
// instruction needs: *Class for a type token, *Method for a method
// token, *Field for a field token, or a decoded Go string for an ldstr
// #US token. gcc supplies the generic context of the method the token
// was read from, for the rare case a TypeSpec (directly or as a
// MemberRef's parent) mentions one of its type parameters; MethodSpec
// tokens are not resolved.
func (m *Module) ResolveToken(tok Token, gcc GenericContainerContext) (interface{}, error) {
	switch tok.Table {
	case usStringTag:
		return m.Image.GetUserString(tok.Rid)
	case image.TypeDef:
		return m.GetClassByTypeDefRid(tok.Rid)
	case image.TypeRef:
		return m.GetClassByTypeRefRid(tok.Rid)
	case image.TypeSpec:
		return m.GetClassByTypeSpecRid(tok.Rid, gcc, nil)
	case image.Field:
		return m.resolveFieldDef(tok.Rid)
	case image.MethodDef:
		return m.resolveMethodDef(tok.Rid)
	case image.MemberRef:
		return m.resolveMemberRef(tok.Rid, gcc)
	default:
		return nil, rterr.New(rterr.BadImageFormat, "unsupported token table 0x%x for resolution", tok.Table)
	}
}

// classOwningMethodRid finds the TypeDef whose contiguous MethodList run
// contains rid, the same range convention buildMethods walks forward.
func (m *Module) classOwningMethodRid(rid uint32) (*Class, error) {
	rows, err := m.Image.TypeDefRows()
	if err != nil {
		return nil, err
	}
	for i := range rows {
		start := rows[i].MethodList
		end := uint32(0)
		if i+1 < len(rows) {
			end = rows[i+1].MethodList
		} else {
			methodRows, err := m.Image.MethodDefRows()
			if err != nil {
				return nil, err
			}
			end = uint32(len(methodRows)) + 1
		}
		if rid >= start && rid < end {
			return m.GetClassByTypeDefRid(uint32(i + 1))
		}
	}
	return nil, rterr.New(rterr.BadImageFormat, "MethodDef rid %d owned by no TypeDef", rid)
}

// classOwningFieldRid mirrors classOwningMethodRid for the Field table.
func (m *Module) classOwningFieldRid(rid uint32) (*Class, error) {
	rows, err := m.Image.TypeDefRows()
	if err != nil {
		return nil, err
	}
	for i := range rows {
		start := rows[i].FieldList
		end := uint32(0)
		if i+1 < len(rows) {
			end = rows[i+1].FieldList
		} else {
			fieldRows, err := m.Image.FieldRows()
			if err != nil {
				return nil, err
			}
			end = uint32(len(fieldRows)) + 1
		}
		if rid >= start && rid < end {
			return m.GetClassByTypeDefRid(uint32(i + 1))
		}
	}
	return nil, rterr.New(rterr.BadImageFormat, "Field rid %d owned by no TypeDef", rid)
}

func (m *Module) resolveMethodDef(rid uint32) (*Method, error) {
	c, err := m.classOwningMethodRid(rid)
	if err != nil {
		return nil, err
	}
	if err := c.EnsureMethods(phaseFn(c, InitMethod)); err != nil {
		return nil, err
	}
	for _, meth := range c.Methods {
		if meth.Token.Rid == rid {
			return meth, nil
		}
	}
	return nil, rterr.New(rterr.MissingMethod, "MethodDef rid %d not found on resolved class", rid)
}

func (m *Module) resolveFieldDef(rid uint32) (*Field, error) {
	c, err := m.classOwningFieldRid(rid)
	if err != nil {
		return nil, err
	}
	if err := c.EnsureFields(phaseFn(c, InitField)); err != nil {
		return nil, err
	}
	for _, f := range c.Fields {
		if f.Token.Rid == rid {
			return f, nil
		}
	}
	return nil, rterr.New(rterr.MissingField, "Field rid %d not found on resolved class", rid)
}

// resolveMemberRef resolves a MemberRef row to either a *Method or a
// *Field by peeking the signature's leading byte (FIELD tag 0x06 vs a
// method calling-convention byte, ECMA-335 §II.23.2.1/.4) and then
// matching by name (and, for methods, parameter count) against the
// parent class and its ancestors. This does not perform full overload
// signature resolution — see DESIGN.md.
func (m *Module) resolveMemberRef(rid uint32, gcc GenericContainerContext) (interface{}, error) {
	rows, err := m.Image.MemberRefRows()
	if err != nil {
		return nil, err
	}
	if rid == 0 || int(rid) > len(rows) {
		return nil, rterr.New(rterr.BadImageFormat, "MemberRef rid %d out of range", rid)
	}
	row := rows[rid-1]
	name, err := m.Image.GetMetadataString(row.Name)
	if err != nil {
		return nil, err
	}
	blob, err := m.Image.GetMetadataBlob(row.Signature)
	if err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		return nil, rterr.New(rterr.BadImageFormat, "MemberRef rid %d has empty signature", rid)
	}

	parentTok, err := DecodeMemberRefParent(row.Class)
	if err != nil {
		return nil, err
	}
	var parent *Class
	switch parentTok.Table {
	case image.TypeDef:
		parent, err = m.GetClassByTypeDefRid(parentTok.Rid)
	case image.TypeRef:
		parent, err = m.GetClassByTypeRefRid(parentTok.Rid)
	case image.TypeSpec:
		parent, err = m.GetClassByTypeSpecRid(parentTok.Rid, gcc, nil)
	default:
		return nil, rterr.New(rterr.NotImplemented, "MemberRef rid %d: parent table 0x%x not supported", rid, parentTok.Table)
	}
	if err != nil {
		return nil, err
	}

	if blob[0] == fieldSigTag {
		return findFieldByName(parent, name)
	}
	return findMethodByNameAndArity(parent, name, blob)
}

func findFieldByName(c *Class, name string) (*Field, error) {
	for cur := c; cur != nil; cur = cur.Parent {
		if err := cur.EnsureFields(phaseFn(cur, InitField)); err != nil {
			return nil, err
		}
		for _, f := range cur.Fields {
			if f.Name == name {
				return f, nil
			}
		}
	}
	return nil, rterr.New(rterr.MissingField, "field %s not found on %s.%s or its ancestors", name, c.Namespace, c.Name)
}

// findMethodByNameAndArity matches a MemberRef's method signature against
// a class's (and its ancestors') methods by name and declared parameter
// count. sigBlob's leading calling-convention byte plus compressed param
// count are decoded to get the arity to match against. When no same-named
// method has that arity, the first same-named method found is returned.
func findMethodByNameAndArity(c *Class, name string, sigBlob []byte) (*Method, error) {
	br := newBlobReader(sigBlob)
	callConv, err := br.readByte()
	if err != nil {
		return nil, err
	}
	if callConv&sigGeneric != 0 {
		if _, err := br.readCompressed(); err != nil { // generic param count
			return nil, err
		}
	}
	paramCount, err := br.readCompressed()
	if err != nil {
		return nil, err
	}

	var firstByName *Method
	for cur := c; cur != nil; cur = cur.Parent {
		if err := cur.EnsureMethods(phaseFn(cur, InitMethod)); err != nil {
			return nil, err
		}
		for _, meth := range cur.Methods {
			if meth.Name != name {
				continue
			}
			if firstByName == nil {
				firstByName = meth
			}
			if len(meth.Params) == int(paramCount) {
				return meth, nil
			}
		}
	}
	if firstByName != nil {
		return firstByName, nil
	}
	return nil, rterr.New(rterr.MissingMethod, "method %s not found on %s.%s or its ancestors", name, c.Namespace, c.Name)
}
