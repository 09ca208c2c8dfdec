package metadata

import (
	"fmt"

	"github.com/clrhost/clrhost/image"
	"github.com/clrhost/clrhost/rterr"
)

// GetClassByTypeRefRid resolves a TypeRef row's ResolutionScope and
// returns the class it names (clrhost §4.2 "Class lookup and
// resolution"). A Module-scoped reference resolves within this same
// module by name; any other scope (AssemblyRef, ModuleRef, or an
// enclosing TypeRef for a nested type) resolves to a synthesized
// external-reference Class cached by fully-qualified name — this core
// does not load the referenced assembly, only records enough of its
// identity for signature comparison and vtable-slot name matching to
// work (clrhost §1: only a single module's metadata system is in scope).
func (m *Module) GetClassByTypeRefRid(rid uint32) (*Class, error) {
	rows, err := m.Image.TypeRefRows()
	if err != nil {
		return nil, rterr.New(rterr.BadImageFormat, "TypeRef table: %v", err)
	}
	if rid == 0 || int(rid) > len(rows) {
		return nil, rterr.New(rterr.BadImageFormat, "TypeRef rid %d out of range", rid)
	}
	row := rows[rid-1]

	name, err := m.Image.GetMetadataString(row.TypeName)
	if err != nil {
		return nil, err
	}
	namespace, err := m.Image.GetMetadataString(row.TypeNamespace)
	if err != nil {
		return nil, err
	}

	scope, err := DecodeResolutionScope(row.ResolutionScope)
	if err != nil {
		return nil, err
	}

	if scope.Table == image.Module {
		return m.findTypeDefByName(namespace, name)
	}
	return m.externalClass(namespace, name), nil
}

func (m *Module) findTypeDefByName(namespace, name string) (*Class, error) {
	rows, err := m.Image.TypeDefRows()
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rid := uint32(i + 1)
		tn, err := m.Image.GetMetadataString(rows[i].TypeName)
		if err != nil {
			return nil, err
		}
		tns, err := m.Image.GetMetadataString(rows[i].TypeNamespace)
		if err != nil {
			return nil, err
		}
		if tn == name && tns == namespace {
			return m.GetClassByTypeDefRid(rid)
		}
	}
	return nil, rterr.New(rterr.TypeLoad, "type %s.%s not found in module", namespace, name)
}

// BuiltinExceptionClass returns the synthesized stub Class for a
// well-known System.* exception type (e.g. "NullReferenceException"),
// used to give runtime-raised errors a Class that typed catch clauses
// can compare against. Like any externalClass it carries no populated
// Parent chain, so callers match by name rather than by hierarchy walk.
func (m *Module) BuiltinExceptionClass(name string) *Class {
	return m.externalClass("System", name)
}

// externalClass returns (creating if needed) a placeholder Class for a
// type this module references but does not define, cached by
// fully-qualified name so repeated references share one pointer.
func (m *Module) externalClass(namespace, name string) *Class {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fmt.Sprintf("%s.%s", namespace, name)
	if c, ok := m.externalClasses[key]; ok {
		return c
	}
	if m.externalClasses == nil {
		m.externalClasses = make(map[string]*Class)
	}
	c := &Class{
		Image:     m,
		Namespace: namespace,
		Name:      name,
		Family:    FamilyTypeDef,
	}
	m.externalClasses[key] = c
	return c
}

// GetClassByTypeSpecRid reads the TypeSpec row's signature under the
// given generic context and returns the class corresponding to its
// canonical signature (clrhost §4.2).
func (m *Module) GetClassByTypeSpecRid(rid uint32, gcc GenericContainerContext, gc *GenericContext) (*Class, error) {
	rows, err := m.Image.TypeSpecRows()
	if err != nil {
		return nil, err
	}
	if rid == 0 || int(rid) > len(rows) {
		return nil, rterr.New(rterr.BadImageFormat, "TypeSpec rid %d out of range", rid)
	}
	blob, err := m.Image.GetMetadataBlob(rows[rid-1].Signature)
	if err != nil {
		return nil, err
	}
	sig, err := m.ReadTypeSignature(newBlobReader(blob), gcc, gc)
	if err != nil {
		return nil, err
	}
	return m.ClassForSignature(sig)
}

// ClassForSignature returns the Class a canonical TypeSignature denotes.
func (m *Module) ClassForSignature(sig *TypeSignature) (*Class, error) {
	switch sig.Element {
	case ElementValueType, ElementClass:
		mod, ok := LookupModuleByID(sig.TypeDefGID.ModuleID())
		if !ok {
			return nil, rterr.New(rterr.TypeLoad, "signature references unknown module id %d", sig.TypeDefGID.ModuleID())
		}
		return mod.GetClassByTypeDefRid(sig.TypeDefGID.Rid())
	case ElementGenericInst:
		return m.classForGenericClass(sig.Generic)
	case ElementSZArray, ElementArray:
		elemClass, err := m.ClassForSignature(sig.Elem)
		if sig.Element == ElementArray {
			elemClass, err = m.ClassForSignature(sig.Array.Element)
		}
		if err != nil {
			return nil, err
		}
		rank := uint8(1)
		if sig.Element == ElementArray {
			rank = sig.Array.Rank
		}
		return m.ArrayClassOf(elemClass, rank), nil
	default:
		return nil, rterr.New(rterr.NotImplemented, "ClassForSignature: unsupported element 0x%x", sig.Element)
	}
}

func (m *Module) classForGenericClass(gcl *GenericClass) (*Class, error) {
	if gcl.cachedClass != nil {
		return gcl.cachedClass, nil
	}
	base, ok := LookupModuleByID(gcl.BaseTypeDefGID.ModuleID())
	if !ok {
		return nil, rterr.New(rterr.TypeLoad, "generic instance references unknown module id %d", gcl.BaseTypeDefGID.ModuleID())
	}
	baseClass, err := base.GetClassByTypeDefRid(gcl.BaseTypeDefGID.Rid())
	if err != nil {
		return nil, err
	}
	gcl.cachedBase = baseClass
	inflated := &Class{
		Image:           baseClass.Image,
		Namespace:       baseClass.Namespace,
		Name:            baseClass.Name,
		Family:          FamilyGenericInst,
		GenericClassRef: gcl,
		Flags:           baseClass.Flags,
	}
	gcl.cachedClass = inflated
	return inflated, nil
}
