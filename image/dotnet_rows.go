package image

import "fmt"

// rowsOf type-asserts the decoded Content of table tableIdx to T,
// returning an empty slice if the table is absent (row count 0 is the
// common case for a module with no rows in that table at all).
func rowsOf[T any](pe *Image, tableIdx int, name string) ([]T, error) {
	table, ok := pe.CLR.MetadataTables[tableIdx]
	if !ok {
		return nil, nil
	}
	rows, ok := table.Content.([]T)
	if !ok {
		return nil, fmt.Errorf("metadata table %s: unexpected content type %T", name, table.Content)
	}
	return rows, nil
}

// TypeDefRows returns the decoded TypeDef table.
func (pe *Image) TypeDefRows() ([]TypeDefTableRow, error) { return rowsOf[TypeDefTableRow](pe, TypeDef, "TypeDef") }

// TypeRefRows returns the decoded TypeRef table.
func (pe *Image) TypeRefRows() ([]TypeRefTableRow, error) { return rowsOf[TypeRefTableRow](pe, TypeRef, "TypeRef") }

// TypeSpecRows returns the decoded TypeSpec table.
func (pe *Image) TypeSpecRows() ([]TypeSpecTableRow, error) { return rowsOf[TypeSpecTableRow](pe, TypeSpec, "TypeSpec") }

// FieldRows returns the decoded Field table.
func (pe *Image) FieldRows() ([]FieldTableRow, error) { return rowsOf[FieldTableRow](pe, Field, "Field") }

// MethodDefRows returns the decoded MethodDef table.
func (pe *Image) MethodDefRows() ([]MethodDefTableRow, error) { return rowsOf[MethodDefTableRow](pe, MethodDef, "MethodDef") }

// ParamRows returns the decoded Param table.
func (pe *Image) ParamRows() ([]ParamTableRow, error) { return rowsOf[ParamTableRow](pe, Param, "Param") }

// InterfaceImplRows returns the decoded InterfaceImpl table.
func (pe *Image) InterfaceImplRows() ([]InterfaceImplTableRow, error) {
	return rowsOf[InterfaceImplTableRow](pe, InterfaceImpl, "InterfaceImpl")
}

// MemberRefRows returns the decoded MemberRef table.
func (pe *Image) MemberRefRows() ([]MemberRefTableRow, error) { return rowsOf[MemberRefTableRow](pe, MemberRef, "MemberRef") }

// ConstantRows returns the decoded Constant table.
func (pe *Image) ConstantRows() ([]ConstantTableRow, error) { return rowsOf[ConstantTableRow](pe, Constant, "Constant") }

// GenericParamRows returns the decoded GenericParam table.
func (pe *Image) GenericParamRows() ([]GenericParamTableRow, error) {
	return rowsOf[GenericParamTableRow](pe, GenericParam, "GenericParam")
}

// GenericParamConstraintRows returns the decoded GenericParamConstraint table.
func (pe *Image) GenericParamConstraintRows() ([]GenericParamConstraintTableRow, error) {
	return rowsOf[GenericParamConstraintTableRow](pe, GenericParamConstraint, "GenericParamConstraint")
}

// ClassLayoutRows returns the decoded ClassLayout table.
func (pe *Image) ClassLayoutRows() ([]ClassLayoutTableRow, error) {
	return rowsOf[ClassLayoutTableRow](pe, ClassLayout, "ClassLayout")
}

// FieldLayoutRows returns the decoded FieldLayout table.
func (pe *Image) FieldLayoutRows() ([]FieldLayoutTableRow, error) {
	return rowsOf[FieldLayoutTableRow](pe, FieldLayout, "FieldLayout")
}

// NestedClassRows returns the decoded NestedClass table.
func (pe *Image) NestedClassRows() ([]NestedClassTableRow, error) {
	return rowsOf[NestedClassTableRow](pe, NestedClass, "NestedClass")
}

// AssemblyRows returns the decoded Assembly table.
func (pe *Image) AssemblyRows() ([]AssemblyTableRow, error) { return rowsOf[AssemblyTableRow](pe, Assembly, "Assembly") }

// AssemblyRefRows returns the decoded AssemblyRef table.
func (pe *Image) AssemblyRefRows() ([]AssemblyRefTableRow, error) {
	return rowsOf[AssemblyRefTableRow](pe, AssemblyRef, "AssemblyRef")
}

// StandAloneSigRows returns the decoded StandAloneSig table.
func (pe *Image) StandAloneSigRows() ([]StandAloneSigTableRow, error) {
	return rowsOf[StandAloneSigTableRow](pe, StandAloneSig, "StandAloneSig")
}

// FieldRVARows returns the decoded FieldRVA table.
func (pe *Image) FieldRVARows() ([]FieldRVATableRow, error) { return rowsOf[FieldRVATableRow](pe, FieldRVA, "FieldRVA") }

// PropertyRows returns the decoded Property table.
func (pe *Image) PropertyRows() ([]PropertyTableRow, error) { return rowsOf[PropertyTableRow](pe, Property, "Property") }

// PropertyMapRows returns the decoded PropertyMap table.
func (pe *Image) PropertyMapRows() ([]PropertyMapTableRow, error) {
	return rowsOf[PropertyMapTableRow](pe, PropertyMap, "PropertyMap")
}

// EventRows returns the decoded Event table.
func (pe *Image) EventRows() ([]EventTableRow, error) { return rowsOf[EventTableRow](pe, Event, "Event") }

// EventMapRows returns the decoded EventMap table.
func (pe *Image) EventMapRows() ([]EventMapTableRow, error) { return rowsOf[EventMapTableRow](pe, EventMap, "EventMap") }

// MethodSemanticsRows returns the decoded MethodSemantics table.
func (pe *Image) MethodSemanticsRows() ([]MethodSemanticsTableRow, error) {
	return rowsOf[MethodSemanticsTableRow](pe, MethodSemantics, "MethodSemantics")
}
