package metadata

import (
	"github.com/clrhost/clrhost/image"
	"github.com/clrhost/clrhost/rterr"
)

// codedIndexKind mirrors image/dotnet_helper.go's codedidx: a coded-index
// tag width plus the ordered list of tables it selects among. Defined
// again here (rather than imported) because the image package's own
// table-resolution concern is heap-layout decoding, while this package's
// concern is what the tag selects semantically (clrhost §4.2 "Coded
// index decoding").
type codedIndexKind struct {
	tagBits uint
	tables  []int
}

var (
	idxTypeDefOrRef        = codedIndexKind{2, []int{image.TypeDef, image.TypeRef, image.TypeSpec}}
	idxResolutionScope     = codedIndexKind{2, []int{image.Module, image.ModuleRef, image.AssemblyRef, image.TypeRef}}
	idxTypeOrMethodDef     = codedIndexKind{1, []int{image.TypeDef, image.MethodDef}}
	idxMethodDefOrRef      = codedIndexKind{1, []int{image.MethodDef, image.MemberRef}}
	idxMemberRefParent     = codedIndexKind{3, []int{image.TypeDef, image.TypeRef, image.ModuleRef, image.MethodDef, image.TypeSpec}}
	idxHasCustomAttribute  = codedIndexKind{5, []int{image.MethodDef, image.Field, image.TypeRef, image.TypeDef, image.Param, image.InterfaceImpl, image.MemberRef, image.Module, image.DeclSecurity, image.Property, image.Event, image.StandAloneSig, image.ModuleRef, image.TypeSpec, image.Assembly, image.AssemblyRef, image.FileMD, image.ExportedType, image.ManifestResource, image.GenericParam, image.GenericParamConstraint, image.MethodSpec}}
	idxHasConstant         = codedIndexKind{2, []int{image.Field, image.Param, image.Property}}
	idxHasSemantics        = codedIndexKind{1, []int{image.Event, image.Property}}
	idxMemberForwarded     = codedIndexKind{1, []int{image.Field, image.MethodDef}}
	idxImplementation      = codedIndexKind{2, []int{image.FileMD, image.AssemblyRef, image.ExportedType}}
	idxCustomAttributeType = codedIndexKind{3, []int{reservedTag, reservedTag, image.MethodDef, image.MemberRef, reservedTag}}
)

// reservedTag marks a tag value ECMA-335 declares reserved/unused for a
// given coded-index kind (e.g. CustomAttributeType tags 0,1,4).
const reservedTag = -1

// decodeCodedIndex splits a packed coded-index value into its tag table
// and rid, per ECMA-335 §II.24.2.6. Unknown or reserved tags produce
// BadImageFormat (clrhost §4.2).
func decodeCodedIndex(kind codedIndexKind, value uint32) (Token, error) {
	mask := uint32(1)<<kind.tagBits - 1
	tag := value & mask
	rid := value >> kind.tagBits
	if int(tag) >= len(kind.tables) {
		return Token{}, rterr.New(rterr.BadImageFormat, "coded index tag %d out of range for %d-table kind", tag, len(kind.tables))
	}
	table := kind.tables[tag]
	if table == reservedTag {
		return Token{}, rterr.New(rterr.BadImageFormat, "coded index tag %d is reserved", tag)
	}
	return Token{Table: table, Rid: rid}, nil
}

// DecodeTypeDefOrRefSpec decodes a TypeDefOrRef (§II.24.2.6) coded index,
// as used by TypeDef.Extends, InterfaceImpl.Interface, and the
// ValueType/Class signature element.
func DecodeTypeDefOrRefSpec(value uint32) (Token, error) { return decodeCodedIndex(idxTypeDefOrRef, value) }

// DecodeResolutionScope decodes a ResolutionScope coded index, as used by
// TypeRef.ResolutionScope.
func DecodeResolutionScope(value uint32) (Token, error) { return decodeCodedIndex(idxResolutionScope, value) }

// DecodeMemberRefParent decodes a MemberRefParent coded index.
func DecodeMemberRefParent(value uint32) (Token, error) { return decodeCodedIndex(idxMemberRefParent, value) }

// DecodeMethodDefOrRef decodes a MethodDefOrRef coded index, as used by
// MethodSpec.Method.
func DecodeMethodDefOrRef(value uint32) (Token, error) { return decodeCodedIndex(idxMethodDefOrRef, value) }

// DecodeTypeOrMethodDef decodes a TypeOrMethodDef coded index, as used by
// GenericParam.Owner.
func DecodeTypeOrMethodDef(value uint32) (Token, error) { return decodeCodedIndex(idxTypeOrMethodDef, value) }

// DecodeImplementation decodes an Implementation coded index, as used by
// ExportedType.Implementation and ManifestResource.Implementation.
func DecodeImplementation(value uint32) (Token, error) { return decodeCodedIndex(idxImplementation, value) }

// DecodeHasConstant decodes a HasConstant coded index.
func DecodeHasConstant(value uint32) (Token, error) { return decodeCodedIndex(idxHasConstant, value) }

// DecodeHasSemantics decodes a HasSemantics coded index.
func DecodeHasSemantics(value uint32) (Token, error) { return decodeCodedIndex(idxHasSemantics, value) }

// DecodeMemberForwarded decodes a MemberForwarded coded index.
func DecodeMemberForwarded(value uint32) (Token, error) { return decodeCodedIndex(idxMemberForwarded, value) }

// DecodeHasCustomAttribute decodes a HasCustomAttribute coded index.
func DecodeHasCustomAttribute(value uint32) (Token, error) {
	return decodeCodedIndex(idxHasCustomAttribute, value)
}

// DecodeCustomAttributeType decodes a CustomAttributeType coded index, as
// used by CustomAttribute.Type (only MethodDef/MemberRef are valid).
func DecodeCustomAttributeType(value uint32) (Token, error) {
	return decodeCodedIndex(idxCustomAttributeType, value)
}
