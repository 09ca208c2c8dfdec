package metadata

// FieldAttribute mirrors ECMA-335 FieldAttributes (II.23.1.5).
type FieldAttribute uint32

const (
	FieldStatic        FieldAttribute = 0x0010
	FieldInitOnly      FieldAttribute = 0x0020
	FieldLiteral       FieldAttribute = 0x0040
	FieldHasFieldRVA   FieldAttribute = 0x0100
	FieldHasDefault    FieldAttribute = 0x8000
)

// Field is a class member: name, canonical signature, offset, and flags
// (clrhost §3 Field). Static fields are laid out into the owning Class's
// StaticFieldsData blob; instance-field Offset is relative to the start
// of user data.
type Field struct {
	Parent    *Class
	Name      string
	Signature *TypeSignature
	Flags     FieldAttribute
	Offset    uint32
	Token     Token
}

func (f *Field) IsStatic() bool  { return f.Flags&FieldStatic != 0 }
func (f *Field) IsLiteral() bool { return f.Flags&FieldLiteral != 0 }
