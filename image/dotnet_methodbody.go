package image

import "errors"

// ErrInvalidMethodHeader is returned when a method body's leading byte
// names neither the tiny nor the fat header format (ECMA-335 §II.25.4.1).
var ErrInvalidMethodHeader = errors.New("unrecognized method header format byte")

// MethodBody is the decoded method-header-plus-IL-bytes for one MethodDef
// (ECMA-335 §II.25.4). It is the raw input the il package's transformer
// lowers into an executable form; this package only exposes bytes and
// table offsets, never interprets operand meaning.
type MethodBody struct {
	MaxStack     uint16
	CodeSize     uint32
	LocalVarSigTok uint32 // StandAloneSig token, or 0 if the method has no locals
	InitLocals   bool
	Code         []byte
	ExceptionClauses []ExceptionClause
}

// ExceptionClause is one entry of a method's exception handler table
// (ECMA-335 §II.25.4.6), offsets still expressed in IL bytes.
type ExceptionClause struct {
	Flags        uint32 // CorILExceptionClause flags: 0 typed, 1 filter, 2 finally, 4 fault
	TryOffset    uint32
	TryLength    uint32
	HandlerOffset uint32
	HandlerLength uint32
	ClassToken   uint32 // valid when Flags==0 (typed catch)
	FilterOffset uint32 // valid when Flags==1 (filter)
}

const (
	corILExceptionClauseException = 0x0000
	corILExceptionClauseFilter    = 0x0001
	corILExceptionClauseFinally   = 0x0002
	corILExceptionClauseFault     = 0x0004
)

// ReadMethodBody decodes the method header and IL bytes at the given RVA
// (clrhost §4.1 "Method body access"). A zero RVA (abstract/extern
// methods have no body) returns a nil MethodBody and no error.
func (pe *Image) ReadMethodBody(rva uint32) (*MethodBody, error) {
	if rva == 0 {
		return nil, nil
	}
	off := pe.GetOffsetFromRva(rva)
	head, err := pe.ReadUint8(off)
	if err != nil {
		return nil, err
	}

	const (
		corILMethodTinyFormat = 0x2
		corILMethodFatFormat  = 0x3
		corILMethodFormatMask = 0x3
		corILMethodInitLocals = 0x10
		corILMethodMoreSects  = 0x8
	)

	mb := &MethodBody{}
	switch head & corILMethodFormatMask {
	case corILMethodTinyFormat:
		mb.CodeSize = uint32(head >> 2)
		mb.MaxStack = 8
		code, err := pe.ReadBytesAtOffset(off+1, mb.CodeSize)
		if err != nil {
			return nil, err
		}
		mb.Code = code
		return mb, nil

	case corILMethodFatFormat:
		flagsAndSize, err := pe.ReadUint16(off)
		if err != nil {
			return nil, err
		}
		headerSize := (flagsAndSize >> 12) * 4
		flags := flagsAndSize & 0x0FFF
		mb.InitLocals = flags&corILMethodInitLocals != 0

		if mb.MaxStack, err = pe.ReadUint16(off + 2); err != nil {
			return nil, err
		}
		if mb.CodeSize, err = pe.ReadUint32(off + 4); err != nil {
			return nil, err
		}
		if mb.LocalVarSigTok, err = pe.ReadUint32(off + 8); err != nil {
			return nil, err
		}

		codeOff := off + uint32(headerSize)
		if mb.Code, err = pe.ReadBytesAtOffset(codeOff, mb.CodeSize); err != nil {
			return nil, err
		}

		if flags&corILMethodMoreSects != 0 {
			sectOff := codeOff + mb.CodeSize
			sectOff = (sectOff + 3) &^ 3 // 4-byte align
			clauses, err := pe.readMethodDataSections(sectOff)
			if err != nil {
				return nil, err
			}
			mb.ExceptionClauses = clauses
		}
		return mb, nil

	default:
		return nil, ErrInvalidMethodHeader
	}
}

// readMethodDataSections decodes a method's trailing data sections,
// keeping only EHTable sections (§II.25.4.5/6); other kinds (currently
// none are defined besides EHTable) are skipped via their declared size.
func (pe *Image) readMethodDataSections(off uint32) ([]ExceptionClause, error) {
	const (
		sectEHTable  = 0x1
		sectFatFmt   = 0x40
		sectMoreSect = 0x80
	)
	var clauses []ExceptionClause
	for {
		kind, err := pe.ReadUint8(off)
		if err != nil {
			return nil, err
		}
		isFat := kind&sectFatFmt != 0
		more := kind&sectMoreSect != 0

		var dataSize uint32
		var entryStart uint32
		if isFat {
			b, err := pe.ReadBytesAtOffset(off, 4)
			if err != nil {
				return nil, err
			}
			dataSize = uint32(b[1]) | uint32(b[2])<<8 | uint32(b[3])<<16
			entryStart = off + 4
		} else {
			sizeByte, err := pe.ReadUint8(off + 1)
			if err != nil {
				return nil, err
			}
			dataSize = uint32(sizeByte)
			entryStart = off + 4
		}

		if kind&0x3F == sectEHTable {
			cs, err := pe.readEHClauses(entryStart, dataSize, isFat)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, cs...)
		}

		off += dataSize
		if !more {
			break
		}
	}
	return clauses, nil
}

func (pe *Image) readEHClauses(off, dataSize uint32, isFat bool) ([]ExceptionClause, error) {
	var clauses []ExceptionClause
	if isFat {
		n := dataSize / 24
		for i := uint32(0); i < n; i++ {
			base := off + i*24
			flags, err := pe.ReadUint32(base)
			if err != nil {
				return nil, err
			}
			tryOff, _ := pe.ReadUint32(base + 4)
			tryLen, _ := pe.ReadUint32(base + 8)
			hOff, _ := pe.ReadUint32(base + 12)
			hLen, _ := pe.ReadUint32(base + 16)
			classOrFilter, err := pe.ReadUint32(base + 20)
			if err != nil {
				return nil, err
			}
			c := ExceptionClause{Flags: flags, TryOffset: tryOff, TryLength: tryLen, HandlerOffset: hOff, HandlerLength: hLen}
			if flags&corILExceptionClauseFilter != 0 {
				c.FilterOffset = classOrFilter
			} else {
				c.ClassToken = classOrFilter
			}
			clauses = append(clauses, c)
		}
		return clauses, nil
	}

	n := dataSize / 12
	for i := uint32(0); i < n; i++ {
		base := off + i*12
		flags16, err := pe.ReadUint16(base)
		if err != nil {
			return nil, err
		}
		tryOff16, _ := pe.ReadUint16(base + 2)
		tryLen8, _ := pe.ReadUint8(base + 4)
		hOff16, _ := pe.ReadUint16(base + 5)
		hLen8, _ := pe.ReadUint8(base + 7)
		classOrFilter, err := pe.ReadUint32(base + 8)
		if err != nil {
			return nil, err
		}
		c := ExceptionClause{
			Flags:         uint32(flags16),
			TryOffset:     uint32(tryOff16),
			TryLength:     uint32(tryLen8),
			HandlerOffset: uint32(hOff16),
			HandlerLength: uint32(hLen8),
		}
		if c.Flags&corILExceptionClauseFilter != 0 {
			c.FilterOffset = classOrFilter
		} else {
			c.ClassToken = classOrFilter
		}
		clauses = append(clauses, c)
	}
	return clauses, nil
}

