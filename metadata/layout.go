package metadata

// sizeOfReduce returns the natural size and alignment (bytes) of a reduce
// type's storage within an object (clrhost §4.2 "Field layout", grounded
// on module_def.cpp's setup_field_offsets/setup_class_layouts).
func sizeOfReduce(r ReduceType) (size, align uint32) {
	switch r {
	case ReduceI1, ReduceU1:
		return 1, 1
	case ReduceI2, ReduceU2:
		return 2, 2
	case ReduceI4, ReduceR4:
		return 4, 4
	case ReduceI8, ReduceR8, ReduceI:
		return 8, 8
	case ReduceRef:
		return 8, 8
	default:
		return 8, 8
	}
}

// computeLayout assigns each instance field an offset and derives the
// class's unboxed instance size and alignment, then lays out static
// fields into StaticFieldsData (clrhost §3 "Object layout"). Called once
// fields are known, after the superclass's own layout (so inherited
// fields occupy the low offsets the way the object header convention
// expects).
//
// A class's TypeAttributes layout bits (ECMA-335 §II.23.1.15) select one
// of three strategies, grounded on module_def.cpp's setup_field_offsets/
// setup_class_layouts: AutoLayout packs fields in declaration order at
// natural alignment (the only strategy this core previously
// implemented); SequentialLayout does the same but honors a
// ClassLayout row's packing_size as an alignment cap and its class_size
// as a minimum instance size; ExplicitLayout places each field at the
// offset its own FieldLayout row names, relative to the end of the
// inherited parent fields.
func computeLayout(c *Class) {
	base := uint32(0)
	align := uint32(1)
	if c.Parent != nil {
		base = c.Parent.InstanceSizeWithoutHeader
		if c.Parent.Alignment > 0 {
			align = uint32(c.Parent.Alignment)
		}
	}

	switch c.Flags & TypeLayoutMask {
	case TypeExplicitLayout:
		align = computeExplicitLayout(c, base, align)
	default:
		packingCap := uint32(0)
		minSize := uint32(0)
		if c.Flags&TypeLayoutMask == TypeSequentialLayout && c.Image != nil {
			if row, ok := c.Image.classLayoutFor(c.Token.Rid); ok {
				if row.PackingSize > 0 {
					packingCap = uint32(row.PackingSize)
				}
				minSize = row.ClassSize
			}
		}
		align = computeSequentialLayout(c, base, align, packingCap, minSize)
	}

	if align > 255 {
		align = 255
	}
	c.Alignment = uint8(align)
}

// computeSequentialLayout packs instance fields in declaration order at
// their natural alignment, optionally capped by packingCap (a
// SequentialLayout ClassLayout row's packing_size), and pads the
// resulting instance size up to minSize if that is larger. Static
// fields are packed the same way regardless of the class's layout kind,
// since TypeAttributes layout bits govern instance layout only.
func computeSequentialLayout(c *Class, base, align, packingCap, minSize uint32) uint32 {
	offset := base
	staticOffset := uint32(0)
	for _, f := range c.Fields {
		if f.IsLiteral() {
			continue // literals have no storage; their value lives in the constant blob
		}
		size, falign := sizeOfReduce(f.Signature.Reduce())
		if packingCap > 0 && falign > packingCap {
			falign = packingCap
		}
		if f.IsStatic() {
			staticOffset = alignUp(staticOffset, falign)
			f.Offset = staticOffset
			staticOffset += size
			continue
		}
		offset = alignUp(offset, falign)
		f.Offset = offset
		offset += size
		if falign > align {
			align = falign
		}
	}
	if offset < minSize {
		offset = minSize
	}
	c.InstanceSizeWithoutHeader = offset
	if staticOffset > 0 {
		c.StaticFieldsData = make([]byte, staticOffset)
	}
	return align
}

// computeExplicitLayout places each non-static field at its
// FieldLayout-row offset (relative to base, the end of the inherited
// parent fields) and each static field by the usual sequential packing.
// A field with no FieldLayout row (malformed metadata) falls back to
// base, overlapping the parent's fields rather than failing the whole
// class's resolution.
func computeExplicitLayout(c *Class, base, align uint32) uint32 {
	end := base
	staticOffset := uint32(0)
	for _, f := range c.Fields {
		if f.IsLiteral() {
			continue
		}
		size, falign := sizeOfReduce(f.Signature.Reduce())
		if f.IsStatic() {
			staticOffset = alignUp(staticOffset, falign)
			f.Offset = staticOffset
			staticOffset += size
			continue
		}
		off := base
		if c.Image != nil {
			if explicit, ok := c.Image.fieldExplicitOffset(f.Token.Rid); ok {
				off = base + explicit
			}
		}
		f.Offset = off
		if fend := off + size; fend > end {
			end = fend
		}
		if falign > align {
			align = falign
		}
	}
	if c.Image != nil {
		if row, ok := c.Image.classLayoutFor(c.Token.Rid); ok && row.ClassSize > 0 && base+row.ClassSize > end {
			end = base + row.ClassSize
		}
	}
	c.InstanceSizeWithoutHeader = end
	if staticOffset > 0 {
		c.StaticFieldsData = make([]byte, staticOffset)
	}
	return align
}

func alignUp(off, align uint32) uint32 {
	if align == 0 {
		return off
	}
	return (off + align - 1) &^ (align - 1)
}
