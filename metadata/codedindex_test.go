package metadata

import (
	"testing"

	"github.com/clrhost/clrhost/image"
)

func TestDecodeTypeDefOrRefSpec(t *testing.T) {
	for _, tt := range []struct {
		value     uint32
		wantTable int
		wantRid   uint32
	}{
		{0x04, image.TypeDef, 1},  // tag 00, rid 1
		{0x09, image.TypeRef, 2},  // tag 01, rid 2
		{0x0E, image.TypeSpec, 3}, // tag 10, rid 3
	} {
		tok, err := DecodeTypeDefOrRefSpec(tt.value)
		if err != nil {
			t.Fatalf("DecodeTypeDefOrRefSpec(0x%x): %v", tt.value, err)
		}
		if tok.Table != tt.wantTable || tok.Rid != tt.wantRid {
			t.Fatalf("DecodeTypeDefOrRefSpec(0x%x) = {%d %d}, want {%d %d}",
				tt.value, tok.Table, tok.Rid, tt.wantTable, tt.wantRid)
		}
	}
}

func TestDecodeTypeDefOrRefSpecRejectsOutOfRangeTag(t *testing.T) {
	// tagBits=2 gives a 4-slot tag space but only 3 tables are defined.
	if _, err := DecodeTypeDefOrRefSpec(0x03); err == nil {
		t.Fatal("expected an error for tag 3, which has no backing table")
	}
}

func TestDecodeCustomAttributeTypeRejectsReservedTag(t *testing.T) {
	// tag 0 and 1 are reserved for CustomAttributeType.
	if _, err := DecodeCustomAttributeType(0x00); err == nil {
		t.Fatal("expected an error for reserved tag 0")
	}
	if _, err := DecodeCustomAttributeType(0x01); err == nil {
		t.Fatal("expected an error for reserved tag 1")
	}
}

func TestDecodeCustomAttributeTypeAcceptsMethodDefAndMemberRef(t *testing.T) {
	// tag 2 -> MethodDef, rid 5
	tok, err := DecodeCustomAttributeType(0x2A)
	if err != nil {
		t.Fatalf("DecodeCustomAttributeType(0x2A): %v", err)
	}
	if tok.Table != image.MethodDef || tok.Rid != 5 {
		t.Fatalf("got {%d %d}, want {MethodDef 5}", tok.Table, tok.Rid)
	}

	// tag 3 -> MemberRef, rid 5
	tok, err = DecodeCustomAttributeType(0x2B)
	if err != nil {
		t.Fatalf("DecodeCustomAttributeType(0x2B): %v", err)
	}
	if tok.Table != image.MemberRef || tok.Rid != 5 {
		t.Fatalf("got {%d %d}, want {MemberRef 5}", tok.Table, tok.Rid)
	}
}

func TestDecodeHasConstant(t *testing.T) {
	// tagBits=2: tag 00 -> Field, tag 01 -> Param, tag 10 -> Property
	tok, err := DecodeHasConstant(0x04) // tag 0, rid 1
	if err != nil {
		t.Fatalf("DecodeHasConstant: %v", err)
	}
	if tok.Table != image.Field || tok.Rid != 1 {
		t.Fatalf("got {%d %d}, want {Field 1}", tok.Table, tok.Rid)
	}
}
