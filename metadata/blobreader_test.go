package metadata

import "testing"

func TestReadCompressedOneByte(t *testing.T) {
	r := newBlobReader([]byte{0x03})
	v, err := r.readCompressed()
	if err != nil {
		t.Fatalf("readCompressed: %v", err)
	}
	if v != 3 {
		t.Fatalf("got %d, want 3", v)
	}
	if !r.atEnd() {
		t.Fatal("reader not at end after consuming sole byte")
	}
}

func TestReadCompressedTwoByte(t *testing.T) {
	// 0x80 0x80 decodes to 0x80 (two-byte form, per ECMA-335 II.23.2 example).
	r := newBlobReader([]byte{0x80, 0x80})
	v, err := r.readCompressed()
	if err != nil {
		t.Fatalf("readCompressed: %v", err)
	}
	if v != 0x80 {
		t.Fatalf("got 0x%x, want 0x80", v)
	}
}

func TestReadCompressedFourByte(t *testing.T) {
	// 0xC0 0x00 0x40 0x00 decodes to 0x4000 (four-byte form example).
	r := newBlobReader([]byte{0xC0, 0x00, 0x40, 0x00})
	v, err := r.readCompressed()
	if err != nil {
		t.Fatalf("readCompressed: %v", err)
	}
	if v != 0x4000 {
		t.Fatalf("got 0x%x, want 0x4000", v)
	}
}

func TestReadCompressedTruncated(t *testing.T) {
	r := newBlobReader([]byte{0x80})
	if _, err := r.readCompressed(); err == nil {
		t.Fatal("expected truncation error for a partial 2-byte compressed integer")
	}
}

func TestReadCompressedSignedRoundTrip(t *testing.T) {
	for _, tt := range []struct {
		encoded uint32
		want    int32
	}{
		{0, 0},
		{1, -1},
		{2, 1},
		{3, -2},
	} {
		// manually pack `encoded` as a one-byte compressed unsigned value
		r := newBlobReader([]byte{byte(tt.encoded)})
		got, err := r.readCompressedSigned()
		if err != nil {
			t.Fatalf("readCompressedSigned(%d): %v", tt.encoded, err)
		}
		if got != tt.want {
			t.Fatalf("readCompressedSigned(%d): got %d, want %d", tt.encoded, got, tt.want)
		}
	}
}

func TestReadByteAdvancesAndErrorsAtEnd(t *testing.T) {
	r := newBlobReader([]byte{0xAB})
	b, err := r.readByte()
	if err != nil {
		t.Fatalf("readByte: %v", err)
	}
	if b != 0xAB {
		t.Fatalf("got 0x%x, want 0xAB", b)
	}
	if _, err := r.readByte(); err == nil {
		t.Fatal("expected an error reading past the end of the blob")
	}
}
