package metadata

import "github.com/clrhost/clrhost/rterr"

// blobReader is a forward-only cursor over a decoded #Blob heap entry,
// used while reading field/method/property signatures and generic
// instantiations (clrhost §4.2 "Signature reading").
type blobReader struct {
	buf []byte
	pos int
}

func newBlobReader(buf []byte) *blobReader { return &blobReader{buf: buf} }

func (r *blobReader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, rterr.New(rterr.BadImageFormat, "signature blob truncated")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// readCompressed decodes an ECMA-335 §II.23.2 compressed unsigned integer.
func (r *blobReader) readCompressed() (uint32, error) {
	if r.pos >= len(r.buf) {
		return 0, rterr.New(rterr.BadImageFormat, "signature blob truncated")
	}
	b0 := r.buf[r.pos]
	switch {
	case b0&0x80 == 0:
		r.pos++
		return uint32(b0), nil
	case b0&0xC0 == 0x80:
		if r.pos+2 > len(r.buf) {
			return 0, rterr.New(rterr.BadImageFormat, "truncated 2-byte compressed integer")
		}
		v := (uint32(b0&0x3F) << 8) | uint32(r.buf[r.pos+1])
		r.pos += 2
		return v, nil
	case b0&0xE0 == 0xC0:
		if r.pos+4 > len(r.buf) {
			return 0, rterr.New(rterr.BadImageFormat, "truncated 4-byte compressed integer")
		}
		v := (uint32(b0&0x1F) << 24) | (uint32(r.buf[r.pos+1]) << 16) | (uint32(r.buf[r.pos+2]) << 8) | uint32(r.buf[r.pos+3])
		r.pos += 4
		return v, nil
	default:
		return 0, rterr.New(rterr.BadImageFormat, "invalid compressed integer lead byte 0x%x", b0)
	}
}

// readCompressedSigned decodes a compressed signed integer (§II.23.2.4),
// used for array lower bounds.
func (r *blobReader) readCompressedSigned() (int32, error) {
	u, err := r.readCompressed()
	if err != nil {
		return 0, err
	}
	// the final bit is the sign; the magnitude is right-shifted by one
	if u&1 == 0 {
		return int32(u >> 1), nil
	}
	return -int32((u >> 1) + 1), nil
}

func (r *blobReader) atEnd() bool { return r.pos >= len(r.buf) }
