package image

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

// GetMetadataString reads a NUL-terminated UTF-8 string from the #Strings
// heap at offset (clrhost §4.1 get_string). O(1): it scans forward from
// offset only, never the whole heap.
func (pe *Image) GetMetadataString(offset uint32) (string, error) {
	heap, ok := pe.CLR.MetadataStreams["#Strings"]
	if !ok {
		return "", fmt.Errorf("module has no #Strings heap")
	}
	if offset == 0 {
		return "", nil
	}
	if int(offset) >= len(heap) {
		return "", fmt.Errorf("#Strings offset %d out of bounds (heap size %d)", offset, len(heap))
	}
	end := offset
	for int(end) < len(heap) && heap[end] != 0 {
		end++
	}
	return string(heap[offset:end]), nil
}

// GetMetadataBlob returns the length-prefixed blob at offset in the
// #Blob heap (clrhost §4.1 get_blob), with the ECMA-335 §II.23.2
// compressed-length prefix already stripped.
func (pe *Image) GetMetadataBlob(offset uint32) ([]byte, error) {
	heap, ok := pe.CLR.MetadataStreams["#Blob"]
	if !ok {
		return nil, fmt.Errorf("module has no #Blob heap")
	}
	n, hdrLen, err := readCompressedUint32(heap, offset)
	if err != nil {
		return nil, err
	}
	start := offset + hdrLen
	if uint64(start)+uint64(n) > uint64(len(heap)) {
		return nil, fmt.Errorf("#Blob entry at %d overruns heap (len %d, size %d)", offset, n, len(heap))
	}
	return heap[start : start+n], nil
}

// GetUserString reads a length-prefixed UTF-16 string from the #US heap
// at offset (clrhost §4.1 get_user_string), decoded to UTF-8.
func (pe *Image) GetUserString(offset uint32) (string, error) {
	heap, ok := pe.CLR.MetadataStreams["#US"]
	if !ok {
		return "", fmt.Errorf("module has no #US heap")
	}
	n, hdrLen, err := readCompressedUint32(heap, offset)
	if err != nil {
		return "", err
	}
	start := offset + hdrLen
	if n == 0 {
		return "", nil
	}
	// the trailing byte is a "has special chars" marker, not part of the
	// UTF-16 payload, per ECMA-335 §II.24.2.4
	payloadLen := n
	if payloadLen%2 == 1 {
		payloadLen--
	}
	if uint64(start)+uint64(payloadLen) > uint64(len(heap)) {
		return "", fmt.Errorf("#US entry at %d overruns heap", offset)
	}
	raw := heap[start : start+payloadLen]
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := dec.Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// GetGUID returns the 16-byte GUID at the 1-based index idx in the #GUID
// heap.
func (pe *Image) GetGUID(idx uint32) ([16]byte, error) {
	var g [16]byte
	heap, ok := pe.CLR.MetadataStreams["#GUID"]
	if !ok || idx == 0 {
		return g, nil
	}
	off := (idx - 1) * 16
	if uint64(off)+16 > uint64(len(heap)) {
		return g, fmt.Errorf("#GUID index %d out of bounds", idx)
	}
	copy(g[:], heap[off:off+16])
	return g, nil
}

// readCompressedUint32 decodes an ECMA-335 §II.23.2 compressed unsigned
// integer starting at off in buf, returning the value and the number of
// bytes its encoding occupied.
func readCompressedUint32(buf []byte, off uint32) (value uint32, width uint32, err error) {
	if int(off) >= len(buf) {
		return 0, 0, fmt.Errorf("compressed integer offset %d out of bounds", off)
	}
	b0 := buf[off]
	switch {
	case b0&0x80 == 0:
		return uint32(b0), 1, nil
	case b0&0xC0 == 0x80:
		if int(off)+2 > len(buf) {
			return 0, 0, fmt.Errorf("truncated 2-byte compressed integer at %d", off)
		}
		v := binary.BigEndian.Uint16([]byte{b0 & 0x3F, buf[off+1]})
		return uint32(v), 2, nil
	case b0&0xE0 == 0xC0:
		if int(off)+4 > len(buf) {
			return 0, 0, fmt.Errorf("truncated 4-byte compressed integer at %d", off)
		}
		v := binary.BigEndian.Uint32([]byte{b0 & 0x1F, buf[off+1], buf[off+2], buf[off+3]})
		return v, 4, nil
	default:
		return 0, 0, fmt.Errorf("invalid compressed integer lead byte 0x%x at %d", b0, off)
	}
}
