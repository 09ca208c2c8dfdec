package interp

import (
	"math"

	"github.com/clrhost/clrhost/metadata"
)

// Object is a heap-allocated managed object (clrhost §3 "Object layout",
// §6 "Object header contract"): its Class pointer is the header every GC
// walk and castclass/isinst check consults, followed by raw field
// storage. A *Object is what every Ref-typed stack slot, local, and field
// actually holds once newobj/box/newarr has run; this core has no
// garbage collector of its own, relies on Go's, and never frees object
// memory manually.
type Object struct {
	Class *metadata.Class
	Data  []byte
	// Elems backs SZArray/Array instances: Data remains nil and element
	// access goes through Elems, since array element size/stride comes
	// from the element class rather than a field-offset layout.
	Elems     []uint64
	ElemClass *metadata.Class
}

// newObject allocates an object of class c with its instance layout's
// Data blob zeroed.
func newObject(c *metadata.Class) *Object {
	return &Object{Class: c, Data: make([]byte, c.InstanceSizeWithoutHeader)}
}

// newArrayObject allocates an SZArray/Array object of length n holding
// elemClass-typed elements, one slot per element (clrhost §4.4 object
// model: arrays are not laid out via Field.Offset, but are still
// heap objects with a Class* header like any other).
func newArrayObject(arrClass, elemClass *metadata.Class, n int) *Object {
	return &Object{Class: arrClass, Elems: make([]uint64, n), ElemClass: elemClass}
}

// storeReduce packs a reduce-typed value already living in a uint64 slot
// into a little-endian field at off within data: 1, 2 or 4 bytes wide for
// the I1/U1, I2/U2 and I4/R4 reduce types, 8 bytes for the rest.
func storeReduce(data []byte, off uint32, r metadata.ReduceType, v uint64) {
	switch r {
	case metadata.ReduceI1, metadata.ReduceU1:
		data[off] = byte(v)
	case metadata.ReduceI2, metadata.ReduceU2:
		putLE(data[off:off+2], v, 2)
	case metadata.ReduceI4, metadata.ReduceR4:
		putLE(data[off:off+4], v, 4)
	default: // I8, R8, I, Ref, Other: one full 8-byte slot
		putLE(data[off:off+8], v, 8)
	}
}

func loadReduce(data []byte, off uint32, r metadata.ReduceType) uint64 {
	switch r {
	case metadata.ReduceI1:
		return uint64(int64(int8(data[off])))
	case metadata.ReduceU1:
		return uint64(data[off])
	case metadata.ReduceI2:
		return uint64(int64(int16(getLE(data[off:off+2], 2))))
	case metadata.ReduceU2:
		return getLE(data[off:off+2], 2)
	case metadata.ReduceI4:
		return uint64(int64(int32(getLE(data[off:off+4], 4))))
	case metadata.ReduceR4:
		return getLE(data[off:off+4], 4)
	default:
		return getLE(data[off:off+8], 8)
	}
}

func putLE(dst []byte, v uint64, n int) {
	for i := 0; i < n; i++ {
		dst[i] = byte(v >> (8 * uint(i)))
	}
}

func getLE(src []byte, n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(src[i]) << (8 * uint(i))
	}
	return v
}

func f32bits(f float32) uint64 { return uint64(math.Float32bits(f)) }
func bitsf32(v uint64) float32 { return math.Float32frombits(uint32(v)) }
func f64bits(f float64) uint64 { return math.Float64bits(f) }
func bitsf64(v uint64) float64 { return math.Float64frombits(v) }
