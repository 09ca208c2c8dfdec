package invoke

import (
	"github.com/clrhost/clrhost/interp"
	"github.com/clrhost/clrhost/metadata"
	"github.com/clrhost/clrhost/rterr"
)

// isArrayOrSZArray reports whether c is one of the array classes
// Module.ArrayClassOf synthesizes (clrhost §4.2 "Array classes"). Only
// the rank-1 SZArray shape is actually reachable from newarr/ldelem/
// stelem in this core; multi-dimensional Array classes
// are recognized here but fall through to szarrayGet/Set/Address's
// single-index form, which is only correct for rank 1.
func isArrayOrSZArray(c *metadata.Class) bool {
	return c.Family == metadata.FamilyArrayOrSZArray
}

// arrayAccessorThunk mirrors try_setup_array_or_szarray_invoke: the
// four synthesized array methods (.ctor/Get/Set/Address) get a
// CustomIntrinsic invoker implementing them directly against the
// *interp.Object array representation, rather than an interpreted IL
// body (array classes have none).
func arrayAccessorThunk(m *metadata.Method) (metadata.InvokeFunc, bool) {
	switch m.Name {
	case ".ctor":
		return szarrayNew, true
	case "Get":
		return szarrayGet, true
	case "Set":
		return szarraySet, true
	case "Address":
		return szarrayAddress, true
	default:
		return nil, false
	}
}

// szarrayNew implements the array-class ctor thunk bound to newarr at
// the opcode layer; it exists for the rare case of a public invoker
// reaching an array .ctor by reflection rather than through the newarr
// opcode directly (clrhost §4.5 "array accessor thunk").
func szarrayNew(m *metadata.Method, args []uint64, ret []uint64) error {
	if len(args) < 2 {
		return rterr.New(rterr.ExecutionEngine, "array .ctor: expected (this, length) args")
	}
	self := interp.ObjectFromHandle(args[0])
	if self == nil || self.ElemClass == nil {
		return rterr.New(rterr.ExecutionEngine, "array .ctor: receiver has no element class")
	}
	n := int32(args[1])
	if n < 0 {
		return rterr.New(rterr.ExecutionEngine, "array .ctor: negative length")
	}
	self.Elems = make([]uint64, n)
	return nil
}

func szarrayGet(m *metadata.Method, args []uint64, ret []uint64) error {
	if len(args) < 2 {
		return rterr.New(rterr.ExecutionEngine, "array Get: expected (this, index) args")
	}
	arr := interp.ObjectFromHandle(args[0])
	if arr == nil {
		return rterr.New(rterr.NullReference, "array Get on null array")
	}
	idx := int32(args[1])
	if idx < 0 || int(idx) >= len(arr.Elems) {
		return rterr.New(rterr.IndexOutOfRange, "array Get: index %d out of range (len %d)", idx, len(arr.Elems))
	}
	if len(ret) > 0 {
		ret[0] = arr.Elems[idx]
	}
	return nil
}

func szarraySet(m *metadata.Method, args []uint64, ret []uint64) error {
	if len(args) < 3 {
		return rterr.New(rterr.ExecutionEngine, "array Set: expected (this, index, value) args")
	}
	arr := interp.ObjectFromHandle(args[0])
	if arr == nil {
		return rterr.New(rterr.NullReference, "array Set on null array")
	}
	idx := int32(args[1])
	if idx < 0 || int(idx) >= len(arr.Elems) {
		return rterr.New(rterr.IndexOutOfRange, "array Set: index %d out of range (len %d)", idx, len(arr.Elems))
	}
	arr.Elems[idx] = args[2]
	return nil
}

// szarrayAddress returns a byref to the element slot. This core
// represents array elements as a []uint64 rather than a flat byte
// buffer, so there is no real interior pointer to hand back; callers
// needing Address (Span<T>-style code) get a NotImplemented error
// rather than a bogus address (see DESIGN.md).
func szarrayAddress(m *metadata.Method, args []uint64, ret []uint64) error {
	return rterr.New(rterr.NotImplemented, "array Address: no addressable element storage in this core")
}
