package interp

import (
	"unsafe"

	"github.com/clrhost/clrhost/il"
	"github.com/clrhost/clrhost/metadata"
	"github.com/clrhost/clrhost/rterr"
)

// localPtrTag marks a value pushed by ldloca as an interior pointer into
// this frame's locals rather than a heap Object pointer, since locals
// live in a Go slice with no stable address of their own (clrhost §4.4
// object model simplification, see DESIGN.md).
const localPtrTag = uint64(1) << 63

func objPtr(o *Object) unsafe.Pointer { return unsafe.Pointer(o) }

// uintToObj recovers the *Object a Ref-typed stack/local/arg slot holds.
// Every Object a frame can observe was retained in some frame's liveRefs
// at creation time, keeping it reachable for as long as any slot might
// still carry its address (see frame.retain).
func uintToObj(v uint64) *Object {
	if v == 0 {
		return nil
	}
	return (*Object)(unsafe.Pointer(uintptr(v)))
}

func exceptionFromObject(o *Object) error {
	if o == nil {
		return rterr.New(rterr.NullReference, "throw null")
	}
	return &thrownException{obj: o}
}

// retain anchors a freshly allocated Object to this frame so it survives
// as long as the frame that created it is running, even though the eval
// stack and locals only carry its address as a plain uint64.
func (f *frame) retain(o *Object) *Object {
	if o != nil {
		f.liveRefs = append(f.liveRefs, o)
	}
	return o
}

func (f *frame) pushObj(o *Object) error {
	return f.push(objToUint(f.retain(o)))
}

func s32(v uint64) int32  { return int32(uint32(v)) }
func s64(v uint64) int64  { return int64(v) }
func u32(v int32) uint64  { return uint64(uint32(v)) }
func u64(v int64) uint64  { return uint64(v) }

func (f *frame) binI4(op il.Op) (int, error) {
	b, err := f.pop()
	if err != nil {
		return 0, err
	}
	a, err := f.pop()
	if err != nil {
		return 0, err
	}
	x, y := s32(a), s32(b)
	var r int32
	switch op {
	case il.OpAddI4:
		r = x + y
	case il.OpSubI4:
		r = x - y
	case il.OpMulI4:
		r = x * y
	case il.OpDivI4:
		if y == 0 {
			return 0, rterr.New(rterr.DivideByZero, "i4 division by zero")
		}
		if x == -2147483648 && y == -1 {
			return 0, rterr.New(rterr.Overflow, "i4 division overflow")
		}
		r = x / y
	case il.OpDivUnI4:
		if y == 0 {
			return 0, rterr.New(rterr.DivideByZero, "i4 division by zero")
		}
		r = int32(uint32(x) / uint32(y))
	case il.OpRemI4:
		if y == 0 {
			return 0, rterr.New(rterr.DivideByZero, "i4 remainder by zero")
		}
		r = x % y
	case il.OpRemUnI4:
		if y == 0 {
			return 0, rterr.New(rterr.DivideByZero, "i4 remainder by zero")
		}
		r = int32(uint32(x) % uint32(y))
	case il.OpAndI4:
		r = x & y
	case il.OpOrI4:
		r = x | y
	case il.OpXorI4:
		r = x ^ y
	case il.OpShlI4:
		r = x << (uint32(y) & 31)
	case il.OpShrI4:
		r = x >> (uint32(y) & 31)
	case il.OpShrUnI4:
		r = int32(uint32(x) >> (uint32(y) & 31))
	case il.OpAddOvfI4:
		r64 := int64(x) + int64(y)
		if r64 != int64(int32(r64)) {
			return 0, rterr.New(rterr.Overflow, "i4 add overflow")
		}
		r = int32(r64)
	case il.OpAddOvfUnI4:
		r64 := uint64(uint32(x)) + uint64(uint32(y))
		if r64 > 0xFFFFFFFF {
			return 0, rterr.New(rterr.Overflow, "u4 add overflow")
		}
		r = int32(uint32(r64))
	case il.OpSubOvfI4:
		r64 := int64(x) - int64(y)
		if r64 != int64(int32(r64)) {
			return 0, rterr.New(rterr.Overflow, "i4 sub overflow")
		}
		r = int32(r64)
	case il.OpSubOvfUnI4:
		if uint32(x) < uint32(y) {
			return 0, rterr.New(rterr.Overflow, "u4 sub overflow")
		}
		r = int32(uint32(x) - uint32(y))
	case il.OpMulOvfI4:
		r64 := int64(x) * int64(y)
		if r64 != int64(int32(r64)) {
			return 0, rterr.New(rterr.Overflow, "i4 mul overflow")
		}
		r = int32(r64)
	case il.OpMulOvfUnI4:
		r64 := uint64(uint32(x)) * uint64(uint32(y))
		if r64 > 0xFFFFFFFF {
			return 0, rterr.New(rterr.Overflow, "u4 mul overflow")
		}
		r = int32(uint32(r64))
	}
	if err := f.push(u32(r)); err != nil {
		return 0, err
	}
	return f.ip + 1, nil
}

func (f *frame) binI8(op il.Op) (int, error) {
	b, err := f.pop()
	if err != nil {
		return 0, err
	}
	a, err := f.pop()
	if err != nil {
		return 0, err
	}
	x, y := s64(a), s64(b)
	var r int64
	switch op {
	case il.OpAddI8:
		r = x + y
	case il.OpSubI8:
		r = x - y
	case il.OpMulI8:
		r = x * y
	case il.OpDivI8:
		if y == 0 {
			return 0, rterr.New(rterr.DivideByZero, "i8 division by zero")
		}
		if x == -9223372036854775808 && y == -1 {
			return 0, rterr.New(rterr.Overflow, "i8 division overflow")
		}
		r = x / y
	case il.OpDivUnI8:
		if y == 0 {
			return 0, rterr.New(rterr.DivideByZero, "i8 division by zero")
		}
		r = int64(uint64(x) / uint64(y))
	case il.OpRemI8:
		if y == 0 {
			return 0, rterr.New(rterr.DivideByZero, "i8 remainder by zero")
		}
		r = x % y
	case il.OpRemUnI8:
		if y == 0 {
			return 0, rterr.New(rterr.DivideByZero, "i8 remainder by zero")
		}
		r = int64(uint64(x) % uint64(y))
	case il.OpAndI8:
		r = x & y
	case il.OpOrI8:
		r = x | y
	case il.OpXorI8:
		r = x ^ y
	case il.OpShlI8:
		r = x << (uint64(y) & 63)
	case il.OpShrI8:
		r = x >> (uint64(y) & 63)
	case il.OpShrUnI8:
		r = int64(uint64(x) >> (uint64(y) & 63))
	case il.OpAddOvfI8:
		r = x + y
		if (r > x) != (y > 0) {
			return 0, rterr.New(rterr.Overflow, "i8 add overflow")
		}
	case il.OpAddOvfUnI8:
		ur := uint64(x) + uint64(y)
		if ur < uint64(x) {
			return 0, rterr.New(rterr.Overflow, "u8 add overflow")
		}
		r = int64(ur)
	case il.OpSubOvfI8:
		r = x - y
		if (r < x) != (y > 0) {
			return 0, rterr.New(rterr.Overflow, "i8 sub overflow")
		}
	case il.OpSubOvfUnI8:
		if uint64(x) < uint64(y) {
			return 0, rterr.New(rterr.Overflow, "u8 sub overflow")
		}
		r = int64(uint64(x) - uint64(y))
	case il.OpMulOvfI8:
		r = x * y
		if x != 0 && r/x != y {
			return 0, rterr.New(rterr.Overflow, "i8 mul overflow")
		}
	case il.OpMulOvfUnI8:
		ur := uint64(x) * uint64(y)
		if uint64(x) != 0 && ur/uint64(x) != uint64(y) {
			return 0, rterr.New(rterr.Overflow, "u8 mul overflow")
		}
		r = int64(ur)
	}
	if err := f.push(u64(r)); err != nil {
		return 0, err
	}
	return f.ip + 1, nil
}

func (f *frame) binR4(op il.Op) (int, error) {
	b, err := f.pop()
	if err != nil {
		return 0, err
	}
	a, err := f.pop()
	if err != nil {
		return 0, err
	}
	x, y := bitsf32(a), bitsf32(b)
	var r float32
	switch op {
	case il.OpAddR4:
		r = x + y
	case il.OpSubR4:
		r = x - y
	case il.OpMulR4:
		r = x * y
	case il.OpDivR4:
		r = x / y
	}
	return f.ip + 1, f.push(f32bits(r))
}

func (f *frame) binR8(op il.Op) (int, error) {
	b, err := f.pop()
	if err != nil {
		return 0, err
	}
	a, err := f.pop()
	if err != nil {
		return 0, err
	}
	x, y := bitsf64(a), bitsf64(b)
	var r float64
	switch op {
	case il.OpAddR8:
		r = x + y
	case il.OpSubR8:
		r = x - y
	case il.OpMulR8:
		r = x * y
	case il.OpDivR8:
		r = x / y
	}
	return f.ip + 1, f.push(f64bits(r))
}

// cmp implements ceq/cgt/cgt.un/clt/clt.un (clrhost §4.4 "comparisons":
// result is 0 or 1). cgt.un/clt.un have i4 forms only and compare their
// operands as unsigned; ceq is the only comparison with r4/r8 forms, so
// no unordered (NaN-aware) floating-point comparison is handled here.
func (f *frame) cmp(op il.Op) (int, error) {
	b, err := f.pop()
	if err != nil {
		return 0, err
	}
	a, err := f.pop()
	if err != nil {
		return 0, err
	}
	var r bool
	switch op {
	case il.OpCeqI4:
		r = s32(a) == s32(b)
	case il.OpCeqI8:
		r = s64(a) == s64(b)
	case il.OpCeqR4:
		r = bitsf32(a) == bitsf32(b)
	case il.OpCeqR8:
		r = bitsf64(a) == bitsf64(b)
	case il.OpCgtI4:
		r = s32(a) > s32(b)
	case il.OpCgtI8:
		r = s64(a) > s64(b)
	case il.OpCgtUnI4:
		r = uint32(a) > uint32(b)
	case il.OpCltI4:
		r = s32(a) < s32(b)
	case il.OpCltI8:
		r = s64(a) < s64(b)
	case il.OpCltUnI4:
		r = uint32(a) < uint32(b)
	}
	v := uint64(0)
	if r {
		v = 1
	}
	return f.ip + 1, f.push(v)
}

func (f *frame) branchCmp(in il.LLInsn) (int, error) {
	b, err := f.pop()
	if err != nil {
		return 0, err
	}
	a, err := f.pop()
	if err != nil {
		return 0, err
	}
	var taken bool
	switch in.Op {
	case il.OpBeqI4:
		taken = s32(a) == s32(b)
	case il.OpBgeI4:
		taken = s32(a) >= s32(b)
	case il.OpBgtI4:
		taken = s32(a) > s32(b)
	case il.OpBleI4:
		taken = s32(a) <= s32(b)
	case il.OpBltI4:
		taken = s32(a) < s32(b)
	case il.OpBneUnI4:
		taken = uint32(a) != uint32(b)
	case il.OpBeqI8:
		taken = s64(a) == s64(b)
	case il.OpBgeI8:
		taken = s64(a) >= s64(b)
	case il.OpBgtI8:
		taken = s64(a) > s64(b)
	case il.OpBleI8:
		taken = s64(a) <= s64(b)
	case il.OpBltI8:
		taken = s64(a) < s64(b)
	case il.OpBneUnI8:
		taken = a != b
	}
	if taken {
		return in.Targets[0], nil
	}
	return f.ip + 1, nil
}

func (f *frame) convNarrow(op il.Op) (int, error) {
	v, err := f.pop()
	if err != nil {
		return 0, err
	}
	var r int32
	switch op {
	case il.OpConvI1I4:
		r = int32(int8(v))
	case il.OpConvU1I4:
		r = int32(uint8(v))
	case il.OpConvI2I4:
		r = int32(int16(v))
	case il.OpConvU2I4:
		r = int32(uint16(v))
	}
	return f.ip + 1, f.push(u32(r))
}

func (f *frame) convOvf(op il.Op) (int, error) {
	v, err := f.pop()
	if err != nil {
		return 0, err
	}
	switch op {
	case il.OpConvOvfI4I8:
		x := s64(v)
		if x < -2147483648 || x > 2147483647 {
			return 0, rterr.New(rterr.Overflow, "conv.ovf.i4 overflow")
		}
		return f.ip + 1, f.push(u32(int32(x)))
	case il.OpConvOvfU4I8:
		x := v
		if x > 0xFFFFFFFF {
			return 0, rterr.New(rterr.Overflow, "conv.ovf.u4 overflow")
		}
		return f.ip + 1, f.push(uint64(uint32(x)))
	}
	return f.ip + 1, nil
}

// box allocates a heap Object copying the value-type operand's reduced
// value into its single data slot (clrhost §4.4 "box/unbox"); reference
// types and already-boxed values pass through unchanged (box is a no-op
// on a type that is not a value type).
func (f *frame) box(in il.LLInsn) (int, error) {
	c, err := f.resolveClass(in.IntOperand)
	if err != nil {
		return 0, err
	}
	v, err := f.pop()
	if err != nil {
		return 0, err
	}
	if !c.IsValueType() {
		return f.ip + 1, f.push(v)
	}
	o := newObject(c)
	storeReduce(o.Data, 0, valueTypeReduce(c), v)
	return f.ip + 1, f.pushObj(o)
}

func (f *frame) unbox(in il.LLInsn) (int, error) {
	c, err := f.resolveClass(in.IntOperand)
	if err != nil {
		return 0, err
	}
	o, err := f.popObj()
	if err != nil {
		return 0, err
	}
	if o == nil {
		return 0, rterr.New(rterr.NullReference, "unbox of null")
	}
	if o.Class != c {
		return 0, rterr.New(rterr.InvalidCast, "unbox: boxed %s is not %s", classNameOf(o.Class), classNameOf(c))
	}
	return f.ip + 1, f.push(uintptr64(unsafe.Pointer(&o.Data[0])))
}

func (f *frame) unboxAny(in il.LLInsn) (int, error) {
	c, err := f.resolveClass(in.IntOperand)
	if err != nil {
		return 0, err
	}
	o, err := f.popObj()
	if err != nil {
		return 0, err
	}
	if o == nil {
		return 0, rterr.New(rterr.NullReference, "unbox.any of null")
	}
	if o.Class != c {
		return 0, rterr.New(rterr.InvalidCast, "unbox.any: boxed %s is not %s", classNameOf(o.Class), classNameOf(c))
	}
	return f.ip + 1, f.push(loadReduce(o.Data, 0, valueTypeReduce(c)))
}

func uintptr64(p unsafe.Pointer) uint64 { return uint64(uintptr(p)) }

func valueTypeReduce(c *metadata.Class) metadata.ReduceType {
	if c.ByValSig != nil {
		return c.ByValSig.Reduce()
	}
	return metadata.ReduceI4
}

func classNameOf(c *metadata.Class) string {
	if c == nil {
		return "<null>"
	}
	if c.Namespace == "" {
		return c.Name
	}
	return c.Namespace + "." + c.Name
}

func (f *frame) castClass(in il.LLInsn) (int, error) {
	c, err := f.resolveClass(in.IntOperand)
	if err != nil {
		return 0, err
	}
	v, err := f.pop()
	if err != nil {
		return 0, err
	}
	o := uintToObj(v)
	if o != nil && !isInstanceOf(o.Class, c) {
		return 0, rterr.New(rterr.InvalidCast, "cannot cast %s to %s", classNameOf(o.Class), classNameOf(c))
	}
	return f.ip + 1, f.push(v)
}

func (f *frame) isInst(in il.LLInsn) (int, error) {
	c, err := f.resolveClass(in.IntOperand)
	if err != nil {
		return 0, err
	}
	v, err := f.pop()
	if err != nil {
		return 0, err
	}
	o := uintToObj(v)
	if o == nil || !isInstanceOf(o.Class, c) {
		return f.ip + 1, f.push(0)
	}
	return f.ip + 1, f.push(v)
}

// isInstanceOf walks actual's parent chain (clrhost §4.4 "hierarchy_depth
// O(1) chain check" — here a linear walk since Class.SuperTypes is a list
// rather than a depth-indexed array) and falls back to a
// linear interface scan for interface targets.
func isInstanceOf(actual, target *metadata.Class) bool {
	if actual == nil || target == nil {
		return false
	}
	if target.IsInterface() {
		for t := actual; t != nil; t = t.Parent {
			for _, i := range t.Interfaces {
				if i == target {
					return true
				}
			}
		}
		return false
	}
	for t := actual; t != nil; t = t.Parent {
		if t == target {
			return true
		}
	}
	return false
}
