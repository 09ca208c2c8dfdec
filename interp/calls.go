package interp

import (
	"github.com/clrhost/clrhost/il"
	"github.com/clrhost/clrhost/metadata"
	"github.com/clrhost/clrhost/rterr"
)

// call implements call/callvirt/calli's non-pointer cousins (clrhost §4.5
// "invocation shim"). IL lowering emits only OpCallInterp/OpCallVirtInterp
// regardless of the callee's eventual invoker kind (il/ll.go never
// selects the other Op*Call variants; see DESIGN.md) — routing to
// internal-call/intrinsic/P-invoke/runtime-implemented happens here, at
// call time, through Method.InvokeFn, which the invoke package installs
// lazily the first time a method is actually reached. A method the
// invoke package has not yet touched (InvokeFn == nil) runs by direct
// recursive interpretation, since an IL method with a resolvable body
// needs no shim to be interpreted.
func (f *frame) call(in il.LLInsn) (int, error) {
	m, err := f.resolveMethod(in.IntOperand)
	if err != nil {
		return 0, err
	}

	target := m
	if in.Op == il.OpCallVirtInterp && m.IsVirtual() {
		arity := m.ParamCountIncludingThis()
		if len(f.stack) < arity {
			return 0, rterr.New(rterr.ExecutionEngine, "eval stack underflow resolving callvirt receiver for %s", m.Name)
		}
		recvSlot := f.stack[len(f.stack)-arity]
		recv := uintToObj(recvSlot)
		if recv == nil {
			return 0, rterr.New(rterr.NullReference, "callvirt on null receiver for %s", m.Name)
		}
		if dispatched, ok := virtualTarget(recv.Class, m); ok {
			target = dispatched
		}
	}

	args, err := f.popArgs(m.ParamCountIncludingThis())
	if err != nil {
		return 0, err
	}

	ret, err := f.dispatch(target, args)
	if err != nil {
		return 0, err
	}
	if target.ReturnSig == nil || target.ReturnSig.Reduce() == metadata.ReduceVoid {
		return f.ip + 1, nil
	}
	if len(ret) == 0 {
		return 0, rterr.New(rterr.ExecutionEngine, "%s returned no value for a non-void signature", target.Name)
	}
	return f.ip + 1, f.push(ret[0])
}

// calliInterp resolves a function-pointer call: the callee pointer sits on
// top of the stack, pushed by an earlier ldftn/ldvirtftn, followed by the
// standard argument marshaling of the signature that calli's token names.
// calli's token names a standalone MethodRefSig rather than anything
// ResolveToken handles (clrhost §4.4); the call signature itself is not
// separately modeled here since the resolved function pointer already
// carries the callee Method and its own declared signature.
func (f *frame) calli(in il.LLInsn) (int, error) {
	ptr, err := f.pop()
	if err != nil {
		return 0, err
	}
	m := methodFromPtr(ptr)
	if m == nil {
		return 0, rterr.New(rterr.ExecutionEngine, "calli: unresolved function pointer")
	}
	args, err := f.popArgs(m.ParamCountIncludingThis())
	if err != nil {
		return 0, err
	}
	ret, err := f.dispatch(m, args)
	if err != nil {
		return 0, err
	}
	if m.ReturnSig == nil || m.ReturnSig.Reduce() == metadata.ReduceVoid {
		return f.ip + 1, nil
	}
	return f.ip + 1, f.push(ret[0])
}

func (f *frame) popArgs(n int) ([]uint64, error) {
	if len(f.stack) < n {
		return nil, rterr.New(rterr.ExecutionEngine, "eval stack underflow popping %d call arguments", n)
	}
	args := make([]uint64, n)
	copy(args, f.stack[len(f.stack)-n:])
	f.stack = f.stack[:len(f.stack)-n]
	return args, nil
}

// dispatch runs target via its installed invoker, or by direct recursive
// interpretation if no invoke-package shim has claimed it yet.
func (f *frame) dispatch(target *metadata.Method, args []uint64) ([]uint64, error) {
	if target.InvokeFn == nil && metadata.PrepareInvoker != nil {
		metadata.PrepareInvoker(target)
	}
	ret := make([]uint64, 1)
	if target.InvokeFn != nil {
		if err := target.InvokeFn(target, args, ret); err != nil {
			return nil, err
		}
		return ret, nil
	}
	if err := f.interp.invokeDepth(target, args, ret, f.depth+1); err != nil {
		return nil, err
	}
	return ret, nil
}

// virtualTarget resolves declared's vtable slot against actual's own
// table (clrhost §3 "Vtable and interface dispatch").
func virtualTarget(actual *metadata.Class, declared *metadata.Method) (*metadata.Method, bool) {
	if actual == nil || int(declared.Slot) >= len(actual.VTable) {
		return nil, false
	}
	slot := actual.VTable[declared.Slot]
	if slot.MethodImpl == nil {
		return nil, false
	}
	return slot.MethodImpl, true
}

// newObj implements newobj across all four invoker-split variants
// (clrhost §4.4 "newobj"): il/ll.go always emits OpNewObjInterp, so
// NewValueTypeInterp/InternalCall/Intrinsic are
// reached only once the invoke package starts re-tagging the resolved
// call site by the constructor's own invoker type; all four share this
// same allocate-then-run-ctor shape.
func (f *frame) newObj(in il.LLInsn) (int, error) {
	ctor, err := f.resolveMethod(in.IntOperand)
	if err != nil {
		return 0, err
	}
	c := ctor.Parent
	ctorArgN := ctor.ParamCountIncludingThis() - 1
	ctorArgs, err := f.popArgs(ctorArgN)
	if err != nil {
		return 0, err
	}

	o := f.retain(newObject(c))
	args := append([]uint64{objToUint(o)}, ctorArgs...)
	if _, err := f.dispatch(ctor, args); err != nil {
		return 0, err
	}

	if c.IsValueType() {
		return f.ip + 1, f.push(loadReduce(o.Data, 0, valueTypeReduce(c)))
	}
	return f.ip + 1, f.push(objToUint(o))
}

func (f *frame) newArr(in il.LLInsn) (int, error) {
	elem, err := f.resolveClass(in.IntOperand)
	if err != nil {
		return 0, err
	}
	n, err := f.pop()
	if err != nil {
		return 0, err
	}
	if int32(n) < 0 {
		return 0, rterr.New(rterr.ExecutionEngine, "newarr: negative length")
	}
	arrClass := f.module.ArrayClassOf(elem, 1)
	o := newArrayObject(arrClass, elem, int(n))
	return f.ip + 1, f.pushObj(o)
}

func (f *frame) ldelem(in il.LLInsn) (int, error) {
	idx, err := f.pop()
	if err != nil {
		return 0, err
	}
	o, err := f.popObj()
	if err != nil {
		return 0, err
	}
	if o == nil {
		return 0, rterr.New(rterr.NullReference, "ldelem on null array")
	}
	if int32(idx) < 0 || int(idx) >= len(o.Elems) {
		return 0, rterr.New(rterr.IndexOutOfRange, "ldelem index %d out of range (len %d)", int32(idx), len(o.Elems))
	}
	v := o.Elems[idx]
	switch in.Op {
	case il.OpLdelemI1:
		v = u32(int32(int8(v)))
	case il.OpLdelemU1:
		v = uint64(uint8(v))
	case il.OpLdelemI2:
		v = u32(int32(int16(v)))
	case il.OpLdelemU2:
		v = uint64(uint16(v))
	case il.OpLdelemI4:
		v = u32(int32(v))
	}
	return f.ip + 1, f.push(v)
}

func (f *frame) stelem(in il.LLInsn) (int, error) {
	v, err := f.pop()
	if err != nil {
		return 0, err
	}
	idx, err := f.pop()
	if err != nil {
		return 0, err
	}
	o, err := f.popObj()
	if err != nil {
		return 0, err
	}
	if o == nil {
		return 0, rterr.New(rterr.NullReference, "stelem on null array")
	}
	if int32(idx) < 0 || int(idx) >= len(o.Elems) {
		return 0, rterr.New(rterr.IndexOutOfRange, "stelem index %d out of range (len %d)", int32(idx), len(o.Elems))
	}
	o.Elems[idx] = v
	return f.ip + 1, nil
}
