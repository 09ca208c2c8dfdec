package invoke

import (
	"unsafe"

	"github.com/clrhost/clrhost/interp"
	"github.com/clrhost/clrhost/metadata"
	"github.com/clrhost/clrhost/rterr"
)

// virtualAdjustThunk mirrors fn_interpreter_virtual_adjust_thunk_invoker:
// a virtual call against a boxed value-type receiver must unbox it (skip
// the object header) before the interpreter sees args[0], since the
// declaring method's own body expects an unboxed `this` (clrhost §4.5
// "virtual adjust thunk", invariant "For all boxed value-type
// receivers, the address passed to the virtual invoker equals &boxed +
// sizeof(object_header)"). This core has no separate header blob
// (Object.Class sits outside Data), so "skip the header" reduces to
// handing the callee a pointer to Data[0] instead of the Object handle
// itself.
func virtualAdjustThunk(fn metadata.InvokeFunc) metadata.InvokeFunc {
	return func(method *metadata.Method, args []uint64, ret []uint64) error {
		if len(args) == 0 {
			return rterr.New(rterr.ExecutionEngine, "virtual adjust thunk: no receiver argument")
		}
		o := interp.ObjectFromHandle(args[0])
		if o == nil {
			return rterr.New(rterr.NullReference, "virtual call on null boxed receiver")
		}
		if len(o.Data) == 0 {
			return rterr.New(rterr.ExecutionEngine, "virtual adjust thunk: boxed receiver has no storage")
		}
		adjusted := make([]uint64, len(args))
		copy(adjusted, args)
		adjusted[0] = uint64(uintptr(unsafe.Pointer(&o.Data[0])))
		return fn(method, adjusted, ret)
	}
}
