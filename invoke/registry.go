package invoke

import (
	"sync"

	"github.com/clrhost/clrhost/interp"
	"github.com/clrhost/clrhost/metadata"
	"github.com/clrhost/clrhost/rterr"
)

// Registration keys are "Namespace.Class::Method", matching the
// original's InternalCalls::register_internal_call naming (clrhost
// §4.5 "registered internal call"). Lookups build only this bare key
// from a method; no parameter-qualified key
// ("Namespace.Class::Method(ParamType,...)") is tried, so all overloads
// of one method (String's many constructors, say) share one handler.
var (
	internalCallMu sync.RWMutex
	internalCalls  = map[string]metadata.InvokeFunc{}

	intrinsicMu sync.RWMutex
	intrinsics  = map[string]metadata.InvokeFunc{}

	pinvokeMu sync.RWMutex
	pinvokes  = map[string]metadata.InvokeFunc{}
)

// RegisterInternalCall adds (or replaces) the handler for a
// Namespace.Class::Method internal call.
func RegisterInternalCall(name string, fn metadata.InvokeFunc) {
	internalCallMu.Lock()
	defer internalCallMu.Unlock()
	internalCalls[name] = fn
}

// RegisterIntrinsic adds (or replaces) the handler for a classified
// intrinsic method.
func RegisterIntrinsic(name string, fn metadata.InvokeFunc) {
	intrinsicMu.Lock()
	defer intrinsicMu.Unlock()
	intrinsics[name] = fn
}

// RegisterPInvoke adds (or replaces) the handler for a P/Invoke method,
// keyed by its managed Namespace.Class::Method name like the other
// registries, not by its native entry point name.
func RegisterPInvoke(name string, fn metadata.InvokeFunc) {
	pinvokeMu.Lock()
	defer pinvokeMu.Unlock()
	pinvokes[name] = fn
}

func methodKey(m *metadata.Method) string {
	if m.Parent == nil {
		return m.Name
	}
	if m.Parent.Namespace == "" {
		return m.Parent.Name + "::" + m.Name
	}
	return m.Parent.Namespace + "." + m.Parent.Name + "::" + m.Name
}

func lookupInternalCall(m *metadata.Method) (metadata.InvokeFunc, bool) {
	internalCallMu.RLock()
	defer internalCallMu.RUnlock()
	fn, ok := internalCalls[methodKey(m)]
	return fn, ok
}

func lookupIntrinsic(m *metadata.Method) (metadata.InvokeFunc, bool) {
	intrinsicMu.RLock()
	defer intrinsicMu.RUnlock()
	fn, ok := intrinsics[methodKey(m)]
	return fn, ok
}

func lookupPInvoke(m *metadata.Method) (metadata.InvokeFunc, bool) {
	pinvokeMu.RLock()
	defer pinvokeMu.RUnlock()
	fn, ok := pinvokes[methodKey(m)]
	return fn, ok
}

func notImplementedInvoker(m *metadata.Method, kind string) metadata.InvokeFunc {
	name := methodKey(m)
	return func(method *metadata.Method, args []uint64, ret []uint64) error {
		return rterr.New(rterr.NotImplemented, "%s invoker not implemented for %s", kind, name)
	}
}

// init registers the small set of BCL internal calls this core actually
// needs to run arithmetic/object-model test programs end to end,
// grounded on leanclr's icalls/system_string.cpp and
// icalls/system_runtime_runtimeimports.cpp. A real BCL has hundreds of
// these; only the handful load/run/test programs exercise are ported
// (see DESIGN.md).
func init() {
	RegisterInternalCall("System.String::FastAllocateString", fastAllocateString)
	RegisterInternalCall("System.Runtime.RuntimeImports::ZeroMemory", zeroMemory)
	RegisterInternalCall("System.Runtime.RuntimeImports::Memmove", memmove)
	RegisterInternalCall("System.Object::GetHashCode", objectGetHashCode)
	RegisterInternalCall("System.Object::Equals", objectEquals)
	RegisterInternalCall("System.Array::GetLength", arrayGetLength)
}

// fastAllocateString mirrors SystemString::fast_allocate_string: allocate
// a String object sized for length UTF-16 code units, left zeroed for
// the managed caller to fill in-place.
func fastAllocateString(m *metadata.Method, args []uint64, ret []uint64) error {
	if len(args) < 1 {
		return rterr.New(rterr.ExecutionEngine, "FastAllocateString: expected (length) arg")
	}
	n := int32(args[0])
	if n < 0 {
		return rterr.New(rterr.ExecutionEngine, "FastAllocateString: negative length")
	}
	o := interp.NewObject(m.Parent)
	o.Data = make([]byte, n*2)
	if len(ret) > 0 {
		ret[0] = interp.HandleFromObject(o)
	}
	return nil
}

// zeroMemory mirrors SystemRuntimeRuntimeImports::zero_memory(ref byte,
// nuint size): this core has no raw pointer arithmetic over Data
// buffers outside an Object, so a bare ref-byte argument (not backed by
// an addressable Object) can't be serviced generically; callers that
// zero a boxed value type's own storage go through initobj instead.
func zeroMemory(m *metadata.Method, args []uint64, ret []uint64) error {
	if len(args) < 2 {
		return rterr.New(rterr.ExecutionEngine, "ZeroMemory: expected (ptr, size) args")
	}
	o := interp.ObjectFromHandle(args[0])
	if o == nil {
		return rterr.New(rterr.NullReference, "ZeroMemory: null destination")
	}
	n := int(args[1])
	if n > len(o.Data) {
		n = len(o.Data)
	}
	for i := 0; i < n; i++ {
		o.Data[i] = 0
	}
	return nil
}

func memmove(m *metadata.Method, args []uint64, ret []uint64) error {
	if len(args) < 3 {
		return rterr.New(rterr.ExecutionEngine, "Memmove: expected (dst, src, size) args")
	}
	dst := interp.ObjectFromHandle(args[0])
	src := interp.ObjectFromHandle(args[1])
	if dst == nil || src == nil {
		return rterr.New(rterr.NullReference, "Memmove: null buffer")
	}
	n := int(args[2])
	if n > len(dst.Data) {
		n = len(dst.Data)
	}
	if n > len(src.Data) {
		n = len(src.Data)
	}
	copy(dst.Data[:n], src.Data[:n])
	return nil
}

func objectGetHashCode(m *metadata.Method, args []uint64, ret []uint64) error {
	if len(args) < 1 {
		return rterr.New(rterr.ExecutionEngine, "Object.GetHashCode: missing receiver")
	}
	if len(ret) > 0 {
		ret[0] = uint64(uint32(args[0]))
	}
	return nil
}

func objectEquals(m *metadata.Method, args []uint64, ret []uint64) error {
	if len(args) < 2 {
		return rterr.New(rterr.ExecutionEngine, "Object.Equals: expected (this, other) args")
	}
	v := uint64(0)
	if args[0] == args[1] {
		v = 1
	}
	if len(ret) > 0 {
		ret[0] = v
	}
	return nil
}

func arrayGetLength(m *metadata.Method, args []uint64, ret []uint64) error {
	if len(args) < 1 {
		return rterr.New(rterr.ExecutionEngine, "Array.GetLength: missing receiver")
	}
	o := interp.ObjectFromHandle(args[0])
	if o == nil {
		return rterr.New(rterr.NullReference, "Array.GetLength on null array")
	}
	if len(ret) > 0 {
		ret[0] = uint64(len(o.Elems))
	}
	return nil
}
