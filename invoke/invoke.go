// Package invoke is the invocation shim (clrhost §4.5): given a
// MethodInfo, it decides the invoker type and installs the non-virtual
// and virtual invoke function pointers (the stable method pointer that
// ldftn hands out is assigned by interp's method-pointer registry, not
// here). It is the one place that turns a Method's static
// metadata (code type, flags, declaring class) into the function the
// call/callvirt/newobj opcodes actually run.
//
// Grounded on leanclr's vm/shim.cpp Shim::get_invoker /
// Shim::get_virtual_invoker decision table; the interpreter invoker
// itself is interp.Invoke, wired in by Prepare rather than duplicated
// here.
package invoke

import (
	"github.com/clrhost/clrhost/interp"
	"github.com/clrhost/clrhost/metadata"
)

// init wires Prepare into metadata.PrepareInvoker so interp's call sites
// can classify an un-prepared Method without importing this package
// directly (interp must not import invoke: invoke already imports
// interp for the interpreter invoker and the Object accessors the
// array/internal-call thunks use).
func init() {
	metadata.PrepareInvoker = Prepare
}

// Prepare classifies m and installs its InvokerType, InvokeFn, and
// VirtualInvokeFn, per the decision table below (first match wins,
// mirroring shim.cpp's Shim::get_invoker):
//
//	array/szarray pseudo-method (.ctor/Get/Set/Address) -> CustomIntrinsic, array accessor thunk
//	IlOrManaged, registered internal call                -> InternalCall, registered handler
//	IlOrManaged, registered intrinsic                     -> Intrinsic, registered handler
//	IlOrManaged, InternalCall flag set, no handler         -> InternalCall, not-implemented stub
//	IlOrManaged, classified intrinsic, no handler          -> Intrinsic, not-implemented stub
//	IlOrManaged, PInvoke flag set                          -> PInvoke, resolved or stub
//	IlOrManaged, otherwise                                 -> Interpreter, interp.Invoke
//	Runtime, parent is a MulticastDelegate subclass        -> RuntimeImpl, delegate ctor/Invoke/BeginInvoke/EndInvoke
//	Runtime, else                                          -> RuntimeImpl, stub
//	Native/OPTIL                                           -> NotImplemented, stub
//
// Calling Prepare on a Method that already has an InvokeFn is a no-op:
// classification runs exactly once per method, lazily, the first time a
// call site actually reaches it (see interp/calls.go's dispatch).
func Prepare(m *metadata.Method) {
	if m.InvokeFn != nil {
		return
	}
	m.InvokerType, m.InvokeFn = classify(m)
	m.VirtualInvokeFn = virtualInvoker(m, m.InvokerType, m.InvokeFn)
}

func classify(m *metadata.Method) (metadata.InvokerType, metadata.InvokeFunc) {
	if m.Parent != nil && isArrayOrSZArray(m.Parent) {
		if fn, ok := arrayAccessorThunk(m); ok {
			return metadata.InvokerCustomIntrinsic, fn
		}
	}

	switch m.CodeType() {
	case metadata.CodeTypeIL:
		if fn, ok := lookupInternalCall(m); ok {
			return metadata.InvokerInternalCall, fn
		}
		if fn, ok := lookupIntrinsic(m); ok {
			return metadata.InvokerIntrinsic, fn
		}
		if m.IsInternalCall() {
			return metadata.InvokerInternalCall, notImplementedInvoker(m, "internal call")
		}
		if isClassifiedIntrinsic(m) {
			return metadata.InvokerIntrinsic, notImplementedInvoker(m, "intrinsic")
		}
		if m.IsPInvoke() {
			if fn, ok := lookupPInvoke(m); ok {
				return metadata.InvokerPInvoke, fn
			}
			return metadata.InvokerPInvoke, notImplementedInvoker(m, "P/Invoke")
		}
		return metadata.InvokerInterpreter, interp.Invoke

	case metadata.CodeTypeRuntime:
		if isMulticastDelegateSubclass(m.Parent) {
			if fn, ok := delegateInvoker(m); ok {
				return metadata.InvokerRuntimeImpl, fn
			}
		}
		return metadata.InvokerRuntimeImpl, notImplementedInvoker(m, "runtime impl")

	default: // Native, OPTIL
		return metadata.InvokerNotImplemented, notImplementedInvoker(m, "native/OPTIL")
	}
}

// virtualInvoker mirrors Shim::get_virtual_invoker: a value-type's
// Interpreter invoker gets wrapped to advance the boxed receiver past
// its header before interpreting; every other invoker serves virtual
// calls unchanged.
func virtualInvoker(m *metadata.Method, kind metadata.InvokerType, fn metadata.InvokeFunc) metadata.InvokeFunc {
	if m.Parent == nil || !m.Parent.IsValueType() {
		return fn
	}
	if kind != metadata.InvokerInterpreter {
		return fn
	}
	return virtualAdjustThunk(fn)
}

func isMulticastDelegateSubclass(c *metadata.Class) bool {
	for t := c; t != nil; t = t.Parent {
		if t.Namespace == "System" && t.Name == "MulticastDelegate" {
			return true
		}
	}
	return false
}

func isClassifiedIntrinsic(m *metadata.Method) bool {
	// The original classifies a method as an intrinsic candidate by a
	// well-known-method table keyed on its full name (Intrinsics::
	// is_intrinsic); this core has no such table populated, so nothing
	// is ever classified purely by name — only explicit registrations
	// (lookupIntrinsic) match. See DESIGN.md.
	return false
}
