package invoke

import (
	"github.com/clrhost/clrhost/metadata"
	"github.com/clrhost/clrhost/rterr"
)

// delegateInvoker mirrors shim.cpp's RuntimeImpl branch for
// MulticastDelegate subclasses: the four compiler-synthesized members
// (.ctor/Invoke/BeginInvoke/EndInvoke) get fixed native implementations
// rather than an interpreted body, since a delegate type's TypeDef
// declares these with CodeTypeRuntime and no IL (clrhost §4.5).
func delegateInvoker(m *metadata.Method) (metadata.InvokeFunc, bool) {
	switch m.Name {
	case ".ctor":
		return delegateCtor, true
	case "Invoke":
		return delegateInvoke, true
	case "BeginInvoke", "EndInvoke":
		// async delegate invocation has no thread pool to dispatch onto
		// in this core.
		return notImplementedInvoker(m, "runtime impl"), true
	default:
		return nil, false
	}
}

// delegateCtor checks for the (this, target, method) arguments of the
// compiler-synthesized MulticastDelegate(object target, IntPtr method)
// constructor every delegate type declares (clrhost §4.5 "delegate
// ctor") and then returns NotImplemented; it stores nothing into the
// delegate instance.
func delegateCtor(m *metadata.Method, args []uint64, ret []uint64) error {
	if len(args) < 3 {
		return rterr.New(rterr.ExecutionEngine, "delegate .ctor: expected (this, target, method) args")
	}
	self := args[0]
	_ = self
	return rterr.New(rterr.NotImplemented, "delegate construction needs a synthesized two-slot layout not yet modeled (see DESIGN.md)")
}

func delegateInvoke(m *metadata.Method, args []uint64, ret []uint64) error {
	return rterr.New(rterr.NotImplemented, "delegate Invoke: no synthesized delegate layout to dispatch through (see DESIGN.md)")
}
