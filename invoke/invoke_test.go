package invoke

import (
	"testing"

	"github.com/clrhost/clrhost/metadata"
)

func plainMethod(name string) *metadata.Method {
	return &metadata.Method{
		Parent: &metadata.Class{Namespace: "Sample", Name: "Program"},
		Name:   name,
	}
}

func TestPrepareInterpreterForOrdinaryILMethod(t *testing.T) {
	m := plainMethod("Add")
	Prepare(m)
	if m.InvokerType != metadata.InvokerInterpreter {
		t.Fatalf("got invoker type %v, want InvokerInterpreter", m.InvokerType)
	}
	if m.InvokeFn == nil {
		t.Fatal("InvokeFn not installed")
	}
}

func TestPrepareInternalCallFlagWithoutHandler(t *testing.T) {
	m := plainMethod("NoSuchInternalCall")
	m.IFlags = metadata.ImplInternalCall
	Prepare(m)
	if m.InvokerType != metadata.InvokerInternalCall {
		t.Fatalf("got invoker type %v, want InvokerInternalCall", m.InvokerType)
	}
	if err := m.InvokeFn(m, nil, nil); err == nil {
		t.Fatal("expected not-implemented stub to error")
	}
}

func TestPrepareRegisteredInternalCall(t *testing.T) {
	m := &metadata.Method{
		Parent: &metadata.Class{Namespace: "System", Name: "Object"},
		Name:   "GetHashCode",
	}
	Prepare(m)
	if m.InvokerType != metadata.InvokerInternalCall {
		t.Fatalf("got invoker type %v, want InvokerInternalCall", m.InvokerType)
	}
	ret := make([]uint64, 1)
	if err := m.InvokeFn(m, []uint64{0xdeadbeef}, ret); err != nil {
		t.Fatalf("GetHashCode invoke: %v", err)
	}
	if ret[0] != 0xdeadbeef {
		t.Fatalf("got hash %x, want %x", ret[0], 0xdeadbeef)
	}
}

func TestPrepareArrayAccessorThunk(t *testing.T) {
	elem := &metadata.Class{Namespace: "System", Name: "Int32"}
	mod := &metadata.Module{Pool: metadata.NewInternPool()}
	arr := mod.ArrayClassOf(elem, 1)
	var get *metadata.Method
	for _, cand := range arr.Methods {
		if cand.Name == "Get" {
			get = cand
		}
	}
	if get == nil {
		t.Fatal("synthesized array class has no Get method")
	}
	Prepare(get)
	if get.InvokerType != metadata.InvokerCustomIntrinsic {
		t.Fatalf("got invoker type %v, want InvokerCustomIntrinsic", get.InvokerType)
	}
}

func TestPrepareIsIdempotent(t *testing.T) {
	m := plainMethod("Foo")
	Prepare(m)
	first := m.InvokeFn
	Prepare(m)
	if m.InvokeFn == nil || first == nil {
		t.Fatal("InvokeFn missing")
	}
}

func TestVirtualInvokerWrapsValueTypeReceiverOnly(t *testing.T) {
	refClass := &metadata.Method{Parent: &metadata.Class{Namespace: "Sample", Name: "RefType"}, Name: "M"}
	Prepare(refClass)
	if refClass.VirtualInvokeFn == nil {
		t.Fatal("VirtualInvokeFn not installed")
	}

	valClass := &metadata.Method{
		Parent: &metadata.Class{Namespace: "Sample", Name: "ValType", ExtraFlags: metadata.ExtraValueType},
		Name:   "M",
	}
	Prepare(valClass)
	if valClass.VirtualInvokeFn == nil {
		t.Fatal("VirtualInvokeFn not installed for value type")
	}
}
