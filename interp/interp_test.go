package interp

import (
	"testing"

	"github.com/clrhost/clrhost/il"
	"github.com/clrhost/clrhost/metadata"
)

// lowMethod lets tests hand-assemble an il.LowMethod and attach it to a
// Method's InterpBody directly, bypassing IL decoding/lowering (which
// needs a real image.MethodBody) so the interpreter's dispatch loop can
// be exercised on its own.
func lowMethod(m *metadata.Method, insns []il.LLInsn, numLocals uint16) {
	m.InterpBody = &il.LowMethod{Insns: insns, NumLocals: numLocals}
}

func int32Method(name string, argc int, insns []il.LLInsn) *metadata.Method {
	m := &metadata.Method{
		Name:      name,
		Parent:    &metadata.Class{Namespace: "Test", Name: "Program"},
		Flags:     metadata.MethodStatic,
		ReturnSig: &metadata.TypeSignature{Element: metadata.ElementI4},
	}
	for i := 0; i < argc; i++ {
		m.Params = append(m.Params, &metadata.TypeSignature{Element: metadata.ElementI4})
	}
	lowMethod(m, insns, 0)
	return m
}

func TestInvokeAddsTwoArgs(t *testing.T) {
	m := int32Method("Add", 2, []il.LLInsn{
		{Op: il.OpLdArgI4, IntOperand: 0},
		{Op: il.OpLdArgI4, IntOperand: 1},
		{Op: il.OpAddI4},
		{Op: il.OpRetI4},
	})

	ret := make([]uint64, 1)
	if err := Invoke(m, []uint64{3, 4}, ret); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if ret[0] != 7 {
		t.Fatalf("got %d, want 7", ret[0])
	}
}

func TestInvokeLocalsRoundTrip(t *testing.T) {
	m := int32Method("Double", 1, []il.LLInsn{
		{Op: il.OpLdArgI4, IntOperand: 0},
		{Op: il.OpStLocI4, IntOperand: 0},
		{Op: il.OpLdLocI4, IntOperand: 0},
		{Op: il.OpLdLocI4, IntOperand: 0},
		{Op: il.OpAddI4},
		{Op: il.OpRetI4},
	})
	m.InterpBody.(*il.LowMethod).NumLocals = 1

	ret := make([]uint64, 1)
	if err := Invoke(m, []uint64{5}, ret); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if ret[0] != 10 {
		t.Fatalf("got %d, want 10", ret[0])
	}
}

func TestInvokeBranch(t *testing.T) {
	// if (arg0 != 0) return 1; else return 0;
	m := int32Method("IsNonZero", 1, []il.LLInsn{
		{Op: il.OpLdArgI4, IntOperand: 0},
		{Op: il.OpBrTrueI4, Targets: []int{4}},
		{Op: il.OpLdcI4, IntOperand: 0},
		{Op: il.OpRetI4},
		{Op: il.OpLdcI4, IntOperand: 1},
		{Op: il.OpRetI4},
	})

	for _, tt := range []struct {
		arg  uint64
		want uint64
	}{
		{0, 0},
		{42, 1},
	} {
		ret := make([]uint64, 1)
		if err := Invoke(m, []uint64{tt.arg}, ret); err != nil {
			t.Fatalf("Invoke(%d): %v", tt.arg, err)
		}
		if ret[0] != tt.want {
			t.Fatalf("Invoke(%d): got %d, want %d", tt.arg, ret[0], tt.want)
		}
	}
}

func TestInvokeRecursiveCall(t *testing.T) {
	// Outer(x) passes its argument on to Inner(x), which returns it: this
	// exercises frame nesting through call/dispatch, with the callee
	// resolved through ResolvedData.
	inner := int32Method("Inner", 1, []il.LLInsn{
		{Op: il.OpLdArgI4, IntOperand: 0},
		{Op: il.OpRetI4},
	})
	outer := int32Method("Outer", 1, []il.LLInsn{
		{Op: il.OpLdArgI4, IntOperand: 0},
		{Op: il.OpCallInterp, IntOperand: 0},
		{Op: il.OpRetI4},
	})
	outer.InterpBody.(*il.LowMethod).ResolvedData = []interface{}{inner}

	ret := make([]uint64, 1)
	if err := Invoke(outer, []uint64{9}, ret); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if ret[0] != 9 {
		t.Fatalf("got %d, want 9", ret[0])
	}
}

func TestInvokeStackUnderflowErrors(t *testing.T) {
	m := int32Method("BadPop", 0, []il.LLInsn{
		{Op: il.OpAddI4},
		{Op: il.OpRetI4},
	})
	ret := make([]uint64, 1)
	if err := Invoke(m, nil, ret); err == nil {
		t.Fatal("expected an eval-stack underflow error")
	}
}

func TestMaxCallDepthIsEnforced(t *testing.T) {
	m := int32Method("Loop", 1, []il.LLInsn{
		{Op: il.OpLdArgI4, IntOperand: 0},
		{Op: il.OpCallInterp, IntOperand: 0},
		{Op: il.OpRetI4},
	})
	m.InterpBody.(*il.LowMethod).ResolvedData = []interface{}{m}

	in := New(Options{MaxCallDepth: 4})
	ret := make([]uint64, 1)
	err := in.Invoke(m, []uint64{1}, ret)
	if err == nil {
		t.Fatal("expected stack overflow from unbounded self-recursion")
	}
}
