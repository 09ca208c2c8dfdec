package interp

import (
	"testing"

	"github.com/clrhost/clrhost/il"
	"github.com/clrhost/clrhost/rterr"
)

// try { return 1; } finally { x = 2; } — the leave/finally chain must run
// the finally body before resuming at the try's natural exit, and the
// value computed before the leave must survive the trip through it.
func TestLeaveWithFinallyRunsBeforeResuming(t *testing.T) {
	m := int32Method("TryFinally", 0, []il.LLInsn{
		{Op: il.OpLdcI4, IntOperand: 1},     // 0: push 1 (the would-be return value)
		{Op: il.OpStLocI4, IntOperand: 0},   // 1: locals[0] = 1
		{Op: il.OpLeaveTryWithFinally, Targets: []int{4, 7}}, // 2: leave -> run finally at 4, resume at 7
		{Op: il.OpNop},                      // 3: unreachable
		{Op: il.OpLdcI4, IntOperand: 2},     // 4: push 2
		{Op: il.OpStLocI4, IntOperand: 1},   // 5: locals[1] = 2 (the finally's side effect)
		{Op: il.OpEndFinally},               // 6: resume the pending leave chain
		{Op: il.OpLdLocI4, IntOperand: 0},   // 7: push locals[0]
		{Op: il.OpLdcI4, IntOperand: 16},    // 8
		{Op: il.OpShlI4},                    // 9: locals[0] << 16
		{Op: il.OpLdLocI4, IntOperand: 1},   // 10: push locals[1]
		{Op: il.OpOrI4},                     // 11: combine so the finally's write is observable in the result
		{Op: il.OpRetI4},                    // 12
	})
	m.InterpBody.(*il.LowMethod).NumLocals = 2

	ret := make([]uint64, 1)
	if err := Invoke(m, nil, ret); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	want := uint64(1)<<16 | 2
	if ret[0] != want {
		t.Fatalf("got %#x, want %#x (try value %d, finally side effect %d)", ret[0], want, ret[0]>>16, ret[0]&0xffff)
	}
}

// A filter clause that accepts the exception (endfilter pushes nonzero)
// must run its handler body.
func TestFilterClauseAcceptsRunsHandler(t *testing.T) {
	m := int32Method("FilterAccepts", 0, []il.LLInsn{
		{Op: il.OpLdcI4, IntOperand: 1}, // 0
		{Op: il.OpLdcI4, IntOperand: 0}, // 1
		{Op: il.OpDivI4},                // 2: divide by zero, propagates
		{Op: il.OpPop},                  // 3: unreachable
		{Op: il.OpLdcI4, IntOperand: 1}, // 4: filter start — accept
		{Op: il.OpEndFilter},            // 5
		{Op: il.OpPop},                  // 6: handler start — discard the exception object
		{Op: il.OpLdcI4, IntOperand: 42},// 7
		{Op: il.OpRetI4},                // 8
	})
	m.InterpBody.(*il.LowMethod).NumLocals = 0
	m.InterpBody.(*il.LowMethod).Clauses = []il.LLExceptionClause{
		{Flags: 0x1, TryStart: 0, TryEnd: 3, HandlerStart: 6, FilterStart: 4},
	}

	ret := make([]uint64, 1)
	if err := Invoke(m, nil, ret); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if ret[0] != 42 {
		t.Fatalf("got %d, want 42", ret[0])
	}
}

// A filter clause that rejects the exception (endfilter pushes zero) must
// not run its handler; with no other clause to catch it, the original
// error propagates out of Invoke.
func TestFilterClauseRejectsPropagates(t *testing.T) {
	m := int32Method("FilterRejects", 0, []il.LLInsn{
		{Op: il.OpLdcI4, IntOperand: 1}, // 0
		{Op: il.OpLdcI4, IntOperand: 0}, // 1
		{Op: il.OpDivI4},                // 2: divide by zero, propagates
		{Op: il.OpPop},                  // 3: unreachable
		{Op: il.OpLdcI4, IntOperand: 0}, // 4: filter start — reject
		{Op: il.OpEndFilter},            // 5
		{Op: il.OpLdcI4, IntOperand: 42},// 6: handler start — would be unreachable
		{Op: il.OpRetI4},                // 7
	})
	m.InterpBody.(*il.LowMethod).NumLocals = 0
	m.InterpBody.(*il.LowMethod).Clauses = []il.LLExceptionClause{
		{Flags: 0x1, TryStart: 0, TryEnd: 3, HandlerStart: 6, FilterStart: 4},
	}

	ret := make([]uint64, 1)
	err := Invoke(m, nil, ret)
	if err == nil {
		t.Fatal("expected the divide-by-zero error to propagate past the rejecting filter")
	}
	if e, ok := err.(*rterr.Error); !ok || e.Kind != rterr.DivideByZero {
		t.Fatalf("got %v, want a DivideByZero rterr.Error", err)
	}
}

// A catch-all clause (ClassToken 0) must match regardless of the runtime
// error's kind, and the handler observes a non-nil boxed exception Object
// even though the frame has no module to resolve a BCL Class from.
func TestCatchAllClauseMatchesAnyKind(t *testing.T) {
	m := int32Method("CatchAll", 0, []il.LLInsn{
		{Op: il.OpLdcI4, IntOperand: 1}, // 0
		{Op: il.OpLdcI4, IntOperand: 0}, // 1
		{Op: il.OpDivI4},                // 2: divide by zero, propagates
		{Op: il.OpPop},                  // 3: unreachable
		{Op: il.OpPop},                  // 4: handler start — discard the exception object
		{Op: il.OpLdcI4, IntOperand: 7}, // 5
		{Op: il.OpRetI4},                // 6
	})
	m.InterpBody.(*il.LowMethod).Clauses = []il.LLExceptionClause{
		{Flags: 0x0, TryStart: 0, TryEnd: 3, HandlerStart: 4, ClassToken: 0},
	}

	ret := make([]uint64, 1)
	if err := Invoke(m, nil, ret); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if ret[0] != 7 {
		t.Fatalf("got %d, want 7", ret[0])
	}
}

// exceptionClassOf/exceptionObjectOf back the findHandler boundary between
// Go errors and managed Objects: a thrown managed object keeps its own
// Class, and a runtime-raised rterr.Error with no module to resolve a BCL
// stub Class from still yields a usable (Class-less) boxed Object rather
// than failing the unwind.
func TestExceptionClassAndObjectHelpers(t *testing.T) {
	obj := &Object{Data: []byte("boom")}
	thrown := &thrownException{obj: obj}
	if got := exceptionClassOf(nil, thrown); got != nil {
		t.Fatalf("thrownException with no Class: got %v, want nil", got)
	}
	if got := exceptionObjectOf(nil, thrown); got != obj {
		t.Fatalf("exceptionObjectOf(thrownException) = %v, want %v", got, obj)
	}

	rerr := rterr.New(rterr.DivideByZero, "div by zero")
	f := &frame{}
	if got := exceptionClassOf(f, rerr); got != nil {
		t.Fatalf("rterr.Error with nil module: got %v, want nil", got)
	}
	wrapped := exceptionObjectOf(f, rerr)
	if wrapped == nil || wrapped.Class != nil {
		t.Fatalf("exceptionObjectOf(rterr.Error) with nil module = %v, want non-nil Object with nil Class", wrapped)
	}
}
