package il

import (
	"testing"

	"github.com/clrhost/clrhost/image"
	"github.com/clrhost/clrhost/metadata"
)

// try { ldc.i4.0; stloc.0; leave.s L; } finally { ldc.i4.8; stloc.3; endfinally; }
// L: ldloc.0; ret
//
// A leave out of a try guarded by a finally must lower to
// OpLeaveTryWithFinally carrying the resolved [finallyHandler, target]
// chain (clrhost §4.3), not a bare unconditional jump to the leave's
// target.
func TestLowerLeaveWithFinallyEmitsPendingChain(t *testing.T) {
	method := &metadata.Method{
		Name:      "TryFinally",
		Flags:     metadata.MethodStatic,
		ReturnSig: &metadata.TypeSignature{Element: metadata.ElementI4},
	}
	code := []byte{
		0x16,       // 0: ldc.i4.0
		0x0A,       // 1: stloc.0
		0xDE, 0x03, // 2: leave.s +3 -> target offset 7
		0x1E,       // 4: ldc.i4.8 (finally handler start)
		0x0D,       // 5: stloc.3
		0xDC,       // 6: endfinally
		0x06,       // 7: ldloc.0 (leave target L)
		0x2A,       // 8: ret
	}
	body := &image.MethodBody{
		MaxStack: 8,
		Code:     code,
		ExceptionClauses: []image.ExceptionClause{
			{Flags: 2, TryOffset: 0, TryLength: 4, HandlerOffset: 4, HandlerLength: 3},
		},
	}

	lm, err := Lower(method, body)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}

	leaveIdx := -1
	for i, in := range lm.Insns {
		if in.Op == OpLeaveTryWithFinally {
			leaveIdx = i
		}
	}
	if leaveIdx == -1 {
		t.Fatal("no leave-with-finally instruction emitted")
	}
	chain := lm.Insns[leaveIdx].Targets
	if len(chain) != 2 {
		t.Fatalf("got chain %v, want [finallyHandler, target]", chain)
	}
	handlerIdx, targetIdx := chain[0], chain[1]
	if lm.Insns[handlerIdx].Op != OpLdcI4 || lm.Insns[handlerIdx].IntOperand != 8 {
		t.Errorf("chain[0] = insn %d (%s, %d), want the finally handler's ldc.i4 8", handlerIdx, lm.Insns[handlerIdx].Op, lm.Insns[handlerIdx].IntOperand)
	}
	if lm.Insns[targetIdx].Op != OpLdLocAny {
		t.Errorf("chain[1] = insn %d (%s), want the resumed ldloc at L", targetIdx, lm.Insns[targetIdx].Op)
	}

	endFinallyIdx := -1
	for i, in := range lm.Insns {
		if in.Op == OpEndFinally {
			endFinallyIdx = i
		}
	}
	if endFinallyIdx == -1 {
		t.Fatal("no endfinally instruction emitted")
	}
	if endFinallyIdx <= handlerIdx {
		t.Errorf("endfinally at %d should follow the finally handler's body starting at %d", endFinallyIdx, handlerIdx)
	}
}

// A leave with no enclosing finally lowers to an unconditional jump, not
// a pending-leave chain.
func TestLowerLeaveWithoutFinallyIsPlainJump(t *testing.T) {
	method := &metadata.Method{
		Name:      "PlainLeave",
		Flags:     metadata.MethodStatic,
		ReturnSig: &metadata.TypeSignature{Element: metadata.ElementI4},
	}
	code := []byte{
		0x16,       // 0: ldc.i4.0
		0xDE, 0x01, // 1: leave.s +1 -> target offset 4
		0x00,       // 3: nop (unreachable)
		0x2A,       // 4: ret
	}
	body := &image.MethodBody{MaxStack: 8, Code: code}

	lm, err := Lower(method, body)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}

	var leaveIdx = -1
	for i, in := range lm.Insns {
		if in.Op == OpLeaveCatchWithoutFinally {
			leaveIdx = i
		}
	}
	if leaveIdx == -1 {
		t.Fatal("no plain leave instruction emitted")
	}
	if chain := lm.Insns[leaveIdx].Targets; len(chain) != 1 {
		t.Fatalf("got chain %v, want a single jump target", chain)
	}
}
