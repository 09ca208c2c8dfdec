package il

import (
	"testing"

	"github.com/clrhost/clrhost/image"
	"github.com/clrhost/clrhost/metadata"
)

func TestLowerSimpleAdd(t *testing.T) {
	method := &metadata.Method{
		Name:      "Add",
		Flags:     metadata.MethodStatic,
		ReturnSig: &metadata.TypeSignature{Element: metadata.ElementI4},
		Params: []*metadata.TypeSignature{
			{Element: metadata.ElementI4},
			{Element: metadata.ElementI4},
		},
	}
	body := &image.MethodBody{
		MaxStack: 8,
		Code:     []byte{0x02, 0x03, 0x58, 0x2A}, // ldarg.0; ldarg.1; add; ret
	}

	lm, err := Lower(method, body)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	want := []Op{OpLdArgAny, OpLdArgAny, OpAddI4, OpRetI4}
	if len(lm.Insns) != len(want) {
		t.Fatalf("got %d LL instructions, want %d", len(lm.Insns), len(want))
	}
	for i, w := range want {
		if lm.Insns[i].Op != w {
			t.Errorf("insn %d: got %s, want %s", i, lm.Insns[i].Op, w)
		}
	}
	if lm.Insns[0].IntOperand != 0 || lm.Insns[1].IntOperand != 1 {
		t.Errorf("got arg indices %d,%d, want 0,1", lm.Insns[0].IntOperand, lm.Insns[1].IntOperand)
	}
}

func TestLowerBranchTargetsPatchedToInsnIndex(t *testing.T) {
	method := &metadata.Method{
		Name:      "AbsIfNeg",
		Flags:     metadata.MethodStatic,
		ReturnSig: &metadata.TypeSignature{Element: metadata.ElementI4},
		Params:    []*metadata.TypeSignature{{Element: metadata.ElementI4}},
	}
	// ldarg.0; ldc.i4.0; bge.s L; ldarg.0; neg; ret; L: ldarg.0; ret
	code := []byte{
		0x02,       // 0: ldarg.0
		0x16,       // 1: ldc.i4.0
		0x2F, 0x03, // 2: bge.s +3 -> target offset 7
		0x02,       // 4: ldarg.0
		0x65,       // 5: neg
		0x2A,       // 6: ret
		0x02,       // 7: L: ldarg.0
		0x2A,       // 8: ret
	}
	body := &image.MethodBody{MaxStack: 8, Code: code}

	lm, err := Lower(method, body)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	var branchIdx = -1
	for i, in := range lm.Insns {
		if in.Op == OpBgeI4 {
			branchIdx = i
		}
	}
	if branchIdx == -1 {
		t.Fatal("no bge.i4 instruction found")
	}
	targetIdx := lm.Insns[branchIdx].Targets[0]
	if targetIdx < 0 || targetIdx >= len(lm.Insns) {
		t.Fatalf("branch target %d out of range [0,%d)", targetIdx, len(lm.Insns))
	}
	if lm.Insns[targetIdx].Op != OpLdArgAny {
		t.Errorf("branch target resolved to %s, want ldarg.any", lm.Insns[targetIdx].Op)
	}
}
