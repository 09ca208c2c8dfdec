package il

import "testing"

func TestDecodeCILSimpleAdd(t *testing.T) {
	// ldarg.0; ldarg.1; add; ret
	code := []byte{0x02, 0x03, 0x58, 0x2A}
	insns, err := decodeCIL(code)
	if err != nil {
		t.Fatalf("decodeCIL: %v", err)
	}
	want := []cilOp{cilLdarg0, 0x03, cilAdd, cilRet}
	if len(insns) != len(want) {
		t.Fatalf("got %d instructions, want %d", len(insns), len(want))
	}
	for i, w := range want {
		if insns[i].Op != w {
			t.Errorf("insn %d: got op 0x%X, want 0x%X", i, insns[i].Op, w)
		}
	}
}

func TestDecodeCILBranchTarget(t *testing.T) {
	// ldarg.0; brtrue.s +1 (skip the first nop); nop; nop; ret
	code := []byte{0x02, 0x2D, 0x01, 0x00, 0x00, 0x2A}
	insns, err := decodeCIL(code)
	if err != nil {
		t.Fatalf("decodeCIL: %v", err)
	}
	br := insns[1]
	if br.Op != cilBrtrueS {
		t.Fatalf("expected brtrue.s, got 0x%X", br.Op)
	}
	if len(br.Targets) != 1 || br.Targets[0] != 4 {
		t.Fatalf("got targets %v, want [4]", br.Targets)
	}
}

func TestDecodeCILSwitch(t *testing.T) {
	// ldarg.0; switch(2 targets: +0, +4); nop; nop; nop; nop; ret
	code := []byte{
		0x02,
		0x45, 0x02, 0x00, 0x00, 0x00, // switch, count=2
		0x00, 0x00, 0x00, 0x00, // target 0: delta 0
		0x04, 0x00, 0x00, 0x00, // target 1: delta 4
		0x00, 0x00, 0x00, 0x00, // padding nops to land targets inside code
		0x2A,
	}
	insns, err := decodeCIL(code)
	if err != nil {
		t.Fatalf("decodeCIL: %v", err)
	}
	sw := insns[1]
	if sw.Op != cilSwitch {
		t.Fatalf("expected switch, got 0x%X", sw.Op)
	}
	if len(sw.Targets) != 2 {
		t.Fatalf("got %d targets, want 2", len(sw.Targets))
	}
}

func TestDecodeCILTruncated(t *testing.T) {
	code := []byte{0x02, 0x28} // call with no token bytes
	if _, err := decodeCIL(code); err == nil {
		t.Fatal("expected truncation error, got nil")
	}
}
