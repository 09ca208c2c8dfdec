package main

import "testing"

func TestSplitMethodRef(t *testing.T) {
	typeName, methodName, err := splitMethodRef("MyApp.Program::Main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if typeName != "MyApp.Program" || methodName != "Main" {
		t.Fatalf("got (%q, %q)", typeName, methodName)
	}
}

func TestSplitMethodRefRejectsMissingSeparator(t *testing.T) {
	if _, _, err := splitMethodRef("NoSeparatorHere"); err == nil {
		t.Fatal("expected error for a ref without ::")
	}
}

func TestParseArgs(t *testing.T) {
	got, err := parseArgs([]string{"1", "0x2a", "-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []uint64{1, 0x2a, uint64(int64(-1))}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("arg %d: got %d want %d", i, got[i], want[i])
		}
	}
}

func TestParseArgsRejectsNonNumeric(t *testing.T) {
	if _, err := parseArgs([]string{"not-a-number"}); err == nil {
		t.Fatal("expected a parse error")
	}
}
