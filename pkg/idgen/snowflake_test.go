package idgen

import (
	"strings"
	"testing"
)

func TestGenerateUnique(t *testing.T) {
	Init(1)

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		no := GenerateTransactionNo()
		if !strings.HasPrefix(no, "TXN") {
			t.Fatalf("unexpected prefix: %s", no)
		}
		if seen[no] {
			t.Fatalf("duplicate transaction no: %s", no)
		}
		seen[no] = true
	}

	alloc := GenerateAllocationNo()
	if !strings.HasPrefix(alloc, "ALC") {
		t.Fatalf("unexpected allocation prefix: %s", alloc)
	}
}
