package ir

import "testing"

func TestPoolPointerStabilityAcrossSlabGrowth(t *testing.T) {
	var p Pool
	first := p.NewInstr()
	first.ID = 1

	// Allocate enough instructions to force at least one new slab.
	for i := 0; i < poolSlabSize*3; i++ {
		p.NewInstr()
	}

	if first.ID != 1 {
		t.Fatalf("pointer returned by the pool should remain stable across growth, got ID %d", first.ID)
	}
}

func TestPoolNewBlockDistinctPointers(t *testing.T) {
	var p Pool
	a := p.NewBlock()
	b := p.NewBlock()
	if a == b {
		t.Fatal("successive allocations should return distinct pointers")
	}
}
