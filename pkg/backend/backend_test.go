package backend

import (
	"testing"

	"github.com/vexlabs/a32jit/pkg/cache"
	"github.com/vexlabs/a32jit/pkg/ir"
	"github.com/vexlabs/a32jit/pkg/loc"
)

func TestEmitInsertsIntoCache(t *testing.T) {
	b := New()
	at := loc.New(0x1000, false, false, 0)
	block := ir.Random(at, 8, 1)

	bd, err := b.Emit(block)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if bd.HostCodeSize <= 0 {
		t.Errorf("HostCodeSize = %d, want > 0", bd.HostCodeSize)
	}

	got, ok := b.GetBasicBlock(at)
	if !ok {
		t.Fatal("GetBasicBlock: block not found after Emit")
	}
	if got.ID != bd.ID {
		t.Errorf("GetBasicBlock returned ID %d, want %d", got.ID, bd.ID)
	}
}

func TestEmitAssignsDistinctBlockIDs(t *testing.T) {
	b := New()
	seen := map[int]bool{}
	for i := 0; i < 5; i++ {
		at := loc.New(uint32(i*4), false, false, 0)
		block := ir.Random(at, 4, uint64(i))
		bd, err := b.Emit(block)
		if err != nil {
			t.Fatalf("Emit block %d: %v", i, err)
		}
		if seen[bd.ID] {
			t.Errorf("block ID %d reused", bd.ID)
		}
		seen[bd.ID] = true
	}
}

func TestInvalidateCacheRangeDropsOverlappingBlocks(t *testing.T) {
	b := New()
	at := loc.New(0x2000, false, false, 0)
	block := ir.Random(at, 4, 7)
	block.EndPC = 0x2004
	if _, err := b.Emit(block); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	dropped := b.InvalidateCacheRange(cache.IntervalRange(0x2000, 0x10))
	if len(dropped) != 1 {
		t.Fatalf("InvalidateCacheRange dropped %d blocks, want 1", len(dropped))
	}

	if _, ok := b.GetBasicBlock(at); ok {
		t.Error("GetBasicBlock: block still present after invalidation")
	}
}

func TestClearCacheRemovesAllBlocks(t *testing.T) {
	b := New()
	at := loc.New(0x3000, false, false, 0)
	block := ir.Random(at, 4, 3)
	if _, err := b.Emit(block); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	b.ClearCache()
	if _, ok := b.GetBasicBlock(at); ok {
		t.Error("GetBasicBlock: block present after ClearCache")
	}
}
