package cache

import (
	"path/filepath"
	"testing"

	"github.com/vexlabs/a32jit/internal/x64asm"
	"github.com/vexlabs/a32jit/pkg/loc"
)

func descAt(pc uint32) loc.Descriptor {
	return loc.New(pc, false, false, 0)
}

func TestInsertThenLookup(t *testing.T) {
	c := New()
	d := descAt(0x1000)
	bd := BlockDescriptor{ID: c.NextBlockID(), StartLocation: d, HostCodeSize: 32, EndPC: 0x1004}
	c.Insert(bd)

	got, ok := c.Lookup(d)
	if !ok {
		t.Fatal("Lookup: block not found")
	}
	if got.ID != bd.ID || got.HostCodeSize != bd.HostCodeSize {
		t.Errorf("Lookup returned %+v, want %+v", got, bd)
	}

	if _, ok := c.Lookup(descAt(0x2000)); ok {
		t.Error("Lookup found a block at an address never inserted")
	}
}

func TestRegisterPatchResolvesImmediatelyWhenTargetAlreadyCompiled(t *testing.T) {
	c := New()
	target := descAt(0x3000)
	targetBD := BlockDescriptor{ID: c.NextBlockID(), StartLocation: target, EndPC: 0x3004}
	c.Insert(targetBD)

	ownerBuf := x64asm.NewBuffer()
	ownerBuf.Emit("jmp", x64asm.Label(TrampolineLabel))
	ownerID := c.NextBlockID()
	c.Insert(BlockDescriptor{ID: ownerID, Buffer: ownerBuf, StartLocation: descAt(0x4000), EndPC: 0x4004})

	c.RegisterPatch(target, PatchUnconditionalJump, ownerID, 0)

	patches := c.PatchesFor(target)
	if len(patches) != 1 {
		t.Fatalf("PatchesFor returned %d entries, want 1", len(patches))
	}
	if got := ownerBuf.Insts[0].Operands[0].Label; got != entryLabel(targetBD.ID) {
		t.Errorf("patch site targets %q, want %q", got, entryLabel(targetBD.ID))
	}
}

func TestRegisterPatchResolvesOnLaterInsert(t *testing.T) {
	c := New()
	target := descAt(0x5000)

	ownerBuf := x64asm.NewBuffer()
	ownerBuf.Emit("jmp", x64asm.Label(TrampolineLabel))
	ownerID := c.NextBlockID()
	c.Insert(BlockDescriptor{ID: ownerID, Buffer: ownerBuf, StartLocation: descAt(0x6000), EndPC: 0x6004})

	c.RegisterPatch(target, PatchUnconditionalJump, ownerID, 0)
	_, _, totalPatches := c.Stats()
	if totalPatches != 1 {
		t.Fatalf("Stats() totalPatches = %d, want 1 before target compiles", totalPatches)
	}

	targetBD := BlockDescriptor{ID: c.NextBlockID(), StartLocation: target, EndPC: 0x5004}
	c.Insert(targetBD)

	patches := c.PatchesFor(target)
	if len(patches) != 1 {
		t.Fatalf("PatchesFor returned %d entries, want 1", len(patches))
	}
	if got := ownerBuf.Insts[0].Operands[0].Label; got != entryLabel(targetBD.ID) {
		t.Errorf("patch site targets %q after target insert, want %q", got, entryLabel(targetBD.ID))
	}
}

func TestInvalidateRangeDropsOverlappingBlocksOnly(t *testing.T) {
	c := New()
	in := descAt(0x1000)
	out := descAt(0x5000)
	c.Insert(BlockDescriptor{ID: c.NextBlockID(), StartLocation: in, EndPC: 0x1004})
	c.Insert(BlockDescriptor{ID: c.NextBlockID(), StartLocation: out, EndPC: 0x5004})

	dropped := c.InvalidateRange(IntervalRange(0x1000, 0x10))
	if len(dropped) != 1 || dropped[0] != in {
		t.Fatalf("InvalidateRange dropped %v, want [%v]", dropped, in)
	}

	if _, ok := c.Lookup(in); ok {
		t.Error("Lookup: overlapping block survived InvalidateRange")
	}
	if _, ok := c.Lookup(out); !ok {
		t.Error("Lookup: non-overlapping block was dropped by InvalidateRange")
	}
}

func TestInvalidateRangeUnpatchesToTrampoline(t *testing.T) {
	c := New()
	target := descAt(0x7000)
	c.Insert(BlockDescriptor{ID: c.NextBlockID(), StartLocation: target, EndPC: 0x7004})

	ownerBuf := x64asm.NewBuffer()
	ownerBuf.Emit("jmp", x64asm.Label("block_entry_0"))
	ownerID := c.NextBlockID()
	c.Insert(BlockDescriptor{ID: ownerID, Buffer: ownerBuf, StartLocation: descAt(0x8000), EndPC: 0x8004})
	c.RegisterPatch(target, PatchUnconditionalJump, ownerID, 0)

	c.InvalidateRange(IntervalRange(0x7000, 4))

	if _, ok := c.Lookup(target); ok {
		t.Error("target block still present after InvalidateRange")
	}
	if got := ownerBuf.Insts[0].Operands[0].Label; got != TrampolineLabel {
		t.Errorf("patch site targets %q after invalidation, want %q", got, TrampolineLabel)
	}
}

func TestClearDropsBlocksAndPatches(t *testing.T) {
	c := New()
	c.Insert(BlockDescriptor{ID: c.NextBlockID(), StartLocation: descAt(0x9000), EndPC: 0x9004})
	c.RegisterPatch(descAt(0xA000), PatchMovRcxImmediate, 0, 0)

	c.Clear()

	blocks, pendingTargets, totalPatches := c.Stats()
	if blocks != 0 || pendingTargets != 0 || totalPatches != 0 {
		t.Errorf("Stats() after Clear = (%d, %d, %d), want all zero", blocks, pendingTargets, totalPatches)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	c := New()
	d := descAt(0xB000)
	c.Insert(BlockDescriptor{ID: c.NextBlockID(), StartLocation: d, HostCodeSize: 48, EndPC: 0xB004})

	path := filepath.Join(t.TempDir(), "cache.gob")
	if err := c.Snapshot(path); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	restored, err := Restore(path)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	bd, ok := restored.Lookup(d)
	if !ok {
		t.Fatal("Lookup on restored cache: block not found")
	}
	if bd.HostCodeSize != 48 || bd.EndPC != 0xB004 {
		t.Errorf("restored block = %+v, want HostCodeSize=48, EndPC=0xB004", bd)
	}
	if bd.Buffer != nil {
		t.Error("restored block should have a nil Buffer (no host code persisted)")
	}
}

func TestAddressRangeOverlaps(t *testing.T) {
	if !FullRange().Overlaps(0, 0) {
		t.Error("FullRange should overlap everything, even an empty interval")
	}

	r := IntervalRange(0x1000, 0x10)
	if !r.Overlaps(0x1008, 0x1020) {
		t.Error("Overlaps should be true when intervals partially intersect")
	}
	if r.Overlaps(0x2000, 0x2010) {
		t.Error("Overlaps should be false for disjoint intervals")
	}
}
