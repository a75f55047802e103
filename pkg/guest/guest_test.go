package guest

import "testing"

func TestOffsetsAreDistinctAndAligned(t *testing.T) {
	offsets := []int{
		OffsetGPR, OffsetExtendedRegs, OffsetCPSR, OffsetFPSCR, OffsetFPSCRNZCV,
		OffsetExclusiveAddr, OffsetExclusiveState, OffsetRSBLocationArray,
		OffsetRSBPointerArray, OffsetRSBCursor, OffsetCyclesRemaining,
		OffsetHaltRequested, OffsetSavedMXCSR, OffsetSpillSlots,
	}
	seen := map[int]bool{}
	for _, off := range offsets {
		if seen[off] {
			t.Errorf("duplicate guest-state offset %d", off)
		}
		seen[off] = true
		if off%4 != 0 {
			t.Errorf("offset %d is not 4-byte aligned", off)
		}
	}
}

func TestStateSizeCoversAllSpillSlots(t *testing.T) {
	last := SpillSlotOffset(NumSpillSlots - 1)
	if last+8 != StateSize {
		t.Errorf("last spill slot ends at %d, StateSize = %d", last+8, StateSize)
	}
}

func TestGPROffsetIsMonotonic(t *testing.T) {
	for r := 0; r < NumGPR-1; r++ {
		if GPROffset(r+1)-GPROffset(r) != 4 {
			t.Errorf("GPROffset(%d) and GPROffset(%d) are not 4 bytes apart", r, r+1)
		}
	}
}

func TestExtendedDoubleAliasesTwoSingleLanes(t *testing.T) {
	for d := 0; d < NumExtendedDouble; d++ {
		want := ExtendedSingleOffset(2 * d)
		if got := ExtendedDoubleOffset(d); got != want {
			t.Errorf("ExtendedDoubleOffset(%d) = %d, want %d (aliasing single lane %d)", d, got, want, 2*d)
		}
	}
}

func TestRSBOffsetsDoNotOverlap(t *testing.T) {
	for i := 0; i < RSBSize; i++ {
		loc := RSBLocationOffset(i)
		ptr := RSBPointerOffset(i)
		if loc >= OffsetRSBPointerArray {
			t.Errorf("RSB location slot %d overlaps the pointer array", i)
		}
		if ptr < OffsetRSBPointerArray || ptr >= OffsetRSBCursor {
			t.Errorf("RSB pointer slot %d out of bounds: %d", i, ptr)
		}
	}
}

func TestDecodeRoundingMode(t *testing.T) {
	tests := []struct {
		fpscr uint32
		want  RoundingMode
	}{
		{0x00000000, RoundNearest},
		{1 << FPSCRBitRMode0, RoundPlusInfinity},
		{1 << FPSCRBitRMode1, RoundMinusInfinity},
		{(1 << FPSCRBitRMode0) | (1 << FPSCRBitRMode1), RoundTowardZero},
	}
	for _, tc := range tests {
		if got := DecodeRoundingMode(tc.fpscr); got != tc.want {
			t.Errorf("DecodeRoundingMode(%#x) = %v, want %v", tc.fpscr, got, tc.want)
		}
	}
}

func TestFTZAndDefaultNaNEnabled(t *testing.T) {
	if FTZEnabled(0) {
		t.Error("FTZEnabled(0) should be false")
	}
	if !FTZEnabled(1 << FPSCRBitFZ) {
		t.Error("FTZEnabled should be true when FZ bit is set")
	}
	if DefaultNaNEnabled(0) {
		t.Error("DefaultNaNEnabled(0) should be false")
	}
	if !DefaultNaNEnabled(1 << FPSCRBitDN) {
		t.Error("DefaultNaNEnabled should be true when DN bit is set")
	}
}

func TestEvalCondMatchesCondTestMaskForAllCPSRCombinations(t *testing.T) {
	for cc := uint8(0); cc < 16; cc++ {
		entry := CondTest(cc)
		for n := 0; n < 2; n++ {
			for z := 0; z < 2; z++ {
				for c := 0; c < 2; c++ {
					for v := 0; v < 2; v++ {
						cpsr := uint32(0)
						if n == 1 {
							cpsr |= CPSRFlagMask(CPSRBitN)
						}
						if z == 1 {
							cpsr |= CPSRFlagMask(CPSRBitZ)
						}
						if c == 1 {
							cpsr |= CPSRFlagMask(CPSRBitC)
						}
						if v == 1 {
							cpsr |= CPSRFlagMask(CPSRBitV)
						}

						got := EvalCond(cc, cpsr)
						want := EvalCondEntry(entry, cpsr)
						if got != want {
							t.Errorf("cc=%d cpsr=%#x: EvalCond=%v, EvalCondEntry=%v", cc, cpsr, got, want)
						}
					}
				}
			}
		}
	}
}

func TestEvalCondGEAndLT(t *testing.T) {
	nEqV := CPSRFlagMask(CPSRBitN) | CPSRFlagMask(CPSRBitV)
	if !EvalCond(10, nEqV) { // GE: N==V, both set
		t.Error("GE should hold when N and V agree (both set)")
	}
	if !EvalCond(10, 0) { // GE: N==V, both clear
		t.Error("GE should hold when N and V agree (both clear)")
	}
	if EvalCond(10, CPSRFlagMask(CPSRBitN)) { // N set, V clear
		t.Error("GE should not hold when N and V disagree")
	}
	if !EvalCond(11, CPSRFlagMask(CPSRBitN)) {
		t.Error("LT should hold when N and V disagree")
	}
}

func TestEvalCondGTAndLE(t *testing.T) {
	nEqV := CPSRFlagMask(CPSRBitN) | CPSRFlagMask(CPSRBitV)
	if !EvalCond(12, nEqV) { // GT: !Z && N==V
		t.Error("GT should hold when Z clear and N==V")
	}
	z := CPSRFlagMask(CPSRBitZ)
	if EvalCond(12, nEqV|z) {
		t.Error("GT should not hold when Z is set")
	}
	if !EvalCond(13, z) { // LE: Z || N!=V
		t.Error("LE should hold when Z is set")
	}
}

func TestCondTestKindsForCompoundConditions(t *testing.T) {
	tests := []struct {
		cc   uint8
		want CondKind
	}{
		{0, CondKindBit},   // EQ
		{8, CondKindHiLs},  // HI
		{9, CondKindHiLs},  // LS
		{10, CondKindGeLt}, // GE
		{11, CondKindGeLt}, // LT
		{12, CondKindGtLe}, // GT
		{13, CondKindGtLe}, // LE
		{14, CondKindAlways},
		{15, CondKindAlways},
	}
	for _, tc := range tests {
		if got := CondTest(tc.cc).Kind; got != tc.want {
			t.Errorf("CondTest(%d).Kind = %v, want %v", tc.cc, got, tc.want)
		}
	}
}

func TestSameGranule(t *testing.T) {
	if !SameGranule(0x1000, 0x1004) {
		t.Error("addresses within the same 8-byte granule should match")
	}
	if SameGranule(0x1000, 0x1008) {
		t.Error("addresses in adjacent granules should not match")
	}
}

func TestEvalCondALAlwaysTrueNVAlwaysFalse(t *testing.T) {
	for i := uint32(0); i < 16; i++ {
		cpsr := i << 28
		if !EvalCond(14, cpsr) {
			t.Errorf("AL should always hold, cpsr=%#x", cpsr)
		}
		if EvalCond(15, cpsr) {
			t.Errorf("NV should never hold, cpsr=%#x", cpsr)
		}
	}
}
