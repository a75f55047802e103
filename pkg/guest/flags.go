package guest

// CPSR bit positions (spec.md §3).
const (
	CPSRBitN = 31 // negative
	CPSRBitZ = 30 // zero
	CPSRBitC = 29 // carry
	CPSRBitV = 28 // overflow
	CPSRBitQ = 27 // sticky saturation

	CPSRGEShift = 16 // 4-bit GE nibble at bits 19:16
	CPSRGEMask  = 0xF << CPSRGEShift

	CPSRBitE = 9 // endianness
	CPSRBitT = 5 // Thumb mode
)

// CPSRFlagMask builds the single-bit mask for one of N/Z/C/V/Q.
func CPSRFlagMask(bit int) uint32 { return 1 << uint(bit) }

// FPSCR bit positions relevant to code generation and to the cached
// NZCV mirror (spec.md §3, §4.2).
const (
	FPSCRBitRMode0 = 22 // rounding mode, 2 bits: 22-23
	FPSCRBitRMode1 = 23
	FPSCRBitFZ     = 24 // flush-to-zero
	FPSCRBitDN     = 25 // default NaN

	FPSCRBitIDC = 7  // input denormal cumulative flag
	FPSCRBitUFC = 3  // underflow cumulative flag

	// NZCV mirror lives in its own 32-bit cached word (OffsetFPSCRNZCV),
	// using the same bit positions as CPSR's N/Z/C/V for cheap reuse of
	// the comparison helpers below.
)

// RoundingMode enumerates the four IEEE-754 rounding modes FPSCR's
// RMode field selects.
type RoundingMode uint8

const (
	RoundNearest RoundingMode = iota
	RoundPlusInfinity
	RoundMinusInfinity
	RoundTowardZero
)

// DecodeRoundingMode extracts the rounding mode from an FPSCR word.
func DecodeRoundingMode(fpscr uint32) RoundingMode {
	return RoundingMode((fpscr >> FPSCRBitRMode0) & 0x3)
}

// FTZEnabled reports whether FPSCR.FZ (flush-to-zero) is set.
func FTZEnabled(fpscr uint32) bool { return fpscr&(1<<FPSCRBitFZ) != 0 }

// DefaultNaNEnabled reports whether FPSCR.DN (default NaN) is set.
func DefaultNaNEnabled(fpscr uint32) bool { return fpscr&(1<<FPSCRBitDN) != 0 }

// CondKind distinguishes the four families of ARM condition test that
// pkg/term's guard prelude has to emit different host sequences for.
// Only EQ/NE/CS/CC/MI/PL/VS/VC reduce to "is this one flag bit set":
// the rest combine two or three flags with a relationship (equality,
// conjunction) that a single mask-then-nonzero test cannot express.
type CondKind uint8

const (
	// CondKindBit: a single CPSR flag, tested directly (mask-then-
	// nonzero is exact here because only one bit participates).
	CondKindBit CondKind = iota
	// CondKindHiLs: HI/LS need C set AND Z clear, which is an exact
	// bit pattern within the C|Z field, not "either bit set" — an
	// and-then-compare against that pattern, not a nonzero test.
	CondKindHiLs
	// CondKindGeLt: GE/LT need N==V, which and-then-compare evaluates
	// by aligning the two bits and comparing, not by testing either
	// bit in isolation.
	CondKindGeLt
	// CondKindGtLe: GT/LE need !Z && N==V, three independent flags
	// folded together with a shift/XOR reduction before the final test.
	CondKindGtLe
	// CondKindAlways: AL/NV never consult CPSR at all.
	CondKindAlways
)

// CondEntry precomputes, for each ARM condition code, which CPSR flag
// bits its test reads and how to combine them. This mirrors the
// teacher's precomputed-LUT idiom (pkg/cpu/flags.go's Sz53Table /
// ParityTable) generalized from an 8-bit value table to a 16-entry
// condition-code table; pkg/term consults it to build the guard-prelude
// test/compare sequence instead of hand-rolling per-condition branches.
type CondEntry struct {
	Kind CondKind
	// Mask of CPSR bits this condition's test reads.
	Mask uint32
	// Want is the exact masked bit pattern that means "true", used only
	// by CondKindHiLs (GE/LT and GT/LE compare against 0 after
	// alignment/reduction, not a precomputed pattern).
	Want uint32
	// Invert indicates the underlying test must be logically negated
	// (used for the *-negated member of each pair: NE, CC, PL, VC, LS,
	// LT, LE, NV).
	Invert bool
}

var condMaskTable = [16]CondEntry{
	/* EQ */ {Kind: CondKindBit, Mask: CPSRFlagMask(CPSRBitZ)},
	/* NE */ {Kind: CondKindBit, Mask: CPSRFlagMask(CPSRBitZ), Invert: true},
	/* CS */ {Kind: CondKindBit, Mask: CPSRFlagMask(CPSRBitC)},
	/* CC */ {Kind: CondKindBit, Mask: CPSRFlagMask(CPSRBitC), Invert: true},
	/* MI */ {Kind: CondKindBit, Mask: CPSRFlagMask(CPSRBitN)},
	/* PL */ {Kind: CondKindBit, Mask: CPSRFlagMask(CPSRBitN), Invert: true},
	/* VS */ {Kind: CondKindBit, Mask: CPSRFlagMask(CPSRBitV)},
	/* VC */ {Kind: CondKindBit, Mask: CPSRFlagMask(CPSRBitV), Invert: true},
	/* HI */ {Kind: CondKindHiLs, Mask: CPSRFlagMask(CPSRBitC) | CPSRFlagMask(CPSRBitZ), Want: CPSRFlagMask(CPSRBitC)},
	/* LS */ {Kind: CondKindHiLs, Mask: CPSRFlagMask(CPSRBitC) | CPSRFlagMask(CPSRBitZ), Want: CPSRFlagMask(CPSRBitC), Invert: true},
	/* GE */ {Kind: CondKindGeLt, Mask: CPSRFlagMask(CPSRBitN) | CPSRFlagMask(CPSRBitV)},
	/* LT */ {Kind: CondKindGeLt, Mask: CPSRFlagMask(CPSRBitN) | CPSRFlagMask(CPSRBitV), Invert: true},
	/* GT */ {Kind: CondKindGtLe, Mask: CPSRFlagMask(CPSRBitN) | CPSRFlagMask(CPSRBitV) | CPSRFlagMask(CPSRBitZ)},
	/* LE */ {Kind: CondKindGtLe, Mask: CPSRFlagMask(CPSRBitN) | CPSRFlagMask(CPSRBitV) | CPSRFlagMask(CPSRBitZ), Invert: true},
	/* AL */ {Kind: CondKindAlways},
	/* NV */ {Kind: CondKindAlways, Invert: true},
}

// CondTest returns the precomputed condition-test descriptor for
// condition code cc (0-15, ARM encoding order EQ..NV).
func CondTest(cc uint8) CondEntry { return condMaskTable[cc&0xF] }

// EvalCondEntry evaluates a CondEntry against a concrete CPSR word the
// same way pkg/term's host sequence for that Kind would, independent of
// EvalCond's own case-by-case logic — used to cross-check the two
// against each other for every condition code.
func EvalCondEntry(entry CondEntry, cpsr uint32) bool {
	var result bool
	switch entry.Kind {
	case CondKindAlways:
		result = true
	case CondKindBit:
		result = cpsr&entry.Mask != 0
	case CondKindHiLs:
		result = cpsr&entry.Mask == entry.Want
	case CondKindGeLt:
		n := cpsr&CPSRFlagMask(CPSRBitN) != 0
		v := cpsr&CPSRFlagMask(CPSRBitV) != 0
		result = n == v
	case CondKindGtLe:
		n := cpsr&CPSRFlagMask(CPSRBitN) != 0
		v := cpsr&CPSRFlagMask(CPSRBitV) != 0
		z := cpsr&CPSRFlagMask(CPSRBitZ) != 0
		result = !z && n == v
	}
	if entry.Invert {
		result = !result
	}
	return result
}

// EvalCond evaluates condition cc against a concrete CPSR word. Used by
// tests; the JIT path builds the equivalent test as host instructions
// instead (pkg/term).
func EvalCond(cc uint8, cpsr uint32) bool {
	n := cpsr&CPSRFlagMask(CPSRBitN) != 0
	z := cpsr&CPSRFlagMask(CPSRBitZ) != 0
	c := cpsr&CPSRFlagMask(CPSRBitC) != 0
	v := cpsr&CPSRFlagMask(CPSRBitV) != 0
	switch cc & 0xF {
	case 0: // EQ
		return z
	case 1: // NE
		return !z
	case 2: // CS
		return c
	case 3: // CC
		return !c
	case 4: // MI
		return n
	case 5: // PL
		return !n
	case 6: // VS
		return v
	case 7: // VC
		return !v
	case 8: // HI
		return c && !z
	case 9: // LS
		return !c || z
	case 10: // GE
		return n == v
	case 11: // LT
		return n != v
	case 12: // GT
		return !z && n == v
	case 13: // LE
		return z || n != v
	case 14: // AL
		return true
	default: // NV
		return false
	}
}
