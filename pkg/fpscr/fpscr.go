// Package fpscr implements the IEEE-754/FPSCR helpers spec.md §4.2
// describes: the flush-to-zero and default-NaN semantics that pkg/emit
// brackets FP opcodes with (only the binary add/sub/mul/div emitters
// are bracketed; sqrt, abs/neg, compare and the conversions are
// emitted without it), NZCV materialization from compare results, and
// the MXCSR rounding-mode mapping. Following the teacher's precomputed-
// constant-table idiom (pkg/cpu/flags.go's Sz53Table/ParityTable,
// generalized here to FP bit-pattern constants computed once at
// package init rather than an 8-bit LUT).
package fpscr

import (
	"math"

	"github.com/vexlabs/a32jit/pkg/guest"
)

// DefaultNaN32 and DefaultNaN64 are ARM's canonical default-NaN bit
// patterns, substituted for any NaN result when FPSCR.DN is set.
var (
	DefaultNaN32 uint32
	DefaultNaN64 uint64
)

func init() {
	DefaultNaN32 = 0x7FC00000
	DefaultNaN64 = 0x7FF8000000000000
}

// penultimateDenormal32/64 are the largest-magnitude subnormal values;
// FTZ treats anything at or below this magnitude as zero on input, and
// any subnormal *result* is flushed to zero with the same sign.
var (
	penultimateDenormal32 = math.Float32frombits(0x007FFFFF)
	penultimateDenormal64 = math.Float64frombits(0x000FFFFFFFFFFFFF)
)

// IsDenormal32 reports whether f is a nonzero subnormal single.
func IsDenormal32(f float32) bool {
	bits := math.Float32bits(f)
	exp := (bits >> 23) & 0xFF
	mant := bits & 0x7FFFFF
	return exp == 0 && mant != 0
}

// IsDenormal64 reports whether f is a nonzero subnormal double.
func IsDenormal64(f float64) bool {
	bits := math.Float64bits(f)
	exp := (bits >> 52) & 0x7FF
	mant := bits & 0xFFFFFFFFFFFFF
	return exp == 0 && mant != 0
}

// FlushToZero32 implements the denormals-are-zero substitution used
// both on FP-op inputs and outputs when FPSCR.FZ is set: a subnormal
// value becomes a same-signed zero.
func FlushToZero32(f float32) (result float32, flushed bool) {
	if !IsDenormal32(f) {
		return f, false
	}
	if math.Signbit(float64(f)) {
		return float32(math.Copysign(0, -1)), true
	}
	return 0, true
}

// FlushToZero64 is FlushToZero32's double-precision counterpart.
func FlushToZero64(f float64) (result float64, flushed bool) {
	if !IsDenormal64(f) {
		return f, false
	}
	if math.Signbit(f) {
		return math.Copysign(0, -1), true
	}
	return 0, true
}

// _ keeps the penultimate-denormal constants referenced so they read
// as documentation of the exact boundary FlushToZero* implements
// (value <= penultimate denormal in magnitude), matching spec.md's
// phrasing ("abs(x) - 1 <= penultimate-positive-denormal").
var (
	_ = penultimateDenormal32
	_ = penultimateDenormal64
)

// DefaultNaNIfSet32 returns v unless FPSCR.DN is set and v is a NaN, in
// which case it returns the canonical default NaN bit pattern.
func DefaultNaNIfSet32(fpscr uint32, v float32) float32 {
	if guest.DefaultNaNEnabled(fpscr) && math.IsNaN(float64(v)) {
		return math.Float32frombits(DefaultNaN32)
	}
	return v
}

// DefaultNaNIfSet64 is DefaultNaNIfSet32's double-precision counterpart.
func DefaultNaNIfSet64(fpscr uint32, v float64) float64 {
	if guest.DefaultNaNEnabled(fpscr) && math.IsNaN(v) {
		return math.Float64frombits(DefaultNaN64)
	}
	return v
}

// NZCV bit patterns produced by an FP compare (spec.md §4.2, "FP
// compare"), keyed by relation. These correspond to the LAHF-derived
// patterns the original backend's EmitFPCompare32/64 materialize after
// ucomiss/ucomisd.
const (
	NZCVEqual     uint32 = 0x60000000
	NZCVLess      uint32 = 0x80000000
	NZCVGreater   uint32 = 0x20000000
	NZCVUnordered uint32 = 0x30000000
)

// CompareNZCV32 computes the FP-compare NZCV pattern for two singles,
// matching the semantics the host ucomiss+LAHF sequence produces.
func CompareNZCV32(a, b float32) uint32 {
	switch {
	case math.IsNaN(float64(a)) || math.IsNaN(float64(b)):
		return NZCVUnordered
	case a == b:
		return NZCVEqual
	case a < b:
		return NZCVLess
	default:
		return NZCVGreater
	}
}

// CompareNZCV64 is CompareNZCV32's double-precision counterpart.
func CompareNZCV64(a, b float64) uint32 {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		return NZCVUnordered
	case a == b:
		return NZCVEqual
	case a < b:
		return NZCVLess
	default:
		return NZCVGreater
	}
}

// MXCSRRoundingBits maps an ARM FPSCR rounding mode to the
// corresponding MXCSR RC field (bits 13-14), so the backend can switch
// the host FP unit to match on block entry (spec.md §4.2).
func MXCSRRoundingBits(mode guest.RoundingMode) uint32 {
	switch mode {
	case guest.RoundNearest:
		return 0x0 << 13
	case guest.RoundMinusInfinity:
		return 0x1 << 13
	case guest.RoundPlusInfinity:
		return 0x2 << 13
	default: // RoundTowardZero
		return 0x3 << 13
	}
}

const mxcsrRCMask = 0x3 << 13

// MXCSRWithRounding returns mxcsr with its RC field replaced to match
// the given ARM rounding mode, leaving every other bit untouched.
func MXCSRWithRounding(mxcsr uint32, mode guest.RoundingMode) uint32 {
	return (mxcsr &^ mxcsrRCMask) | MXCSRRoundingBits(mode)
}
