// Package guest defines the byte-offset contract of the guest CPU
// state record that lives at a fixed host register through all
// generated code (spec.md §3, §6 "Guest-state layout"). Every emitter
// in pkg/emit addresses this record by the offsets declared here;
// changing a field's position requires updating every emitter that
// touches it.
package guest

// NumGPR is the number of 32-bit general-purpose guest registers.
const NumGPR = 16

// NumExtendedSingle is the number of single-precision lanes in the
// extended register file (overlaid with NumExtendedDouble double lanes).
const NumExtendedSingle = 32

// NumExtendedDouble is the number of double-precision lanes in the
// extended register file.
const NumExtendedDouble = 16

// RSBSize is the fixed power-of-two depth of the return-stack buffer.
const RSBSize = 8

// NumSpillSlots is the fixed count of allocator spill slots carved out
// of the guest-state record (pkg/regalloc spills here when it runs out
// of host registers).
const NumSpillSlots = 16

// Offsets into the guest-state record, in bytes. Field sizes: each GPR
// and extended-single lane is 4 bytes; extended-double lanes alias the
// same storage two-at-a-time. CPSR/FPSCR/cached-NZCV are 4 bytes each.
// RSB is two parallel RSBSize-length arrays of uint64. Spill slots are
// 8 bytes each (wide enough for either a GPR or an XMM scalar).
const (
	OffsetGPR              = 0
	OffsetExtendedRegs     = OffsetGPR + 4*NumGPR
	OffsetCPSR             = OffsetExtendedRegs + 4*NumExtendedSingle
	OffsetFPSCR            = OffsetCPSR + 4
	OffsetFPSCRNZCV        = OffsetFPSCR + 4
	OffsetExclusiveAddr    = OffsetFPSCRNZCV + 4
	OffsetExclusiveState   = OffsetExclusiveAddr + 4
	OffsetRSBLocationArray = OffsetExclusiveState + 4
	OffsetRSBPointerArray  = OffsetRSBLocationArray + 8*RSBSize
	OffsetRSBCursor        = OffsetRSBPointerArray + 8*RSBSize
	OffsetCyclesRemaining  = OffsetRSBCursor + 4
	OffsetHaltRequested    = OffsetCyclesRemaining + 4
	OffsetSavedMXCSR       = OffsetHaltRequested + 4
	OffsetSpillSlots       = OffsetSavedMXCSR + 4

	// StateSize is the total size of the guest-state record.
	StateSize = OffsetSpillSlots + 8*NumSpillSlots
)

// GPROffset returns the byte offset of guest register r.
func GPROffset(r int) int { return OffsetGPR + 4*r }

// ExtendedSingleOffset returns the byte offset of single-precision
// extended register lane s.
func ExtendedSingleOffset(s int) int { return OffsetExtendedRegs + 4*s }

// ExtendedDoubleOffset returns the byte offset of double-precision
// extended register lane d (the S-form and D-form views alias: lane d
// covers single lanes 2d and 2d+1).
func ExtendedDoubleOffset(d int) int { return OffsetExtendedRegs + 8*d }

// SpillSlotOffset returns the byte offset of spill slot i.
func SpillSlotOffset(i int) int { return OffsetSpillSlots + 8*i }

// RSBLocationOffset and RSBPointerOffset return the byte offsets of
// RSB slot i's location-descriptor hash and host-pointer fields.
func RSBLocationOffset(i int) int { return OffsetRSBLocationArray + 8*i }
func RSBPointerOffset(i int) int  { return OffsetRSBPointerArray + 8*i }
