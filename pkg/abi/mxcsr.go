package abi

import (
	"github.com/vexlabs/a32jit/internal/x64asm"
	"github.com/vexlabs/a32jit/pkg/guest"
)

// SaveMXCSR and RestoreMXCSR bracket a host call the way the original
// backend's EmitX64::Emit<CallSupervisor/Coproc*> sites do: the host
// function being called is free to leave MXCSR in whatever state its
// own code expects, so the guest's rounding-mode/FTZ/DN bits are saved
// to the guest-state record beforehand and reinstated after (spec.md
// §4.2, "MXCSR bracketing").
func SaveMXCSR(buf *x64asm.Buffer) {
	buf.Emit("stmxcsr", x64asm.Mem(guest.OffsetSavedMXCSR, 32))
}

func RestoreMXCSR(buf *x64asm.Buffer) {
	buf.Emit("ldmxcsr", x64asm.Mem(guest.OffsetSavedMXCSR, 32))
}

// SetBlockRoundingMode installs the MXCSR rounding-control bits
// matching the guest's current FPSCR at block entry (spec.md §4.2): FP
// opcode emitters then rely on host hardware already being in the
// right rounding mode rather than re-checking it per instruction.
// Rounding is the only FPSCR behavior MXCSR can stand in for directly —
// FTZ/default-NaN have no hardware equivalent for ARM's sticky flags
// and default-NaN value, so pkg/emit's FP emitters bracket those in
// software per instruction instead of relying on this function.
func SetBlockRoundingMode(buf *x64asm.Buffer) {
	buf.Emit("stmxcsr", x64asm.Mem(guest.OffsetSavedMXCSR, 32))
	buf.Emit("apply_fpscr_rounding_to_mxcsr", x64asm.Mem(guest.OffsetSavedMXCSR, 32), x64asm.Mem(guest.OffsetFPSCR, 32))
	buf.Emit("ldmxcsr", x64asm.Mem(guest.OffsetSavedMXCSR, 32))
}
