package emit

import (
	"github.com/vexlabs/a32jit/internal/x64asm"
	"github.com/vexlabs/a32jit/pkg/guest"
	"github.com/vexlabs/a32jit/pkg/ir"
	"github.com/vexlabs/a32jit/pkg/regalloc"
)

// shiftMnemonic maps a shift opcode to its host instruction. Host
// shifts mask the count to 5 (or 6, for the 64-bit form) bits; ARM's
// shift counts are not pre-masked by the frontend, so shift-by-32-or-
// more has to be special-cased below rather than simply relying on the
// host's masking.
var shiftMnemonic = map[ir.Opcode]string{
	ir.OpLogicalShiftLeft:       "shl",
	ir.OpLogicalShiftRight:      "shr",
	ir.OpLogicalShiftRight64:    "shr",
	ir.OpArithmeticShiftRight:   "sar",
	ir.OpRotateRight:            "ror",
}

// emitShift covers the non-rotate-extend shift family (spec.md §4.2,
// "ARM shifts are not masked to the register width: a shift count of
// 32 or more yields a defined result rather than host-masked
// wraparound"), plus RotateRightExtended, which folds in the host
// carry flag as the 33rd bit.
func emitShift(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	if in.Op == ir.OpRotateRightExtended {
		emitRotateRightExtended(a, buf, in)
		return
	}

	width := operandWidth(in.Op)
	info := a.ArgumentInfo(in)
	val := a.UseScratch(info[0].Value, regalloc.KindGPR)
	mnemonic := shiftMnemonic[in.Op]

	if info[1].Immediate {
		count := info[1].ImmValue
		if count >= uint64(width) {
			emitWideShiftClamp(buf, in.Op, width, val, count)
		} else if count > 0 {
			buf.Emit(mnemonic, gprOperand(width, val), x64asm.I(int64(count)))
		}
		emitShiftCarryOut(a, buf, in, val, func() { loadImmCarryBit(buf, in.Op, width, val, count) })
		rebindResult(a, in, val)
		return
	}

	// Variable shift count: the count is copied into a scratch register,
	// which the symbolic variable_shift_clamped op takes as its count
	// byte operand; the count is not pinned to CL. Counts of 32+ still
	// need the same defined-result handling as the immediate path, which
	// that op stands for (a compare-and-zero/compare-and-saturate guard
	// around the raw host shift).
	count := a.UseRegisterOfKind(info[1].Value, regalloc.KindGPR)
	cl := a.Scratch(regalloc.KindGPR)
	buf.Emit("mov", x64asm.G(x64asm.GPR(cl)), x64asm.G(x64asm.GPR(count)))
	buf.Emit("variable_shift_clamped", gprOperand(width, val), x64asm.G8(x64asm.GPR(cl)), x64asm.I(int64(shiftKindTag(in.Op))))

	emitShiftCarryOut(a, buf, in, val, func() {
		buf.Emit("variable_shift_carry_out", x64asm.G8(x64asm.GPR(cl)), x64asm.I(int64(shiftKindTag(in.Op))))
	})
	rebindResult(a, in, val)
}

// emitWideShiftClamp implements the ARM-defined result for a constant
// shift count of width or more: LSL and LSR produce zero, ASR produces
// the sign-extended value (all bits equal to the original sign bit),
// and ROR rotates by count modulo width (leaving the value unchanged
// when that is zero).
func emitWideShiftClamp(buf *x64asm.Buffer, op ir.Opcode, width int, val int, count uint64) {
	switch op {
	case ir.OpArithmeticShiftRight:
		buf.Emit("sar", gprOperand(width, val), x64asm.I(int64(width-1)))
	case ir.OpRotateRight:
		buf.Emit("ror", gprOperand(width, val), x64asm.I(int64(count%uint64(width))))
	default: // LSL, LSR, LSR64
		buf.Emit("xor", gprOperand(width, val), gprOperand(width, val))
	}
}

func loadImmCarryBit(buf *x64asm.Buffer, op ir.Opcode, width int, val int, count uint64) {
	if count == 0 {
		// A zero count leaves the carry as it was: reload CPSR.C into CF.
		buf.Emit("bt", x64asm.Mem(guest.OffsetCPSR, 32), x64asm.I(int64(guest.CPSRBitC)))
		return
	}
	if count > uint64(width) {
		buf.Emit("carry_from_sign_extend", gprOperand(width, val))
		return
	}
	// The host shift by count-1..count already left the right bit in
	// CF for count in [1, width]; re-derive it without re-shifting.
	buf.Emit("recompute_shift_carry", x64asm.I(int64(count)))
}

func shiftKindTag(op ir.Opcode) int {
	switch op {
	case ir.OpLogicalShiftLeft:
		return 0
	case ir.OpArithmeticShiftRight:
		return 2
	case ir.OpRotateRight:
		return 3
	default: // LSR, LSR64
		return 1
	}
}

func emitShiftCarryOut(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst, val int, loadCarry func()) {
	p := in.Pseudo(ir.OpGetCarryFromOp)
	if p == nil {
		return
	}
	loadCarry()
	dst := a.DefineValue(p, regalloc.KindGPR)
	buf.Emit("setc", x64asm.G8(x64asm.GPR(dst)))
}

// emitRotateRightExtended implements ARM's RRX: a 1-bit rotate right
// through the host carry flag rather than through the value's own low
// bit (spec.md §4.2).
func emitRotateRightExtended(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	info := a.ArgumentInfo(in)
	val := a.UseScratch(info[0].Value, regalloc.KindGPR)
	loadCarryIn(a, buf, info[1])
	buf.Emit("rcr", x64asm.G(x64asm.GPR(val)), x64asm.I(1))
	emitShiftCarryOut(a, buf, in, val, func() {})
	rebindResult(a, in, val)
}
