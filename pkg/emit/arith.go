package emit

import (
	"github.com/vexlabs/a32jit/internal/x64asm"
	"github.com/vexlabs/a32jit/pkg/ir"
	"github.com/vexlabs/a32jit/pkg/regalloc"
)

// operandWidth returns 64 for the wide arithmetic opcodes and 32 for
// everything else — the one piece of width-polymorphism this group of
// emitters needs.
func operandWidth(op ir.Opcode) int {
	switch op {
	case ir.OpAdd64, ir.OpSub64, ir.OpMul64, ir.OpLogicalShiftRight64, ir.OpIsZero64:
		return 64
	default:
		return 32
	}
}

func gprOperand(width int, r int) x64asm.Operand {
	if width == 64 {
		return x64asm.G64(x64asm.GPR(r))
	}
	return x64asm.G(x64asm.GPR(r))
}

// emitCarryArith covers AddWithCarry/SubWithCarry (with their
// GetCarryFromOp/GetOverflowFromOp pseudo-ops) and the plain wide
// Add64/Sub64 (spec.md §4.2, "carry-producing arithmetic"). ARM's
// AddWithCarry takes the carry-in explicitly as a third argument
// (unlike x86's ADC, which reads the host carry flag), so the carry-in
// is loaded into the host flag via a bit test immediately before the
// host add/sub.
func emitCarryArith(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	width := operandWidth(in.Op)
	info := a.ArgumentInfo(in)
	lhs := a.UseScratch(info[0].Value, regalloc.KindGPR)

	var mnemonic, carryOutMnemonic string
	switch in.Op {
	case ir.OpAddWithCarry:
		loadCarryIn(a, buf, info[2])
		mnemonic, carryOutMnemonic = "adc", "setc"
	case ir.OpSubWithCarry:
		// x64 CF is the inverse of ARM's carry flag here: ARM carry-in 1
		// means "no borrow", which is a plain subtract; ARM carry-in 0
		// means "borrow", which needs CF forced to 1 before SBB. A
		// runtime carry-in is loaded then complemented to x86's borrow
		// sense. The carry-out pseudo-op is likewise the complement of
		// SBB's CF.
		switch {
		case info[2].Immediate && info[2].ImmValue != 0:
			mnemonic = "sub"
		case info[2].Immediate:
			buf.Emit("stc")
			mnemonic = "sbb"
		default:
			r := a.UseRegisterOfKind(info[2].Value, regalloc.KindGPR)
			buf.Emit("bt", x64asm.G(x64asm.GPR(r)), x64asm.I(0))
			buf.Emit("cmc")
			mnemonic = "sbb"
		}
		carryOutMnemonic = "setnc"
	case ir.OpSub64:
		mnemonic = "sub"
	default: // OpAdd64
		mnemonic = "add"
	}

	rhs := operandOf(a, info[1], width)
	buf.Emit(mnemonic, gprOperand(width, lhs), rhs)
	rebindResult(a, in, lhs)

	if p := in.Pseudo(ir.OpGetCarryFromOp); p != nil {
		dst := a.DefineValue(p, regalloc.KindGPR)
		buf.Emit(carryOutMnemonic, x64asm.G8(x64asm.GPR(dst)))
	}
	if p := in.Pseudo(ir.OpGetOverflowFromOp); p != nil {
		dst := a.DefineValue(p, regalloc.KindGPR)
		buf.Emit("seto", x64asm.G8(x64asm.GPR(dst)))
	}
}

// loadCarryIn moves ARM's explicit carry-in argument into the host
// carry flag (ADC reads CF directly — ARM and x86 agree on add-carry
// polarity, unlike subtract-borrow; see emitCarryArith's OpSubWithCarry
// case).
func loadCarryIn(a *regalloc.Allocator, buf *x64asm.Buffer, carry regalloc.ArgInfo) {
	if carry.Immediate {
		if carry.ImmValue != 0 {
			buf.Emit("stc")
		} else {
			buf.Emit("clc")
		}
		return
	}
	r := a.UseRegisterOfKind(carry.Value, regalloc.KindGPR)
	buf.Emit("bt", x64asm.G(x64asm.GPR(r)), x64asm.I(0))
}

// operandOf renders an ArgInfo as an x64asm operand of the given
// width, materializing it into a register first if it is a live value.
func operandOf(a *regalloc.Allocator, info regalloc.ArgInfo, width int) x64asm.Operand {
	if info.Immediate {
		return x64asm.Operand{Kind: x64asm.OperandImm, Imm: int64(info.ImmValue), Width: width}
	}
	r := a.UseRegisterOfKind(info.Value, regalloc.KindGPR)
	return gprOperand(width, r)
}

// rebindResult re-registers the instruction's own defining binding at
// the register its first operand already occupied, since the x86 ALU
// ops above compute in place (destination == first source).
func rebindResult(a *regalloc.Allocator, in *ir.Inst, r int) {
	a.DefineValueAt(in, regalloc.KindGPR, r)
}

func emitMul(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	width := operandWidth(in.Op)
	info := a.ArgumentInfo(in)
	lhs := a.UseScratch(info[0].Value, regalloc.KindGPR)
	rhs := operandOf(a, info[1], width)
	buf.Emit("imul", gprOperand(width, lhs), rhs)
	rebindResult(a, in, lhs)
}

func emitBitwise(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	mnemonic := map[ir.Opcode]string{ir.OpAnd: "and", ir.OpEor: "xor", ir.OpOr: "or"}[in.Op]
	info := a.ArgumentInfo(in)
	lhs := a.UseScratch(info[0].Value, regalloc.KindGPR)
	rhs := operandOf(a, info[1], 32)
	buf.Emit(mnemonic, x64asm.G(x64asm.GPR(lhs)), rhs)
	rebindResult(a, in, lhs)

	if p := in.Pseudo(ir.OpGetGEFromOp); p != nil {
		dst := a.DefineValue(p, regalloc.KindGPR)
		buf.Emit("movzx_sign_byte_broadcast", x64asm.G(x64asm.GPR(dst)), x64asm.G(x64asm.GPR(lhs)))
	}
}

func emitNot(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	info := a.ArgumentInfo(in)
	v := a.UseScratch(info[0].Value, regalloc.KindGPR)
	buf.Emit("not", x64asm.G(x64asm.GPR(v)))
	rebindResult(a, in, v)
}

// emitCountLeadingZeros always emits LZCNT, which yields the bit width
// for a zero input (spec.md §4.2, "CountLeadingZeros(0) == bit
// width"). There is no BSR-based sequence for hosts without LZCNT.
func emitCountLeadingZeros(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	info := a.ArgumentInfo(in)
	v := a.UseRegisterOfKind(info[0].Value, regalloc.KindGPR)
	dst := a.DefineValue(in, regalloc.KindGPR)
	buf.Emit("lzcnt", x64asm.G(x64asm.GPR(dst)), x64asm.G(x64asm.GPR(v)))
}
