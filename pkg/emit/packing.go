package emit

import (
	"github.com/vexlabs/a32jit/internal/x64asm"
	"github.com/vexlabs/a32jit/pkg/ir"
	"github.com/vexlabs/a32jit/pkg/regalloc"
)

// packingMnemonic maps the width-conversion/packing opcodes to a host
// mnemonic. Most are a single instruction on x86-64; Pack2x32To1x64
// takes two arguments and is handled separately below.
var packingMnemonic = map[ir.Opcode]string{
	ir.OpLeastSignificantWord:   "mov",
	ir.OpMostSignificantWord:    "shr_imm32",
	ir.OpLeastSignificantHalf:   "movzx16",
	ir.OpLeastSignificantByte:   "movzx8",
	ir.OpMostSignificantBit:     "shr_imm31",
	ir.OpIsZero:                 "test_sete",
	ir.OpIsZero64:               "test_sete",
	ir.OpSignExtendByteToWord:   "movsx8",
	ir.OpSignExtendHalfToWord:   "movsx16",
	ir.OpSignExtendWordToLong:   "movsxd",
	ir.OpZeroExtendByteToWord:   "movzx8",
	ir.OpZeroExtendHalfToWord:   "movzx16",
	ir.OpZeroExtendWordToLong:   "mov32to64",
	ir.OpByteReverseWord:        "bswap32",
	ir.OpByteReverseHalf:        "rol_imm8",
	ir.OpByteReverseDual:        "bswap64",
}

func emitPackingOp(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	if in.Op == ir.OpPack2x32To1x64 {
		emitPack2x32To1x64(a, buf, in)
		return
	}
	info := a.ArgumentInfo(in)
	src := a.UseRegisterOfKind(info[0].Value, regalloc.KindGPR)
	width := 32
	if in.Op == ir.OpIsZero64 {
		width = 64
	}
	dst := a.DefineValue(in, regalloc.KindGPR)
	buf.Emit(packingMnemonic[in.Op], gprOperand(width, dst), gprOperand(width, src))
}

// emitPack2x32To1x64 assembles a 64-bit value from two 32-bit halves:
// the frontend's convention (matching the original backend's
// IR::Opcode::Pack2x32To1x64) is arg0 = low word, arg1 = high word.
func emitPack2x32To1x64(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	info := a.ArgumentInfo(in)
	lo := a.UseRegisterOfKind(info[0].Value, regalloc.KindGPR)
	hi := a.UseRegisterOfKind(info[1].Value, regalloc.KindGPR)
	dst := a.DefineValue(in, regalloc.KindGPR)
	buf.Emit("mov32to64", x64asm.G64(x64asm.GPR(dst)), x64asm.G(x64asm.GPR(lo)))
	scratch := a.Scratch(regalloc.KindGPR)
	buf.Emit("mov32to64", x64asm.G64(x64asm.GPR(scratch)), x64asm.G(x64asm.GPR(hi)))
	buf.Emit("shl", x64asm.G64(x64asm.GPR(scratch)), x64asm.I(32))
	buf.Emit("or", x64asm.G64(x64asm.GPR(dst)), x64asm.G64(x64asm.GPR(scratch)))
}
