package emit

import (
	"github.com/vexlabs/a32jit/internal/x64asm"
	"github.com/vexlabs/a32jit/pkg/ir"
	"github.com/vexlabs/a32jit/pkg/regalloc"
)

// emitSaturate covers the scalar saturating-arithmetic family (spec.md
// §4.2): SignedSaturatedAdd/Sub produce a result plus an overflow
// pseudo-op the frontend feeds into OrQFlag; Unsigned/SignedSaturation
// clamp to an arbitrary bit width given as an immediate operand.
func emitSaturate(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	switch in.Op {
	case ir.OpSignedSaturatedAdd, ir.OpSignedSaturatedSub:
		emitSignedSaturatedAddSub(a, buf, in)
	default:
		emitFixedWidthSaturation(a, buf, in)
	}
}

func emitSignedSaturatedAddSub(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	info := a.ArgumentInfo(in)
	lhs := a.UseScratch(info[0].Value, regalloc.KindGPR)
	rhs := operandOf(a, info[1], 32)

	mnemonic := "add"
	if in.Op == ir.OpSignedSaturatedSub {
		mnemonic = "sub"
	}
	buf.Emit(mnemonic, x64asm.G(x64asm.GPR(lhs)), rhs)

	overflowed := a.Scratch(regalloc.KindGPR)
	buf.Emit("seto", x64asm.G8(x64asm.GPR(overflowed)))
	buf.Emit("saturate_s32_on_overflow", x64asm.G(x64asm.GPR(lhs)), x64asm.G8(x64asm.GPR(overflowed)))
	rebindResult(a, in, lhs)

	if p := in.Pseudo(ir.OpGetOverflowFromOp); p != nil {
		dst := a.DefineValue(p, regalloc.KindGPR)
		buf.Emit("mov", x64asm.G(x64asm.GPR(dst)), x64asm.G(x64asm.GPR(overflowed)))
	}
}

// emitFixedWidthSaturation clamps its first argument to the signed or
// unsigned range of the bit width given by its second, immediate
// argument, and reports via OrQFlag's paired pseudo-op whether
// clamping actually changed the value.
func emitFixedWidthSaturation(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	info := a.ArgumentInfo(in)
	val := a.UseScratch(info[0].Value, regalloc.KindGPR)
	width := info[1].ImmValue

	signed := in.Op == ir.OpSignedSaturation
	saturated := a.Scratch(regalloc.KindGPR)
	mnemonic := "saturate_unsigned_to_width"
	if signed {
		mnemonic = "saturate_signed_to_width"
	}
	buf.Emit(mnemonic, x64asm.G(x64asm.GPR(val)), x64asm.I(int64(width)), x64asm.G8(x64asm.GPR(saturated)))
	rebindResult(a, in, val)

	if p := in.Pseudo(ir.OpGetOverflowFromOp); p != nil {
		dst := a.DefineValue(p, regalloc.KindGPR)
		buf.Emit("mov", x64asm.G(x64asm.GPR(dst)), x64asm.G(x64asm.GPR(saturated)))
	}
}
