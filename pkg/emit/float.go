package emit

import (
	"github.com/vexlabs/a32jit/internal/x64asm"
	"github.com/vexlabs/a32jit/pkg/guest"
	"github.com/vexlabs/a32jit/pkg/ir"
	"github.com/vexlabs/a32jit/pkg/regalloc"
)

// emitFPTransfer moves raw bits between a GPR and an XMM scalar lane
// with no conversion (spec.md §4.2, "TransferToFP/TransferFromFP carry
// bit patterns, not numeric values").
func emitFPTransfer(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	info := a.ArgumentInfo(in)
	switch in.Op {
	case ir.OpTransferFromFP32:
		src := a.UseRegisterOfKind(info[0].Value, regalloc.KindXMM)
		dst := a.DefineValue(in, regalloc.KindGPR)
		buf.Emit("movd", x64asm.G(x64asm.GPR(dst)), x64asm.X(x64asm.XMM(src)))
	case ir.OpTransferFromFP64:
		src := a.UseRegisterOfKind(info[0].Value, regalloc.KindXMM)
		dst := a.DefineValue(in, regalloc.KindGPR)
		buf.Emit("movq", x64asm.G64(x64asm.GPR(dst)), x64asm.X(x64asm.XMM(src)))
	case ir.OpTransferToFP32:
		src := a.UseRegisterOfKind(info[0].Value, regalloc.KindGPR)
		dst := a.DefineValue(in, regalloc.KindXMM)
		buf.Emit("movd", x64asm.X(x64asm.XMM(dst)), x64asm.G(x64asm.GPR(src)))
	default: // OpTransferToFP64
		src := a.UseRegisterOfKind(info[0].Value, regalloc.KindGPR)
		dst := a.DefineValue(in, regalloc.KindXMM)
		buf.Emit("movq", x64asm.X(x64asm.XMM(dst)), x64asm.G64(x64asm.GPR(src)))
	}
}

func emitFPUnary(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	info := a.ArgumentInfo(in)
	v := a.UseScratch(info[0].Value, regalloc.KindXMM)
	mask := a.Scratch(regalloc.KindXMM)

	switch in.Op {
	case ir.OpFPAbs32:
		buf.Emit("fp_abs_mask32", x64asm.X(x64asm.XMM(mask)))
		buf.Emit("andps", x64asm.X(x64asm.XMM(v)), x64asm.X(x64asm.XMM(mask)))
	case ir.OpFPAbs64:
		buf.Emit("fp_abs_mask64", x64asm.X(x64asm.XMM(mask)))
		buf.Emit("andpd", x64asm.X(x64asm.XMM(v)), x64asm.X(x64asm.XMM(mask)))
	case ir.OpFPNeg32:
		buf.Emit("fp_sign_mask32", x64asm.X(x64asm.XMM(mask)))
		buf.Emit("xorps", x64asm.X(x64asm.XMM(v)), x64asm.X(x64asm.XMM(mask)))
	default: // OpFPNeg64
		buf.Emit("fp_sign_mask64", x64asm.X(x64asm.XMM(mask)))
		buf.Emit("xorpd", x64asm.X(x64asm.XMM(v)), x64asm.X(x64asm.XMM(mask)))
	}

	a.DefineValueAt(in, regalloc.KindXMM, v)
}

var fpBinaryMnemonic = map[ir.Opcode]string{
	ir.OpFPAdd32: "addss", ir.OpFPAdd64: "addsd",
	ir.OpFPSub32: "subss", ir.OpFPSub64: "subsd",
	ir.OpFPMul32: "mulss", ir.OpFPMul64: "mulsd",
	ir.OpFPDiv32: "divss", ir.OpFPDiv64: "divsd",
}

// fpBinaryWidth returns 32 or 64 depending on the binary FP opcode's
// operand size.
func fpBinaryWidth(op ir.Opcode) int {
	switch op {
	case ir.OpFPAdd64, ir.OpFPSub64, ir.OpFPMul64, ir.OpFPDiv64:
		return 64
	default:
		return 32
	}
}

// emitFTZInputBracket flushes a denormal FP source operand to a signed
// zero and sets FPSCR_IDC when FPSCR.FZ is set (spec.md §4.2 scenario
// 4: a denormal input with FTZ=1 must flush to +0 and set FPSCR_IDC).
// Host hardware FTZ has no ARM-equivalent sticky-flag side effect, so
// this has to run ahead of the hardware op rather than being left to
// MXCSR's own FTZ bit; the real per-bit logic is
// pkg/fpscr.IsDenormal32/64 + FlushToZero32/64, inlined into the
// generated host stream rather than called back into Go.
func emitFTZInputBracket(buf *x64asm.Buffer, width int, reg int) {
	mnemonic := "fp_flush_denormal_input32"
	if width == 64 {
		mnemonic = "fp_flush_denormal_input64"
	}
	buf.Emit(mnemonic, x64asm.X(x64asm.XMM(reg)), x64asm.Mem(guest.OffsetFPSCR, 32))
}

// emitFTZDNResultBracket flushes a denormal FP result (setting
// FPSCR_UFC, pkg/fpscr.FlushToZero32/64) and substitutes
// pkg/fpscr.DefaultNaN32/64 for any NaN result when FPSCR.DN is set
// (pkg/fpscr.DefaultNaNIfSet32/64) — the two checks x86 hardware has no
// configurable equivalent for.
func emitFTZDNResultBracket(buf *x64asm.Buffer, width int, reg int) {
	flushMnemonic := "fp_flush_denormal_result32"
	dnMnemonic := "fp_default_nan_if_set32"
	if width == 64 {
		flushMnemonic = "fp_flush_denormal_result64"
		dnMnemonic = "fp_default_nan_if_set64"
	}
	buf.Emit(flushMnemonic, x64asm.X(x64asm.XMM(reg)), x64asm.Mem(guest.OffsetFPSCR, 32))
	buf.Emit(dnMnemonic, x64asm.X(x64asm.XMM(reg)), x64asm.Mem(guest.OffsetFPSCR, 32))
}

// emitFPBinary assumes MXCSR's rounding-control field has already been
// set to match the guest FPSCR for the current block (pkg/abi's
// per-block MXCSR bracketing, abi.SetBlockRoundingMode) but brackets
// the hardware op itself with the software FTZ/DN checks MXCSR cannot
// perform on its own (spec.md §4.2).
func emitFPBinary(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	width := fpBinaryWidth(in.Op)
	info := a.ArgumentInfo(in)
	lhs := a.UseScratch(info[0].Value, regalloc.KindXMM)
	rhs := a.UseRegisterOfKind(info[1].Value, regalloc.KindXMM)

	emitFTZInputBracket(buf, width, lhs)
	emitFTZInputBracket(buf, width, rhs)
	buf.Emit(fpBinaryMnemonic[in.Op], x64asm.X(x64asm.XMM(lhs)), x64asm.X(x64asm.XMM(rhs)))
	emitFTZDNResultBracket(buf, width, lhs)

	a.DefineValueAt(in, regalloc.KindXMM, lhs)
}

func emitFPSqrt(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	info := a.ArgumentInfo(in)
	v := a.UseScratch(info[0].Value, regalloc.KindXMM)
	mnemonic := "sqrtss"
	if in.Op == ir.OpFPSqrt64 {
		mnemonic = "sqrtsd"
	}
	buf.Emit(mnemonic, x64asm.X(x64asm.XMM(v)), x64asm.X(x64asm.XMM(v)))
	a.DefineValueAt(in, regalloc.KindXMM, v)
}

// emitFPCompare stores the NZCV pattern for the comparison directly
// into the cached FPSCR-NZCV guest word (spec.md §4.2) using a
// ucomiss/ucomisd-plus-LAHF-derived sequence, mirroring
// fpscr.CompareNZCV32/64's host-independent reference semantics.
func emitFPCompare(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	info := a.ArgumentInfo(in)
	lhs := a.UseRegisterOfKind(info[0].Value, regalloc.KindXMM)
	rhs := a.UseRegisterOfKind(info[1].Value, regalloc.KindXMM)
	mnemonic := "ucomiss"
	if in.Op == ir.OpFPCompare64 {
		mnemonic = "ucomisd"
	}
	buf.Emit(mnemonic, x64asm.X(x64asm.XMM(lhs)), x64asm.X(x64asm.XMM(rhs)))
	buf.Emit("fp_compare_nzcv_to_mem", x64asm.Mem(guest.OffsetFPSCRNZCV, 32))
}

func emitFPPrecisionConvert(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	info := a.ArgumentInfo(in)
	src := a.UseRegisterOfKind(info[0].Value, regalloc.KindXMM)
	dst := a.DefineValue(in, regalloc.KindXMM)
	mnemonic := "cvtss2sd"
	if in.Op == ir.OpFPDoubleToSingle {
		mnemonic = "cvtsd2ss"
	}
	buf.Emit(mnemonic, x64asm.X(x64asm.XMM(dst)), x64asm.X(x64asm.XMM(src)))
}

var fpIntConvertMnemonic = map[ir.Opcode]string{
	ir.OpFPSingleToS32: "cvttss2si",
	ir.OpFPDoubleToS32: "cvttsd2si",
	ir.OpFPS32ToSingle: "cvtsi2ss",
	ir.OpFPS32ToDouble: "cvtsi2sd",
}

// emitFPIntConvert covers the S32 conversions directly with their SSE2
// instruction and the U32 conversions via a widen-to-64-then-narrow
// sequence, since x86 has no single-instruction unsigned 32-bit
// float<->int conversion.
func emitFPIntConvert(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	switch in.Op {
	case ir.OpFPSingleToS32, ir.OpFPDoubleToS32:
		info := a.ArgumentInfo(in)
		src := a.UseRegisterOfKind(info[0].Value, regalloc.KindXMM)
		dst := a.DefineValue(in, regalloc.KindGPR)
		buf.Emit(fpIntConvertMnemonic[in.Op], x64asm.G(x64asm.GPR(dst)), x64asm.X(x64asm.XMM(src)))
	case ir.OpFPS32ToSingle, ir.OpFPS32ToDouble:
		info := a.ArgumentInfo(in)
		src := a.UseRegisterOfKind(info[0].Value, regalloc.KindGPR)
		dst := a.DefineValue(in, regalloc.KindXMM)
		buf.Emit(fpIntConvertMnemonic[in.Op], x64asm.X(x64asm.XMM(dst)), x64asm.G(x64asm.GPR(src)))
	case ir.OpFPSingleToU32, ir.OpFPDoubleToU32:
		info := a.ArgumentInfo(in)
		src := a.UseRegisterOfKind(info[0].Value, regalloc.KindXMM)
		dst := a.DefineValue(in, regalloc.KindGPR)
		mnemonic := "cvttss2si64"
		if in.Op == ir.OpFPDoubleToU32 {
			mnemonic = "cvttsd2si64"
		}
		buf.Emit(mnemonic, x64asm.G64(x64asm.GPR(dst)), x64asm.X(x64asm.XMM(src)))
	default: // OpFPU32ToSingle, OpFPU32ToDouble
		info := a.ArgumentInfo(in)
		src := a.UseScratch(info[0].Value, regalloc.KindGPR)
		buf.Emit("mov32to64", x64asm.G64(x64asm.GPR(src)), x64asm.G(x64asm.GPR(src)))
		dst := a.DefineValue(in, regalloc.KindXMM)
		mnemonic := "cvtsi2ss64"
		if in.Op == ir.OpFPU32ToDouble {
			mnemonic = "cvtsi2sd64"
		}
		buf.Emit(mnemonic, x64asm.X(x64asm.XMM(dst)), x64asm.G64(x64asm.GPR(src)))
	}
}
