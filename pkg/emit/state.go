package emit

import (
	"github.com/vexlabs/a32jit/internal/x64asm"
	"github.com/vexlabs/a32jit/pkg/abi"
	"github.com/vexlabs/a32jit/pkg/guest"
	"github.com/vexlabs/a32jit/pkg/ir"
	"github.com/vexlabs/a32jit/pkg/regalloc"
)

// regIndexOf reads a compile-time register/lane index out of an
// instruction's first argument. The frontend always supplies these as
// immediates (spec.md §4, "GetRegister(reg)` takes reg as a literal").
func regIndexOf(in *ir.Inst) int {
	return int(in.Args[0].ImmediateValue())
}

func emitGetRegister(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	dst := a.DefineValue(in, regalloc.KindGPR)
	buf.Emit("mov", x64asm.G(x64asm.GPR(dst)), x64asm.Mem(guest.GPROffset(regIndexOf(in)), 32))
}

func emitSetRegister(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	info := a.ArgumentInfo(in)
	src := a.UseRegisterOfKind(info[1].Value, regalloc.KindGPR)
	buf.Emit("mov", x64asm.Mem(guest.GPROffset(regIndexOf(in)), 32), x64asm.G(x64asm.GPR(src)))
}

func emitGetExtendedRegister32(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	dst := a.DefineValue(in, regalloc.KindXMM)
	buf.Emit("movss", x64asm.X(x64asm.XMM(dst)), x64asm.Mem(guest.ExtendedSingleOffset(regIndexOf(in)), 32))
}

func emitSetExtendedRegister32(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	info := a.ArgumentInfo(in)
	src := a.UseRegisterOfKind(info[1].Value, regalloc.KindXMM)
	buf.Emit("movss", x64asm.Mem(guest.ExtendedSingleOffset(regIndexOf(in)), 32), x64asm.X(x64asm.XMM(src)))
}

func emitGetExtendedRegister64(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	dst := a.DefineValue(in, regalloc.KindXMM)
	buf.Emit("movsd", x64asm.X(x64asm.XMM(dst)), x64asm.Mem(guest.ExtendedDoubleOffset(regIndexOf(in)), 64))
}

func emitSetExtendedRegister64(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	info := a.ArgumentInfo(in)
	src := a.UseRegisterOfKind(info[1].Value, regalloc.KindXMM)
	buf.Emit("movsd", x64asm.Mem(guest.ExtendedDoubleOffset(regIndexOf(in)), 64), x64asm.X(x64asm.XMM(src)))
}

// emitGetGuestWord and emitSetGuestWord cover the plain 32-bit-word
// guest fields (CPSR, FPSCR, the cached FPSCR NZCV mirror) that need no
// bit-level decoding on their own — just a load or store at a fixed
// guest-state offset.
func emitGetGuestWord(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst, offset int) {
	dst := a.DefineValue(in, regalloc.KindGPR)
	buf.Emit("mov", x64asm.G(x64asm.GPR(dst)), x64asm.Mem(offset, 32))
}

func emitSetGuestWord(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst, offset int) {
	info := a.ArgumentInfo(in)
	src := a.UseRegisterOfKind(info[0].Value, regalloc.KindGPR)
	buf.Emit("mov", x64asm.Mem(offset, 32), x64asm.G(x64asm.GPR(src)))
}

// flagBit maps a single-flag opcode to its CPSR bit position.
func flagBit(op ir.Opcode) int {
	switch op {
	case ir.OpGetNFlag, ir.OpSetNFlag:
		return guest.CPSRBitN
	case ir.OpGetZFlag, ir.OpSetZFlag:
		return guest.CPSRBitZ
	case ir.OpGetCFlag, ir.OpSetCFlag:
		return guest.CPSRBitC
	default: // OpGetVFlag, OpSetVFlag
		return guest.CPSRBitV
	}
}

func emitGetFlag(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	dst := a.DefineValue(in, regalloc.KindGPR)
	buf.Emit("bt", x64asm.Mem(guest.OffsetCPSR, 32), x64asm.I(int64(flagBit(in.Op))))
	buf.Emit("setc", x64asm.G8(x64asm.GPR(dst)))
}

func emitSetFlag(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	info := a.ArgumentInfo(in)
	bit := flagBit(in.Op)
	if info[0].Immediate {
		if info[0].ImmValue != 0 {
			buf.Emit("bts", x64asm.Mem(guest.OffsetCPSR, 32), x64asm.I(int64(bit)))
		} else {
			buf.Emit("btr", x64asm.Mem(guest.OffsetCPSR, 32), x64asm.I(int64(bit)))
		}
		return
	}
	src := a.UseRegisterOfKind(info[0].Value, regalloc.KindGPR)
	buf.Emit("test", x64asm.G(x64asm.GPR(src)), x64asm.G(x64asm.GPR(src)))
	buf.Emit("btr", x64asm.Mem(guest.OffsetCPSR, 32), x64asm.I(int64(bit)))
	buf.Emit("cmovnz_bts_cpsr", x64asm.Mem(guest.OffsetCPSR, 32), x64asm.I(int64(bit)))
}

// emitOrQFlag implements the sticky saturation flag: Q is only ever
// ORed in, never cleared by this opcode (spec.md §4.2, "OrQFlag").
func emitOrQFlag(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	info := a.ArgumentInfo(in)
	if info[0].Immediate {
		if info[0].ImmValue != 0 {
			buf.Emit("bts", x64asm.Mem(guest.OffsetCPSR, 32), x64asm.I(int64(guest.CPSRBitQ)))
		}
		return
	}
	src := a.UseRegisterOfKind(info[0].Value, regalloc.KindGPR)
	buf.Emit("test", x64asm.G(x64asm.GPR(src)), x64asm.G(x64asm.GPR(src)))
	buf.Emit("cmovnz_bts_cpsr", x64asm.Mem(guest.OffsetCPSR, 32), x64asm.I(int64(guest.CPSRBitQ)))
}

func emitGetGEFlags(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	dst := a.DefineValue(in, regalloc.KindGPR)
	buf.Emit("mov", x64asm.G(x64asm.GPR(dst)), x64asm.Mem(guest.OffsetCPSR, 32))
	buf.Emit("and", x64asm.G(x64asm.GPR(dst)), x64asm.I(int64(guest.CPSRGEMask)))
}

func emitSetGEFlags(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	info := a.ArgumentInfo(in)
	src := a.UseScratch(info[0].Value, regalloc.KindGPR)
	buf.Emit("and", x64asm.G(x64asm.GPR(src)), x64asm.I(int64(guest.CPSRGEMask)))
	buf.Emit("and", x64asm.Mem(guest.OffsetCPSR, 32), x64asm.I(int64(^uint32(guest.CPSRGEMask))))
	buf.Emit("or", x64asm.Mem(guest.OffsetCPSR, 32), x64asm.G(x64asm.GPR(src)))
}

// emitBXWritePC writes a new PC and interworking mode without a host
// branch, per spec.md §4.2: bit 0 of the target becomes the new Thumb
// bit, and the stored PC is the target with that bit masked off.
func emitBXWritePC(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	info := a.ArgumentInfo(in)
	target := a.UseScratch(info[0].Value, regalloc.KindGPR)
	tFlag := a.Scratch(regalloc.KindGPR)
	buf.Emit("mov", x64asm.G(x64asm.GPR(tFlag)), x64asm.G(x64asm.GPR(target)))
	buf.Emit("and", x64asm.G(x64asm.GPR(tFlag)), x64asm.I(1))
	buf.Emit("and", x64asm.G(x64asm.GPR(target)), x64asm.I(^int64(1)))
	buf.Emit("mov", x64asm.Mem(guest.GPROffset(15), 32), x64asm.G(x64asm.GPR(target)))
	buf.Emit("btr", x64asm.Mem(guest.OffsetCPSR, 32), x64asm.I(int64(guest.CPSRBitT)))
	buf.Emit("shl", x64asm.G(x64asm.GPR(tFlag)), x64asm.I(int64(guest.CPSRBitT)))
	buf.Emit("or", x64asm.Mem(guest.OffsetCPSR, 32), x64asm.G(x64asm.GPR(tFlag)))
}

// emitCallSupervisor places the literal SVC immediate where the
// supervisor-call trampoline expects it and calls out to the host,
// saving MXCSR before the call and restoring it after (pkg/abi).
func emitCallSupervisor(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	a.HostCallPrologue(nil, nil)
	buf.Emit("mov", x64asm.G(x64asm.ArgGPR[0]), x64asm.I(int64(in.Args[0].ImmediateValue())))
	abi.SaveMXCSR(buf)
	buf.Emit("call", x64asm.Label("supervisor_call_trampoline"))
	abi.RestoreMXCSR(buf)
}

// emitPushRSB records the block's own continuation in the return-stack
// buffer at the current cursor, then advances the cursor mod RSBSize
// (spec.md §4.2, always paired with a BXWritePC in the frontend's LR
// pop pattern). The host pointer half is left zero: it is filled in
// later, the same way a LinkBlock site is, once the callee actually
// returns here and the target gets compiled.
func emitPushRSB(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	info := a.ArgumentInfo(in)
	hash := a.UseRegisterOfKind(info[0].Value, regalloc.KindGPR)
	cursor := a.Scratch(regalloc.KindGPR)
	buf.Emit("mov", x64asm.G(x64asm.GPR(cursor)), x64asm.Mem(guest.OffsetRSBCursor, 32))
	buf.Emit("and", x64asm.G(x64asm.GPR(cursor)), x64asm.I(guest.RSBSize-1))
	buf.Emit("rsb_store_location", x64asm.G(x64asm.GPR(cursor)), x64asm.G64(x64asm.GPR(hash)))
	buf.Emit("rsb_clear_pointer", x64asm.G(x64asm.GPR(cursor)))
	buf.Emit("inc", x64asm.Mem(guest.OffsetRSBCursor, 32))
}
