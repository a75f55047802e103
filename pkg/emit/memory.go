package emit

import (
	"github.com/vexlabs/a32jit/internal/x64asm"
	"github.com/vexlabs/a32jit/pkg/guest"
	"github.com/vexlabs/a32jit/pkg/ir"
	"github.com/vexlabs/a32jit/pkg/regalloc"
)

// memoryWidth returns the access width in bits for a memory opcode.
func memoryWidth(op ir.Opcode) int {
	switch op {
	case ir.OpReadMemory8, ir.OpWriteMemory8, ir.OpExclusiveWriteMemory8:
		return 8
	case ir.OpReadMemory16, ir.OpWriteMemory16, ir.OpExclusiveWriteMemory16:
		return 16
	case ir.OpReadMemory32, ir.OpWriteMemory32, ir.OpExclusiveWriteMemory32:
		return 32
	default:
		return 64
	}
}

// emitReadMemory lowers a guest load to a host-call trampoline
// (spec.md §4.2, "memory access goes through the callback interface";
// this backend has no inline page-table fast path). The address
// argument is placed in the ABI's first argument register and the
// trampoline's return value in RAX becomes the instruction's result.
func emitReadMemory(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	info := a.ArgumentInfo(in)
	addr := info[0].Value
	a.HostCallPrologue([]*ir.Inst{addr}, in)
	buf.Emit("call", x64asm.Label(memoryReadTrampoline(memoryWidth(in.Op))))
}

func memoryReadTrampoline(width int) string {
	switch width {
	case 8:
		return "memory_read8_trampoline"
	case 16:
		return "memory_read16_trampoline"
	case 32:
		return "memory_read32_trampoline"
	default:
		return "memory_read64_trampoline"
	}
}

// emitWriteMemory lowers a guest store the same way: address and value
// go into the first two ABI argument registers, no result is bound.
func emitWriteMemory(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	info := a.ArgumentInfo(in)
	addr := info[0].Value
	value := info[1].Value
	a.HostCallPrologue([]*ir.Inst{addr, value}, nil)
	buf.Emit("call", x64asm.Label(memoryWriteTrampoline(memoryWidth(in.Op))))
}

func memoryWriteTrampoline(width int) string {
	switch width {
	case 8:
		return "memory_write8_trampoline"
	case 16:
		return "memory_write16_trampoline"
	case 32:
		return "memory_write32_trampoline"
	default:
		return "memory_write64_trampoline"
	}
}

// emitSetExclusive records the address a guest LDREX/LDREXB/LDREXH/
// LDREXD tagged as its exclusive-access monitor (spec.md §4.2).
func emitSetExclusive(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	info := a.ArgumentInfo(in)
	addr := a.UseRegisterOfKind(info[0].Value, regalloc.KindGPR)
	buf.Emit("mov", x64asm.Mem(guest.OffsetExclusiveAddr, 32), x64asm.G(x64asm.GPR(addr)))
	buf.Emit("mov", x64asm.Mem(guest.OffsetExclusiveState, 32), x64asm.I(1))
}

// emitClearExclusive implements CLREX: the monitor is simply dropped,
// failing any subsequent STREX unconditionally.
func emitClearExclusive(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	buf.Emit("mov", x64asm.Mem(guest.OffsetExclusiveState, 32), x64asm.I(0))
}

// emitExclusiveWriteMemory implements STREX-family semantics: the
// store is performed only if the monitor is still set and the address
// lies in the same reservation granule (guest.ExclusiveGranuleMask) as
// the recorded exclusive address, and the result is the ARM
// convention's status code (0 on success, 1 on failure) rather than
// the stored value.
func emitExclusiveWriteMemory(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	info := a.ArgumentInfo(in)
	addr := info[0].Value
	value := info[1].Value

	addrReg := a.UseScratch(addr, regalloc.KindGPR)
	buf.Emit("cmp", x64asm.Mem(guest.OffsetExclusiveState, 32), x64asm.I(0))
	failIdx := buf.Emit("jz_exclusive_fail", x64asm.I(0))
	tmp := a.Scratch(regalloc.KindGPR)
	buf.Emit("mov", x64asm.G(x64asm.GPR(tmp)), x64asm.G(x64asm.GPR(addrReg)))
	buf.Emit("xor", x64asm.G(x64asm.GPR(tmp)), x64asm.Mem(guest.OffsetExclusiveAddr, 32))
	buf.Emit("test", x64asm.G(x64asm.GPR(tmp)), x64asm.I(int64(guest.ExclusiveGranuleMask)))
	missIdx := buf.Emit("jnz_exclusive_fail", x64asm.I(0))

	a.HostCallPrologue([]*ir.Inst{addr, value}, nil)
	buf.Emit("call", x64asm.Label(memoryWriteTrampoline(memoryWidth(in.Op))))
	buf.Emit("mov", x64asm.Mem(guest.OffsetExclusiveState, 32), x64asm.I(0))

	dst := a.DefineValue(in, regalloc.KindGPR)
	buf.Emit("mov", x64asm.G(x64asm.GPR(dst)), x64asm.I(0))
	overIdx := buf.Emit("jmp_over_exclusive_fail", x64asm.I(0))

	patchLocalJumpIn(buf, failIdx)
	patchLocalJumpIn(buf, missIdx)
	buf.Emit("mov", x64asm.G(x64asm.GPR(dst)), x64asm.I(1))
	patchLocalJumpIn(buf, overIdx)
}

// patchLocalJumpIn resolves a local-branch displacement the same way
// pkg/term's patchLocalJump does, for the handful of emitters (like
// exclusive stores) whose host code needs an in-place conditional skip
// instead of a provisional cross-block patch.
func patchLocalJumpIn(buf *x64asm.Buffer, idx int) {
	skipBytes := buf.Len() - buf.ByteOffsetOf(idx) - buf.Insts[idx].Size
	buf.Rewrite(idx, x64asm.I(int64(skipBytes)))
}
