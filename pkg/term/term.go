// Package term emits the host code for a block's terminator (spec.md
// §4.4): the guard prelude for conditionally-executed blocks, and the
// dispatch on ir.Terminal that decides between falling back to the
// dispatcher, chaining directly into another compiled block, or
// consulting the return-stack buffer.
//
// Grounded on the original backend's EmitTerminal overload set and its
// EmitPatchJg/EmitPatchJmp/EmitPatchMovRcx trio (original_source/
// emit_x64.cpp), expressed here as a type-switch over ir.TerminalKind
// in the teacher's giant-switch dispatch style (pkg/cpu/exec.go).
package term

import (
	"fmt"

	"github.com/vexlabs/a32jit/internal/x64asm"
	"github.com/vexlabs/a32jit/pkg/cache"
	"github.com/vexlabs/a32jit/pkg/guest"
	"github.com/vexlabs/a32jit/pkg/ir"
	"github.com/vexlabs/a32jit/pkg/loc"
	"github.com/vexlabs/a32jit/pkg/regalloc"
)

// Context bundles everything terminator emission needs: the buffer to
// append to, the cache to register provisional patches against, and
// the compiling block's own synthetic identity (for self-referential
// patches, e.g. a tight single-block loop).
type Context struct {
	Buf     *x64asm.Buffer
	Cache   *cache.Cache
	BlockID int
	Alloc   *regalloc.Allocator
}

// EmitGuard writes block's predicate-condition prelude, if it has one.
// The caller (pkg/backend) emits this before any of the block's own
// ir.Insts: on a condition mismatch, it charges CondFailCycles and
// links straight to CondFailedLoc, skipping the block body entirely;
// on a match it falls through into the body (spec.md §4.4, "predicated
// block guard").
func EmitGuard(ctx Context, block *ir.Block) {
	if !block.HasCondition {
		return
	}
	passIdx := emitCondBranch(ctx, uint8(block.Condition), "guard_pass")
	// Condition failed: charge the cheaper cycle count, link straight to
	// the failure location (skipping the body the pass branch falls
	// into), same mechanism an unconditional LinkBlockFast uses.
	ctx.Buf.Emit("sub", x64asm.Mem(guest.OffsetCyclesRemaining, 32), x64asm.I(int64(block.CondFailCycles)))
	emitLinkBlock(ctx, block.CondFailedLoc)
	patchLocalJump(ctx.Buf, passIdx)
}

// EmitTerminator writes the host code for block's terminator. The
// caller emits this after all of block's ir.Insts.
func EmitTerminator(ctx Context, block *ir.Block) error {
	return emitTerminal(ctx, &block.Terminal)
}

func emitTerminal(ctx Context, t *ir.Terminal) error {
	switch t.Kind {
	case ir.TermReturnToDispatch:
		emitReturnToDispatch(ctx)
		return nil
	case ir.TermLinkBlock:
		emitLinkBlockChecked(ctx, t.Next)
		return nil
	case ir.TermLinkBlockFast:
		emitLinkBlock(ctx, t.Next)
		return nil
	case ir.TermPopRSBHint:
		emitPopRSBHint(ctx)
		return nil
	case ir.TermIf:
		return emitIf(ctx, t)
	case ir.TermInterpret:
		emitInterpret(ctx, t.InterpretPC)
		return nil
	case ir.TermCheckHalt:
		return emitCheckHalt(ctx, t)
	default:
		return fmt.Errorf("term: unhandled terminal kind %d", t.Kind)
	}
}

// emitCondBranch appends the host test for ARM condition cc and a
// placeholder conditional jump to "<truePrefix>", returning its index
// for the caller to patch (via patchLocalJump) once the skip distance
// is known. The host sequence depends on the condition's CondKind
// (guest.CondTest): a single flag bit is a direct test; HI/LS and GE/LT
// are and-then-compare (mask out the relevant bits, then compare the
// extracted field against the pattern — or, for GE/LT, the alignment —
// that means "true", since a bare nonzero test cannot express C&&!Z or
// N==V); GT/LE fold N, V, and Z together with a shift/XOR reduction
// first because a third flag is involved.
func emitCondBranch(ctx Context, cc uint8, truePrefix string) int {
	entry := guest.CondTest(cc)
	cpsr := x64asm.Mem(guest.OffsetCPSR, 32)

	switch entry.Kind {
	case guest.CondKindAlways:
		if entry.Invert {
			// NV: architecturally unpredictable, treated as always-false.
			// Emit a test that can never be satisfied so the caller's
			// placeholder jump is simply never taken.
			ctx.Buf.Emit("test", cpsr, x64asm.I(0))
			return ctx.Buf.Emit("jnz_"+truePrefix, x64asm.I(0))
		}
		return ctx.Buf.Emit("jmp_"+truePrefix, x64asm.I(0))

	case guest.CondKindBit:
		ctx.Buf.Emit("test", cpsr, x64asm.I(int64(entry.Mask)))
		if entry.Invert {
			return ctx.Buf.Emit("jz_"+truePrefix, x64asm.I(0))
		}
		return ctx.Buf.Emit("jnz_"+truePrefix, x64asm.I(0))

	case guest.CondKindHiLs:
		ctx.Buf.Emit("and_extract_cz", cpsr, x64asm.I(int64(entry.Mask)))
		ctx.Buf.Emit("cmp_extracted", x64asm.I(int64(entry.Want)))
		if entry.Invert {
			return ctx.Buf.Emit("jne_"+truePrefix, x64asm.I(0))
		}
		return ctx.Buf.Emit("je_"+truePrefix, x64asm.I(0))

	case guest.CondKindGeLt:
		ctx.Buf.Emit("and_align_nv", cpsr, x64asm.I(int64(entry.Mask)))
		ctx.Buf.Emit("cmp_aligned", x64asm.I(0))
		if entry.Invert {
			return ctx.Buf.Emit("jne_"+truePrefix, x64asm.I(0))
		}
		return ctx.Buf.Emit("je_"+truePrefix, x64asm.I(0))

	default: // guest.CondKindGtLe
		ctx.Buf.Emit("xor_reduce_nvz", cpsr, x64asm.I(int64(entry.Mask)))
		if entry.Invert {
			return ctx.Buf.Emit("jnz_"+truePrefix, x64asm.I(0))
		}
		return ctx.Buf.Emit("jz_"+truePrefix, x64asm.I(0))
	}
}

// emitReturnToDispatch unconditionally hands control back to the
// dispatcher's run loop.
func emitReturnToDispatch(ctx Context) {
	ctx.Buf.Emit("jmp", x64asm.Label(cache.TrampolineLabel))
}

// emitLinkBlockChecked is TermLinkBlock: with the block's own cycle
// cost already charged (pkg/backend subtracts CycleCount before the
// terminator), either chain directly (cycles remain) or return to
// dispatch having stashed the target so the run loop resumes there
// (spec.md §4.4, "LinkBlock decrements cycles-remaining before
// deciding whether to chain").
func emitLinkBlockChecked(ctx Context, next loc.Descriptor) {
	ctx.Buf.Emit("cmp", x64asm.Mem(guest.OffsetCyclesRemaining, 32), x64asm.I(0))
	keepGoingIdx := ctx.Buf.Emit("jg_keep_going", x64asm.I(0))
	storeTargetAndReturn(ctx, next)
	patchLocalJump(ctx.Buf, keepGoingIdx)
	emitLinkBlock(ctx, next)
}

func emitInterpret(ctx Context, pc uint32) {
	ctx.Buf.Emit("mov", x64asm.Mem(guest.GPROffset(15), 32), x64asm.I(int64(pc)))
	ctx.Buf.Emit("jmp", x64asm.Label("interpreter_single_step"))
}

func emitIf(ctx Context, t *ir.Terminal) error {
	thenIdx := emitCondBranch(ctx, uint8(t.Cond), "then")
	if err := emitTerminal(ctx, t.Else); err != nil {
		return err
	}
	overIdx := ctx.Buf.Emit("jmp_over_then", x64asm.I(0))
	patchLocalJump(ctx.Buf, thenIdx)
	if err := emitTerminal(ctx, t.Then); err != nil {
		return err
	}
	patchLocalJump(ctx.Buf, overIdx)
	return nil
}

func emitCheckHalt(ctx Context, t *ir.Terminal) error {
	ctx.Buf.Emit("test", x64asm.Mem(guest.OffsetHaltRequested, 32), x64asm.I(1))
	skipIdx := ctx.Buf.Emit("jz_no_halt", x64asm.I(0))
	emitReturnToDispatch(ctx)
	patchLocalJump(ctx.Buf, skipIdx)
	return emitTerminal(ctx, t.Else)
}

// patchLocalJump rewrites a local (intra-buffer) conditional or
// unconditional jump placeholder to skip exactly the instructions
// emitted since it, keeping the instruction's mnemonic (and therefore
// its byte size, per x64asm.Buffer.Rewrite) unchanged.
func patchLocalJump(buf *x64asm.Buffer, idx int) {
	skipBytes := buf.Len() - buf.ByteOffsetOf(idx) - buf.Insts[idx].Size
	buf.Rewrite(idx, x64asm.I(int64(skipBytes)))
}
