package term

import (
	"github.com/vexlabs/a32jit/internal/x64asm"
	"github.com/vexlabs/a32jit/pkg/cache"
	"github.com/vexlabs/a32jit/pkg/guest"
	"github.com/vexlabs/a32jit/pkg/loc"
	"github.com/vexlabs/a32jit/pkg/regalloc"
)

// emitLinkBlock emits a provisional jump to next: patch_jmp, resolved
// immediately if next is already compiled or left pointing at the
// trampoline otherwise. The site is registered with the cache so a
// later compile of next (or its invalidation) rewrites it in place
// (spec.md §4.3, §4.4).
func emitLinkBlock(ctx Context, next loc.Descriptor) {
	idx := ctx.Buf.Emit("patch_jmp", x64asm.Label(cache.TrampolineLabel))
	ctx.Cache.RegisterPatch(next, cache.PatchUnconditionalJump, ctx.BlockID, idx)
}

// storeTargetAndReturn stashes next's location so the dispatcher's run
// loop knows where to resume, then returns to it. Used by LinkBlock
// when the cycle budget has been exhausted.
func storeTargetAndReturn(ctx Context, next loc.Descriptor) {
	idx := ctx.Buf.Emit("patch_mov_rcx", x64asm.I(int64(next.PC())))
	ctx.Cache.RegisterPatch(next, cache.PatchMovRcxImmediate, ctx.BlockID, idx)
	emitReturnToDispatch(ctx)
}

// emitPopRSBHint scans the return-stack buffer's RSBSize parallel
// entries for one whose stored location hash matches the value most
// recently pushed by the BXWritePC/OpPushRSB pair, jumping through its
// stored host pointer on a hit and falling back to the dispatcher if
// none match. Unlike LinkBlock, RSB slots hold a concrete host pointer
// captured at push time — there is nothing to patch later, so this
// reads straight out of guest state instead of registering with the
// cache (spec.md §4.4, "RSB hint").
func emitPopRSBHint(ctx Context) {
	candidate := ctx.Alloc.Scratch(regalloc.KindGPR)
	ctx.Buf.Emit("mov", x64asm.G64(x64asm.GPR(candidate)), x64asm.Mem(guest.RSBLocationOffset(0), 64))
	for i := 0; i < guest.RSBSize; i++ {
		ctx.Buf.Emit("cmp", x64asm.Mem(guest.RSBLocationOffset(i), 64), x64asm.G64(x64asm.GPR(candidate)))
		missIdx := ctx.Buf.Emit("jne_rsb_miss", x64asm.I(0))
		ctx.Buf.Emit("jmp_indirect", x64asm.Mem(guest.RSBPointerOffset(i), 64))
		patchLocalJump(ctx.Buf, missIdx)
	}
	emitReturnToDispatch(ctx)
}
