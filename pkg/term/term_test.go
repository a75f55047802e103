package term

import (
	"testing"

	"github.com/vexlabs/a32jit/internal/x64asm"
	"github.com/vexlabs/a32jit/pkg/cache"
	"github.com/vexlabs/a32jit/pkg/guest"
	"github.com/vexlabs/a32jit/pkg/ir"
	"github.com/vexlabs/a32jit/pkg/loc"
	"github.com/vexlabs/a32jit/pkg/regalloc"
)

func newCtx() (Context, *x64asm.Buffer) {
	buf := x64asm.NewBuffer()
	block := &ir.Block{}
	alloc := regalloc.New(block, buf)
	c := cache.New()
	return Context{Buf: buf, Cache: c, BlockID: c.NextBlockID(), Alloc: alloc}, buf
}

func TestEmitGuardNoopsWithoutCondition(t *testing.T) {
	ctx, buf := newCtx()
	block := &ir.Block{HasCondition: false}
	EmitGuard(ctx, block)
	if len(buf.Insts) != 0 {
		t.Errorf("EmitGuard with no condition emitted %d instructions, want 0", len(buf.Insts))
	}
}

func TestEmitGuardEmitsTestAndLink(t *testing.T) {
	ctx, buf := newCtx()
	block := &ir.Block{}
	block.SetCondition(ir.CondEQ, loc.New(0x100, false, false, 0), 1)
	EmitGuard(ctx, block)

	if len(buf.Insts) == 0 {
		t.Fatal("EmitGuard with a condition emitted no instructions")
	}
	if buf.Insts[0].Mnemonic != "test" {
		t.Errorf("first instruction = %q, want \"test\"", buf.Insts[0].Mnemonic)
	}
	if patches := ctx.Cache.PatchesFor(loc.New(0x100, false, false, 0)); len(patches) != 1 {
		t.Errorf("PatchesFor(condition-failed location) = %d entries, want 1 (the link)", len(patches))
	}
}

func TestEmitTerminatorReturnToDispatch(t *testing.T) {
	ctx, buf := newCtx()
	block := &ir.Block{Terminal: ir.ReturnToDispatch()}
	if err := EmitTerminator(ctx, block); err != nil {
		t.Fatalf("EmitTerminator: %v", err)
	}
	last := buf.Insts[len(buf.Insts)-1]
	if last.Mnemonic != "jmp" || last.Operands[0].Label != cache.TrampolineLabel {
		t.Errorf("ReturnToDispatch terminator = %+v, want jmp to trampoline", last)
	}
}

func TestEmitTerminatorLinkBlockFastRegistersPatch(t *testing.T) {
	ctx, buf := newCtx()
	next := loc.New(0x200, false, false, 0)
	block := &ir.Block{Terminal: ir.LinkBlockFast(next)}

	if err := EmitTerminator(ctx, block); err != nil {
		t.Fatalf("EmitTerminator: %v", err)
	}

	if len(buf.Insts) != 1 || buf.Insts[0].Mnemonic != "patch_jmp" {
		t.Fatalf("LinkBlockFast emitted %+v, want one patch_jmp", buf.Insts)
	}
	if patches := ctx.Cache.PatchesFor(next); len(patches) != 1 {
		t.Errorf("PatchesFor(next) = %d entries, want 1", len(patches))
	}
}

func TestEmitTerminatorLinkBlockChecksCycles(t *testing.T) {
	ctx, buf := newCtx()
	next := loc.New(0x300, false, false, 0)
	block := &ir.Block{Terminal: ir.LinkBlock(next)}

	if err := EmitTerminator(ctx, block); err != nil {
		t.Fatalf("EmitTerminator: %v", err)
	}
	if buf.Insts[0].Mnemonic != "cmp" {
		t.Errorf("first instruction = %q, want \"cmp\"", buf.Insts[0].Mnemonic)
	}
}

func TestEmitTerminatorIfGTUsesReductionNotBareMaskTest(t *testing.T) {
	ctx, buf := newCtx()
	block := &ir.Block{Terminal: ir.If(ir.CondGT, ir.ReturnToDispatch(), ir.PopRSBHint())}
	if err := EmitTerminator(ctx, block); err != nil {
		t.Fatalf("EmitTerminator: %v", err)
	}
	if buf.Insts[0].Mnemonic != "xor_reduce_nvz" {
		t.Errorf("GT condition test = %q, want \"xor_reduce_nvz\" (three-shift XOR reduction)", buf.Insts[0].Mnemonic)
	}
}

func TestEmitTerminatorIfGEUsesAndThenCompare(t *testing.T) {
	ctx, buf := newCtx()
	block := &ir.Block{Terminal: ir.If(ir.CondGE, ir.ReturnToDispatch(), ir.PopRSBHint())}
	if err := EmitTerminator(ctx, block); err != nil {
		t.Fatalf("EmitTerminator: %v", err)
	}
	if buf.Insts[0].Mnemonic != "and_align_nv" || buf.Insts[1].Mnemonic != "cmp_aligned" {
		t.Errorf("GE condition test = %+v, want and_align_nv then cmp_aligned", buf.Insts[:2])
	}
}

func TestEmitTerminatorIfHIUsesAndThenCompare(t *testing.T) {
	ctx, buf := newCtx()
	block := &ir.Block{Terminal: ir.If(ir.CondHI, ir.ReturnToDispatch(), ir.PopRSBHint())}
	if err := EmitTerminator(ctx, block); err != nil {
		t.Fatalf("EmitTerminator: %v", err)
	}
	if buf.Insts[0].Mnemonic != "and_extract_cz" || buf.Insts[1].Mnemonic != "cmp_extracted" {
		t.Errorf("HI condition test = %+v, want and_extract_cz then cmp_extracted", buf.Insts[:2])
	}
}

func TestEmitTerminatorIfEmitsBothArms(t *testing.T) {
	ctx, buf := newCtx()
	block := &ir.Block{Terminal: ir.If(ir.CondNE, ir.ReturnToDispatch(), ir.PopRSBHint())}
	if err := EmitTerminator(ctx, block); err != nil {
		t.Fatalf("EmitTerminator: %v", err)
	}

	missCount, trampolineJumps := 0, 0
	for _, in := range buf.Insts {
		if in.Mnemonic == "jne_rsb_miss" {
			missCount++
		}
		if in.Mnemonic == "jmp" && in.Operands[0].Label == cache.TrampolineLabel {
			trampolineJumps++
		}
	}
	if missCount != guest.RSBSize {
		t.Errorf("else arm (PopRSBHint) emitted %d RSB miss branches, want %d", missCount, guest.RSBSize)
	}
	if trampolineJumps != 2 {
		t.Errorf("got %d jumps to the trampoline, want 2 (PopRSBHint fallback and the ReturnToDispatch then arm)", trampolineJumps)
	}
}

func TestEmitTerminatorInterpretSetsPCAndJumps(t *testing.T) {
	ctx, buf := newCtx()
	block := &ir.Block{Terminal: ir.Interpret(0xABCD)}
	if err := EmitTerminator(ctx, block); err != nil {
		t.Fatalf("EmitTerminator: %v", err)
	}
	last := buf.Insts[len(buf.Insts)-1]
	if last.Mnemonic != "jmp" || last.Operands[0].Label != "interpreter_single_step" {
		t.Errorf("Interpret terminator ended with %+v", last)
	}
}

func TestEmitTerminatorCheckHaltFallsThroughToElse(t *testing.T) {
	ctx, buf := newCtx()
	block := &ir.Block{Terminal: ir.CheckHalt(ir.ReturnToDispatch())}
	if err := EmitTerminator(ctx, block); err != nil {
		t.Fatalf("EmitTerminator: %v", err)
	}

	trampolineJumps := 0
	for _, in := range buf.Insts {
		if in.Mnemonic == "jmp" && in.Operands[0].Label == cache.TrampolineLabel {
			trampolineJumps++
		}
	}
	if buf.Insts[1].Mnemonic != "jz_no_halt" || trampolineJumps != 2 {
		t.Errorf("CheckHalt emitted %+v, want a jz_no_halt skip over the halt return, then the else terminator", buf.Insts)
	}
}

func TestEmitTerminatorPopRSBHintScansEverySlot(t *testing.T) {
	ctx, buf := newCtx()
	block := &ir.Block{Terminal: ir.PopRSBHint()}
	if err := EmitTerminator(ctx, block); err != nil {
		t.Fatalf("EmitTerminator: %v", err)
	}

	missCount := 0
	for _, in := range buf.Insts {
		if in.Mnemonic == "jne_rsb_miss" {
			missCount++
		}
	}
	if missCount != guest.RSBSize {
		t.Errorf("PopRSBHint emitted %d miss branches, want one per RSB slot (%d)", missCount, guest.RSBSize)
	}
}

func TestPatchLocalJumpComputesForwardSkipDistance(t *testing.T) {
	buf := x64asm.NewBuffer()
	idx := buf.Emit("jz_guard_pass", x64asm.I(0))
	buf.Emit("mov", x64asm.G(x64asm.RAX), x64asm.I(1))
	buf.Emit("mov", x64asm.G(x64asm.RBX), x64asm.I(2))

	patchLocalJump(buf, idx)

	want := buf.Insts[1].Size + buf.Insts[2].Size
	if got := buf.Insts[idx].Operands[0].Imm; got != int64(want) {
		t.Errorf("patchLocalJump skip distance = %d, want %d", got, want)
	}
}
