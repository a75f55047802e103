package emit

import (
	"testing"

	"github.com/vexlabs/a32jit/internal/x64asm"
	"github.com/vexlabs/a32jit/pkg/ir"
	"github.com/vexlabs/a32jit/pkg/loc"
	"github.com/vexlabs/a32jit/pkg/regalloc"
)

// newHarness builds a fresh allocator/buffer pair bound to a new,
// still-empty builder block. The allocator records uses when it is
// built, so values emitted through this harness have no recorded
// later uses; a test that needs a value to stay live across
// EndOfAllocScope builds its allocator over the finished block, as
// pkg/backend does.
func newHarness() (*ir.Builder, *regalloc.Allocator, *x64asm.Buffer) {
	b := ir.NewBuilder(loc.New(0, false, false, 0))
	buf := x64asm.NewBuffer()
	a := regalloc.New(b.Block(), buf)
	return b, a, buf
}

func TestInstRejectsPseudoOpAsPrimary(t *testing.T) {
	b, a, buf := newHarness()
	reg := b.Emit(ir.OpGetRegister, ir.Imm(0, 8))
	pseudo := &ir.Inst{Op: ir.OpGetCarryFromOp, Args: []ir.Arg{ir.Value(reg)}}

	err := Inst(a, buf, pseudo)
	if err == nil {
		t.Fatal("Inst should reject a pseudo-op reached as a primary instruction")
	}
	if _, ok := err.(*BugError); !ok {
		t.Errorf("error type = %T, want *BugError", err)
	}
}

func TestInstRejectsUnknownOpcode(t *testing.T) {
	_, a, buf := newHarness()
	bogus := &ir.Inst{Op: ir.OpCodeCount + 1}
	if err := Inst(a, buf, bogus); err == nil {
		t.Fatal("Inst should reject an opcode with no registered handler")
	}
}

func TestInstVoidAndIdentityEmitNothing(t *testing.T) {
	_, a, buf := newHarness()
	before := buf.Len()
	if err := Inst(a, buf, &ir.Inst{Op: ir.OpVoid}); err != nil {
		t.Fatalf("OpVoid: %v", err)
	}
	if err := Inst(a, buf, &ir.Inst{Op: ir.OpIdentity}); err != nil {
		t.Fatalf("OpIdentity: %v", err)
	}
	if buf.Len() != before {
		t.Errorf("OpVoid/OpIdentity emitted %d bytes, want 0", buf.Len()-before)
	}
}

func TestInstBreakpointEmitsInt3(t *testing.T) {
	_, a, buf := newHarness()
	if err := Inst(a, buf, &ir.Inst{Op: ir.OpBreakpoint}); err != nil {
		t.Fatalf("OpBreakpoint: %v", err)
	}
	last := buf.Insts[len(buf.Insts)-1]
	if last.Mnemonic != "int3" {
		t.Errorf("OpBreakpoint emitted %q, want \"int3\"", last.Mnemonic)
	}
}

func TestInstGetSetRegisterRoundTrip(t *testing.T) {
	b := ir.NewBuilder(loc.New(0, false, false, 0))
	get := b.Emit(ir.OpGetRegister, ir.Imm(3, 8))
	set := b.Emit(ir.OpSetRegister, ir.Imm(5, 8), ir.Value(get))
	// Like pkg/backend, build the allocator over the finished block so
	// it knows set uses get.
	buf := x64asm.NewBuffer()
	a := regalloc.New(b.Block(), buf)

	if err := Inst(a, buf, get); err != nil {
		t.Fatalf("OpGetRegister: %v", err)
	}
	a.EndOfAllocScope(get.Index())

	if err := Inst(a, buf, set); err != nil {
		t.Fatalf("OpSetRegister: %v", err)
	}
	a.EndOfAllocScope(set.Index())
	a.AssertNoMoreUses()
}

func mnemonicsSince(buf *x64asm.Buffer, start int) []string {
	out := make([]string, 0, len(buf.Insts)-start)
	for _, in := range buf.Insts[start:] {
		out = append(out, in.Mnemonic)
	}
	return out
}

func sameMnemonics(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestInstSubWithCarryImmediateOneIsPlainSub(t *testing.T) {
	b, a, buf := newHarness()
	x := b.Emit(ir.OpGetRegister, ir.Imm(0, 8))
	y := b.Emit(ir.OpGetRegister, ir.Imm(1, 8))
	if err := Inst(a, buf, x); err != nil {
		t.Fatalf("OpGetRegister x: %v", err)
	}
	if err := Inst(a, buf, y); err != nil {
		t.Fatalf("OpGetRegister y: %v", err)
	}

	start := len(buf.Insts)
	sbc := b.Emit(ir.OpSubWithCarry, ir.Value(x), ir.Value(y), ir.Imm(1, 1))
	if err := Inst(a, buf, sbc); err != nil {
		t.Fatalf("OpSubWithCarry: %v", err)
	}
	a.EndOfAllocScope(sbc.Index())
	a.AssertNoMoreUses()

	if got, want := mnemonicsSince(buf, start), []string{"sub"}; !sameMnemonics(got, want) {
		t.Errorf("SubWithCarry(carry-in=1) emitted %v, want %v", got, want)
	}
}

func TestInstSubWithCarryImmediateZeroForcesBorrow(t *testing.T) {
	b, a, buf := newHarness()
	x := b.Emit(ir.OpGetRegister, ir.Imm(0, 8))
	y := b.Emit(ir.OpGetRegister, ir.Imm(1, 8))
	if err := Inst(a, buf, x); err != nil {
		t.Fatalf("OpGetRegister x: %v", err)
	}
	if err := Inst(a, buf, y); err != nil {
		t.Fatalf("OpGetRegister y: %v", err)
	}

	start := len(buf.Insts)
	sbc := b.Emit(ir.OpSubWithCarry, ir.Value(x), ir.Value(y), ir.Imm(0, 1))
	if err := Inst(a, buf, sbc); err != nil {
		t.Fatalf("OpSubWithCarry: %v", err)
	}
	a.EndOfAllocScope(sbc.Index())
	a.AssertNoMoreUses()

	if got, want := mnemonicsSince(buf, start), []string{"stc", "sbb"}; !sameMnemonics(got, want) {
		t.Errorf("SubWithCarry(carry-in=0) emitted %v, want %v", got, want)
	}
}

func TestInstSubWithCarryRuntimeComplementsCarryAndCarryOut(t *testing.T) {
	b, a, buf := newHarness()
	x := b.Emit(ir.OpGetRegister, ir.Imm(0, 8))
	y := b.Emit(ir.OpGetRegister, ir.Imm(1, 8))
	c := b.Emit(ir.OpGetRegister, ir.Imm(2, 8))
	if err := Inst(a, buf, x); err != nil {
		t.Fatalf("OpGetRegister x: %v", err)
	}
	if err := Inst(a, buf, y); err != nil {
		t.Fatalf("OpGetRegister y: %v", err)
	}
	if err := Inst(a, buf, c); err != nil {
		t.Fatalf("OpGetRegister c: %v", err)
	}

	start := len(buf.Insts)
	sbc := b.Emit(ir.OpSubWithCarry, ir.Value(x), ir.Value(y), ir.Value(c))
	carryOut := b.WithPseudo(sbc, ir.OpGetCarryFromOp)[0]
	if err := Inst(a, buf, sbc); err != nil {
		t.Fatalf("OpSubWithCarry: %v", err)
	}
	if err := Inst(a, buf, carryOut); err != nil {
		t.Fatalf("OpGetCarryFromOp: %v", err)
	}
	a.EndOfAllocScope(carryOut.Index())
	a.AssertNoMoreUses()

	got := mnemonicsSince(buf, start)
	want := []string{"bt", "cmc", "sbb", "setnc"}
	if !sameMnemonics(got, want) {
		t.Errorf("SubWithCarry(runtime carry-in) + carry-out emitted %v, want %v", got, want)
	}
}

func TestInstAddWithCarryUsesAdcAndSetc(t *testing.T) {
	b, a, buf := newHarness()
	x := b.Emit(ir.OpGetRegister, ir.Imm(0, 8))
	y := b.Emit(ir.OpGetRegister, ir.Imm(1, 8))
	if err := Inst(a, buf, x); err != nil {
		t.Fatalf("OpGetRegister x: %v", err)
	}
	if err := Inst(a, buf, y); err != nil {
		t.Fatalf("OpGetRegister y: %v", err)
	}

	start := len(buf.Insts)
	adc := b.Emit(ir.OpAddWithCarry, ir.Value(x), ir.Value(y), ir.Imm(1, 1))
	carryOut := b.WithPseudo(adc, ir.OpGetCarryFromOp)[0]
	if err := Inst(a, buf, adc); err != nil {
		t.Fatalf("OpAddWithCarry: %v", err)
	}
	if err := Inst(a, buf, carryOut); err != nil {
		t.Fatalf("OpGetCarryFromOp: %v", err)
	}
	a.EndOfAllocScope(carryOut.Index())
	a.AssertNoMoreUses()

	got := mnemonicsSince(buf, start)
	want := []string{"stc", "adc", "setc"}
	if !sameMnemonics(got, want) {
		t.Errorf("AddWithCarry(carry-in=1) + carry-out emitted %v, want %v", got, want)
	}
}

func TestInstPackingIsZero(t *testing.T) {
	b, a, buf := newHarness()
	get := b.Emit(ir.OpGetRegister, ir.Imm(0, 8))
	if err := Inst(a, buf, get); err != nil {
		t.Fatalf("OpGetRegister: %v", err)
	}

	isZero := b.Emit(ir.OpIsZero, ir.Value(get))
	if err := Inst(a, buf, isZero); err != nil {
		t.Fatalf("OpIsZero: %v", err)
	}
	a.EndOfAllocScope(isZero.Index())
	a.AssertNoMoreUses()
}

func TestInstPackedAdd(t *testing.T) {
	b, a, buf := newHarness()
	x := b.Emit(ir.OpGetRegister, ir.Imm(0, 8))
	y := b.Emit(ir.OpGetRegister, ir.Imm(1, 8))
	if err := Inst(a, buf, x); err != nil {
		t.Fatalf("OpGetRegister x: %v", err)
	}
	if err := Inst(a, buf, y); err != nil {
		t.Fatalf("OpGetRegister y: %v", err)
	}

	sum := b.Emit(ir.OpPackedAddU8, ir.Value(x), ir.Value(y))
	if err := Inst(a, buf, sum); err != nil {
		t.Fatalf("OpPackedAddU8: %v", err)
	}
	a.EndOfAllocScope(sum.Index())
	a.AssertNoMoreUses()
}

func TestInstFPBinaryAdd(t *testing.T) {
	b, a, buf := newHarness()
	x := b.Emit(ir.OpGetExtendedRegister32, ir.Imm(0, 8))
	y := b.Emit(ir.OpGetExtendedRegister32, ir.Imm(1, 8))
	if err := Inst(a, buf, x); err != nil {
		t.Fatalf("OpGetExtendedRegister32 x: %v", err)
	}
	if err := Inst(a, buf, y); err != nil {
		t.Fatalf("OpGetExtendedRegister32 y: %v", err)
	}

	startIdx := len(buf.Insts)
	sum := b.Emit(ir.OpFPAdd32, ir.Value(x), ir.Value(y))
	if err := Inst(a, buf, sum); err != nil {
		t.Fatalf("OpFPAdd32: %v", err)
	}
	a.EndOfAllocScope(sum.Index())
	a.AssertNoMoreUses()

	got := mnemonicsSince(buf, startIdx)
	want := []string{
		"fp_flush_denormal_input32", "fp_flush_denormal_input32",
		"addss",
		"fp_flush_denormal_result32", "fp_default_nan_if_set32",
	}
	if !sameMnemonics(got, want) {
		t.Errorf("OpFPAdd32 mnemonics = %v, want %v (FTZ/DN software bracketing around addss)", got, want)
	}
}

func TestInstFPBinaryDivDoubleUsesWidth64Bracketing(t *testing.T) {
	b, a, buf := newHarness()
	x := b.Emit(ir.OpGetExtendedRegister64, ir.Imm(0, 8))
	y := b.Emit(ir.OpGetExtendedRegister64, ir.Imm(1, 8))
	if err := Inst(a, buf, x); err != nil {
		t.Fatalf("OpGetExtendedRegister64 x: %v", err)
	}
	if err := Inst(a, buf, y); err != nil {
		t.Fatalf("OpGetExtendedRegister64 y: %v", err)
	}

	startIdx := len(buf.Insts)
	quot := b.Emit(ir.OpFPDiv64, ir.Value(x), ir.Value(y))
	if err := Inst(a, buf, quot); err != nil {
		t.Fatalf("OpFPDiv64: %v", err)
	}
	a.EndOfAllocScope(quot.Index())
	a.AssertNoMoreUses()

	got := mnemonicsSince(buf, startIdx)
	want := []string{
		"fp_flush_denormal_input64", "fp_flush_denormal_input64",
		"divsd",
		"fp_flush_denormal_result64", "fp_default_nan_if_set64",
	}
	if !sameMnemonics(got, want) {
		t.Errorf("OpFPDiv64 mnemonics = %v, want %v (FTZ/DN software bracketing around divsd)", got, want)
	}
}

func TestInstReadMemoryUsesHostCallPrologue(t *testing.T) {
	b, a, buf := newHarness()
	addr := b.Emit(ir.OpGetRegister, ir.Imm(0, 8))
	if err := Inst(a, buf, addr); err != nil {
		t.Fatalf("OpGetRegister: %v", err)
	}

	read := b.Emit(ir.OpReadMemory32, ir.Value(addr))
	if err := Inst(a, buf, read); err != nil {
		t.Fatalf("OpReadMemory32: %v", err)
	}
	a.EndOfAllocScope(read.Index())
	a.AssertNoMoreUses()

	if buf.Len() == 0 {
		t.Error("OpReadMemory32 emitted no host code")
	}
}

func TestInstCoprocGetOneWord(t *testing.T) {
	b, a, buf := newHarness()
	get := b.Emit(ir.OpCoprocGetOneWord, ir.Imm(15, 8), ir.Imm(0, 8), ir.Imm(0, 8), ir.Imm(0, 8))
	if err := Inst(a, buf, get); err != nil {
		t.Fatalf("OpCoprocGetOneWord: %v", err)
	}
	a.EndOfAllocScope(get.Index())
	a.AssertNoMoreUses()
}
