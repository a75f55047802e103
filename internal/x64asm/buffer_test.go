package x64asm

import "testing"

func TestEmitReturnsSequentialIndices(t *testing.T) {
	buf := NewBuffer()
	i0 := buf.Emit("mov", G(RAX), I(1))
	i1 := buf.Emit("add", G(RAX), I(2))
	if i0 != 0 || i1 != 1 {
		t.Errorf("Emit indices = (%d, %d), want (0, 1)", i0, i1)
	}
	if len(buf.Insts) != 2 {
		t.Errorf("len(Insts) = %d, want 2", len(buf.Insts))
	}
}

func TestPatchSitesHaveFixedSize(t *testing.T) {
	tests := []struct {
		mnemonic string
		want     int
	}{
		{"patch_jg", SizeConditionalJump},
		{"patch_jmp", SizeUnconditionalJumpOrFallback},
		{"patch_jmp_fallback", SizeUnconditionalJumpOrFallback},
		{"patch_mov_rcx", SizeMovRcxImmediate},
	}
	for _, tc := range tests {
		buf := NewBuffer()
		idx := buf.Emit(tc.mnemonic, Label("some_target"))
		if buf.Insts[idx].Size != tc.want {
			t.Errorf("%s size = %d, want %d", tc.mnemonic, buf.Insts[idx].Size, tc.want)
		}
	}
}

func TestRewritePreservesByteSize(t *testing.T) {
	buf := NewBuffer()
	idx := buf.Emit("patch_jmp", Label("trampoline"))
	before := buf.Len()

	buf.Rewrite(idx, Label("block_entry_42"))

	if buf.Len() != before {
		t.Errorf("Len() changed from %d to %d after Rewrite", before, buf.Len())
	}
	if buf.Insts[idx].Operands[0].Label != "block_entry_42" {
		t.Errorf("Rewrite did not update operand, got %q", buf.Insts[idx].Operands[0].Label)
	}
}

func TestRewriteWithDifferentSizePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Rewrite should panic when the new operands change byte size")
		}
	}()
	buf := NewBuffer()
	idx := buf.Emit("mov", G(RAX), I(1))
	buf.Rewrite(idx, G64(RAX), I(1)) // widens operand, changes encoded size
}

func TestByteOffsetOfAccumulatesPriorSizes(t *testing.T) {
	buf := NewBuffer()
	buf.Emit("patch_jg", Label("a"))
	buf.Emit("patch_jmp", Label("b"))
	off := buf.ByteOffsetOf(2)
	if off != SizeConditionalJump+SizeUnconditionalJumpOrFallback {
		t.Errorf("ByteOffsetOf(2) = %d, want %d", off, SizeConditionalJump+SizeUnconditionalJumpOrFallback)
	}
}

func TestLenSumsInstructionSizes(t *testing.T) {
	buf := NewBuffer()
	buf.Emit("patch_jg", Label("a"))
	buf.Emit("patch_mov_rcx", Label("b"))
	want := SizeConditionalJump + SizeMovRcxImmediate
	if buf.Len() != want {
		t.Errorf("Len() = %d, want %d", buf.Len(), want)
	}
}

func TestMemOperandDisplacementEscalatesSize(t *testing.T) {
	small := NewBuffer()
	small.Emit("mov", G(RAX), Mem(16, 32))

	large := NewBuffer()
	large.Emit("mov", G(RAX), Mem(1000, 32))

	if large.Len() <= small.Len() {
		t.Errorf("large-displacement Mem operand should encode longer: got %d <= %d", large.Len(), small.Len())
	}
}

func TestREXPrefixAddedForExtendedRegister(t *testing.T) {
	plain := NewBuffer()
	plain.Emit("mov", G(RAX), I(1))

	extended := NewBuffer()
	extended.Emit("mov", G(R8), I(1))

	if extended.Len() <= plain.Len() {
		t.Errorf("R8 operand should require a REX prefix byte: got %d <= %d", extended.Len(), plain.Len())
	}
}
