package x64asm

// Inst is one recorded host instruction: a mnemonic and its operands,
// plus the byte length it was assigned when appended (see sizeOf:
// immediate values and label names never change it — this is what
// lets pkg/term satisfy spec.md §4.4's patch-size discipline).
type Inst struct {
	Mnemonic string
	Operands []Operand
	Size     int
}

// Buffer accumulates a host instruction stream for one IR block. It is
// reset at every block boundary (pkg/regalloc's allocator is likewise
// per-block — spec.md §4.1 "Scope").
type Buffer struct {
	Insts []Inst
}

// NewBuffer returns an empty instruction buffer.
func NewBuffer() *Buffer { return &Buffer{} }

// Emit appends one instruction and returns its index in Insts, which
// callers use later as a patch-site reference.
func (b *Buffer) Emit(mnemonic string, operands ...Operand) int {
	idx := len(b.Insts)
	b.Insts = append(b.Insts, Inst{
		Mnemonic: mnemonic,
		Operands: operands,
		Size:     sizeOf(mnemonic, operands),
	})
	return idx
}

// Len returns the total encoded byte length of the buffer so far.
func (b *Buffer) Len() int {
	total := 0
	for _, in := range b.Insts {
		total += in.Size
	}
	return total
}

// ByteOffsetOf returns the byte offset at which instruction idx begins.
func (b *Buffer) ByteOffsetOf(idx int) int {
	off := 0
	for i := 0; i < idx; i++ {
		off += b.Insts[i].Size
	}
	return off
}

// Rewrite replaces the operands of an already-emitted instruction
// in place, keeping its mnemonic and therefore its byte size fixed —
// the legal mutation spec.md §4.4 describes for patch sites.
func (b *Buffer) Rewrite(idx int, operands ...Operand) {
	in := &b.Insts[idx]
	newSize := sizeOf(in.Mnemonic, operands)
	if newSize != in.Size {
		panic("x64asm: Rewrite changed byte length of a patch site")
	}
	in.Operands = operands
}

// fixed patch-site byte budgets, named directly in spec.md §4.4.
const (
	SizeConditionalJump = 6
	SizeUnconditionalJumpOrFallback = 13
	SizeMovRcxImmediate = 10
)

// sizeOf assigns a deterministic byte length to an instruction from its
// mnemonic, its operand kinds and widths, whether a REX prefix is
// needed (64-bit width or R8-R15) and whether a memory displacement
// fits in disp8. Immediate values and label names never affect it, so
// rewriting a patch site's target never changes the instruction's
// length. The numbers approximate real x86-64 encoding lengths closely
// enough to be plausible without claiming byte-exact correctness,
// which is the assembler's job (out of scope per spec.md §1).
func sizeOf(mnemonic string, ops []Operand) int {
	switch mnemonic {
	case "patch_jg":
		return SizeConditionalJump
	case "patch_jmp", "patch_jmp_fallback":
		return SizeUnconditionalJumpOrFallback
	case "patch_mov_rcx":
		return SizeMovRcxImmediate
	}

	size := 2 // opcode + modrm baseline
	hasREX := false
	for _, o := range ops {
		if o.Width == 64 || (o.Kind == OperandGPR && o.Reg >= R8) {
			hasREX = true
		}
		switch o.Kind {
		case OperandMem:
			size += 1 // disp8 common case; guest-state disps are small
			if o.Disp < -128 || o.Disp > 127 {
				size += 3 // escalate to disp32
			}
		case OperandImm:
			switch o.Width {
			case 8:
				size += 1
			case 16:
				size += 2
			case 64:
				size += 8
			default:
				size += 4
			}
		case OperandLabel:
			size += 4 // rel32
		}
	}
	if hasREX {
		size++
	}
	return size
}
