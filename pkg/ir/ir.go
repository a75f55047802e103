package ir

import "github.com/vexlabs/a32jit/pkg/loc"

// Arg is one operand of an IR instruction: either a compile-time
// immediate or a reference to the value produced by a prior
// instruction in the same block (spec.md §3).
type Arg struct {
	isImmediate bool
	immediate   uint64
	width       int // bits, for immediates
	value       *Inst
}

// Imm builds an immediate argument of the given bit width.
func Imm(value uint64, width int) Arg {
	return Arg{isImmediate: true, immediate: value, width: width}
}

// Value builds an argument referencing a prior instruction's result.
func Value(src *Inst) Arg {
	return Arg{value: src}
}

// IsImmediate reports whether this argument is a compile-time constant.
func (a Arg) IsImmediate() bool { return a.isImmediate }

// ImmediateValue returns the immediate's raw bits. Only valid if
// IsImmediate is true.
func (a Arg) ImmediateValue() uint64 { return a.immediate }

// ImmediateWidth returns the immediate's declared bit width.
func (a Arg) ImmediateWidth() int { return a.width }

// ValueRef returns the defining instruction of a value argument. Only
// valid if IsImmediate is false.
func (a Arg) ValueRef() *Inst { return a.value }

// Inst is a single IR instruction: an opcode, its arguments, and any
// pseudo-operations that read out side-effect flags (carry, overflow,
// GE) produced by this instruction (spec.md §3). Inst is always
// referenced by pointer once placed in a Block so that Arg.ValueRef
// identity comparisons are meaningful.
type Inst struct {
	Op        Opcode
	Args      []Arg
	PseudoOps []*Inst

	// index is this instruction's position in its Block, used to
	// compute last-use distance for the register allocator's eviction
	// policy. Set by Block.Append.
	index int
}

// Index returns the instruction's program-order position within its
// block.
func (i *Inst) Index() int { return i.index }

// Pseudo looks up a pseudo-op of the given opcode among this
// instruction's children, returning nil if none was requested by the
// frontend. Opcode emitters use this to decide whether to materialize
// a carry/overflow/GE side effect.
func (i *Inst) Pseudo(op Opcode) *Inst {
	for _, p := range i.PseudoOps {
		if p.Op == op {
			return p
		}
	}
	return nil
}

// ConditionCode enumerates the ARM condition codes a block's guard may
// test, and the condition of a conditional terminator branch.
type ConditionCode uint8

const (
	CondEQ ConditionCode = iota
	CondNE
	CondCS
	CondCC
	CondMI
	CondPL
	CondVS
	CondVC
	CondHI
	CondLS
	CondGE
	CondLT
	CondGT
	CondLE
	CondAL
	CondNV
)

// Terminal is the sum type describing how a block ends (spec.md §4.4).
// Exactly one of the typed fields is meaningful, selected by Kind —
// this models spec.md §9's "pattern match on the Terminal variant"
// design note without requiring Go's (nonexistent) tagged unions.
type TerminalKind uint8

const (
	TermReturnToDispatch TerminalKind = iota
	TermLinkBlock
	TermLinkBlockFast
	TermPopRSBHint
	TermIf
	TermInterpret
	TermCheckHalt
)

// Terminal describes a block's terminator. Construct with the
// Return/Link/LinkFast/PopRSB/IfCond/Interpret/CheckHalt helpers below
// rather than building the struct literal directly.
type Terminal struct {
	Kind TerminalKind

	// LinkBlock / LinkBlockFast
	Next loc.Descriptor

	// If / CheckHalt
	Cond ConditionCode
	Then *Terminal
	Else *Terminal

	// Interpret
	InterpretPC uint32
}

// ReturnToDispatch builds a terminal that jumps to the return
// trampoline, handing control back to the outer run loop.
func ReturnToDispatch() Terminal { return Terminal{Kind: TermReturnToDispatch} }

// LinkBlock builds a terminal that chains to next if cycles remain,
// else returns to dispatch after storing next's PC.
func LinkBlock(next loc.Descriptor) Terminal {
	return Terminal{Kind: TermLinkBlock, Next: next}
}

// LinkBlockFast builds an unconditional chain to next, used for hot
// paths where the cycle check has already been accounted for.
func LinkBlockFast(next loc.Descriptor) Terminal {
	return Terminal{Kind: TermLinkBlockFast, Next: next}
}

// PopRSBHint builds a terminal that consults the return-stack buffer.
func PopRSBHint() Terminal { return Terminal{Kind: TermPopRSBHint} }

// If builds a conditional terminal: then_ is taken if cond holds at
// runtime, else_ otherwise.
func If(cond ConditionCode, then_, else_ Terminal) Terminal {
	return Terminal{Kind: TermIf, Cond: cond, Then: &then_, Else: &else_}
}

// Interpret builds a terminal that falls through to the interpreter
// for the instruction at pc, then returns to dispatch.
func Interpret(pc uint32) Terminal {
	return Terminal{Kind: TermInterpret, InterpretPC: pc}
}

// CheckHalt builds a terminal that polls the halt-request flag,
// taking else_ if no halt is pending.
func CheckHalt(else_ Terminal) Terminal {
	return Terminal{Kind: TermCheckHalt, Else: &else_}
}

// Block is a linear sequence of IR instructions ending in a
// terminator (spec.md §3).
type Block struct {
	Location        loc.Descriptor
	Insts           []*Inst
	HasCondition    bool
	Condition       ConditionCode
	CondFailedLoc   loc.Descriptor
	CycleCount      int
	CondFailCycles  int
	Terminal        Terminal

	// EndPC is the guest address one past this block's last guest
	// instruction, the exclusive upper bound pkg/cache.InvalidateRange
	// compares against (spec.md §4.3). Set by whatever constructs the
	// block (frontend or test fixture) once the guest instruction
	// stream it covers is known.
	EndPC uint32
}

// NewBlock creates an empty, unconditional block at the given
// location.
func NewBlock(at loc.Descriptor) *Block {
	return &Block{Location: at, Terminal: ReturnToDispatch()}
}

// Append adds inst to the block in program order and returns it, for
// convenient chaining (`v := b.Append(&ir.Inst{...})`).
func (b *Block) Append(inst *Inst) *Inst {
	inst.index = len(b.Insts)
	b.Insts = append(b.Insts, inst)
	return inst
}

// SetCondition marks the block as predicated: cond must hold at
// runtime or execution falls through to condFailed, having charged
// condFailCycles cycles.
func (b *Block) SetCondition(cond ConditionCode, condFailed loc.Descriptor, condFailCycles int) {
	b.HasCondition = true
	b.Condition = cond
	b.CondFailedLoc = condFailed
	b.CondFailCycles = condFailCycles
}
