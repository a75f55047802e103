package ir

import (
	"math/rand/v2"

	"github.com/vexlabs/a32jit/pkg/loc"
)

// Builder assembles a Block instruction by instruction. It exists so
// that tests, the CLI demo command, and the synthetic-program
// generator below don't each re-implement Block/Inst wiring.
type Builder struct {
	block *Block
}

// NewBuilder starts building a block at the given location.
func NewBuilder(at loc.Descriptor) *Builder {
	return &Builder{block: NewBlock(at)}
}

// Emit appends an instruction with the given opcode and arguments,
// returning it so callers can reference its result as an Arg in a
// later instruction or attach pseudo-ops to it.
func (b *Builder) Emit(op Opcode, args ...Arg) *Inst {
	return b.block.Append(&Inst{Op: op, Args: args})
}

// WithPseudo attaches pseudo-ops (e.g. OpGetCarryFromOp) as children of
// parent, appending them to the block too so they occupy a program
// position for last-use tracking.
func (b *Builder) WithPseudo(parent *Inst, pseudoOps ...Opcode) []*Inst {
	out := make([]*Inst, len(pseudoOps))
	for i, op := range pseudoOps {
		p := &Inst{Op: op, Args: []Arg{Value(parent)}}
		b.block.Append(p)
		parent.PseudoOps = append(parent.PseudoOps, p)
		out[i] = p
	}
	return out
}

// Terminate sets the block's terminal and returns the finished block.
func (b *Builder) Terminate(t Terminal) *Block {
	b.block.Terminal = t
	return b.block
}

// Block returns the block built so far without finalizing a terminal
// (useful when the caller wants to inspect CycleCount etc. before
// calling Terminate).
func (b *Builder) Block() *Block { return b.block }

// randomProgramOpcodes is the subset of opcodes the synthetic generator
// draws from: opcodes with a simple, fixed, small-width argument shape
// that don't require a coprocessor or memory callback to be wired up,
// so generated programs are runnable by a32jit's demo CLI/bench
// harness out of the box.
var randomProgramOpcodes = []Opcode{
	OpGetRegister, OpSetRegister, OpAddWithCarry, OpSubWithCarry,
	OpAnd, OpOr, OpEor, OpNot, OpMul,
	OpLogicalShiftLeft, OpLogicalShiftRight, OpArithmeticShiftRight,
	OpRotateRight, OpCountLeadingZeros,
	OpSignedSaturatedAdd, OpSignedSaturatedSub,
}

// Random builds a pseudo-random straight-line block of n instructions
// rooted at loc. It is used by the bench harness (to generate varied
// compile workloads) and by table tests that want varied immediates
// without hand-enumerating every case — mirroring the teacher's use of
// math/rand/v2 in pkg/stoke/mcmc.go to seed MCMC chains.
func Random(at loc.Descriptor, n int, seed uint64) *Block {
	rng := rand.New(rand.NewPCG(seed, seed^0xA32A32A32A32A32))
	b := NewBuilder(at)

	var regs [16]*Inst
	for i := range regs {
		regs[i] = b.Emit(OpGetRegister, Imm(uint64(i), 8))
	}

	for i := 0; i < n; i++ {
		op := randomProgramOpcodes[rng.IntN(len(randomProgramOpcodes))]
		r1 := regs[rng.IntN(len(regs))]
		switch op {
		case OpGetRegister:
			continue
		case OpSetRegister:
			b.Emit(OpSetRegister, Imm(uint64(rng.IntN(16)), 8), Value(r1))
		case OpAddWithCarry, OpSubWithCarry:
			r2 := regs[rng.IntN(len(regs))]
			inst := b.Emit(op, Value(r1), Value(r2), Imm(0, 1))
			b.WithPseudo(inst, OpGetCarryFromOp, OpGetOverflowFromOp)
		case OpAnd, OpOr, OpEor, OpMul:
			r2 := regs[rng.IntN(len(regs))]
			b.Emit(op, Value(r1), Value(r2))
		case OpNot, OpCountLeadingZeros:
			b.Emit(op, Value(r1))
		case OpLogicalShiftLeft, OpLogicalShiftRight, OpArithmeticShiftRight, OpRotateRight:
			b.Emit(op, Value(r1), Imm(uint64(rng.IntN(40)), 8))
		case OpSignedSaturatedAdd, OpSignedSaturatedSub:
			r2 := regs[rng.IntN(len(regs))]
			b.Emit(op, Value(r1), Value(r2))
		}
	}

	b.Block().CycleCount = n
	return b.Terminate(ReturnToDispatch())
}
