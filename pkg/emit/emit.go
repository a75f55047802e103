// Package emit lowers individual IR instructions to host code, one
// opcode at a time (spec.md §4.2). This is the largest package in the
// backend: every ir.Opcode the frontend can produce has a
// corresponding case here, following the original backend's
// EmitX64::Emit<Op> naming and the teacher's giant-switch dispatch
// style (pkg/cpu/exec.go's `switch op { case inst.ADD_A_B: ... }`).
package emit

import (
	"fmt"

	"github.com/vexlabs/a32jit/internal/x64asm"
	"github.com/vexlabs/a32jit/pkg/guest"
	"github.com/vexlabs/a32jit/pkg/ir"
	"github.com/vexlabs/a32jit/pkg/regalloc"
)

// BugError marks IR the emitter cannot lower: a pseudo-op reached as a
// primary instruction, or an opcode with no registered handler. Either
// means the frontend produced malformed input (spec.md §4, "Emit
// returns an error only for malformed input IR" — never for a
// frontend/backend disagreement that valid IR could trigger).
type BugError struct {
	Op  ir.Opcode
	Msg string
}

func (e *BugError) Error() string {
	return fmt.Sprintf("emit: %s: %s", e.Op, e.Msg)
}

// Inst lowers one IR instruction to host code, appending to buf via a
// (allocator-bound) sequence of register binds, ALU ops, and guest-
// state loads/stores.
func Inst(a *regalloc.Allocator, buf *x64asm.Buffer, in *ir.Inst) error {
	if ir.IsPseudoOp(in.Op) {
		// A pseudo-op still attached to its parent (ir.Builder.WithPseudo
		// also appends it to the block) was lowered by the parent's
		// emitter; only a detached one is malformed.
		if len(in.Args) == 1 && !in.Args[0].IsImmediate() {
			if parent := in.Args[0].ValueRef(); parent != nil && parent.Pseudo(in.Op) == in {
				return nil
			}
		}
		return &BugError{Op: in.Op, Msg: "pseudo-op reached as a primary instruction"}
	}

	switch in.Op {
	// --- state access ---
	case ir.OpGetRegister:
		emitGetRegister(a, buf, in)
	case ir.OpSetRegister:
		emitSetRegister(a, buf, in)
	case ir.OpGetExtendedRegister32:
		emitGetExtendedRegister32(a, buf, in)
	case ir.OpSetExtendedRegister32:
		emitSetExtendedRegister32(a, buf, in)
	case ir.OpGetExtendedRegister64:
		emitGetExtendedRegister64(a, buf, in)
	case ir.OpSetExtendedRegister64:
		emitSetExtendedRegister64(a, buf, in)
	case ir.OpGetCpsr:
		emitGetGuestWord(a, buf, in, guest.OffsetCPSR)
	case ir.OpSetCpsr:
		emitSetGuestWord(a, buf, in, guest.OffsetCPSR)
	case ir.OpGetFpscr:
		emitGetGuestWord(a, buf, in, guest.OffsetFPSCR)
	case ir.OpSetFpscr:
		emitSetGuestWord(a, buf, in, guest.OffsetFPSCR)
	case ir.OpGetFpscrNZCV:
		emitGetGuestWord(a, buf, in, guest.OffsetFPSCRNZCV)
	case ir.OpSetFpscrNZCV:
		emitSetGuestWord(a, buf, in, guest.OffsetFPSCRNZCV)
	case ir.OpGetNFlag, ir.OpGetZFlag, ir.OpGetCFlag, ir.OpGetVFlag:
		emitGetFlag(a, buf, in)
	case ir.OpSetNFlag, ir.OpSetZFlag, ir.OpSetCFlag, ir.OpSetVFlag:
		emitSetFlag(a, buf, in)
	case ir.OpOrQFlag:
		emitOrQFlag(a, buf, in)
	case ir.OpGetGEFlags:
		emitGetGEFlags(a, buf, in)
	case ir.OpSetGEFlags:
		emitSetGEFlags(a, buf, in)
	case ir.OpBXWritePC:
		emitBXWritePC(a, buf, in)
	case ir.OpCallSupervisor:
		emitCallSupervisor(a, buf, in)
	case ir.OpPushRSB:
		emitPushRSB(a, buf, in)

	// --- packing / width conversion ---
	case ir.OpPack2x32To1x64, ir.OpLeastSignificantWord, ir.OpMostSignificantWord,
		ir.OpLeastSignificantHalf, ir.OpLeastSignificantByte, ir.OpMostSignificantBit,
		ir.OpIsZero, ir.OpIsZero64,
		ir.OpSignExtendByteToWord, ir.OpSignExtendHalfToWord, ir.OpSignExtendWordToLong,
		ir.OpZeroExtendByteToWord, ir.OpZeroExtendHalfToWord, ir.OpZeroExtendWordToLong,
		ir.OpByteReverseWord, ir.OpByteReverseHalf, ir.OpByteReverseDual:
		emitPackingOp(a, buf, in)

	// --- shifts ---
	case ir.OpLogicalShiftLeft, ir.OpLogicalShiftRight, ir.OpLogicalShiftRight64,
		ir.OpArithmeticShiftRight, ir.OpRotateRight, ir.OpRotateRightExtended:
		emitShift(a, buf, in)

	// --- integer arithmetic ---
	case ir.OpAddWithCarry, ir.OpSubWithCarry, ir.OpAdd64, ir.OpSub64:
		emitCarryArith(a, buf, in)
	case ir.OpMul, ir.OpMul64:
		emitMul(a, buf, in)
	case ir.OpAnd, ir.OpEor, ir.OpOr:
		emitBitwise(a, buf, in)
	case ir.OpNot:
		emitNot(a, buf, in)
	case ir.OpCountLeadingZeros:
		emitCountLeadingZeros(a, buf, in)

	// --- saturation ---
	case ir.OpSignedSaturatedAdd, ir.OpSignedSaturatedSub,
		ir.OpUnsignedSaturation, ir.OpSignedSaturation:
		emitSaturate(a, buf, in)

	// --- packed byte/halfword arithmetic ---
	case ir.OpPackedAddU8, ir.OpPackedAddS8, ir.OpPackedAddU16, ir.OpPackedAddS16,
		ir.OpPackedSubU8, ir.OpPackedSubS8, ir.OpPackedSubU16, ir.OpPackedSubS16,
		ir.OpPackedHalvingAddU8, ir.OpPackedHalvingAddS8, ir.OpPackedHalvingAddU16, ir.OpPackedHalvingAddS16,
		ir.OpPackedHalvingSubU8, ir.OpPackedHalvingSubS8, ir.OpPackedHalvingSubU16, ir.OpPackedHalvingSubS16,
		ir.OpPackedHalvingSubAddU16, ir.OpPackedHalvingSubAddS16,
		ir.OpPackedSaturatedAddU8, ir.OpPackedSaturatedAddS8, ir.OpPackedSaturatedSubU8, ir.OpPackedSaturatedSubS8,
		ir.OpPackedSaturatedAddU16, ir.OpPackedSaturatedAddS16, ir.OpPackedSaturatedSubU16, ir.OpPackedSaturatedSubS16,
		ir.OpPackedAbsDiffSumS8:
		emitPacked(a, buf, in)

	// --- floating point ---
	case ir.OpTransferFromFP32, ir.OpTransferFromFP64, ir.OpTransferToFP32, ir.OpTransferToFP64:
		emitFPTransfer(a, buf, in)
	case ir.OpFPAbs32, ir.OpFPAbs64, ir.OpFPNeg32, ir.OpFPNeg64:
		emitFPUnary(a, buf, in)
	case ir.OpFPAdd32, ir.OpFPAdd64, ir.OpFPSub32, ir.OpFPSub64,
		ir.OpFPMul32, ir.OpFPMul64, ir.OpFPDiv32, ir.OpFPDiv64:
		emitFPBinary(a, buf, in)
	case ir.OpFPSqrt32, ir.OpFPSqrt64:
		emitFPSqrt(a, buf, in)
	case ir.OpFPCompare32, ir.OpFPCompare64:
		emitFPCompare(a, buf, in)
	case ir.OpFPSingleToDouble, ir.OpFPDoubleToSingle:
		emitFPPrecisionConvert(a, buf, in)
	case ir.OpFPSingleToS32, ir.OpFPSingleToU32, ir.OpFPDoubleToS32, ir.OpFPDoubleToU32,
		ir.OpFPS32ToSingle, ir.OpFPU32ToSingle, ir.OpFPS32ToDouble, ir.OpFPU32ToDouble:
		emitFPIntConvert(a, buf, in)

	// --- memory / exclusive monitor ---
	case ir.OpClearExclusive:
		emitClearExclusive(a, buf, in)
	case ir.OpSetExclusive:
		emitSetExclusive(a, buf, in)
	case ir.OpReadMemory8, ir.OpReadMemory16, ir.OpReadMemory32, ir.OpReadMemory64:
		emitReadMemory(a, buf, in)
	case ir.OpWriteMemory8, ir.OpWriteMemory16, ir.OpWriteMemory32, ir.OpWriteMemory64:
		emitWriteMemory(a, buf, in)
	case ir.OpExclusiveWriteMemory8, ir.OpExclusiveWriteMemory16,
		ir.OpExclusiveWriteMemory32, ir.OpExclusiveWriteMemory64:
		emitExclusiveWriteMemory(a, buf, in)

	// --- coprocessor ---
	case ir.OpCoprocInternalOperation, ir.OpCoprocSendOneWord, ir.OpCoprocSendTwoWords,
		ir.OpCoprocGetOneWord, ir.OpCoprocGetTwoWords, ir.OpCoprocLoadWords, ir.OpCoprocStoreWords:
		emitCoproc(a, buf, in)

	case ir.OpVoid, ir.OpIdentity:
		// no host code: OpIdentity's consumers read its single argument
		// directly rather than a materialized result.
	case ir.OpBreakpoint:
		buf.Emit("int3")

	default:
		return &BugError{Op: in.Op, Msg: "no emitter registered for this opcode"}
	}
	return nil
}
