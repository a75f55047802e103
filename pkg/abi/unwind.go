package abi

import "encoding/binary"

// Windows x64 UNWIND_OPCODE values (from the platform ABI, mirrored by
// original_source/src/backend_x64/unwind_windows.cpp's UNWIND_OPCODE
// enum).
const (
	uwopPushNonvol = 0
	uwopAllocLarge = 1
	uwopSaveXMM128 = 8
)

// unwindCode is one two-byte UNWIND_CODE slot: either a (CodeOffset,
// UnwindOp, OpInfo) triple or a raw FrameOffset word, matching the
// union the Windows ABI defines.
type unwindCode struct {
	codeOffset uint8
	unwindOp   uint8
	opInfo     uint8
	frameWord  *uint16 // non-nil for a raw FrameOffset slot
}

func (c unwindCode) bytes() [2]byte {
	if c.frameWord != nil {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], *c.frameWord)
		return b
	}
	return [2]byte{c.codeOffset, c.unwindOp | c.opInfo<<4}
}

// unwindBuilder accumulates UNWIND_CODE entries in the reverse-
// program-order the Windows ABI requires (last prologue instruction
// first).
type unwindBuilder struct {
	codes []unwindCode
}

func (b *unwindBuilder) pushNonvol(offset uint8, reg uint8) {
	b.codes = append(b.codes, unwindCode{codeOffset: offset, unwindOp: uwopPushNonvol, opInfo: reg})
}

func (b *unwindBuilder) allocLarge(offset uint8, size uint64) {
	words := uint16(size / 8)
	b.codes = append(b.codes, unwindCode{codeOffset: offset, unwindOp: uwopAllocLarge, opInfo: 0})
	b.codes = append(b.codes, unwindCode{frameWord: &words})
}

func (b *unwindBuilder) saveXMM128(offset uint8, reg uint8, frameOffset uint64) {
	slots := uint16(frameOffset / 16)
	b.codes = append(b.codes, unwindCode{codeOffset: offset, unwindOp: uwopSaveXMM128, opInfo: reg})
	b.codes = append(b.codes, unwindCode{frameWord: &slots})
}

// UnwindInfo holds the fields of a Windows UNWIND_INFO record plus its
// trailing UNWIND_CODE array, as raw bytes ready to be placed in the
// generated code's data section.
type UnwindInfo struct {
	PrologSize uint8
	Bytes      []byte // UNWIND_INFO header + UNWIND_CODE array, packed
}

// BuildUnwindInfo constructs the UNWIND_INFO record describing
// Prologue's push/alloc/save sequence, in the exact reverse-offset
// order original_source/unwind_windows.cpp's GetPrologueInformation
// records it (each entry's CodeOffset is the byte offset *after* the
// instruction it describes, counting backward from the end of the
// prologue).
func BuildUnwindInfo() UnwindInfo {
	b := &unwindBuilder{}

	// Reverse of Prologue's emission order: XMM saves were emitted
	// last, so they are recorded first.
	xmmSaveBytesEach := 9 // movaps [rsp+disp32], xmmN encoding length
	offset := prologueByteLength()
	for i := len(nonVolatileXMMCodes) - 1; i >= 0; i-- {
		b.saveXMM128(uint8(offset), nonVolatileXMMCodes[i], uint64(i*16))
		offset -= xmmSaveBytesEach
	}
	b.allocLarge(uint8(offset), uint64(xmmSaveAreaSize()))
	offset -= subRspBytes
	for i := len(nonVolatileGPRCodes) - 1; i >= 0; i-- {
		b.pushNonvol(uint8(offset), nonVolatileGPRCodes[i])
		offset -= pushBytes(nonVolatileGPRCodes[i])
	}

	if len(b.codes)%2 == 1 {
		var zero uint16
		b.codes = append(b.codes, unwindCode{frameWord: &zero})
	}

	buf := make([]byte, 4) // UNWIND_INFO fixed header
	buf[0] = 1              // Version = 1, Flags = 0
	buf[1] = uint8(prologueByteLength())
	buf[2] = uint8(len(b.codes))
	buf[3] = 0 // FrameRegister/FrameOffset both zero: no frame register

	for _, c := range b.codes {
		pair := c.bytes()
		buf = append(buf, pair[0], pair[1])
	}

	return UnwindInfo{PrologSize: uint8(prologueByteLength()), Bytes: buf}
}

// nonVolatileGPRCodes gives the Windows UNWIND_REGISTER_CODES value
// (RAX=0..R15=15) for each register Prologue pushes, in push order
// (RBX, RBP, RSI, RDI, R12, R13, R14, R15 — matching
// x64asm.NonVolatileGPR).
var nonVolatileGPRCodes = []uint8{3, 5, 6, 7, 12, 13, 14, 15}

var nonVolatileXMMCodes = []uint8{6, 7, 8, 9, 10, 11, 12, 13, 14, 15}

const subRspBytes = 7 // sub rsp, imm32 encoding length

func pushBytes(regCode uint8) int {
	if regCode >= 8 {
		return 2 // REX prefix + push opcode for R8-R15
	}
	return 1
}

func prologueByteLength() int {
	total := 0
	for _, r := range nonVolatileGPRCodes {
		total += pushBytes(r)
	}
	total += subRspBytes
	total += 9 * len(nonVolatileXMMCodes)
	return total
}
