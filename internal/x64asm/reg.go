// Package x64asm is a minimal x86-64 instruction recorder standing in
// for the "assembler primitives for encoding x86-64 instructions" that
// spec.md §1 names as a pre-existing external collaborator out of this
// backend's scope. No suitable third-party encoder library appears
// anywhere in the retrieval pack (see DESIGN.md), so this package is a
// narrow, hand-written stand-in: enough structure for pkg/regalloc and
// pkg/emit to record a host instruction stream and for pkg/term to
// enforce the fixed patch-site byte budget from spec.md §4.4, without
// attempting a general-purpose encoder.
package x64asm

// GPR identifies one of the 16 general-purpose host registers.
type GPR uint8

const (
	RAX GPR = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

var gprNames = [16]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

func (r GPR) String() string { return gprNames[r&0xF] }

// NumGPR is the number of addressable general-purpose registers.
const NumGPR = 16

// NonVolatileGPR lists the Windows x64 callee-saved GPRs, in the order
// the outer prologue pushes them (pkg/abi).
var NonVolatileGPR = []GPR{RBX, RBP, RSI, RDI, R12, R13, R14, R15}

// GuestStateReg is the fixed host register holding the guest-state
// base pointer throughout generated code (spec.md §3, §5 — "no emitter
// may clobber it"). R15 is chosen, matching the original backend's own
// convention of reserving a callee-saved, non-argument register.
const GuestStateReg = R15

// XMM identifies one of the 16 host SSE/AVX registers.
type XMM uint8

const (
	XMM0 XMM = iota
	XMM1
	XMM2
	XMM3
	XMM4
	XMM5
	XMM6
	XMM7
	XMM8
	XMM9
	XMM10
	XMM11
	XMM12
	XMM13
	XMM14
	XMM15
)

func (x XMM) String() string {
	return "xmm" + string(rune('0'+x/10)) + string(rune('0'+x%10))
}

// NumXMM is the number of addressable XMM registers.
const NumXMM = 16

// NonVolatileXMM lists the Windows x64 callee-saved XMM registers
// (XMM6-XMM15), matching the original backend's unwind-info save list.
var NonVolatileXMM = []XMM{XMM6, XMM7, XMM8, XMM9, XMM10, XMM11, XMM12, XMM13, XMM14, XMM15}

// ArgGPR lists the Windows x64 integer argument registers in order,
// consulted by pkg/regalloc's HostCallPrologue.
var ArgGPR = []GPR{RCX, RDX, R8, R9}
