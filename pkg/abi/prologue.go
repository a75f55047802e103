// Package abi builds the outer host-function prologue/epilogue every
// compiled block's entry trampoline shares (spec.md §6) and the
// Windows x64 unwind metadata that lets the OS walk the stack through
// generated code (SUPPLEMENTED FEATURE, from
// original_source/src/backend_x64/unwind_windows.cpp).
package abi

import (
	"github.com/vexlabs/a32jit/internal/x64asm"
)

// Prologue is the fixed instruction sequence every entry trampoline
// runs once, before any compiled block's host code: push the
// callee-saved GPRs spec.md §5 reserves (GuestStateReg among them),
// reserve stack space for non-volatile XMM spills, and save each
// non-volatile XMM register.
func Prologue(buf *x64asm.Buffer) {
	for _, r := range x64asm.NonVolatileGPR {
		buf.Emit("push", x64asm.G64(r))
	}
	buf.Emit("sub", x64asm.G64(x64asm.RSP), x64asm.I(int64(xmmSaveAreaSize())))
	for i, r := range x64asm.NonVolatileXMM {
		buf.Emit("movaps", x64asm.Mem(i*16, 128), x64asm.X(r))
	}
}

// Epilogue reverses Prologue in the mirrored order the Windows x64
// unwind convention requires (restore in exactly the reverse order of
// the saves that produced the UNWIND_CODE table — see BuildUnwindInfo).
func Epilogue(buf *x64asm.Buffer) {
	for i := len(x64asm.NonVolatileXMM) - 1; i >= 0; i-- {
		buf.Emit("movaps", x64asm.X(x64asm.NonVolatileXMM[i]), x64asm.Mem(i*16, 128))
	}
	buf.Emit("add", x64asm.G64(x64asm.RSP), x64asm.I(int64(xmmSaveAreaSize())))
	for i := len(x64asm.NonVolatileGPR) - 1; i >= 0; i-- {
		buf.Emit("pop", x64asm.G64(x64asm.NonVolatileGPR[i]))
	}
	buf.Emit("ret")
}

// xmmSaveAreaSize is the stack space Prologue/Epilogue reserve for the
// non-volatile XMM save area: one 16-byte-aligned slot per register.
func xmmSaveAreaSize() int {
	return 16 * len(x64asm.NonVolatileXMM)
}
