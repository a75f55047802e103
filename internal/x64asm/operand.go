package x64asm

import "fmt"

// OperandKind distinguishes the shapes an Operand can take.
type OperandKind uint8

const (
	OperandGPR OperandKind = iota
	OperandXMM
	OperandImm
	OperandMem   // [GuestStateReg + Disp]
	OperandLabel // symbolic jump/call target, resolved at patch time
)

// Operand is one operand slot of a recorded instruction.
type Operand struct {
	Kind  OperandKind
	Reg   GPR
	XReg  XMM
	Imm   int64
	Disp  int32 // for OperandMem: byte offset from GuestStateReg
	Label string
	Width int // bits: 8/16/32/64, defaults to 32 if zero
}

// G builds a GPR operand.
func G(r GPR) Operand { return Operand{Kind: OperandGPR, Reg: r, Width: 32} }

// G8/G16/G64 build width-qualified GPR operands.
func G8(r GPR) Operand  { return Operand{Kind: OperandGPR, Reg: r, Width: 8} }
func G16(r GPR) Operand { return Operand{Kind: OperandGPR, Reg: r, Width: 16} }
func G64(r GPR) Operand { return Operand{Kind: OperandGPR, Reg: r, Width: 64} }

// X builds an XMM operand.
func X(r XMM) Operand { return Operand{Kind: OperandXMM, XReg: r} }

// I builds an immediate operand.
func I(v int64) Operand { return Operand{Kind: OperandImm, Imm: v, Width: 32} }

// Mem builds a [GuestStateReg + disp] memory operand of the given
// width in bits.
func Mem(disp int, width int) Operand {
	return Operand{Kind: OperandMem, Disp: int32(disp), Width: width}
}

// Label builds a symbolic branch-target operand. The name is recorded
// as given; a provisional patch site's label is replaced in place
// (Buffer.Rewrite) when its target is resolved or invalidated.
func Label(name string) Operand { return Operand{Kind: OperandLabel, Label: name} }

func (o Operand) String() string {
	switch o.Kind {
	case OperandGPR:
		return o.Reg.String()
	case OperandXMM:
		return o.XReg.String()
	case OperandImm:
		return fmt.Sprintf("0x%x", o.Imm)
	case OperandMem:
		return fmt.Sprintf("[gs+%#x]", o.Disp)
	case OperandLabel:
		return o.Label
	default:
		return "?"
	}
}
