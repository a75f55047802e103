// Package loc implements the composite guest location descriptor used to
// key the translation cache and the patch registry.
package loc

import (
	"bytes"
	"encoding/gob"
)

// Descriptor is an opaque composite of guest PC, Thumb mode, endianness,
// and the FPSCR bits that affect code generation (rounding mode, FTZ,
// DN). Two descriptors with identical fields address the same compiled
// block. Descriptor is a value type: small, comparable, and safe to use
// as a map key directly (its Hash method exists for parity with the
// frontend's own hashing contract — backend code should prefer using
// Descriptor itself as a map key where possible).
type Descriptor struct {
	pc     uint32
	thumb  bool
	endian bool
	fpscr  uint32
}

// fpscrCodegenMask selects the FPSCR bits that influence code
// generation: rounding mode (bits 23-22), FTZ (bit 24), DN (bit 25).
// Other FPSCR bits (cumulative exception flags) never affect which
// host code is emitted, so they are excluded from the descriptor.
const fpscrCodegenMask = 0x03C00000

// New builds a Descriptor from its constituent fields. fpscr is masked
// down to the bits relevant to code generation before storage.
func New(pc uint32, thumb, endian bool, fpscr uint32) Descriptor {
	return Descriptor{
		pc:     pc,
		thumb:  thumb,
		endian: endian,
		fpscr:  fpscr & fpscrCodegenMask,
	}
}

// PC returns the guest program counter this descriptor addresses.
func (d Descriptor) PC() uint32 { return d.pc }

// TFlag returns the Thumb-mode bit.
func (d Descriptor) TFlag() bool { return d.thumb }

// EFlag returns the endianness bit.
func (d Descriptor) EFlag() bool { return d.endian }

// FPSCR returns the code-generation-relevant FPSCR bits.
func (d Descriptor) FPSCR() uint32 { return d.fpscr }

// Hash is a 64-bit projection suitable for map keys in contexts that
// cannot use Descriptor directly (e.g. when embedding inside a larger
// composite key). Descriptor itself already satisfies Go's comparable
// constraint, so most backend code keys maps on Descriptor directly.
func (d Descriptor) Hash() uint64 {
	h := uint64(d.pc)
	if d.thumb {
		h |= 1 << 32
	}
	if d.endian {
		h |= 1 << 33
	}
	h |= uint64(d.fpscr) << 34
	return h
}

// WithPC returns a copy of d with the PC replaced, keeping mode bits.
// Used when materializing the next location descriptor for RSB/LinkBlock
// targets whose PC is only known at terminator-emission time.
func (d Descriptor) WithPC(pc uint32) Descriptor {
	d.pc = pc
	return d
}

// gobFields mirrors Descriptor's private fields under exported names so
// encoding/gob (which only ever sees exported fields) has something to
// serialize; Descriptor itself stays unexported to keep it an opaque
// value type everywhere else.
type gobFields struct {
	PC     uint32
	Thumb  bool
	Endian bool
	FPSCR  uint32
}

// GobEncode implements gob.GobEncoder so cache snapshots round-trip a
// Descriptor's actual field values rather than an all-zero struct.
func (d Descriptor) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	fields := gobFields{PC: d.pc, Thumb: d.thumb, Endian: d.endian, FPSCR: d.fpscr}
	if err := gob.NewEncoder(&buf).Encode(fields); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder, the counterpart to GobEncode.
func (d *Descriptor) GobDecode(data []byte) error {
	var fields gobFields
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&fields); err != nil {
		return err
	}
	d.pc, d.thumb, d.endian, d.fpscr = fields.PC, fields.Thumb, fields.Endian, fields.FPSCR
	return nil
}
