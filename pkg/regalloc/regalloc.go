// Package regalloc implements the per-block register allocator
// described in spec.md §4.1: a residency map from IR values to host
// GPR/XMM registers or guest-state spill slots, queried by the
// per-opcode emitters in pkg/emit.
package regalloc

import (
	"fmt"

	"github.com/vexlabs/a32jit/internal/x64asm"
	"github.com/vexlabs/a32jit/pkg/guest"
	"github.com/vexlabs/a32jit/pkg/ir"
)

// Kind selects which host register file a value lives in.
type Kind uint8

const (
	KindGPR Kind = iota
	KindXMM
)

// locKind distinguishes where a bound value currently resides.
type locKind uint8

const (
	locNone locKind = iota
	locGPR
	locXMM
	locSpill
)

type location struct {
	kind locKind
	idx  int
}

// ArgInfo describes one instruction argument the way an opcode emitter
// consumes it: either a compile-time immediate or a reference to a
// live IR value (spec.md §4.1, "Argument info").
type ArgInfo struct {
	Immediate bool
	ImmValue  uint64
	ImmWidth  int
	Value     *ir.Inst
}

// Allocator is constructed fresh for every block (spec.md §4.1,
// "Scope": "no cross-block register residency is preserved").
type Allocator struct {
	block *ir.Block
	buf   *x64asm.Buffer

	gprOccupant [x64asm.NumGPR]*ir.Inst
	xmmOccupant [x64asm.NumXMM]*ir.Inst
	spillSlot   [guest.NumSpillSlots]*ir.Inst

	loc map[*ir.Inst]location

	// uses[v] is the sorted list of instruction indices at which v
	// appears as an argument (directly or via a pseudo-op), used to
	// find the furthest-next-use eviction victim.
	uses map[*ir.Inst][]int

	cursor int

	// pinnedGPR marks registers that must never be chosen by Scratch/
	// eviction (currently just the guest-state register).
	pinnedGPR [x64asm.NumGPR]bool

	// scratchPinned marks registers claimed by Scratch for the
	// duration of the current instruction; cleared at EndOfAllocScope.
	scratchPinnedGPR [x64asm.NumGPR]bool
	scratchPinnedXMM [x64asm.NumXMM]bool
}

// New builds an Allocator for block, recording the guest-state buffer
// it should emit reload/spill traffic into.
func New(block *ir.Block, buf *x64asm.Buffer) *Allocator {
	a := &Allocator{
		block: block,
		buf:   buf,
		loc:   make(map[*ir.Inst]location),
		uses:  make(map[*ir.Inst][]int),
	}
	a.pinnedGPR[x64asm.GuestStateReg] = true
	a.indexUses()
	return a
}

func (a *Allocator) indexUses() {
	record := func(at int, args []ir.Arg) {
		for _, arg := range args {
			if !arg.IsImmediate() {
				v := arg.ValueRef()
				a.uses[v] = append(a.uses[v], at)
			}
		}
	}
	for _, inst := range a.block.Insts {
		record(inst.Index(), inst.Args)
		for _, p := range inst.PseudoOps {
			record(inst.Index(), p.Args)
		}
	}
}

// ArgumentInfo returns one ArgInfo per argument of inst.
func (a *Allocator) ArgumentInfo(inst *ir.Inst) []ArgInfo {
	out := make([]ArgInfo, len(inst.Args))
	for i, arg := range inst.Args {
		if arg.IsImmediate() {
			out[i] = ArgInfo{Immediate: true, ImmValue: arg.ImmediateValue(), ImmWidth: arg.ImmediateWidth()}
		} else {
			out[i] = ArgInfo{Value: arg.ValueRef()}
		}
	}
	return out
}

// nextUseAfter returns the smallest use index of v strictly greater
// than pos, or -1 if v has no later use.
func (a *Allocator) nextUseAfter(v *ir.Inst, pos int) int {
	best := -1
	for _, u := range a.uses[v] {
		if u > pos && (best == -1 || u < best) {
			best = u
		}
	}
	return best
}

func (a *Allocator) hasFutureUse(v *ir.Inst) bool {
	return a.nextUseAfter(v, a.cursor) != -1
}

// UseRegisterOfKind binds v into a host register of kind k, reloading
// it from its current location if necessary, and returns the register
// index. The caller pledges not to write to the returned register
// (spec.md §4.1, "Use-register-of-kind").
func (a *Allocator) UseRegisterOfKind(v *ir.Inst, k Kind) int {
	loc, ok := a.loc[v]
	if !ok {
		panic(fmt.Sprintf("regalloc: value used before definition (op %s)", v.Op))
	}
	switch k {
	case KindGPR:
		if loc.kind == locGPR {
			return loc.idx
		}
		reg := a.allocGPR()
		a.reload(v, reg, KindGPR)
		a.bind(v, location{locGPR, reg})
		a.gprOccupant[reg] = v
		return reg
	default:
		if loc.kind == locXMM {
			return loc.idx
		}
		reg := a.allocXMM()
		a.reload(v, reg, KindXMM)
		a.bind(v, location{locXMM, reg})
		a.xmmOccupant[reg] = v
		return reg
	}
}

// UseScratch binds v into a register of kind k that the caller may
// freely overwrite. If v has further uses beyond the current
// instruction, the allocator first duplicates it into the returned
// register while the value's authoritative copy stays where it was,
// satisfying spec.md §4.1's "evicts it to a spill slot or duplicates
// it" (duplication is the cheaper of the two and is what this
// implementation always chooses when a duplicate is possible).
func (a *Allocator) UseScratch(v *ir.Inst, k Kind) int {
	src := a.UseRegisterOfKind(v, k)
	if !a.hasFutureUse(v) {
		return src
	}
	dst := a.freeRegisterOfKind(k)
	a.emitMove(k, dst, src)
	return dst
}

// Scratch allocates a fresh host register not tied to any IR value,
// valid until the next EndOfAllocScope call.
func (a *Allocator) Scratch(k Kind) int {
	r := a.freeRegisterOfKind(k)
	switch k {
	case KindGPR:
		a.scratchPinnedGPR[r] = true
	default:
		a.scratchPinnedXMM[r] = true
	}
	return r
}

// DefineValue binds a free host register of kind k as the result
// location of v (evicting an occupant if none is free) and returns it.
func (a *Allocator) DefineValue(v *ir.Inst, k Kind) int {
	r := a.freeRegisterOfKind(k)
	a.bind(v, location{kindFor(k), r})
	switch k {
	case KindGPR:
		a.gprOccupant[r] = v
	default:
		a.xmmOccupant[r] = v
	}
	return r
}

// DefineValueAt binds v as already resident in register r of kind k,
// without emitting any move: the common case for x86's destructive
// two-operand ALU ops, whose result lands in the same register as
// their first source (spec.md §4.1's residency map doesn't distinguish
// "just computed" from "just loaded" — both are simply occupancy).
// Any previous occupant of r is retired from the residency map; the
// caller is responsible for r actually holding v's correct bits.
func (a *Allocator) DefineValueAt(v *ir.Inst, k Kind, r int) int {
	switch k {
	case KindGPR:
		if old := a.gprOccupant[r]; old != nil && old != v {
			delete(a.loc, old)
		}
		a.gprOccupant[r] = v
	default:
		if old := a.xmmOccupant[r]; old != nil && old != v {
			delete(a.loc, old)
		}
		a.xmmOccupant[r] = v
	}
	a.bind(v, location{kindFor(k), r})
	return r
}

// UseWithPinnedHostLocation forces v into GPR reg (e.g. CL for a
// variable shift count, or a host-call argument slot), evicting or
// relocating any other occupant first.
func (a *Allocator) UseWithPinnedHostLocation(v *ir.Inst, reg x64asm.GPR) {
	r := int(reg)
	if occ := a.gprOccupant[r]; occ != nil && occ != v {
		a.evictGPR(r)
	}
	loc, ok := a.loc[v]
	if ok && loc.kind == locGPR && loc.idx == r {
		return
	}
	a.reload(v, r, KindGPR)
	a.bind(v, location{locGPR, r})
	a.gprOccupant[r] = v
}

// HostCallPrologue spills caller-clobbered live values, places up to
// four arguments into the ABI argument registers, and reserves RAX for
// result (spec.md §4.1, "Host-call prologue").
func (a *Allocator) HostCallPrologue(args []*ir.Inst, result *ir.Inst) {
	// Save any live value currently resident in a volatile register
	// that isn't one of the incoming arguments, so the call can't
	// clobber it.
	isArg := make(map[*ir.Inst]bool, len(args))
	for _, arg := range args {
		isArg[arg] = true
	}
	for r := 0; r < x64asm.NumGPR; r++ {
		occ := a.gprOccupant[r]
		if occ == nil || isArg[occ] || a.pinnedGPR[r] {
			continue
		}
		a.spillToSlot(occ)
	}
	for i, arg := range args {
		if i >= len(x64asm.ArgGPR) {
			panic("regalloc: host call prologue supports at most four arguments")
		}
		a.UseWithPinnedHostLocation(arg, x64asm.ArgGPR[i])
	}
	if result != nil {
		if occ := a.gprOccupant[int(x64asm.RAX)]; occ != nil && occ != result {
			a.evictGPR(int(x64asm.RAX))
		}
		a.bind(result, location{locGPR, int(x64asm.RAX)})
		a.gprOccupant[int(x64asm.RAX)] = result
	}
}

// EndOfAllocScope advances the liveness cursor past instruction idx:
// every value whose last use was idx is freed, and scratch-register
// pins taken during this instruction's emission are released.
func (a *Allocator) EndOfAllocScope(idx int) {
	a.cursor = idx
	for r := 0; r < x64asm.NumGPR; r++ {
		if v := a.gprOccupant[r]; v != nil && !a.hasFutureUse(v) && a.isLastKnownUse(v, idx) {
			delete(a.loc, v)
			a.gprOccupant[r] = nil
		}
	}
	for r := 0; r < x64asm.NumXMM; r++ {
		if v := a.xmmOccupant[r]; v != nil && !a.hasFutureUse(v) && a.isLastKnownUse(v, idx) {
			delete(a.loc, v)
			a.xmmOccupant[r] = nil
		}
	}
	for i := range a.spillSlot {
		if v := a.spillSlot[i]; v != nil && !a.hasFutureUse(v) && a.isLastKnownUse(v, idx) {
			delete(a.loc, v)
			a.spillSlot[i] = nil
		}
	}
	for r := range a.scratchPinnedGPR {
		a.scratchPinnedGPR[r] = false
	}
	for r := range a.scratchPinnedXMM {
		a.scratchPinnedXMM[r] = false
	}
}

// isLastKnownUse reports whether idx is v's defining instruction index
// or its final recorded use — i.e. whether it is safe to free v now
// that we've passed idx. A value with zero recorded uses dies
// immediately after it is defined.
func (a *Allocator) isLastKnownUse(v *ir.Inst, idx int) bool {
	uses := a.uses[v]
	if len(uses) == 0 {
		return v.Index() <= idx
	}
	last := uses[0]
	for _, u := range uses {
		if u > last {
			last = u
		}
	}
	return last <= idx
}

// AssertNoMoreUses panics if any value is still resident — the
// invariant spec.md §3 requires at block end ("After block emission,
// the allocator holds no live values").
func (a *Allocator) AssertNoMoreUses() {
	if len(a.loc) != 0 {
		panic(fmt.Sprintf("regalloc: %d value(s) still resident at block end", len(a.loc)))
	}
}

// --- internal helpers ---

func kindFor(k Kind) locKind {
	if k == KindGPR {
		return locGPR
	}
	return locXMM
}

func (a *Allocator) bind(v *ir.Inst, l location) { a.loc[v] = l }

func (a *Allocator) freeRegisterOfKind(k Kind) int {
	if k == KindGPR {
		return a.allocGPR()
	}
	return a.allocXMM()
}

func (a *Allocator) allocGPR() int {
	for r := 0; r < x64asm.NumGPR; r++ {
		if a.pinnedGPR[r] || a.scratchPinnedGPR[r] {
			continue
		}
		if a.gprOccupant[r] == nil {
			return r
		}
	}
	return a.evictFurthestGPR()
}

func (a *Allocator) allocXMM() int {
	for r := 0; r < x64asm.NumXMM; r++ {
		if a.scratchPinnedXMM[r] {
			continue
		}
		if a.xmmOccupant[r] == nil {
			return r
		}
	}
	return a.evictFurthestXMM()
}

func (a *Allocator) evictFurthestGPR() int {
	victim, victimUse := -1, -1
	for r := 0; r < x64asm.NumGPR; r++ {
		if a.pinnedGPR[r] || a.scratchPinnedGPR[r] || a.gprOccupant[r] == nil {
			continue
		}
		nu := a.nextUseAfter(a.gprOccupant[r], a.cursor)
		if nu == -1 {
			panic("regalloc: eviction candidate has no future use")
		}
		if nu > victimUse {
			victim, victimUse = r, nu
		}
	}
	if victim == -1 {
		panic("regalloc: no GPR available to evict")
	}
	a.evictGPR(victim)
	return victim
}

func (a *Allocator) evictFurthestXMM() int {
	victim, victimUse := -1, -1
	for r := 0; r < x64asm.NumXMM; r++ {
		if a.scratchPinnedXMM[r] || a.xmmOccupant[r] == nil {
			continue
		}
		nu := a.nextUseAfter(a.xmmOccupant[r], a.cursor)
		if nu == -1 {
			panic("regalloc: eviction candidate has no future use")
		}
		if nu > victimUse {
			victim, victimUse = r, nu
		}
	}
	if victim == -1 {
		panic("regalloc: no XMM register available to evict")
	}
	a.evictXMM(victim)
	return victim
}

func (a *Allocator) evictGPR(r int) {
	v := a.gprOccupant[r]
	if v == nil {
		return
	}
	a.spillToSlot(v)
	a.gprOccupant[r] = nil
}

func (a *Allocator) evictXMM(r int) {
	v := a.xmmOccupant[r]
	if v == nil {
		return
	}
	a.spillToSlot(v)
	a.xmmOccupant[r] = nil
}

func (a *Allocator) spillToSlot(v *ir.Inst) {
	slot := -1
	for i, occ := range a.spillSlot {
		if occ == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		panic("regalloc: out of spill slots")
	}
	cur := a.loc[v]
	a.buf.Emit("mov", x64asm.Mem(guest.SpillSlotOffset(slot), 64), operandOf(cur, v))
	a.spillSlot[slot] = v
	a.bind(v, location{locSpill, slot})
}

func (a *Allocator) reload(v *ir.Inst, dst int, k Kind) {
	loc, ok := a.loc[v]
	if !ok {
		return // first definition, nothing to reload
	}
	if (k == KindGPR && loc.kind == locGPR && loc.idx == dst) ||
		(k == KindXMM && loc.kind == locXMM && loc.idx == dst) {
		return
	}
	switch loc.kind {
	case locSpill:
		a.buf.Emit(loadMnemonic(k), dstOperand(k, dst), x64asm.Mem(guest.SpillSlotOffset(loc.idx), 64))
		a.spillSlot[loc.idx] = nil
	case locGPR:
		a.buf.Emit(loadMnemonic(k), dstOperand(k, dst), x64asm.G64(x64asm.GPR(loc.idx)))
		a.gprOccupant[loc.idx] = nil
	case locXMM:
		a.buf.Emit(loadMnemonic(k), dstOperand(k, dst), x64asm.X(x64asm.XMM(loc.idx)))
		a.xmmOccupant[loc.idx] = nil
	}
}

func (a *Allocator) emitMove(k Kind, dst, src int) {
	a.buf.Emit(loadMnemonic(k), dstOperand(k, dst), srcOperand(k, src))
}

func loadMnemonic(k Kind) string {
	if k == KindGPR {
		return "mov"
	}
	return "movaps"
}

func dstOperand(k Kind, r int) x64asm.Operand {
	if k == KindGPR {
		return x64asm.G(x64asm.GPR(r))
	}
	return x64asm.X(x64asm.XMM(r))
}

func srcOperand(k Kind, r int) x64asm.Operand {
	return dstOperand(k, r)
}

func operandOf(l location, v *ir.Inst) x64asm.Operand {
	switch l.kind {
	case locGPR:
		return x64asm.G64(x64asm.GPR(l.idx))
	case locXMM:
		return x64asm.X(x64asm.XMM(l.idx))
	default:
		panic(fmt.Sprintf("regalloc: value %s has no register location to spill from", v.Op))
	}
}
