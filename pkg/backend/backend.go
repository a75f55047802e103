// Package backend orchestrates one block's compilation end to end
// (spec.md §2, §6): allocate a fresh register allocator and
// instruction buffer, run the per-opcode emitters over the block's
// IR, emit the guard prelude and terminator, and install the result in
// the shared translation cache.
//
// Grounded on the teacher's pkg/search/search.go Run(cfg) *Table
// top-level pipeline shape, generalized from "search every target
// sequence" to "compile one IR block."
package backend

import (
	"fmt"

	"github.com/vexlabs/a32jit/internal/x64asm"
	"github.com/vexlabs/a32jit/pkg/abi"
	"github.com/vexlabs/a32jit/pkg/cache"
	"github.com/vexlabs/a32jit/pkg/emit"
	"github.com/vexlabs/a32jit/pkg/guest"
	"github.com/vexlabs/a32jit/pkg/ir"
	"github.com/vexlabs/a32jit/pkg/loc"
	"github.com/vexlabs/a32jit/pkg/regalloc"
	"github.com/vexlabs/a32jit/pkg/term"
)

// Backend owns the shared translation cache and compiles blocks into
// it. It has no other mutable state: every compile uses a fresh
// Allocator and Buffer (spec.md §4.1, "no cross-block register
// residency is preserved").
type Backend struct {
	Cache *cache.Cache
}

// New returns a Backend with an empty translation cache.
func New() *Backend {
	return &Backend{Cache: cache.New()}
}

// Emit compiles block, installs it in the cache, and returns its
// descriptor. Compilation never fails on well-formed IR (spec.md §4,
// "Emit returns an error only for malformed input IR"); the returned
// error wraps either an *emit.BugError or pkg/term's unhandled-terminal
// error.
func (b *Backend) Emit(block *ir.Block) (cache.BlockDescriptor, error) {
	id := b.Cache.NextBlockID()
	buf := x64asm.NewBuffer()
	alloc := regalloc.New(block, buf)

	ctx := term.Context{Buf: buf, Cache: b.Cache, BlockID: id, Alloc: alloc}

	abi.SetBlockRoundingMode(buf)
	term.EmitGuard(ctx, block)

	for _, inst := range block.Insts {
		if err := emit.Inst(alloc, buf, inst); err != nil {
			return cache.BlockDescriptor{}, fmt.Errorf("backend: block at pc=%#x: %w", block.Location.PC(), err)
		}
		alloc.EndOfAllocScope(inst.Index())
	}

	// Charge the block's cycle cost before the terminator, whose
	// LinkBlock check reads the remaining count.
	buf.Emit("sub", x64asm.Mem(guest.OffsetCyclesRemaining, 32), x64asm.I(int64(block.CycleCount)))

	if err := term.EmitTerminator(ctx, block); err != nil {
		return cache.BlockDescriptor{}, fmt.Errorf("backend: block at pc=%#x: %w", block.Location.PC(), err)
	}
	alloc.AssertNoMoreUses()

	bd := cache.BlockDescriptor{
		ID:            id,
		Buffer:        buf,
		HostCodeSize:  buf.Len(),
		StartLocation: block.Location,
		EndPC:         block.EndPC,
	}
	b.Cache.Insert(bd)
	return bd, nil
}

// GetBasicBlock returns the block compiled at d, if any (spec.md §6,
// the dispatcher's get_basic_block entry point).
func (b *Backend) GetBasicBlock(d loc.Descriptor) (cache.BlockDescriptor, bool) {
	return b.Cache.Lookup(d)
}

// InvalidateCacheRange drops every compiled block overlapping r and
// unpatches any jump sites that targeted them (spec.md §4.3).
func (b *Backend) InvalidateCacheRange(r cache.AddressRange) []loc.Descriptor {
	return b.Cache.InvalidateRange(r)
}

// ClearCache drops every compiled block and outstanding patch.
func (b *Backend) ClearCache() {
	b.Cache.Clear()
}
