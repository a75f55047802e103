// Package cache implements the translation cache and patch registry
// of spec.md §4.3 and §4.5: a map from location descriptor to compiled
// block descriptor, plus the bookkeeping that lets cross-block jumps
// be rewritten once their target is compiled, invalidated, or cleared.
//
// Grounded on the teacher's pkg/result/table.go (mutex-guarded
// collection with an Add/lookup API) generalized from an append-only
// slice of optimization rules to a mutable map of compiled blocks, and
// pkg/result/checkpoint.go's encoding/gob persistence, re-homed here as
// Snapshot/Restore.
package cache

import (
	"encoding/gob"
	"os"
	"sync"

	"github.com/vexlabs/a32jit/internal/x64asm"
	"github.com/vexlabs/a32jit/pkg/loc"
)

// BlockDescriptor is the immutable record the cache stores per
// compiled block (spec.md §3). ID is a synthetic stand-in for the real
// host entry pointer: this module does not map executable memory (see
// DESIGN.md's Open Question on not executing generated code), so code
// identity is tracked by ID/Buffer instead of a raw pointer.
type BlockDescriptor struct {
	ID            int
	Buffer        *x64asm.Buffer
	HostCodeSize  int
	StartLocation loc.Descriptor
	EndPC         uint32
}

// PatchKind distinguishes the three fixed-size patchable site shapes
// named in spec.md §4.4.
type PatchKind uint8

const (
	PatchConditionalJump PatchKind = iota
	PatchUnconditionalJump
	PatchMovRcxImmediate
)

// PatchEntry locates one provisional jump/load site: the block whose
// buffer contains it, and the instruction index within that buffer
// (spec.md §3, "Patch entry").
type PatchEntry struct {
	Kind      PatchKind
	BlockID   int
	InstIndex int
}

// TrampolineLabel is the symbolic branch target every patch site
// decodes to before its destination is known, or after its destination
// is invalidated — the "return trampoline" of spec.md §4.4.
const TrampolineLabel = "return_trampoline"

// Cache holds compiled blocks and outstanding patches.
type Cache struct {
	mu        sync.Mutex
	blocks    map[loc.Descriptor]BlockDescriptor
	patches   map[loc.Descriptor][]PatchEntry
	buffers   map[int]*x64asm.Buffer
	nextID    int
}

// New returns an empty translation cache.
func New() *Cache {
	return &Cache{
		blocks:  make(map[loc.Descriptor]BlockDescriptor),
		patches: make(map[loc.Descriptor][]PatchEntry),
		buffers: make(map[int]*x64asm.Buffer),
	}
}

// NextBlockID reserves a synthetic block identity for a block about to
// be compiled, before its buffer is finished (pkg/backend calls this
// at the start of Emit so terminator emission can reference this
// block's own ID, e.g. for self-loops).
func (c *Cache) NextBlockID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	return id
}

// Lookup returns the block compiled at d, if any (spec.md §6,
// get_basic_block).
func (c *Cache) Lookup(d loc.Descriptor) (BlockDescriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bd, ok := c.blocks[d]
	return bd, ok
}

// Insert records a newly compiled block and resolves every patch site
// that was waiting on this location descriptor (spec.md §4.3,
// "Insertions happen at block-emission end").
func (c *Cache) Insert(bd BlockDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks[bd.StartLocation] = bd
	c.buffers[bd.ID] = bd.Buffer
	c.resolvePatchesLocked(bd.StartLocation, bd)
}

// RegisterPatch records that the instruction at (blockID, instIndex)
// in owner's buffer is a provisional jump/load whose destination must
// be rewritten once target is compiled, invalidated, or cleared.
// If target is already compiled, the site is resolved immediately.
func (c *Cache) RegisterPatch(target loc.Descriptor, kind PatchKind, blockID, instIndex int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := PatchEntry{Kind: kind, BlockID: blockID, InstIndex: instIndex}
	c.patches[target] = append(c.patches[target], entry)
	if bd, ok := c.blocks[target]; ok {
		c.resolveOneLocked(entry, bd)
	}
}

// PatchesFor returns the patch sites currently registered against
// target, for inspection (tests, CLI `cache stats`).
func (c *Cache) PatchesFor(target loc.Descriptor) []PatchEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PatchEntry, len(c.patches[target]))
	copy(out, c.patches[target])
	return out
}

// Clear drops every compiled block and every outstanding patch (spec.md
// §4.3, "clear() drops everything, including patches").
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks = make(map[loc.Descriptor]BlockDescriptor)
	c.patches = make(map[loc.Descriptor][]PatchEntry)
	c.buffers = make(map[int]*x64asm.Buffer)
}

// InvalidateRange erases every block whose [StartLocation.PC, EndPC)
// overlaps r, unpatching any sites that targeted it (spec.md §4.3).
// Returns the descriptors that were invalidated, for callers (the
// frontend, tests) that need to know what was dropped.
func (c *Cache) InvalidateRange(r AddressRange) []loc.Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	var dropped []loc.Descriptor
	for d, bd := range c.blocks {
		if r.Overlaps(d.PC(), bd.EndPC) {
			dropped = append(dropped, d)
		}
	}
	for _, d := range dropped {
		bd := c.blocks[d]
		delete(c.blocks, d)
		delete(c.buffers, bd.ID)
		c.unpatchLocked(d)
	}
	return dropped
}

// Stats reports current cache occupancy for `a32jit cache stats`.
func (c *Cache) Stats() (blocks, pendingTargets, totalPatches int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	blocks = len(c.blocks)
	pendingTargets = len(c.patches)
	for _, ps := range c.patches {
		totalPatches += len(ps)
	}
	return
}

func (c *Cache) resolvePatchesLocked(target loc.Descriptor, bd BlockDescriptor) {
	for _, p := range c.patches[target] {
		c.resolveOneLocked(p, bd)
	}
}

func (c *Cache) resolveOneLocked(p PatchEntry, bd BlockDescriptor) {
	buf, ok := c.buffers[p.BlockID]
	if !ok {
		return // owning block itself was invalidated/never installed
	}
	buf.Rewrite(p.InstIndex, x64asm.Label(entryLabel(bd.ID)))
}

func (c *Cache) unpatchLocked(target loc.Descriptor) {
	for _, p := range c.patches[target] {
		buf, ok := c.buffers[p.BlockID]
		if !ok {
			continue
		}
		buf.Rewrite(p.InstIndex, x64asm.Label(TrampolineLabel))
	}
}

func entryLabel(blockID int) string {
	return "block_entry_" + itoa(blockID)
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// --- snapshot persistence (AMBIENT STACK: teacher's checkpoint.go idiom) ---

// snapshot is the gob-serializable projection of a Cache: descriptors
// and patch lists only, never host code bytes (those are process-local
// and meaningless across a save/restore boundary).
type snapshot struct {
	Blocks  []blockRecord
	Patches map[loc.Descriptor][]PatchEntry
}

type blockRecord struct {
	Location     loc.Descriptor
	ID           int
	HostCodeSize int
	EndPC        uint32
}

// Snapshot writes the cache's descriptor and patch tables (not host
// code) to path, in the teacher's encoding/gob style.
func (c *Cache) Snapshot(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := snapshot{Patches: c.patches}
	for d, bd := range c.blocks {
		s.Blocks = append(s.Blocks, blockRecord{
			Location: d, ID: bd.ID, HostCodeSize: bd.HostCodeSize, EndPC: bd.EndPC,
		})
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(s)
}

// Restore loads descriptor/patch tables previously written by
// Snapshot. Restored blocks have a nil Buffer (no host code exists for
// them in this process) and exist only for cache-occupancy inspection;
// a real re-compile is required before they can be jumped to.
func Restore(path string) (*Cache, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var s snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, err
	}
	c := New()
	for _, br := range s.Blocks {
		c.blocks[br.Location] = BlockDescriptor{
			ID: br.ID, HostCodeSize: br.HostCodeSize, EndPC: br.EndPC, StartLocation: br.Location,
		}
		if br.ID >= c.nextID {
			c.nextID = br.ID + 1
		}
	}
	if s.Patches != nil {
		c.patches = s.Patches
	}
	return c, nil
}
