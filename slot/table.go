// Package slot implements the fixed 256-entry ring of per-file metadata
// (§4.C): FileSlotTable. It is mutated only on the ingest worker thread and
// read by downstream consumers via an opaque slot id.
package slot

import (
	"sync"
	"time"

	"github.com/flowcap/ingest"
)

// Size is the fixed number of slots in the ring. The wrap is intentional:
// it bounds the window of concurrently addressable historical files.
const Size = 256

// FieldOp is one field-value assignment derived by the filename rule
// engine.
type FieldOp struct {
	Field string
	Value string
}

// FieldOpBuffer accumulates FieldOps for one slot. The rule engine appends
// to it directly — it is referenced by index into the slot, never by a
// back-pointer into an ActionSet (§9).
type FieldOpBuffer struct {
	ops []FieldOp
}

// Append adds one field=value assignment.
func (b *FieldOpBuffer) Append(field, value string) {
	b.ops = append(b.ops, FieldOp{Field: field, Value: value})
}

// Ops returns the accumulated assignments.
func (b *FieldOpBuffer) Ops() []FieldOp { return b.ops }

// FileSlot is one entry in the ring.
type FileSlot struct {
	URI          string
	ExtraInfo    string
	SchemeName   string
	LastBytes    uint64
	LastPackets  uint64
	LastPacketTS time.Time
	DidBatch     bool
	FieldOps     FieldOpBuffer
	Actions      *ingest.ActionSet

	occupied bool
}

// Table is the fixed-size ring of FileSlots plus the rolling cursor.
type Table struct {
	mu         sync.Mutex
	slots      [Size]FileSlot
	activeSlot uint8
	started    bool
}

// NewTable returns an empty table. The first accepted header becomes slot 0.
func NewTable() *Table {
	// activeSlot starts at 0xFF (uint8 max) so the first BeginFile's
	// wrapping increment lands on slot 0.
	return &Table{activeSlot: 0xFF}
}

// BeginFile advances the rolling cursor, releases the prior occupant of the
// target slot (if any), and installs new metadata (§4.C steps 1-3).
//
// HACK preserved from the source (§9 open question): bytes a caller reads
// before BeginFile is called for a file's header are attributed to
// LastBytes of the slot that BeginFile returns, not to the slot that was
// active when the bytes arrived. See pcapformat's AwaitingFileHeader
// handling, which adds them through Mutate right after BeginFile.
func (t *Table) BeginFile(uri, extraInfo, schemeName string, actions *ingest.ActionSet) uint8 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.activeSlot++ // uint8 wraps 255 -> 0 automatically
	id := t.activeSlot
	s := &t.slots[id]

	if s.occupied {
		if s.Actions != nil {
			s.Actions.Release()
		}
		*s = FileSlot{}
	}

	s.URI = uri
	s.ExtraInfo = extraInfo
	s.SchemeName = schemeName
	s.occupied = true
	if actions != nil {
		actions.Acquire()
	}
	s.Actions = actions
	t.started = true
	return id
}

// Active returns the id of the slot that is currently the live tenant.
func (t *Table) Active() uint8 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeSlot
}

// Get returns a copy of the slot at id and whether it is currently
// occupied. A FileSlot is only "valid" per §3's invariant when id equals
// the table's current active slot — callers that look a slot up by a
// stale id (after wraparound) must check that themselves via Active().
func (t *Table) Get(id uint8) (FileSlot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.slots[id]
	return s, s.occupied
}

// Mutate runs fn against the slot at id while holding the table lock, but
// only if id is still the active slot — stream-parser statistics updates
// must never land on a slot that has since been recycled by a racing
// BeginFile (which cannot happen on the worker thread, but Mutate stays
// defensive since FileSlot.Actions release must never double-fire).
func (t *Table) Mutate(id uint8, fn func(*FileSlot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id != t.activeSlot {
		return
	}
	fn(&t.slots[id])
}

// FieldOps returns the field-op buffer of the currently active slot, or
// nil if id is not the active slot. The rule engine appends to the
// returned pointer directly.
func (t *Table) FieldOps(id uint8) *FieldOpBuffer {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id != t.activeSlot {
		return nil
	}
	return &t.slots[id].FieldOps
}
