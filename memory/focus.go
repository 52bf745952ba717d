package memory

import (
	"sync"

	"github.com/becomeliminal/recall-go/core"
)

// FocusSlot holds the single record being processed right now. Set
// replaces the previous content unconditionally; no history is kept.
// It is the highest-priority, and smallest, retrieval source.
//
// Purely in-memory and non-suspending: safe to touch on every request
// without I/O. The slot stores and hands out clones, so concurrent
// readers never share mutable state with writers; late updates to the
// occupant (embedding arrival, upgrade mirroring) go through Apply,
// under the slot's lock.
type FocusSlot struct {
	mu      sync.RWMutex
	current *core.Record
}

// NewFocusSlot returns an empty slot.
func NewFocusSlot() *FocusSlot {
	return &FocusSlot{}
}

// Set replaces the current focus with a copy of rec.
func (f *FocusSlot) Set(rec *core.Record) {
	f.mu.Lock()
	f.current = rec.Clone()
	f.mu.Unlock()
}

// Get returns a copy of the current focus, or false if the slot is
// empty.
func (f *FocusSlot) Get() (*core.Record, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current == nil {
		return nil, false
	}
	return f.current.Clone(), true
}

// Apply mutates the occupant in place if it still has the given id.
// This is the only write path into a published record; fn runs under
// the slot's lock and must not block.
func (f *FocusSlot) Apply(id string, fn func(*core.Record)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current != nil && f.current.ID == id {
		fn(f.current)
	}
}

// Clear empties the slot, ready for the next input.
func (f *FocusSlot) Clear() {
	f.mu.Lock()
	f.current = nil
	f.mu.Unlock()
}
