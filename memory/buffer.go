package memory

import (
	"sync"

	"github.com/becomeliminal/recall-go/core"
)

// DefaultBufferCapacity is the working buffer bound used when a
// non-positive capacity is requested.
const DefaultBufferCapacity = 100

// WorkingBuffer is the bounded, session-scoped sequence of recent
// records. Insertion beyond capacity evicts the oldest entry. Eviction
// is strict FIFO-by-insertion, not LRU-by-access: a record's position
// is fixed when pushed and reads never bump it, so reads don't amplify
// write contention.
//
// The buffer is created empty per session and never persisted by
// itself; records inside it may independently live in a Store.
//
// Like the focus slot, the buffer stores and hands out clones so
// concurrent readers never alias a record a writer is still filling
// in; late updates go through Apply, under the buffer's lock.
type WorkingBuffer struct {
	mu       sync.RWMutex
	capacity int
	records  []*core.Record
	byID     map[string]*core.Record
}

// NewWorkingBuffer creates an empty buffer bounded by capacity.
func NewWorkingBuffer(capacity int) *WorkingBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &WorkingBuffer{
		capacity: capacity,
		byID:     make(map[string]*core.Record),
	}
}

// Push appends a copy of rec at the tail, evicting from the head if
// the buffer is full. It never fails.
func (b *WorkingBuffer) Push(rec *core.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored := rec.Clone()
	b.records = append(b.records, stored)
	b.byID[stored.ID] = stored

	if len(b.records) > b.capacity {
		evicted := b.records[0]
		b.records = b.records[1:]
		delete(b.byID, evicted.ID)
	}
}

// Recent returns the last n records in insertion order, most-recent
// last. n is clamped to the buffer length.
func (b *WorkingBuffer) Recent(n int) []*core.Record {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n > len(b.records) {
		n = len(b.records)
	}
	if n <= 0 {
		return nil
	}
	out := make([]*core.Record, n)
	for i, rec := range b.records[len(b.records)-n:] {
		out[i] = rec.Clone()
	}
	return out
}

// Search returns all records for which the predicate holds, in
// insertion order. Used for the keyword-overlap retrieval fallback.
func (b *WorkingBuffer) Search(pred func(*core.Record) bool) []*core.Record {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*core.Record
	for _, rec := range b.records {
		if pred == nil || pred(rec) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// Get returns a copy of the buffered record with the given id, if
// still present.
func (b *WorkingBuffer) Get(id string) (*core.Record, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.byID[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Apply mutates the buffered record with the given id in place, if
// still present. This is the only write path into a published record;
// fn runs under the buffer's lock and must not block.
func (b *WorkingBuffer) Apply(id string, fn func(*core.Record)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rec, ok := b.byID[id]; ok {
		fn(rec)
	}
}

// Len returns the current number of buffered records.
func (b *WorkingBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}

// Capacity returns the buffer bound.
func (b *WorkingBuffer) Capacity() int {
	return b.capacity
}

// Clear drops all buffered records, typically at session end.
func (b *WorkingBuffer) Clear() {
	b.mu.Lock()
	b.records = nil
	b.byID = make(map[string]*core.Record)
	b.mu.Unlock()
}
