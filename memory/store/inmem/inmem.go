// Package inmem provides a volatile memory.Store implementation
// storing records in process-local maps. It is safe for concurrent
// access and best suited for tests or ephemeral demo sessions; nothing
// survives a restart, so it does not satisfy the durability contract
// of the interface.
package inmem

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/becomeliminal/recall-go/core"
	"github.com/becomeliminal/recall-go/memory"
)

type partition struct {
	byID       map[string]*core.Record
	chrono     []string // record ids in insertion order
	generation uint64
}

// Store is an in-memory memory.Store. Each returned record is a clone,
// so callers never share mutable state with the store.
type Store struct {
	mu         sync.RWMutex
	partitions map[string]*partition
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{partitions: make(map[string]*partition)}
}

func (s *Store) partitionLocked(profile string) *partition {
	p, ok := s.partitions[profile]
	if !ok {
		p = &partition{byID: make(map[string]*core.Record)}
		s.partitions[profile] = p
	}
	return p
}

// Put stores a clone of rec.
func (s *Store) Put(ctx context.Context, profile string, rec *core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.partitionLocked(profile)
	if _, exists := p.byID[rec.ID]; exists {
		return fmt.Errorf("%w: %s", memory.ErrDuplicateID, rec.ID)
	}
	p.byID[rec.ID] = rec.Clone()
	p.chrono = append(p.chrono, rec.ID)
	p.generation++
	return nil
}

// Get returns a clone of the stored record.
func (s *Store) Get(ctx context.Context, profile, id string) (*core.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.partitions[profile]
	if !ok {
		return nil, fmt.Errorf("%w: %s", memory.ErrNotFound, id)
	}
	rec, ok := p.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", memory.ErrNotFound, id)
	}
	return rec.Clone(), nil
}

// Upgrade promotes the record to evolved knowledge under the write
// lock, so readers see either the old or the new version, never a mix.
func (s *Store) Upgrade(ctx context.Context, profile, id string, boost float64, evolved core.RecordContext) (*core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.partitions[profile]
	if !ok {
		return nil, fmt.Errorf("%w: %s", memory.ErrNotFound, id)
	}
	rec, ok := p.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", memory.ErrNotFound, id)
	}

	upgraded := rec.Clone()
	upgraded.Evolved = true
	upgraded.ReliabilityMultiplier = math.Max(upgraded.ReliabilityMultiplier, boost)
	upgraded.Context = upgraded.Context.Merge(evolved)
	p.byID[id] = upgraded
	p.generation++
	return upgraded.Clone(), nil
}

// Scan returns up to limit most-recent records, newest first.
func (s *Store) Scan(ctx context.Context, profile string, limit int, filter func(core.RecordContext) bool) ([]*core.Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.partitions[profile]
	if !ok {
		return nil, nil
	}

	var out []*core.Record
	for i := len(p.chrono) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rec := p.byID[p.chrono[i]]
		if filter != nil && !filter(rec.Context) {
			continue
		}
		out = append(out, rec.Clone())
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Generation returns the profile's write generation.
func (s *Store) Generation(ctx context.Context, profile string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.partitions[profile]; ok {
		return p.generation, nil
	}
	return 0, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
