package engine

import (
	"github.com/becomeliminal/recall-go/core"
	"github.com/becomeliminal/recall-go/memory"
)

// Config holds the retrieval engine knobs.
type Config struct {
	// Profile names the persistent partition. Empty means an anonymous
	// session: the engine runs on focus and working buffer only, even
	// when a store is attached.
	Profile string

	// Capacity bounds the working buffer (default 100).
	Capacity int

	// MaxResults is the retrieval budget k when the caller passes a
	// non-positive one (default 5).
	MaxResults int

	// MinSimilarity discards candidates whose similarity falls below
	// it, in both embedding and keyword mode [0.0-1.0]. The default
	// 0.1 is low enough to admit keyword matches while dropping
	// zero-overlap candidates.
	MinSimilarity float64

	// RecencyBoost is the multiplicative score weight (> 1.0) applied
	// to working-buffer candidates to favor session continuity
	// (default 1.2). Persistent candidates always weigh 1.0.
	RecencyBoost float64

	// ScanLimit caps how many most-recent store records are gathered
	// as retrieval candidates (default 1000).
	ScanLimit int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:      100,
		MaxResults:    5,
		MinSimilarity: 0.1,
		RecencyBoost:  1.2,
		ScanLimit:     1000,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Capacity <= 0 {
		c.Capacity = def.Capacity
	}
	if c.MaxResults <= 0 {
		c.MaxResults = def.MaxResults
	}
	if c.RecencyBoost <= 0 {
		c.RecencyBoost = def.RecencyBoost
	}
	if c.ScanLimit <= 0 {
		c.ScanLimit = def.ScanLimit
	}
}

// Engine orchestrates the memory tiers: it stores interaction records
// into the focus slot and working buffer (always) and the record store
// (conditionally, driven by the caller's learning decision), and
// produces ranked, size-bounded context windows for queries.
//
// The focus slot and working buffer are purely in-memory and are
// touched before any suspension point; store and embedder calls carry
// the caller's context, and the read path degrades rather than fails
// wherever a weaker answer is still a correct one.
type Engine struct {
	cfg      Config
	focus    *memory.FocusSlot
	buffer   *memory.WorkingBuffer
	store    memory.Store    // optional
	index    memory.Index    // optional
	embedder memory.Embedder // optional
}

// Option configures the engine.
type Option func(*Engine)

// WithStore attaches a durable record store. Without one the engine
// serves anonymous sessions from the in-memory tiers only.
func WithStore(s memory.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithIndex attaches a vector index cache. Without one, persistent
// candidates are scored by direct cosine comparison on every query.
func WithIndex(ix memory.Index) Option {
	return func(e *Engine) { e.index = ix }
}

// WithEmbedder attaches an embedding provider. Without one the engine
// operates permanently in keyword-overlap mode.
func WithEmbedder(em memory.Embedder) Option {
	return func(e *Engine) { e.embedder = em }
}

// New creates an engine with the given configuration.
func New(cfg Config, opts ...Option) *Engine {
	cfg.applyDefaults()
	e := &Engine{
		cfg:    cfg,
		focus:  memory.NewFocusSlot(),
		buffer: memory.NewWorkingBuffer(cfg.Capacity),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// propagate applies fn to the session-tier copies of the record, under
// each tier's lock. The focus slot and working buffer hand out clones,
// so this is the only way a late mutation (embedding arrival, upgrade
// mirroring) reaches records already published to concurrent readers.
func (e *Engine) propagate(id string, fn func(*core.Record)) {
	e.focus.Apply(id, fn)
	e.buffer.Apply(id, fn)
}

// HasPersistence reports whether this engine writes to a durable
// store: it needs both an attached store and a named profile.
func (e *Engine) HasPersistence() bool {
	return e.store != nil && e.cfg.Profile != ""
}

// Focus returns the record currently being processed, if any.
func (e *Engine) Focus() (*core.Record, bool) {
	return e.focus.Get()
}

// ClearFocus empties the focus slot, ready for the next input.
func (e *Engine) ClearFocus() {
	e.focus.Clear()
}

// Recent returns the session's last n records, most-recent last.
func (e *Engine) Recent(n int) []*core.Record {
	return e.buffer.Recent(n)
}

// SessionSize returns the number of records in the working buffer.
func (e *Engine) SessionSize() int {
	return e.buffer.Len()
}

// EndSession drops the session-scoped tiers. Persistent records
// survive for the next session.
func (e *Engine) EndSession() {
	e.buffer.Clear()
	e.focus.Clear()
}
