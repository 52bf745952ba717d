package memory

import (
	"context"

	"github.com/becomeliminal/recall-go/core"
)

// Store is the durable record storage contract. Records are partitioned
// by profile; nothing is visible across profile boundaries.
//
// Durability: Put and Upgrade return only after the change is crash-safe.
// A process restart must not lose committed records.
//
// Concurrency: writes are serialized per profile by the implementation;
// reads may proceed concurrently and always observe a consistent
// snapshot, never a partially-upgraded record.
//
// Implementations: sqlite.Store (durable reference), inmem.Store
// (volatile, for tests and ephemeral demos).
type Store interface {
	// Put persists a new record. The record's id must be fresh;
	// ErrDuplicateID is returned if it already exists,
	// ErrStorageUnavailable if the backing medium cannot be written.
	Put(ctx context.Context, profile string, rec *core.Record) error

	// Get returns the record with the given id, or ErrNotFound.
	Get(ctx context.Context, profile, id string) (*core.Record, error)

	// Upgrade marks the record as evolved knowledge: sets the evolved
	// latch, raises the reliability multiplier to max(current, boost),
	// and merges evolved context into the record's context. This is the
	// only mutation path; it is atomic with respect to concurrent reads
	// and idempotent for identical parameters. Returns the upgraded
	// record, or ErrNotFound.
	Upgrade(ctx context.Context, profile, id string, boost float64, evolved core.RecordContext) (*core.Record, error)

	// Scan returns up to limit most-recent records, newest first,
	// optionally filtered by a predicate over record context.
	Scan(ctx context.Context, profile string, limit int, filter func(core.RecordContext) bool) ([]*core.Record, error)

	// Generation returns the profile's write generation. It increments
	// on every Put and Upgrade, and the bump becomes visible atomically
	// with the write it tracks (write-then-bump, never bump-then-write).
	Generation(ctx context.Context, profile string) (uint64, error)

	// Close releases resources.
	Close() error
}

// Embedder converts text to fixed-dimension vectors. Implementations
// must be consistent for identical text so results can be cached; exact
// determinism is not required.
//
// Implementations: mock.Embedder (testing), openai.Embedder (API),
// onnx.Embedder (local model, onnx build tag). Wrap with Cached to
// memoize repeated text.
type Embedder interface {
	// Embed converts a single text to a vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts several texts in one call, preserving input
	// order in the output.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Match is a single vector index hit.
type Match struct {
	ID         string
	Similarity float64
}

// Index is the vector index cache: a derived, disposable mapping of
// record id to embedding that can always be rebuilt from the Store.
// Coherence is tracked by a per-profile generation stamp, but the
// stamp alone does not prove a given candidate is cached (a partial
// candidate set at the last sync leaves gaps at the same generation),
// so callers Sync with their candidate set before reading; Sync is
// incremental and cheap when nothing is new. The stamp update and the
// content update are atomic as observed by concurrent Lookup calls.
type Index interface {
	// Generation returns the store generation this profile's cache was
	// last synced to. Zero means never synced.
	Generation(profile string) uint64

	// Sync brings the cache up to the given store generation: records
	// not yet cached are added, with missing embeddings computed in one
	// batch through the embedder. Records already cached are untouched
	// (embeddings are write-once).
	Sync(ctx context.Context, profile string, gen uint64, records []*core.Record, embedder Embedder) error

	// Lookup returns the top k candidates by cosine similarity against
	// the query vector, ties broken by more-recent creation time.
	// Candidate ids without a cached embedding are skipped.
	Lookup(ctx context.Context, profile string, query []float32, candidates []string, k int) ([]Match, error)

	// Close releases resources.
	Close() error
}
