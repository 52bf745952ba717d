// Package chromem implements memory.Index on chromem-go, a pure Go
// embedded vector database. Each profile gets its own collection for
// namespace isolation. The index is derived state: it can always be
// rebuilt from the record store, and a per-profile generation stamp
// records which store generation it was last synced to.
package chromem

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/recall-go/core"
	"github.com/becomeliminal/recall-go/memory"
)

type entry struct {
	createdAt time.Time
}

// Index is a chromem-backed memory.Index.
type Index struct {
	db *chromem.DB

	// mu guards all maps below. Sync holds the write lock across the
	// whole update so a concurrent Lookup sees the generation stamp
	// and the cached embeddings change together.
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	generations map[string]uint64
	known       map[string]map[string]entry // profile -> record id -> entry
}

// New creates an empty index.
func New() *Index {
	return &Index{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
		generations: make(map[string]uint64),
		known:       make(map[string]map[string]entry),
	}
}

// collectionLocked returns the profile's collection, creating it on
// first use. Caller must hold the write lock.
func (ix *Index) collectionLocked(profile string) (*chromem.Collection, error) {
	if col, ok := ix.collections[profile]; ok {
		return col, nil
	}

	name := fmt.Sprintf("profile_%s", profile)
	if profile == "" {
		name = "anonymous"
	}

	// Embeddings are provided by us, so no embedding func; default
	// distance is cosine.
	col, err := ix.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	ix.collections[profile] = col
	ix.known[profile] = make(map[string]entry)
	return col, nil
}

// Generation returns the store generation this profile was last synced
// to, or zero if never synced.
func (ix *Index) Generation(profile string) uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.generations[profile]
}

// Sync adds any records not yet cached, batch-embedding the ones that
// carry no vector, then stamps the profile with gen. Records already
// cached are left alone. A nil embedder is fine as long as every new
// record already has an embedding; records with no way to get one are
// skipped (they simply stay invisible to Lookup).
func (ix *Index) Sync(ctx context.Context, profile string, gen uint64, records []*core.Record, embedder memory.Embedder) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	col, err := ix.collectionLocked(profile)
	if err != nil {
		return err
	}
	seen := ix.known[profile]

	var fresh []*core.Record
	for _, rec := range records {
		if _, ok := seen[rec.ID]; !ok {
			fresh = append(fresh, rec)
		}
	}

	// Batch the embedding-provider round trip for records lacking a
	// cached vector.
	var missing []*core.Record
	for _, rec := range fresh {
		if !rec.HasEmbedding() {
			missing = append(missing, rec)
		}
	}
	embedded := make(map[string][]float32, len(missing))
	if len(missing) > 0 && embedder != nil {
		texts := make([]string, len(missing))
		for i, rec := range missing {
			texts[i] = rec.Content
		}
		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("%w: embed %d records: %v", memory.ErrEmbeddingUnavailable, len(missing), err)
		}
		for i, rec := range missing {
			embedded[rec.ID] = vectors[i]
		}
	}

	var docs []chromem.Document
	for _, rec := range fresh {
		vec := rec.Embedding
		if vec == nil {
			vec = embedded[rec.ID]
		}
		if len(vec) == 0 {
			log.Printf("[CHROMEM] Skipping record without embedding: id=%s", rec.ID)
			continue
		}
		docs = append(docs, chromem.Document{
			ID:        rec.ID,
			Content:   rec.Content,
			Embedding: vec,
			Metadata: map[string]string{
				"created_at": rec.CreatedAt.UTC().Format(time.RFC3339Nano),
			},
		})
		seen[rec.ID] = entry{createdAt: rec.CreatedAt}
	}

	for _, doc := range docs {
		if err := col.AddDocument(ctx, doc); err != nil {
			delete(seen, doc.ID)
			return fmt.Errorf("add document: %w", err)
		}
	}

	if len(docs) > 0 {
		log.Printf("[CHROMEM] Synced %d embeddings for profile %q (generation %d)", len(docs), profile, gen)
	}
	ix.generations[profile] = gen
	return nil
}

// Lookup ranks the candidate ids by cosine similarity against query
// and returns the top k. Ties are broken by more-recent creation time.
// Candidates that were never cached are skipped.
func (ix *Index) Lookup(ctx context.Context, profile string, query []float32, candidates []string, k int) ([]memory.Match, error) {
	if len(query) == 0 || len(candidates) == 0 || k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	col, ok := ix.collections[profile]
	if !ok {
		return nil, nil
	}
	count := col.Count()
	if count == 0 {
		return nil, nil
	}

	// chromem requires nResults <= collection size. Query the whole
	// collection and filter down to the candidate set afterwards; the
	// candidate population is SCAN_LIMIT-bounded, so this stays cheap.
	results, err := col.QueryEmbedding(ctx, query, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	wanted := make(map[string]bool, len(candidates))
	for _, id := range candidates {
		wanted[id] = true
	}

	seen := ix.known[profile]
	matches := make([]memory.Match, 0, len(candidates))
	createdAt := make(map[string]time.Time, len(candidates))
	for _, res := range results {
		if !wanted[res.ID] {
			continue
		}
		matches = append(matches, memory.Match{ID: res.ID, Similarity: float64(res.Similarity)})
		createdAt[res.ID] = seen[res.ID].createdAt
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return createdAt[matches[i].ID].After(createdAt[matches[j].ID])
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Close releases resources. chromem keeps everything in memory, so
// this only drops the maps.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.collections = make(map[string]*chromem.Collection)
	ix.generations = make(map[string]uint64)
	ix.known = make(map[string]map[string]entry)
	return nil
}
