package engine

import (
	"context"
	"log"
	"sort"

	"github.com/becomeliminal/recall-go/core"
	"github.com/becomeliminal/recall-go/memory"
)

// Result is one ranked retrieval hit, annotated with the tier it was
// drawn from so downstream consumers can weigh or format it per tier.
type Result struct {
	Record *core.Record
	Score  float64
	Tier   core.Tier
}

// focusScore is the synthetic score attached to the rank-0 focus
// record; it is pinned to the front regardless, the value only keeps
// the result list uniformly consumable.
const focusScore = 1.0

type candidate struct {
	rec  *core.Record
	tier core.Tier
	sim  float64
}

// Retrieve produces an ordered, deduplicated list of up to k records
// relevant to query, drawn from the focus slot, the working buffer,
// and the record store. A non-positive k uses the configured default.
//
// The read path degrades instead of failing: an unavailable embedding
// provider switches the whole retrieval to deterministic keyword
// matching, and a failed or timed-out store scan reduces the candidate
// set to the always-available in-memory tiers. Pass a context with a
// deadline to bound store and provider latency.
func (e *Engine) Retrieve(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		k = e.cfg.MaxResults
	}

	var results []Result
	focusRec, hasFocus := e.focus.Get()
	if hasFocus {
		results = append(results, Result{Record: focusRec, Score: focusScore, Tier: core.TierFocus})
	}
	budget := k - len(results)
	if budget <= 0 {
		return results, nil
	}

	working := e.buffer.Search(nil)
	persistent := e.gatherPersistent(ctx)

	queryVec, semantic := e.queryEmbedding(ctx, query)

	var cands []candidate
	if semantic {
		cands, semantic = e.scoreSemantic(ctx, queryVec, working, persistent)
	}
	if !semantic {
		cands = scoreKeyword(query, working, persistent)
	}

	type scored struct {
		candidate
		score float64
	}
	ranked := make([]scored, 0, len(cands))
	for _, c := range cands {
		if c.sim < e.cfg.MinSimilarity {
			continue
		}
		weight := 1.0
		if c.tier == core.TierWorking {
			weight = e.cfg.RecencyBoost
		}
		ranked = append(ranked, scored{c, c.sim * c.rec.ReliabilityMultiplier * weight})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].rec.CreatedAt.After(ranked[j].rec.CreatedAt)
	})

	seen := make(map[string]bool, budget+1)
	if hasFocus {
		seen[focusRec.ID] = true
	}
	for _, s := range ranked {
		if budget == 0 {
			break
		}
		if seen[s.rec.ID] {
			continue
		}
		seen[s.rec.ID] = true
		results = append(results, Result{Record: s.rec, Score: s.score, Tier: s.tier})
		budget--
	}
	return results, nil
}

// gatherPersistent collects cross-session candidates from the store.
// Scan errors, including deadline expiry mid-scan, are a partial
// failure: whatever was gathered is used and the condition is logged,
// never surfaced.
func (e *Engine) gatherPersistent(ctx context.Context) []*core.Record {
	if !e.HasPersistence() {
		return nil
	}
	recs, err := e.store.Scan(ctx, e.cfg.Profile, e.cfg.ScanLimit, nil)
	if err != nil {
		log.Printf("[ENGINE] Partial scan failure, continuing with %d gathered and the working buffer: %v", len(recs), err)
	}
	return recs
}

// queryEmbedding computes the query vector, reporting whether
// retrieval can run in semantic mode.
func (e *Engine) queryEmbedding(ctx context.Context, query string) ([]float32, bool) {
	if e.embedder == nil {
		return nil, false
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("[ENGINE] Embedding unavailable, falling back to keyword matching: %v", err)
		return nil, false
	}
	return vec, true
}

// scoreSemantic scores every candidate by cosine similarity. The
// second return value is false when the provider broke mid-flight, in
// which case the caller redoes the whole scoring pass in keyword mode
// so the result stays deterministic rather than half-and-half.
func (e *Engine) scoreSemantic(ctx context.Context, queryVec []float32, working, persistent []*core.Record) ([]candidate, bool) {
	// Working-tier records normally carry their vector from Remember;
	// batch-embed any stragglers (e.g. stored while the provider was
	// down). The records here are this retrieval's private copies, so
	// the backfill never touches state shared with other callers.
	var missing []*core.Record
	for _, rec := range working {
		if !rec.HasEmbedding() && rec.Content != "" {
			missing = append(missing, rec)
		}
	}
	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for i, rec := range missing {
			texts[i] = rec.Content
		}
		vecs, err := e.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			log.Printf("[ENGINE] Batch embedding failed, falling back to keyword matching: %v", err)
			return nil, false
		}
		for i, rec := range missing {
			rec.Embedding = vecs[i]
		}
	}

	var cands []candidate
	for _, rec := range working {
		if !rec.HasEmbedding() {
			continue
		}
		cands = append(cands, candidate{rec, core.TierWorking, memory.CosineSimilarity(queryVec, rec.Embedding)})
	}

	if len(persistent) == 0 {
		return cands, true
	}

	sims, err := e.persistentSimilarities(ctx, queryVec, persistent)
	if err != nil {
		log.Printf("[ENGINE] Persistent scoring failed, falling back to keyword matching: %v", err)
		return nil, false
	}
	for _, rec := range persistent {
		sim, ok := sims[rec.ID]
		if !ok {
			continue
		}
		cands = append(cands, candidate{rec, core.TierPersistent, sim})
	}
	return cands, true
}

// persistentSimilarities scores the persistent candidates, preferring
// the vector index cache. A stale cache generation triggers a sync
// (recovered internally, never surfaced); any index-path failure falls
// back to direct comparison against the records' own embeddings.
func (e *Engine) persistentSimilarities(ctx context.Context, queryVec []float32, persistent []*core.Record) (map[string]float64, error) {
	if e.index != nil {
		sims, err := e.indexSimilarities(ctx, queryVec, persistent)
		if err == nil {
			return sims, nil
		}
		log.Printf("[ENGINE] Index lookup failed, comparing directly: %v", err)
	}

	var missing []*core.Record
	for _, rec := range persistent {
		if !rec.HasEmbedding() && rec.Content != "" {
			missing = append(missing, rec)
		}
	}
	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for i, rec := range missing {
			texts[i] = rec.Content
		}
		vecs, err := e.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		for i, rec := range missing {
			rec.Embedding = vecs[i]
		}
	}

	sims := make(map[string]float64, len(persistent))
	for _, rec := range persistent {
		if !rec.HasEmbedding() {
			continue
		}
		sims[rec.ID] = memory.CosineSimilarity(queryVec, rec.Embedding)
	}
	return sims, nil
}

func (e *Engine) indexSimilarities(ctx context.Context, queryVec []float32, persistent []*core.Record) (map[string]float64, error) {
	storeGen, err := e.store.Generation(ctx, e.cfg.Profile)
	if err != nil {
		return nil, err
	}
	// Sync unconditionally, not only on a generation mismatch. The
	// stamp tracks how current the cache is, but a matching generation
	// does not prove candidate coverage: a partial scan can stamp the
	// cache while delivering only some of the records, and the ones it
	// dropped would otherwise stay invisible forever. Sync is
	// incremental, so this is a no-op when every candidate is cached.
	if err := e.index.Sync(ctx, e.cfg.Profile, storeGen, persistent, e.embedder); err != nil {
		return nil, err
	}

	ids := make([]string, len(persistent))
	for i, rec := range persistent {
		ids[i] = rec.ID
	}
	matches, err := e.index.Lookup(ctx, e.cfg.Profile, queryVec, ids, len(ids))
	if err != nil {
		return nil, err
	}

	sims := make(map[string]float64, len(matches))
	for _, m := range matches {
		sims[m.ID] = m.Similarity
	}
	return sims, nil
}

// scoreKeyword is the degraded mode: normalized keyword-overlap
// similarity for every candidate. Deterministic and provider-free.
func scoreKeyword(query string, working, persistent []*core.Record) []candidate {
	var cands []candidate
	for _, rec := range working {
		cands = append(cands, candidate{rec, core.TierWorking, memory.KeywordOverlap(query, rec.Content)})
	}
	for _, rec := range persistent {
		cands = append(cands, candidate{rec, core.TierPersistent, memory.KeywordOverlap(query, rec.Content)})
	}
	return cands
}
