// Package engine is the tiered retrieval engine: it orchestrates the
// focus slot, working buffer, record store, and vector index cache to
// store interaction records and produce ranked, size-bounded context
// windows.
//
// Write path (Remember):
//   - focus slot and working buffer are updated always, before any
//     suspension point
//   - the durable store is written only when the caller's Learning
//     decision says so; an optional boost/context payload is passed
//     verbatim into the store upgrade
//
// Read path (Retrieve):
//   - the focus record, if any, leads the result at rank 0
//   - candidates are gathered from the working buffer and up to
//     ScanLimit most-recent store records
//   - each candidate's composite score is
//     similarity x reliability multiplier x recency weight,
//     where the recency weight favors working-buffer candidates
//   - candidates below the similarity threshold are discarded, the
//     rest are sorted by score (ties: more recent first), deduplicated
//     by id, and truncated to the budget
//
// Degradation is deliberate and deterministic: no embedding provider
// (or a provider failure mid-query) switches the whole pass to
// keyword-overlap similarity, and store scan failures reduce the
// candidate set to the in-memory tiers. Only write-path failures
// surface to the caller.
package engine
