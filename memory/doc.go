// Package memory defines the tiered memory contracts and the
// non-suspending in-memory tiers.
//
// Tiers, smallest to largest:
//   - FocusSlot: the single record being processed right now
//   - WorkingBuffer: bounded FIFO of the session's recent records
//   - Store: durable, profile-partitioned record storage
//
// Derived structures:
//   - Index: rebuildable record-id to embedding cache for similarity
//     lookup, kept coherent with the Store through a write generation
//   - Embedder: text to vector capability; absence switches retrieval
//     into deterministic keyword-overlap mode
//
// The FocusSlot and WorkingBuffer never touch I/O; every Store, Index,
// and Embedder call is a potential suspension point and takes a
// context. The retrieval orchestration on top of these tiers lives in
// the engine package.
package memory
