package memory

import "errors"

// Sentinel errors shared by all tier implementations. Wrap with
// fmt.Errorf("...: %w", err) and test with errors.Is.
var (
	// ErrNotFound is returned by lookups that miss. Recoverable; the
	// caller decides what to do.
	ErrNotFound = errors.New("memory: record not found")

	// ErrDuplicateID is returned by Put when the record id already
	// exists. Should not occur with generated ids.
	ErrDuplicateID = errors.New("memory: duplicate record id")

	// ErrStorageUnavailable means the durable backend cannot be
	// reached or written. Fatal for write paths and always surfaced:
	// callers must know whether a learning decision actually committed.
	ErrStorageUnavailable = errors.New("memory: storage unavailable")

	// ErrEmbeddingUnavailable means the embedding provider is down or
	// errored. Never fatal: retrieval degrades to keyword matching.
	ErrEmbeddingUnavailable = errors.New("memory: embedding provider unavailable")
)
