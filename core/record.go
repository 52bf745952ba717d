package core

import (
	"time"

	"github.com/google/uuid"
)

// Tier identifies which memory tier a retrieval result was drawn from.
type Tier string

const (
	// TierFocus is the single-record slot holding the input being
	// processed right now.
	TierFocus Tier = "focus"

	// TierWorking is the bounded, session-scoped buffer of recent records.
	TierWorking Tier = "working"

	// TierPersistent is the durable, cross-session record store.
	TierPersistent Tier = "persistent"
)

// RecordContext carries provenance metadata for a record. The common
// fields are typed; anything else goes into Extra, which is also where
// learning-decision context lands when a record is upgraded.
type RecordContext struct {
	SourceType   string            `json:"source_type,omitempty"`
	DocumentType string            `json:"document_type,omitempty"`
	Importance   string            `json:"importance,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// Merge folds other into the context: empty typed fields are filled,
// Extra entries are added (incoming keys win). The receiver is not
// modified; a merged copy is returned.
func (c RecordContext) Merge(other RecordContext) RecordContext {
	out := c.Clone()
	if out.SourceType == "" {
		out.SourceType = other.SourceType
	}
	if out.DocumentType == "" {
		out.DocumentType = other.DocumentType
	}
	if out.Importance == "" {
		out.Importance = other.Importance
	}
	if len(other.Extra) > 0 {
		if out.Extra == nil {
			out.Extra = make(map[string]string, len(other.Extra))
		}
		for k, v := range other.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Clone returns a copy with its own Extra map.
func (c RecordContext) Clone() RecordContext {
	out := c
	if c.Extra != nil {
		out.Extra = make(map[string]string, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Record is the atomic stored unit: one interaction's content plus
// metadata. Content, CreatedAt, and ID are immutable after creation.
// The only sanctioned mutation path is a store upgrade, which flips
// Evolved (one-way), raises ReliabilityMultiplier (never lowers it),
// and merges context. Embedding is computed at most once and never
// rewritten afterwards.
type Record struct {
	ID                    string        `json:"id"`
	Content               string        `json:"content"`
	CreatedAt             time.Time     `json:"created_at"`
	Context               RecordContext `json:"context"`
	Embedding             []float32     `json:"embedding,omitempty"`
	Evolved               bool          `json:"is_evolved"`
	ReliabilityMultiplier float64       `json:"reliability_multiplier"`
	CompanionResponse     string        `json:"companion_response,omitempty"`
}

// NewRecord creates a record with a fresh id, a UTC creation timestamp,
// and the neutral reliability multiplier.
func NewRecord(content string, ctx RecordContext) *Record {
	return &Record{
		ID:                    uuid.New().String(),
		Content:               content,
		CreatedAt:             time.Now().UTC(),
		Context:               ctx,
		ReliabilityMultiplier: 1.0,
	}
}

// Clone returns a deep copy. Stores hand out clones so readers never
// observe a record mid-upgrade.
func (r *Record) Clone() *Record {
	out := *r
	out.Context = r.Context.Clone()
	if r.Embedding != nil {
		out.Embedding = make([]float32, len(r.Embedding))
		copy(out.Embedding, r.Embedding)
	}
	return &out
}

// HasEmbedding reports whether a vector has been computed for this record.
func (r *Record) HasEmbedding() bool {
	return len(r.Embedding) > 0
}
