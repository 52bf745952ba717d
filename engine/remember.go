package engine

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/becomeliminal/recall-go/core"
)

// Learning is the persistence decision produced by the external
// learning collaborator. The engine consumes it opaquely: Persist says
// whether to write the record durably, and Boost/Context, when
// present, are passed verbatim into the store upgrade.
type Learning struct {
	// Persist commits the record to the durable store.
	Persist bool

	// Boost is the reliability multiplier to upgrade to. Zero means
	// persist without an upgrade.
	Boost float64

	// Context is merged into the record's context annotations on
	// upgrade.
	Context map[string]string
}

// Input is one interaction handed to Remember.
type Input struct {
	// Content is the stored text payload.
	Content string

	// CompanionResponse optionally captures the paired output produced
	// for this input, for richer context assembly later.
	CompanionResponse string

	// Context carries provenance metadata.
	Context core.RecordContext

	// Learning is the external persistence decision; nil means
	// session-only.
	Learning *Learning
}

// Remember stores one interaction record. The focus slot and working
// buffer are updated first and unconditionally; they are in-memory and
// never fail. Embedding and durable persistence follow, and only
// write-path failures are surfaced: the caller must know whether a
// learning decision actually committed.
func (e *Engine) Remember(ctx context.Context, in Input) (*core.Record, error) {
	rec := core.NewRecord(in.Content, in.Context)
	rec.CompanionResponse = in.CompanionResponse

	e.focus.Set(rec)
	e.buffer.Push(rec)

	// Embedding is computed once here and travels with the record.
	// The session tiers hold their own copies by now, so the vector is
	// pushed to them through their locks, never by writing the shared
	// pointer. Provider failure is recoverable: the record simply
	// stays in keyword-only territory until an index sync fills the gap.
	if e.embedder != nil && strings.TrimSpace(in.Content) != "" {
		vec, err := e.embedder.Embed(ctx, in.Content)
		if err != nil {
			log.Printf("[ENGINE] Embedding unavailable, record kept without vector: %v", err)
		} else {
			rec.Embedding = vec
			e.propagate(rec.ID, func(r *core.Record) { r.Embedding = vec })
		}
	}

	learn := in.Learning
	if learn == nil || !learn.Persist || !e.HasPersistence() {
		return rec, nil
	}

	if err := e.store.Put(ctx, e.cfg.Profile, rec); err != nil {
		return rec, fmt.Errorf("persist record: %w", err)
	}

	if learn.Boost > 0 || len(learn.Context) > 0 {
		upgraded, err := e.store.Upgrade(ctx, e.cfg.Profile, rec.ID, learn.Boost, core.RecordContext{Extra: learn.Context})
		if err != nil {
			return rec, fmt.Errorf("upgrade record: %w", err)
		}
		// Mirror the durable state onto the session copies so the
		// buffer and focus views rank consistently.
		rec.Evolved = upgraded.Evolved
		rec.ReliabilityMultiplier = upgraded.ReliabilityMultiplier
		rec.Context = upgraded.Context
		e.propagate(rec.ID, func(r *core.Record) {
			r.Evolved = upgraded.Evolved
			r.ReliabilityMultiplier = upgraded.ReliabilityMultiplier
			r.Context = upgraded.Context.Clone()
		})
		log.Printf("[ENGINE] Learned: id=%s, reliability=%.2f", rec.ID, rec.ReliabilityMultiplier)
	}

	return rec, nil
}

// DefaultImportBoost is the reliability boost applied to imported
// knowledge when a source does not specify one.
const DefaultImportBoost = 1.3

// KnowledgeSource is one document handed to ImportKnowledge.
type KnowledgeSource struct {
	Content      string
	DocumentType string
	Importance   string
	Boost        float64
}

// ImportReport summarizes an ImportKnowledge run.
type ImportReport struct {
	Imported  int
	Skipped   int
	RecordIDs []string
}

// ImportKnowledge bulk-loads documentation into the persistent tier as
// evolved knowledge, giving each record a reliability boost so it
// outranks ordinary conversation at comparable similarity. Sources
// with empty content are skipped, not failed.
func (e *Engine) ImportKnowledge(ctx context.Context, sources []KnowledgeSource) (*ImportReport, error) {
	if !e.HasPersistence() {
		return nil, fmt.Errorf("knowledge import requires a store and a named profile")
	}

	report := &ImportReport{}
	for _, src := range sources {
		if strings.TrimSpace(src.Content) == "" {
			report.Skipped++
			continue
		}
		boost := src.Boost
		if boost <= 0 {
			boost = DefaultImportBoost
		}

		rec := core.NewRecord(src.Content, core.RecordContext{
			SourceType:   "project_knowledge",
			DocumentType: src.DocumentType,
			Importance:   src.Importance,
		})
		if e.embedder != nil {
			vec, err := e.embedder.Embed(ctx, src.Content)
			if err != nil {
				log.Printf("[ENGINE] Embedding unavailable during import, continuing without vector: %v", err)
			} else {
				rec.Embedding = vec
			}
		}

		if err := e.store.Put(ctx, e.cfg.Profile, rec); err != nil {
			return report, fmt.Errorf("import source %d: %w", report.Imported+report.Skipped, err)
		}
		if _, err := e.store.Upgrade(ctx, e.cfg.Profile, rec.ID, boost, core.RecordContext{
			Extra: map[string]string{"learning_context": "project_documentation"},
		}); err != nil {
			return report, fmt.Errorf("upgrade imported source %d: %w", report.Imported+report.Skipped, err)
		}

		report.Imported++
		report.RecordIDs = append(report.RecordIDs, rec.ID)
	}

	log.Printf("[ENGINE] Imported %d knowledge sources (%d skipped)", report.Imported, report.Skipped)
	return report, nil
}
