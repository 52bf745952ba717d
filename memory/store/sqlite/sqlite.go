// Package sqlite provides the durable reference implementation of
// memory.Store on an embedded SQLite database (modernc.org/sqlite,
// pure Go, no cgo).
//
// Layout: one records table partitioned by a profile column with a
// monotonically increasing seq for chronological scans, plus a
// per-profile generation counter. Every Put and Upgrade runs in a
// single transaction that writes the record and bumps the generation,
// so readers observe the bump no earlier than the write it tracks.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/becomeliminal/recall-go/core"
	"github.com/becomeliminal/recall-go/memory"
)

// Store is a SQLite-backed memory.Store.
type Store struct {
	db *sql.DB

	// Serializes write transactions. SQLite allows one writer at a
	// time anyway; taking the lock up front avoids SQLITE_BUSY churn.
	mu sync.Mutex
}

// New opens (or creates) the database at path and initializes the
// schema. WAL mode keeps readers unblocked while a write commits.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=FULL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set synchronous: %w", err)
	}

	createSQL := `CREATE TABLE IF NOT EXISTS records (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		profile TEXT NOT NULL,
		id TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL,
		context TEXT NOT NULL DEFAULT '{}',
		embedding BLOB,
		is_evolved INTEGER NOT NULL DEFAULT 0,
		reliability REAL NOT NULL DEFAULT 1.0,
		companion TEXT NOT NULL DEFAULT '',
		UNIQUE(profile, id)
	);
	CREATE INDEX IF NOT EXISTS idx_records_profile_seq ON records(profile, seq DESC);
	CREATE TABLE IF NOT EXISTS generations (
		profile TEXT PRIMARY KEY,
		generation INTEGER NOT NULL DEFAULT 0
	)`
	if _, err := db.Exec(createSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Put persists a new record durably.
func (s *Store) Put(ctx context.Context, profile string, rec *core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin put: %v", memory.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE profile = ? AND id = ?`,
		profile, rec.ID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%w: check id: %v", memory.ErrStorageUnavailable, err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", memory.ErrDuplicateID, rec.ID)
	}

	contextJSON, embeddingJSON, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO records (profile, id, content, created_at, context, embedding, is_evolved, reliability, companion)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		profile, rec.ID, rec.Content,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		contextJSON, embeddingJSON,
		boolToInt(rec.Evolved), rec.ReliabilityMultiplier, rec.CompanionResponse,
	)
	if err != nil {
		return fmt.Errorf("%w: insert record: %v", memory.ErrStorageUnavailable, err)
	}

	if err := bumpGeneration(ctx, tx, profile); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit put: %v", memory.ErrStorageUnavailable, err)
	}

	log.Printf("[SQLITE] Stored record: id=%s, profile=%q", rec.ID, profile)
	return nil
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, profile, id string) (*core.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content, created_at, context, embedding, is_evolved, reliability, companion
		 FROM records WHERE profile = ? AND id = ?`,
		profile, id,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", memory.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// Upgrade promotes the record to evolved knowledge in one transaction.
// Repeating an upgrade with identical parameters leaves the record
// unchanged.
func (s *Store) Upgrade(ctx context.Context, profile, id string, boost float64, evolved core.RecordContext) (*core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin upgrade: %v", memory.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, content, created_at, context, embedding, is_evolved, reliability, companion
		 FROM records WHERE profile = ? AND id = ?`,
		profile, id,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", memory.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read for upgrade: %w", err)
	}

	rec.Evolved = true
	rec.ReliabilityMultiplier = math.Max(rec.ReliabilityMultiplier, boost)
	rec.Context = rec.Context.Merge(evolved)

	contextJSON, _, err := encodeRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("encode upgrade: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE records SET is_evolved = 1, reliability = ?, context = ? WHERE profile = ? AND id = ?`,
		rec.ReliabilityMultiplier, contextJSON, profile, id,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: update record: %v", memory.ErrStorageUnavailable, err)
	}

	if err := bumpGeneration(ctx, tx, profile); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit upgrade: %v", memory.ErrStorageUnavailable, err)
	}

	log.Printf("[SQLITE] Upgraded record: id=%s, profile=%q, reliability=%.2f", id, profile, rec.ReliabilityMultiplier)
	return rec, nil
}

// Scan returns up to limit most-recent records, newest first. A nil
// filter admits everything.
func (s *Store) Scan(ctx context.Context, profile string, limit int, filter func(core.RecordContext) bool) ([]*core.Record, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, created_at, context, embedding, is_evolved, reliability, companion
		 FROM records WHERE profile = ? ORDER BY seq DESC`,
		profile,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: scan: %v", memory.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var out []*core.Record
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if filter != nil && !filter(rec.Context) {
			continue
		}
		out = append(out, rec)
		if len(out) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("%w: scan rows: %v", memory.ErrStorageUnavailable, err)
	}
	return out, nil
}

// Generation returns the profile's write generation.
func (s *Store) Generation(ctx context.Context, profile string) (uint64, error) {
	var gen uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT generation FROM generations WHERE profile = ?`, profile,
	).Scan(&gen)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read generation: %v", memory.ErrStorageUnavailable, err)
	}
	return gen, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// bumpGeneration increments the profile's write generation inside the
// caller's transaction, so the bump commits atomically with the write.
func bumpGeneration(ctx context.Context, tx *sql.Tx, profile string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO generations (profile, generation) VALUES (?, 1)
		 ON CONFLICT(profile) DO UPDATE SET generation = generation + 1`,
		profile,
	)
	if err != nil {
		return fmt.Errorf("%w: bump generation: %v", memory.ErrStorageUnavailable, err)
	}
	return nil
}

func encodeRecord(rec *core.Record) (contextJSON string, embeddingJSON []byte, err error) {
	ctxBytes, err := json.Marshal(rec.Context)
	if err != nil {
		return "", nil, fmt.Errorf("marshal context: %w", err)
	}
	if rec.HasEmbedding() {
		embeddingJSON, err = json.Marshal(rec.Embedding)
		if err != nil {
			return "", nil, fmt.Errorf("marshal embedding: %w", err)
		}
	}
	return string(ctxBytes), embeddingJSON, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*core.Record, error) {
	var (
		rec           core.Record
		createdAt     string
		contextJSON   string
		embeddingJSON []byte
		evolved       int
	)
	err := row.Scan(&rec.ID, &rec.Content, &createdAt, &contextJSON, &embeddingJSON,
		&evolved, &rec.ReliabilityMultiplier, &rec.CompanionResponse)
	if err != nil {
		return nil, err
	}

	rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(contextJSON), &rec.Context); err != nil {
		return nil, fmt.Errorf("unmarshal context: %w", err)
	}
	if len(embeddingJSON) > 0 {
		if err := json.Unmarshal(embeddingJSON, &rec.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}
	rec.Evolved = evolved != 0
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
