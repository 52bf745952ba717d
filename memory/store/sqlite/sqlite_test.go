package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/recall-go/core"
	"github.com/becomeliminal/recall-go/memory"
	"github.com/becomeliminal/recall-go/memory/store/sqlite"
)

func newStore(t *testing.T) (*sqlite.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory.db")
	store, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestPutGetRoundtrip(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	rec := core.NewRecord("I prefer dark mode", core.RecordContext{
		SourceType: "conversation",
		Extra:      map[string]string{"topic": "editor"},
	})
	rec.Embedding = []float32{0.25, -0.5, 0.75}
	rec.CompanionResponse = "Noted, dark mode it is."

	require.NoError(t, store.Put(ctx, "alice", rec))

	got, err := store.Get(ctx, "alice", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Content, got.Content)
	assert.Equal(t, rec.Context, got.Context)
	assert.Equal(t, rec.Embedding, got.Embedding)
	assert.Equal(t, rec.CompanionResponse, got.CompanionResponse)
	assert.False(t, got.Evolved)
	assert.Equal(t, 1.0, got.ReliabilityMultiplier)
	assert.True(t, got.CreatedAt.Equal(rec.CreatedAt))
}

func TestPutRejectsDuplicateID(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	rec := core.NewRecord("once", core.RecordContext{})
	require.NoError(t, store.Put(ctx, "alice", rec))

	err := store.Put(ctx, "alice", rec)
	assert.ErrorIs(t, err, memory.ErrDuplicateID)

	// The same id under a different profile is a different record.
	assert.NoError(t, store.Put(ctx, "bob", rec))
}

func TestGetNotFound(t *testing.T) {
	store, _ := newStore(t)

	_, err := store.Get(context.Background(), "alice", "no-such-id")
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestUpgrade(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	rec := core.NewRecord("user prefers dark mode", core.RecordContext{SourceType: "conversation"})
	require.NoError(t, store.Put(ctx, "alice", rec))

	up, err := store.Upgrade(ctx, "alice", rec.ID, 1.5, core.RecordContext{
		Extra: map[string]string{"learning_context": "preference"},
	})
	require.NoError(t, err)
	assert.True(t, up.Evolved)
	assert.Equal(t, 1.5, up.ReliabilityMultiplier)
	assert.Equal(t, "preference", up.Context.Extra["learning_context"])
	assert.Equal(t, "conversation", up.Context.SourceType)

	// Durable, not just in the returned copy.
	got, err := store.Get(ctx, "alice", rec.ID)
	require.NoError(t, err)
	assert.True(t, got.Evolved)
	assert.Equal(t, 1.5, got.ReliabilityMultiplier)
}

func TestUpgradeNeverLowersReliability(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	rec := core.NewRecord("sticky", core.RecordContext{})
	require.NoError(t, store.Put(ctx, "alice", rec))

	up, err := store.Upgrade(ctx, "alice", rec.ID, 1.5, core.RecordContext{})
	require.NoError(t, err)
	require.Equal(t, 1.5, up.ReliabilityMultiplier)

	// A weaker boost leaves the multiplier where it is, and the
	// record stays evolved.
	up, err = store.Upgrade(ctx, "alice", rec.ID, 1.1, core.RecordContext{})
	require.NoError(t, err)
	assert.Equal(t, 1.5, up.ReliabilityMultiplier)
	assert.True(t, up.Evolved)
}

func TestUpgradeIdempotent(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	rec := core.NewRecord("repeat", core.RecordContext{})
	require.NoError(t, store.Put(ctx, "alice", rec))

	extra := core.RecordContext{Extra: map[string]string{"k": "v"}}
	first, err := store.Upgrade(ctx, "alice", rec.ID, 1.2, extra)
	require.NoError(t, err)
	second, err := store.Upgrade(ctx, "alice", rec.ID, 1.2, extra)
	require.NoError(t, err)

	assert.Equal(t, first.ReliabilityMultiplier, second.ReliabilityMultiplier)
	assert.Equal(t, first.Context, second.Context)
}

func TestUpgradeNotFound(t *testing.T) {
	store, _ := newStore(t)

	_, err := store.Upgrade(context.Background(), "alice", "missing", 1.5, core.RecordContext{})
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestScanNewestFirstWithLimit(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	contents := []string{"one", "two", "three", "four"}
	for _, c := range contents {
		require.NoError(t, store.Put(ctx, "alice", core.NewRecord(c, core.RecordContext{})))
	}

	recs, err := store.Scan(ctx, "alice", 3, nil)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "four", recs[0].Content)
	assert.Equal(t, "three", recs[1].Content)
	assert.Equal(t, "two", recs[2].Content)
}

func TestScanFilter(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "alice",
		core.NewRecord("chat", core.RecordContext{SourceType: "conversation"})))
	require.NoError(t, store.Put(ctx, "alice",
		core.NewRecord("docs", core.RecordContext{SourceType: "project_knowledge"})))

	recs, err := store.Scan(ctx, "alice", 10, func(c core.RecordContext) bool {
		return c.SourceType == "project_knowledge"
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "docs", recs[0].Content)
}

func TestScanRespectsProfiles(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "alice", core.NewRecord("hers", core.RecordContext{})))
	require.NoError(t, store.Put(ctx, "bob", core.NewRecord("his", core.RecordContext{})))

	recs, err := store.Scan(ctx, "alice", 10, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "hers", recs[0].Content)
}

func TestScanHonorsContextCancellation(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Put(ctx, "alice", core.NewRecord("row", core.RecordContext{})))
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	recs, err := store.Scan(cancelled, "alice", 10, nil)
	assert.Error(t, err)
	// Partial results are returned alongside the error, never dropped.
	assert.LessOrEqual(t, len(recs), 5)
}

func TestGenerationBumpsOnEveryWrite(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	gen, err := store.Generation(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), gen)

	rec := core.NewRecord("tracked", core.RecordContext{})
	require.NoError(t, store.Put(ctx, "alice", rec))

	gen, err = store.Generation(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)

	_, err = store.Upgrade(ctx, "alice", rec.ID, 1.2, core.RecordContext{})
	require.NoError(t, err)

	gen, err = store.Generation(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)

	// Writes under another profile do not move this one.
	require.NoError(t, store.Put(ctx, "bob", core.NewRecord("other", core.RecordContext{})))
	gen, err = store.Generation(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)
}

func TestDurabilityAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	ctx := context.Background()

	store, err := sqlite.New(path)
	require.NoError(t, err)

	rec := core.NewRecord("survives restart", core.RecordContext{SourceType: "conversation"})
	rec.Embedding = []float32{1, 2, 3}
	require.NoError(t, store.Put(ctx, "alice", rec))
	_, err = store.Upgrade(ctx, "alice", rec.ID, 1.3, core.RecordContext{})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "alice", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "survives restart", got.Content)
	assert.Equal(t, []float32{1, 2, 3}, got.Embedding)
	assert.True(t, got.Evolved)
	assert.Equal(t, 1.3, got.ReliabilityMultiplier)

	gen, err := reopened.Generation(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)
}
