package chromem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/recall-go/core"
	"github.com/becomeliminal/recall-go/memory/embedder/mock"
	chromemindex "github.com/becomeliminal/recall-go/memory/index/chromem"
)

func recordWithVector(content string, vec []float32) *core.Record {
	rec := core.NewRecord(content, core.RecordContext{})
	rec.Embedding = vec
	return rec
}

func TestSyncAndLookupRanksBySimilarity(t *testing.T) {
	ix := chromemindex.New()
	defer ix.Close()
	ctx := context.Background()

	close1 := recordWithVector("nearly aligned", []float32{1, 0.1, 0})
	far := recordWithVector("orthogonal", []float32{0, 0, 1})
	exact := recordWithVector("aligned", []float32{1, 0, 0})
	records := []*core.Record{close1, far, exact}

	require.NoError(t, ix.Sync(ctx, "alice", 3, records, nil))
	assert.Equal(t, uint64(3), ix.Generation("alice"))

	ids := []string{close1.ID, far.ID, exact.ID}
	matches, err := ix.Lookup(ctx, "alice", []float32{1, 0, 0}, ids, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, exact.ID, matches[0].ID)
	assert.Equal(t, close1.ID, matches[1].ID)
	assert.Equal(t, far.ID, matches[2].ID)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)
}

func TestLookupFiltersToCandidates(t *testing.T) {
	ix := chromemindex.New()
	defer ix.Close()
	ctx := context.Background()

	a := recordWithVector("a", []float32{1, 0})
	b := recordWithVector("b", []float32{0.9, 0.1})
	require.NoError(t, ix.Sync(ctx, "alice", 1, []*core.Record{a, b}, nil))

	matches, err := ix.Lookup(ctx, "alice", []float32{1, 0}, []string{b.ID}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, b.ID, matches[0].ID)
}

func TestLookupTruncatesToK(t *testing.T) {
	ix := chromemindex.New()
	defer ix.Close()
	ctx := context.Background()

	var records []*core.Record
	var ids []string
	vecs := [][]float32{{1, 0, 0}, {0.8, 0.2, 0}, {0.5, 0.5, 0}, {0, 1, 0}}
	for _, v := range vecs {
		rec := recordWithVector("candidate", v)
		records = append(records, rec)
		ids = append(ids, rec.ID)
	}
	require.NoError(t, ix.Sync(ctx, "alice", 1, records, nil))

	matches, err := ix.Lookup(ctx, "alice", []float32{1, 0, 0}, ids, 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
	assert.Equal(t, records[0].ID, matches[0].ID)
}

func TestSyncIsIncremental(t *testing.T) {
	ix := chromemindex.New()
	defer ix.Close()
	ctx := context.Background()

	first := recordWithVector("first", []float32{1, 0})
	require.NoError(t, ix.Sync(ctx, "alice", 1, []*core.Record{first}, nil))

	// Re-syncing the same record plus a new one only adds the new one
	// and advances the generation stamp.
	second := recordWithVector("second", []float32{0, 1})
	require.NoError(t, ix.Sync(ctx, "alice", 2, []*core.Record{first, second}, nil))
	assert.Equal(t, uint64(2), ix.Generation("alice"))

	matches, err := ix.Lookup(ctx, "alice", []float32{0, 1}, []string{first.ID, second.ID}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, second.ID, matches[0].ID)
}

func TestSyncEmbedsRecordsWithoutVectors(t *testing.T) {
	ix := chromemindex.New()
	defer ix.Close()
	ctx := context.Background()

	rec := core.NewRecord("needs a vector", core.RecordContext{})
	require.NoError(t, ix.Sync(ctx, "alice", 1, []*core.Record{rec}, mock.New(64)))

	matches, err := ix.Lookup(ctx, "alice", mustEmbed(t, "needs a vector"), []string{rec.ID}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, rec.ID, matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-4)
}

func mustEmbed(t *testing.T, text string) []float32 {
	t.Helper()
	vec, err := mock.New(64).Embed(context.Background(), text)
	require.NoError(t, err)
	return vec
}

func TestProfileIsolation(t *testing.T) {
	ix := chromemindex.New()
	defer ix.Close()
	ctx := context.Background()

	hers := recordWithVector("hers", []float32{1, 0})
	require.NoError(t, ix.Sync(ctx, "alice", 1, []*core.Record{hers}, nil))

	matches, err := ix.Lookup(ctx, "bob", []float32{1, 0}, []string{hers.ID}, 1)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Equal(t, uint64(0), ix.Generation("bob"))
}

func TestEqualSimilarityPrefersNewer(t *testing.T) {
	ix := chromemindex.New()
	defer ix.Close()
	ctx := context.Background()

	older := recordWithVector("older twin", []float32{1, 0})
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := recordWithVector("newer twin", []float32{1, 0})

	require.NoError(t, ix.Sync(ctx, "alice", 1, []*core.Record{older, newer}, nil))

	matches, err := ix.Lookup(ctx, "alice", []float32{1, 0}, []string{older.ID, newer.ID}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, newer.ID, matches[0].ID)
}
