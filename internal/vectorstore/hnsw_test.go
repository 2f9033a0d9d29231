package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedHNSW(t *testing.T) *HNSWBackend {
	t.Helper()
	b := NewHNSWBackend(HNSWConfig{})
	err := b.Upsert(context.Background(), "org_1_docs", []StoredItem{
		{ID: "east", Document: "east doc", Embedding: []float32{1, 0}, Metadata: map[string]string{"type": "file_chunk"}},
		{ID: "north", Document: "north doc", Embedding: []float32{0, 1}},
		{ID: "northeast", Document: "northeast doc", Embedding: []float32{1, 1}},
	})
	require.NoError(t, err)
	return b
}

func TestHNSWBackend_QueryOrdersByDistance(t *testing.T) {
	b := seedHNSW(t)

	hits, err := b.Query(context.Background(), "org_1_docs", []float32{1, 0.1}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "east", hits[0].ID)
	assert.Equal(t, "east doc", hits[0].Document)
	assert.Equal(t, "file_chunk", hits[0].Metadata["type"])
	assert.Equal(t, "northeast", hits[1].ID)
	assert.Equal(t, "north", hits[2].ID)
	for i := 1; i < len(hits); i++ {
		require.NotNil(t, hits[i].Distance)
		assert.LessOrEqual(t, *hits[i-1].Distance, *hits[i].Distance)
	}
}

func TestHNSWBackend_QueryUnknownCollection(t *testing.T) {
	b := NewHNSWBackend(HNSWConfig{})
	hits, err := b.Query(context.Background(), "user_9_chats", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestHNSWBackend_DimensionMismatch(t *testing.T) {
	b := seedHNSW(t)

	err := b.Upsert(context.Background(), "org_1_docs", []StoredItem{{ID: "x", Embedding: []float32{1, 2, 3}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = b.Query(context.Background(), "org_1_docs", []float32{1}, 2)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestHNSWBackend_DeleteAndGet(t *testing.T) {
	b := seedHNSW(t)
	ctx := context.Background()

	require.NoError(t, b.Delete(ctx, "org_1_docs", []string{"east", "missing"}))
	assert.Equal(t, 2, b.Count("org_1_docs"))

	got, err := b.Get(ctx, "org_1_docs", []string{"east", "north"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "north", got[0].ID)

	hits, err := b.Query(ctx, "org_1_docs", []float32{1, 0}, 3)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "east", h.ID)
	}
	assert.Len(t, hits, 2)
}

func TestHNSWBackend_OverwriteKeepsOneLiveCopy(t *testing.T) {
	b := seedHNSW(t)
	ctx := context.Background()

	require.NoError(t, b.Upsert(ctx, "org_1_docs", []StoredItem{
		{ID: "east", Document: "east v2", Embedding: []float32{1, 0}},
	}))
	assert.Equal(t, 3, b.Count("org_1_docs"))

	hits, err := b.Query(ctx, "org_1_docs", []float32{1, 0}, 3)
	require.NoError(t, err)
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	assert.ElementsMatch(t, []string{"east", "north", "northeast"}, ids)
	assert.Equal(t, "east v2", hits[0].Document)
}

func TestHNSWBackend_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b, err := OpenHNSWBackend(HNSWConfig{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, b.Upsert(ctx, "org_1_docs", []StoredItem{
		{ID: "east", Document: "east doc", Embedding: []float32{1, 0}, Metadata: map[string]string{"filename": "a.txt"}},
		{ID: "north", Document: "north doc", Embedding: []float32{0, 1}},
	}))
	require.NoError(t, b.Close())

	reopened, err := OpenHNSWBackend(HNSWConfig{Dir: dir})
	require.NoError(t, err)

	items, err := reopened.Get(ctx, "org_1_docs", []string{"east", "north"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a.txt", items[0].Metadata["filename"])

	hits, err := reopened.Query(ctx, "org_1_docs", []float32{1, 0.1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "east", hits[0].ID)

	// new keys must not collide with restored ones
	require.NoError(t, reopened.Upsert(ctx, "org_1_docs", []StoredItem{{ID: "west", Embedding: []float32{-1, 0}}}))
	assert.Equal(t, 3, reopened.Count("org_1_docs"))
}

func TestHNSWBackend_DeleteIsWrittenThrough(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b, err := OpenHNSWBackend(HNSWConfig{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, b.Upsert(ctx, "org_1_docs", []StoredItem{
		{ID: "east", Embedding: []float32{1, 0}},
		{ID: "north", Embedding: []float32{0, 1}},
	}))
	require.NoError(t, b.Save())
	require.NoError(t, b.Delete(ctx, "org_1_docs", []string{"east"}))

	// no Close: the delete alone must already be on disk
	reopened, err := OpenHNSWBackend(HNSWConfig{Dir: dir})
	require.NoError(t, err)
	items, err := reopened.Get(ctx, "org_1_docs", []string{"east", "north"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "north", items[0].ID)
}

func TestHNSWBackend_MemoryOnlyWithoutDir(t *testing.T) {
	b, err := OpenHNSWBackend(HNSWConfig{})
	require.NoError(t, err)
	require.NoError(t, b.Upsert(context.Background(), "org_1_docs", []StoredItem{{ID: "a", Embedding: []float32{1}}}))
	assert.NoError(t, b.Close())
}
