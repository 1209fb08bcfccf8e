package index_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkbase/inkbase/internal/index"
	"github.com/inkbase/inkbase/internal/log"
	"github.com/inkbase/inkbase/internal/testutil"
)

func TestPostgres_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	pool := testutil.StartPostgres(t)
	idx := index.NewPostgres(pool, log.NewNop())

	require.NoError(t, idx.EnsureCollection(ctx, "notes", 3))

	t.Run("ensure is idempotent", func(t *testing.T) {
		require.NoError(t, idx.EnsureCollection(ctx, "notes", 3))
	})

	t.Run("ensure rejects conflicting dimension", func(t *testing.T) {
		err := idx.EnsureCollection(ctx, "notes", 5)
		require.ErrorIs(t, err, index.ErrDimensionMismatch)
	})

	t.Run("upsert and search round trip", func(t *testing.T) {
		chunks := []string{"the sky is blue", "grass is green"}
		vectors := [][]float32{{1, 0, 0}, {0, 1, 0}}
		require.NoError(t, idx.Upsert(ctx, "notes", "doc-1", chunks, vectors))

		matches, err := idx.Search(ctx, "notes", []float32{1, 0, 0}, []string{"doc-1"}, 5)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "the sky is blue", matches[0].Text)
		assert.Equal(t, index.ChunkID("doc-1", 0), matches[0].ChunkID)
		assert.InDelta(t, 1.0, float64(matches[0].Similarity), 1e-5)
		assert.Greater(t, matches[0].Similarity, matches[1].Similarity)
	})

	t.Run("upsert rejects wrong dimension", func(t *testing.T) {
		err := idx.Upsert(ctx, "notes", "doc-bad", []string{"x"}, [][]float32{{1, 0}})
		require.ErrorIs(t, err, index.ErrDimensionMismatch)
	})

	t.Run("reingest drops stale tail", func(t *testing.T) {
		long := []string{"a", "b", "c"}
		longVecs := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
		require.NoError(t, idx.Upsert(ctx, "notes", "doc-2", long, longVecs))

		require.NoError(t, idx.Upsert(ctx, "notes", "doc-2", []string{"only"}, [][]float32{{1, 0, 0}}))

		count, err := idx.Count(ctx, "notes", "doc-2")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("search respects source filter", func(t *testing.T) {
		require.NoError(t, idx.Upsert(ctx, "notes", "doc-3", []string{"other doc"}, [][]float32{{1, 0, 0}}))

		matches, err := idx.Search(ctx, "notes", []float32{1, 0, 0}, []string{"doc-3"}, 10)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "doc-3", matches[0].SourceID)
	})

	t.Run("search with empty filter returns nothing", func(t *testing.T) {
		matches, err := idx.Search(ctx, "notes", []float32{1, 0, 0}, nil, 10)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("delete source removes entries", func(t *testing.T) {
		require.NoError(t, idx.Upsert(ctx, "notes", "doc-4", []string{"doomed"}, [][]float32{{0, 0, 1}}))
		require.NoError(t, idx.DeleteSource(ctx, "notes", "doc-4"))

		count, err := idx.Count(ctx, "notes", "doc-4")
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("collections are isolated", func(t *testing.T) {
		require.NoError(t, idx.EnsureCollection(ctx, "drafts", 2))
		require.NoError(t, idx.Upsert(ctx, "drafts", "doc-1", []string{"draft text"}, [][]float32{{1, 0}}))

		matches, err := idx.Search(ctx, "drafts", []float32{1, 0}, []string{"doc-1"}, 10)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "draft text", matches[0].Text)
	})
}
