package index

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"resume-rag/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeChunks(texts ...string) []types.Chunk {
	chunks := make([]types.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = types.Chunk{Index: i, Text: t}
	}
	return chunks
}

func chunkTexts(chunks []types.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

// 五个二维向量，查询 (0,0) 取前三
func TestQueryReturnsNearestInOrder(t *testing.T) {
	cache, err := NewCache()
	require.NoError(t, err)
	ctx := context.Background()

	vectors := []types.Vector{{0, 0}, {1, 0}, {5, 5}, {0, 2}, {10, 10}}
	require.NoError(t, cache.Build(ctx, "doc", vectors, makeChunks("c0", "c1", "c2", "c3", "c4")))

	got, err := cache.Query(ctx, "doc", types.Vector{0, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"c0", "c1", "c3"}, chunkTexts(got))
}

func TestQueryKLargerThanCountReturnsAll(t *testing.T) {
	cache, err := NewCache()
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, cache.Build(ctx, "doc", []types.Vector{{3}, {1}}, makeChunks("far", "near")))
	got, err := cache.Query(ctx, "doc", types.Vector{0}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"near", "far"}, chunkTexts(got))
}

func TestQueryTiesKeepInsertionOrder(t *testing.T) {
	f := NewFlat(1)
	require.NoError(t, f.Add(types.Vector{1}, types.Vector{-1}, types.Vector{1}, types.Vector{0.5}))

	res, err := f.Search(types.Vector{0}, 4)
	require.NoError(t, err)
	ids := []int{res[0].ID, res[1].ID, res[2].ID, res[3].ID}
	assert.Equal(t, []int{3, 0, 1, 2}, ids)
	assert.InDelta(t, 0.25, res[0].Distance, 1e-6)
}

func TestQueryUnknownKey(t *testing.T) {
	cache, err := NewCache()
	require.NoError(t, err)

	_, err = cache.Query(context.Background(), "missing", types.Vector{0}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUnknownIndex)
}

func TestBuildIsIdempotent(t *testing.T) {
	cache, err := NewCache()
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, cache.Build(ctx, "doc", []types.Vector{{0}}, makeChunks("first")))
	// 第二次构建即使内容不同也不会覆盖
	require.NoError(t, cache.Build(ctx, "doc", []types.Vector{{0}}, makeChunks("second")))

	got, err := cache.Query(ctx, "doc", types.Vector{0}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, chunkTexts(got))
	assert.Equal(t, int64(1), cache.Builds())
	assert.Equal(t, 1, cache.Len())
}

func TestConcurrentBuildsRunOnce(t *testing.T) {
	cache, err := NewCache()
	require.NoError(t, err)
	ctx := context.Background()

	vectors := []types.Vector{{0, 1}, {1, 0}}
	chunks := makeChunks("a", "b")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, cache.Build(ctx, "shared", vectors, chunks))
			_, err := cache.Query(ctx, "shared", types.Vector{0, 0}, 2)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), cache.Builds())
}

func TestBuildValidatesInput(t *testing.T) {
	cache, err := NewCache()
	require.NoError(t, err)
	ctx := context.Background()

	err = cache.Build(ctx, "doc", []types.Vector{{0}}, makeChunks("a", "b"))
	assert.True(t, types.IsConfigurationError(err))

	err = cache.Build(ctx, "doc", []types.Vector{{0, 1}, {0}}, makeChunks("a", "b"))
	assert.True(t, types.IsConfigurationError(err))
	assert.False(t, cache.Contains("doc"))

	require.NoError(t, cache.Build(ctx, "doc", []types.Vector{{0, 1}}, makeChunks("a")))
	_, err = cache.Query(ctx, "doc", types.Vector{0}, 1)
	assert.True(t, types.IsConfigurationError(err), "查询维度不一致")
}

func TestEmptyDocumentIndex(t *testing.T) {
	cache, err := NewCache()
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, cache.Build(ctx, "empty", nil, nil))
	got, err := cache.Query(ctx, "empty", types.Vector{1, 2, 3}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEvictionBound(t *testing.T) {
	cache, err := NewCache(WithMaxEntries(2))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("doc-%d", i)
		require.NoError(t, cache.Build(ctx, key, []types.Vector{{float32(i)}}, makeChunks(key)))
	}
	assert.Equal(t, 2, cache.Len())
	assert.False(t, cache.Contains("doc-0"))
	assert.True(t, cache.Contains("doc-2"))
}

func TestExportRestoreRoundTrip(t *testing.T) {
	src, err := NewCache()
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, src.Build(ctx, "doc", []types.Vector{{0, 0}, {3, 4}}, makeChunks("x", "y")))
	snap, ok := src.Export("doc")
	require.True(t, ok)
	assert.Equal(t, 2, snap.Dimension)

	dst, err := NewCache()
	require.NoError(t, err)
	require.NoError(t, dst.Restore(ctx, snap))

	got, err := dst.Query(ctx, "doc", types.Vector{3, 3}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, chunkTexts(got))

	_, ok = src.Export("missing")
	assert.False(t, ok)
}
