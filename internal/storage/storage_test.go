package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"resume-rag/internal/config"
	"resume-rag/internal/index"
	"resume-rag/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltSnapshotStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "index.db")
	store, err := NewBoltSnapshotStore(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	_, err = store.LoadSnapshot(ctx, "missing")
	assert.ErrorIs(t, err, index.ErrSnapshotNotFound)

	snap := &index.Snapshot{
		Key:       "abc",
		Dimension: 2,
		Chunks:    []types.Chunk{{Index: 0, Offset: 0, Text: "Go"}, {Index: 1, Offset: 170, Text: "Rust"}},
		Vectors:   []types.Vector{{0.1, 0.2}, {0.3, 0.4}},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.SaveSnapshot(ctx, snap))

	got, err := store.LoadSnapshot(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, snap.Chunks, got.Chunks)
	assert.Equal(t, snap.Vectors, got.Vectors)
	assert.True(t, snap.CreatedAt.Equal(got.CreatedAt))
}

func TestBoltSnapshotRestoresIntoCache(t *testing.T) {
	store, err := NewBoltSnapshotStore(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	src, err := index.NewCache()
	require.NoError(t, err)
	require.NoError(t, src.Build(ctx, "doc", []types.Vector{{0, 0}, {1, 1}}, []types.Chunk{{Text: "a"}, {Index: 1, Text: "b"}}))
	snap, ok := src.Export("doc")
	require.True(t, ok)
	require.NoError(t, store.SaveSnapshot(ctx, snap))

	loaded, err := store.LoadSnapshot(ctx, "doc")
	require.NoError(t, err)
	dst, err := index.NewCache()
	require.NoError(t, err)
	require.NoError(t, dst.Restore(ctx, loaded))

	got, err := dst.Query(ctx, "doc", types.Vector{1, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, "b", got[0].Text)
}

// Redis 相关测试需要本地 Redis，不可用时跳过
func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		addr = "localhost:6379"
	}
	r, err := NewRedisAdapter(&config.RedisConfig{Address: addr, DialTimeoutSeconds: 1})
	if err != nil {
		t.Skipf("Redis 不可用，跳过: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRedisQueryVector(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()
	hash := "test-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { r.Client.Del(ctx, "rag:jd:vector:"+hash) })

	_, err := r.GetQueryVector(ctx, hash, "m1")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, r.SetQueryVector(ctx, hash, types.Vector{0.5, -0.25}, "m1", time.Minute))

	got, err := r.GetQueryVector(ctx, hash, "m1")
	require.NoError(t, err)
	assert.Equal(t, types.Vector{0.5, -0.25}, got)

	_, err = r.GetQueryVector(ctx, hash, "m2")
	assert.ErrorIs(t, err, ErrNotFound, "模型版本变化后缓存失效")
}

func TestNewStorageWithoutBackends(t *testing.T) {
	cfg := &config.Config{}
	cfg.Snapshot.Backend = "none"
	s, err := NewStorage(context.Background(), cfg, Options{})
	require.NoError(t, err)
	assert.Nil(t, s.Snapshots)
	assert.Nil(t, s.Redis)
	assert.Nil(t, s.RabbitMQ)
	s.Close()
}

func TestNewStorageBolt(t *testing.T) {
	cfg := &config.Config{}
	cfg.Snapshot.Backend = "bolt"
	cfg.Snapshot.Bolt.Path = filepath.Join(t.TempDir(), "snap.db")
	s, err := NewStorage(context.Background(), cfg, Options{})
	require.NoError(t, err)
	defer s.Close()
	_, ok := s.Snapshots.(*BoltSnapshotStore)
	assert.True(t, ok)
}
