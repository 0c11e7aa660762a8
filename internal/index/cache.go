package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"resume-rag/internal/logger"
	"resume-rag/internal/types"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrSnapshotNotFound 快照存储中没有该 key
var ErrSnapshotNotFound = errors.New("index snapshot not found")

// Snapshot 一个已构建索引的可持久化形式
type Snapshot struct {
	Key          string         `json:"key"`
	ModelVersion string         `json:"model_version"` // 生成向量的嵌入模型，恢复时必须与当前模型一致
	Dimension    int            `json:"dimension"`
	Chunks       []types.Chunk  `json:"chunks"`
	Vectors      []types.Vector `json:"vectors"`
	CreatedAt    time.Time      `json:"created_at"`
}

// SnapshotStore 索引快照的持久化后端，只用于加速，不是数据源
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	// LoadSnapshot 不存在时返回 ErrSnapshotNotFound
	LoadSnapshot(ctx context.Context, key string) (*Snapshot, error)
}

type entry struct {
	flat   *Flat
	chunks []types.Chunk
}

// Cache 以文档内容哈希为 key 的索引缓存。同一 key 的并发首次构建只会真正执行一次，
// 构建完成后只读，可被任意多个请求并发检索。
type Cache struct {
	entries *lru.Cache[string, *entry]
	group   singleflight.Group
	builds  atomic.Int64
	logger  zerolog.Logger
}

// CacheOption 缓存配置选项
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	maxEntries int
	logger     zerolog.Logger
}

// WithMaxEntries 限制缓存的文档数量，超出后淘汰最久未使用的；0 表示不限制
func WithMaxEntries(n int) CacheOption {
	return func(o *cacheOptions) {
		o.maxEntries = n
	}
}

// WithLogger 设置日志
func WithLogger(l zerolog.Logger) CacheOption {
	return func(o *cacheOptions) {
		o.logger = l
	}
}

// NewCache 创建索引缓存
func NewCache(opts ...CacheOption) (*Cache, error) {
	o := cacheOptions{logger: logger.Component("index")}
	for _, opt := range opts {
		opt(&o)
	}
	size := o.maxEntries
	if size <= 0 {
		size = math.MaxInt32
	}

	c := &Cache{logger: o.logger}
	entries, err := lru.NewWithEvict[string, *entry](size, func(key string, e *entry) {
		c.logger.Debug().Str("key", key).Int("chunks", len(e.chunks)).Msg("索引被淘汰")
	})
	if err != nil {
		return nil, fmt.Errorf("创建索引缓存失败: %w", err)
	}
	c.entries = entries
	return c, nil
}

// Build 为 key 构建索引，已存在时直接返回（幂等）。
// vectors 与 chunks 一一对应，数量或维度不一致时返回 ConfigurationError。
func (c *Cache) Build(ctx context.Context, key string, vectors []types.Vector, chunks []types.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return types.NewConfigurationError("index.build",
			fmt.Sprintf("%d vectors for %d chunks", len(vectors), len(chunks)))
	}
	if c.entries.Contains(key) {
		return nil
	}

	_, err, shared := c.group.Do(key, func() (any, error) {
		if c.entries.Contains(key) {
			return nil, nil
		}
		dim := 0
		if len(vectors) > 0 {
			dim = len(vectors[0])
		}
		flat := NewFlat(dim)
		if err := flat.Add(vectors...); err != nil {
			return nil, err
		}
		c.entries.Add(key, &entry{
			flat:   flat,
			chunks: append([]types.Chunk(nil), chunks...),
		})
		c.builds.Add(1)
		c.logger.Info().Str("key", shortKey(key)).Int("chunks", len(chunks)).Int("dim", dim).Msg("索引构建完成")
		return nil, nil
	})
	if shared {
		c.logger.Debug().Str("key", shortKey(key)).Msg("复用并发构建结果")
	}
	return err
}

// Query 返回与 vector 最近的 k 个分块；k 大于分块数时返回全部
func (c *Cache) Query(ctx context.Context, key string, vector types.Vector, k int) ([]types.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := c.entries.Get(key)
	if !ok {
		return nil, types.NewUnknownIndexError(key)
	}
	results, err := e.flat.Search(vector, k)
	if err != nil {
		return nil, err
	}
	out := make([]types.Chunk, len(results))
	for i, r := range results {
		out[i] = e.chunks[r.ID]
	}
	return out, nil
}

// Contains 判断 key 是否已构建，不影响淘汰顺序
func (c *Cache) Contains(key string) bool {
	return c.entries.Contains(key)
}

// Len 当前缓存的文档数
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Builds 累计实际执行的构建次数
func (c *Cache) Builds() int64 {
	return c.builds.Load()
}

// Export 导出 key 对应的索引用于保存快照
func (c *Cache) Export(key string) (*Snapshot, bool) {
	e, ok := c.entries.Peek(key)
	if !ok {
		return nil, false
	}
	vectors := make([]types.Vector, e.flat.Len())
	for i := range vectors {
		vectors[i] = e.flat.Vector(i)
	}
	return &Snapshot{
		Key:       key,
		Dimension: e.flat.Dimension(),
		Chunks:    append([]types.Chunk(nil), e.chunks...),
		Vectors:   vectors,
		CreatedAt: time.Now(),
	}, true
}

// Restore 从快照重建索引，等价于对快照内容调用 Build
func (c *Cache) Restore(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot is nil")
	}
	return c.Build(ctx, snap.Key, snap.Vectors, snap.Chunks)
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
