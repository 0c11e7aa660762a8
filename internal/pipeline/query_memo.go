package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"resume-rag/internal/embedding"
	"resume-rag/internal/storage"
	"resume-rag/internal/types"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// QueryVectorStore JD 向量的二级缓存，通常是 Redis
type QueryVectorStore interface {
	GetQueryVector(ctx context.Context, textHash, modelVersion string) (types.Vector, error)
	SetQueryVector(ctx context.Context, textHash string, vector types.Vector, modelVersion string, ttl time.Duration) error
}

var _ QueryVectorStore = (*storage.Redis)(nil)

// QueryMemo 缓存 JD 文本到向量的映射：进程内 LRU 为一级，可选的 QueryVectorStore 为二级
type QueryMemo struct {
	embedder     embedding.Embedder
	local        *lru.Cache[string, types.Vector]
	group        singleflight.Group
	store        QueryVectorStore
	modelVersion string
	ttl          time.Duration
	timeout      time.Duration // 共享嵌入调用的超时
	logger       zerolog.Logger
}

// NewQueryMemo 创建容量为 size 的 JD 向量缓存
func NewQueryMemo(embedder embedding.Embedder, size int, logger zerolog.Logger) (*QueryMemo, error) {
	if size <= 0 {
		return nil, types.NewConfigurationError("query_memo", fmt.Sprintf("size must be > 0, got %d", size))
	}
	local, err := lru.New[string, types.Vector](size)
	if err != nil {
		return nil, fmt.Errorf("创建JD向量缓存失败: %w", err)
	}
	return &QueryMemo{embedder: embedder, local: local, timeout: 3 * time.Minute, logger: logger}, nil
}

// WithStore 设置二级缓存。modelVersion 不一致的缓存项视为未命中
func (m *QueryMemo) WithStore(store QueryVectorStore, modelVersion string, ttl time.Duration) *QueryMemo {
	m.store = store
	m.modelVersion = modelVersion
	m.ttl = ttl
	return m
}

// Vector 返回 text 的向量，未命中时调用嵌入后端。同一文本的并发请求只嵌入一次，
// 发起者取消不影响其他等待者
func (m *QueryMemo) Vector(ctx context.Context, text string) (types.Vector, error) {
	key := TextKey(text)
	if v, ok := m.local.Get(key); ok {
		return v, nil
	}

	ch := m.group.DoChan(key, func() (any, error) {
		ctx, cancel := detach(ctx, m.timeout)
		defer cancel()
		if v, ok := m.local.Get(key); ok {
			return v, nil
		}
		if v, ok := m.loadFromStore(ctx, key); ok {
			m.local.Add(key, v)
			return v, nil
		}

		vectors, err := m.embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vectors) != 1 {
			return nil, types.NewEmbeddingBackendError("embed_query", fmt.Errorf("expected 1 vector, got %d", len(vectors)))
		}
		vec := vectors[0]
		m.local.Add(key, vec)
		m.saveToStore(ctx, key, vec)
		return vec, nil
	})
	v, err := waitShared(ctx, ch)
	if err != nil {
		return nil, err
	}
	return v.(types.Vector), nil
}

// Len 一级缓存中的条目数
func (m *QueryMemo) Len() int {
	return m.local.Len()
}

func (m *QueryMemo) loadFromStore(ctx context.Context, key string) (types.Vector, bool) {
	if m.store == nil {
		return nil, false
	}
	v, err := m.store.GetQueryVector(ctx, key, m.modelVersion)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn().Err(err).Msg("读取JD向量缓存失败")
		}
		return nil, false
	}
	m.logger.Debug().Str("key", shortKey(key)).Msg("JD向量命中二级缓存")
	return v, true
}

func (m *QueryMemo) saveToStore(ctx context.Context, key string, vec types.Vector) {
	if m.store == nil {
		return
	}
	if err := m.store.SetQueryVector(ctx, key, vec, m.modelVersion, m.ttl); err != nil {
		m.logger.Warn().Err(err).Msg("写入JD向量缓存失败")
	}
}

// TextKey 文本内容的 sha256 十六进制摘要，用作索引和 JD 向量的缓存 key
func TextKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
