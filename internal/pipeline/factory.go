package pipeline

import (
	"fmt"
	"time"

	"resume-rag/internal/config"
	"resume-rag/internal/embedding"
	"resume-rag/internal/generation"
	"resume-rag/internal/index"
	"resume-rag/internal/logger"
	"resume-rag/internal/storage"
)

// NewFromConfig 按配置在启动时选择后端并组装编排器。st 可为 nil
func NewFromConfig(cfg *config.Config, st *storage.Storage) (*Pipeline, error) {
	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("初始化嵌入后端失败: %w", err)
	}
	generator, err := generation.New(cfg.Generation)
	if err != nil {
		return nil, fmt.Errorf("初始化生成后端失败: %w", err)
	}
	if _, disabled := generator.(generation.Disabled); disabled {
		logger.Warn().Msg("未配置生成模型密钥，分析结果将提示配置 GROQ_API_KEY")
	}

	cache, err := index.NewCache(
		index.WithMaxEntries(cfg.Index.MaxEntries),
		index.WithLogger(logger.Component("index")),
	)
	if err != nil {
		return nil, err
	}

	opts := []Option{WithIndexCache(cache), WithModelVersion(ModelVersion(cfg.Embedding))}
	if st != nil {
		if st.Snapshots != nil {
			opts = append(opts, WithSnapshotStore(st.Snapshots))
		}
		if st.Redis != nil && cfg.Pipeline.QueryVectorRedis {
			opts = append(opts, WithQueryVectorStore(st.Redis, ModelVersion(cfg.Embedding),
				config.GetDuration(cfg.Pipeline.QueryVectorTTL, 24*time.Hour)))
		}
	}

	logger.Info().
		Str("embedding_backend", cfg.Embedding.Backend).
		Str("embedding_model", cfg.Embedding.Model).
		Str("generation_backend", cfg.Generation.Backend).
		Str("snapshot_backend", cfg.Snapshot.Backend).
		Int("top_k", cfg.Pipeline.TopK).
		Msg("分析流水线已初始化")
	return New(cfg.Pipeline, embedder, generator, opts...)
}

// ModelVersion 标识嵌入模型，模型或维度变化后旧的 JD 向量缓存和索引快照不再使用
func ModelVersion(cfg config.EmbeddingConfig) string {
	return fmt.Sprintf("%s:%s:%d", cfg.Backend, cfg.Model, cfg.Dimensions)
}
