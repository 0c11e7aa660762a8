// Package embedding 定义单精度向量化接口及其各后端实现。
package embedding

import (
	"context"
	"fmt"

	"resume-rag/internal/config"
	"resume-rag/internal/types"
)

// Embedder 将一批文本转换为 float32 向量，输出与输入一一对应、顺序一致。
// 失败时返回 EmbeddingBackendError，不做自动重试。
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension 返回向量维度，未知时返回 0
	Dimension() int
}

// New 根据配置在启动时选择嵌入后端
func New(cfg config.EmbeddingConfig, opts ...AdapterOption) (Embedder, error) {
	switch cfg.Backend {
	case "local":
		return NewLocalHashEmbedder(cfg.Model, cfg.Dimensions)
	case "openai-compat":
		compat, err := NewCompatEmbedder(cfg.APIKey, cfg)
		if err != nil {
			return nil, err
		}
		opts = append([]AdapterOption{WithBatchSize(cfg.BatchSize), WithDimension(cfg.Dimensions)}, opts...)
		return NewEinoAdapter(compat, opts...), nil
	case "disabled":
		return DisabledEmbedder{}, nil
	default:
		return nil, types.NewConfigurationError("embedding", fmt.Sprintf("unknown backend %q", cfg.Backend))
	}
}

// DisabledEmbedder 未配置嵌入服务时使用，每次调用都返回 EmbeddingBackendError
type DisabledEmbedder struct{}

func (DisabledEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, types.NewEmbeddingBackendError("embed", fmt.Errorf("embedding backend is disabled"))
}

func (DisabledEmbedder) Dimension() int { return 0 }

// ToFloat32 将 float64 向量转换为 float32
func ToFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
