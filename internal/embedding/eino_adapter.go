package embedding

import (
	"context"
	"fmt"
	"sync/atomic"

	"resume-rag/internal/logger"
	"resume-rag/internal/types"

	einoembedding "github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
)

const defaultBatchSize = 32

// EinoAdapter 把 eino 的 embedding.Embedder（float64）适配为本包的 float32 接口，
// 负责分批、空文本处理和数量校验。
type EinoAdapter struct {
	inner     einoembedding.Embedder
	batchSize int
	dimension atomic.Int64 // 0 表示尚未确定
	opts      []einoembedding.Option
	logger    zerolog.Logger
}

// AdapterOption 适配器配置选项
type AdapterOption func(*EinoAdapter)

// WithBatchSize 设置单次请求的最大文本数
func WithBatchSize(n int) AdapterOption {
	return func(a *EinoAdapter) {
		if n > 0 {
			a.batchSize = n
		}
	}
}

// WithDimension 设置已知的向量维度
func WithDimension(d int) AdapterOption {
	return func(a *EinoAdapter) {
		if d > 0 {
			a.dimension.Store(int64(d))
		}
	}
}

// WithEinoOptions 每次调用时透传给底层 Embedder 的选项
func WithEinoOptions(opts ...einoembedding.Option) AdapterOption {
	return func(a *EinoAdapter) {
		a.opts = append(a.opts, opts...)
	}
}

// WithAdapterLogger 设置日志
func WithAdapterLogger(l zerolog.Logger) AdapterOption {
	return func(a *EinoAdapter) {
		a.logger = l
	}
}

// NewEinoAdapter 创建适配器
func NewEinoAdapter(inner einoembedding.Embedder, opts ...AdapterOption) *EinoAdapter {
	a := &EinoAdapter{
		inner:     inner,
		batchSize: defaultBatchSize,
		logger:    logger.Component("embedding"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Dimension 返回已知维度；未配置时在第一次成功调用后确定
func (a *EinoAdapter) Dimension() int {
	return int(a.dimension.Load())
}

// Embed 实现 Embedder。空字符串不发送给后端，直接返回同维度的零向量。
func (a *EinoAdapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	// 记录非空文本在原切片中的位置
	var pending []int
	for i, t := range texts {
		if t != "" {
			pending = append(pending, i)
		}
	}

	for start := 0; start < len(pending); start += a.batchSize {
		end := start + a.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batchIdx := pending[start:end]
		batch := make([]string, len(batchIdx))
		for j, idx := range batchIdx {
			batch[j] = texts[idx]
		}

		vecs, err := a.inner.EmbedStrings(ctx, batch, a.opts...)
		if err != nil {
			return nil, types.NewEmbeddingBackendError("embed", err)
		}
		if len(vecs) != len(batch) {
			return nil, types.NewEmbeddingBackendError("embed",
				fmt.Errorf("backend returned %d vectors for %d texts", len(vecs), len(batch)))
		}
		for j, idx := range batchIdx {
			v := ToFloat32(vecs[j])
			// 并发请求共享适配器，第一个返回的向量确定维度
			a.dimension.CompareAndSwap(0, int64(len(v)))
			if dim := a.Dimension(); len(v) != dim {
				return nil, types.NewEmbeddingBackendError("embed",
					fmt.Errorf("vector %d has dimension %d, expected %d", idx, len(v), dim))
			}
			out[idx] = v
		}
		a.logger.Debug().Int("batch", len(batch)).Int("dim", a.Dimension()).Msg("批量向量化完成")
	}

	if len(pending) < len(texts) {
		dim := a.Dimension()
		if dim == 0 {
			return nil, types.NewConfigurationError("embed", "cannot embed empty text: dimension unknown")
		}
		for i := range out {
			if out[i] == nil {
				out[i] = make([]float32, dim)
			}
		}
	}
	return out, nil
}
