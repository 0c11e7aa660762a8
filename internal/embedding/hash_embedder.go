package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"resume-rag/internal/types"
)

// LocalHashEmbedder 进程内的确定性嵌入：词和字符三元组经特征哈希映射到固定维度，
// 再做 L2 归一化。不依赖外部服务，相同文本永远得到相同向量，空文本得到零向量。
type LocalHashEmbedder struct {
	model     string
	dimension int
}

// NewLocalHashEmbedder 创建本地嵌入器
func NewLocalHashEmbedder(model string, dimension int) (*LocalHashEmbedder, error) {
	if dimension <= 0 {
		return nil, types.NewConfigurationError("embedding", "local embedder dimension must be > 0")
	}
	return &LocalHashEmbedder{model: model, dimension: dimension}, nil
}

func (e *LocalHashEmbedder) Dimension() int { return e.dimension }

// Embed 实现 Embedder
func (e *LocalHashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, types.NewEmbeddingBackendError("embed", err)
		}
		out[i] = e.embedOne(t)
	}
	return out, nil
}

func (e *LocalHashEmbedder) embedOne(text string) []float32 {
	vec := make([]float64, e.dimension)
	for _, word := range tokenize(text) {
		e.addFeature(vec, "w:"+word, 1.0)
		padded := []rune("^" + word + "$")
		for i := 0; i+3 <= len(padded); i++ {
			e.addFeature(vec, "t:"+string(padded[i:i+3]), 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, e.dimension)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

// addFeature 哈希取模决定落点，最高位决定符号
func (e *LocalHashEmbedder) addFeature(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(e.model))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(e.dimension))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
