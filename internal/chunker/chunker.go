// Package chunker 将提取出的文档文本切分为固定大小、相互重叠的窗口。
package chunker

import (
	"fmt"

	"resume-rag/internal/types"
)

// Chunk 按 size 个字符切分 text，相邻块之间重叠 overlap 个字符。
// 字符按 rune 计数，不会切断多字节字符。
// 空文本返回空切片；overlap >= size 返回 ConfigurationError。
func Chunk(text string, size, overlap int) ([]types.Chunk, error) {
	if size <= 0 {
		return nil, types.NewConfigurationError("chunk", fmt.Sprintf("size must be > 0, got %d", size))
	}
	if overlap < 0 || overlap >= size {
		return nil, types.NewConfigurationError("chunk", fmt.Sprintf("overlap must be in [0, %d), got %d", size, overlap))
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return []types.Chunk{}, nil
	}

	step := size - overlap
	chunks := make([]types.Chunk, 0, Count(len(runes), size, overlap))
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, types.Chunk{
			Index:  len(chunks),
			Offset: start,
			Text:   string(runes[start:end]),
		})
	}
	return chunks, nil
}

// Count 返回长度为 n 的文本会被切成多少块，即 ceil(n / (size-overlap))
func Count(n, size, overlap int) int {
	step := size - overlap
	if n <= 0 || step <= 0 {
		return 0
	}
	return (n + step - 1) / step
}

// Texts 取出各块文本，保持顺序
func Texts(chunks []types.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}
