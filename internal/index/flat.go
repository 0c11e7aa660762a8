// Package index 提供精确的向量检索和按文档缓存的索引。
package index

import (
	"fmt"
	"sort"

	"resume-rag/internal/types"
)

// Flat 精确的暴力检索索引，按平方欧氏距离升序返回，距离相同时保持插入顺序。
// 向量按行连续存储。非并发安全，由 Cache 在构建完成后只读共享。
type Flat struct {
	dimension int
	data      []float32
	count     int
}

// Result 一条检索结果
type Result struct {
	ID       int     // 插入顺序
	Distance float32 // 平方欧氏距离
}

// NewFlat 创建指定维度的索引
func NewFlat(dimension int) *Flat {
	return &Flat{dimension: dimension}
}

func (f *Flat) Dimension() int { return f.dimension }

func (f *Flat) Len() int { return f.count }

// Add 追加向量，维度必须一致
func (f *Flat) Add(vectors ...types.Vector) error {
	for i, v := range vectors {
		if len(v) != f.dimension {
			return types.NewConfigurationError("index.add",
				fmt.Sprintf("vector %d has dimension %d, index dimension %d", i, len(v), f.dimension))
		}
	}
	for _, v := range vectors {
		f.data = append(f.data, v...)
		f.count++
	}
	return nil
}

// Vector 返回第 id 个向量的副本
func (f *Flat) Vector(id int) types.Vector {
	row := f.data[id*f.dimension : (id+1)*f.dimension]
	return append(types.Vector(nil), row...)
}

// Search 返回距离 query 最近的 k 个结果；k 大于总数时返回全部
func (f *Flat) Search(query types.Vector, k int) ([]Result, error) {
	if k <= 0 {
		return nil, types.NewConfigurationError("index.search", fmt.Sprintf("k must be > 0, got %d", k))
	}
	if f.count == 0 {
		return []Result{}, nil
	}
	if len(query) != f.dimension {
		return nil, types.NewConfigurationError("index.search",
			fmt.Sprintf("query dimension %d, index dimension %d", len(query), f.dimension))
	}

	results := make([]Result, f.count)
	for id := 0; id < f.count; id++ {
		row := f.data[id*f.dimension : (id+1)*f.dimension]
		var dist float32
		for j, q := range query {
			d := row[j] - q
			dist += d * d
		}
		results[id] = Result{ID: id, Distance: dist}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}
