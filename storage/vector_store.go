package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/reasonmem/types"
)

// VectorStore 向量存储接口
type VectorStore interface {
	// 写入或更新 chunk 及其嵌入
	Upsert(ctx context.Context, chunks []types.Chunk) error

	// 按嵌入相似度搜索，返回按相似度降序排列的 (chunk_id, score)
	Search(ctx context.Context, queryEmbedding []float64, topK int) ([]ScoredChunk, error)

	// 删除 chunk
	Delete(ctx context.Context, ids []string) error

	// 获取 chunk 数量
	Count(ctx context.Context) (int, error)
}

// ScoredChunk 向量搜索结果
type ScoredChunk struct {
	Chunk types.Chunk `json:"chunk"`
	Score float64     `json:"score"`
}

// Clearable is an optional interface for VectorStore implementations that
// support clearing all stored data. Use type assertion to check support:
//
//	if c, ok := store.(Clearable); ok { c.ClearAll(ctx) }
type Clearable interface {
	ClearAll(ctx context.Context) error
}

// ====== 内存向量存储（用于测试和嵌入式场景）======

// InMemoryVectorStore 内存向量存储
type InMemoryVectorStore struct {
	chunks map[string]types.Chunk
	order  []string
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewInMemoryVectorStore 创建内存向量存储
func NewInMemoryVectorStore(logger *zap.Logger) *InMemoryVectorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryVectorStore{
		chunks: make(map[string]types.Chunk),
		logger: logger,
	}
}

// Upsert 写入或更新 chunk
func (s *InMemoryVectorStore) Upsert(ctx context.Context, chunks []types.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk has empty id")
		}
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", c.ID)
		}
		if _, exists := s.chunks[c.ID]; !exists {
			s.order = append(s.order, c.ID)
		}
		s.chunks[c.ID] = c
	}

	s.logger.Debug("chunks upserted to vector store",
		zap.Int("count", len(chunks)),
		zap.Int("total", len(s.chunks)))

	return nil
}

// Search 按余弦相似度搜索
func (s *InMemoryVectorStore) Search(ctx context.Context, queryEmbedding []float64, topK int) ([]ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if topK <= 0 || len(s.chunks) == 0 {
		return []ScoredChunk{}, nil
	}

	results := make([]ScoredChunk, 0, len(s.chunks))
	// 按插入顺序遍历，保证同分结果的确定性
	for _, id := range s.order {
		c := s.chunks[id]
		if len(c.Embedding) == 0 {
			continue
		}
		results = append(results, ScoredChunk{
			Chunk: c,
			Score: cosineSimilarity(queryEmbedding, c.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Delete 删除 chunk
func (s *InMemoryVectorStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.chunks[id]; ok {
			delete(s.chunks, id)
			removed[id] = true
		}
	}
	if len(removed) > 0 {
		kept := s.order[:0]
		for _, id := range s.order {
			if !removed[id] {
				kept = append(kept, id)
			}
		}
		s.order = kept
	}
	return nil
}

// Count 返回 chunk 数量
func (s *InMemoryVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// ClearAll 清空所有数据
func (s *InMemoryVectorStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = make(map[string]types.Chunk)
	s.order = nil
	return nil
}

// cosineSimilarity 计算余弦相似度
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
