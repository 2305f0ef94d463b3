package indexing

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/reasonmem/types"
)

// SparseIndex 稀疏索引接口
type SparseIndex interface {
	// 索引 chunk 文本
	Index(ctx context.Context, chunks []types.Chunk) error

	// 按查询文本搜索，返回按分数降序排列的 (chunk_id, score)
	Search(ctx context.Context, queryText string, topK int) ([]ScoredRef, error)

	// 获取已索引的 chunk 数量
	Count(ctx context.Context) (int, error)
}

// ScoredRef 稀疏搜索结果
type ScoredRef struct {
	ChunkID string  `json:"chunk_id"`
	Text    string  `json:"text"`
	Score   float64 `json:"score"`
}

// BM25Config BM25 参数
type BM25Config struct {
	K1 float64 `json:"k1"` // BM25 参数 k1 (1.2-2.0)
	B  float64 `json:"b"`  // BM25 参数 b (0.75)
}

// DefaultBM25Config 返回默认 BM25 参数
func DefaultBM25Config() BM25Config {
	return BM25Config{K1: 1.5, B: 0.75}
}

// BM25Index 内存 BM25 索引
type BM25Index struct {
	cfg BM25Config

	mu        sync.RWMutex
	docs      []indexedDoc
	docIdx    map[string]int
	avgDocLen float64
	idf       map[string]float64

	logger *zap.Logger
}

type indexedDoc struct {
	id       string
	text     string
	termFreq map[string]int
	length   int
}

// NewBM25Index 创建 BM25 索引
func NewBM25Index(cfg BM25Config, logger *zap.Logger) *BM25Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.K1 == 0 {
		cfg.K1 = 1.5
	}
	if cfg.B == 0 {
		cfg.B = 0.75
	}
	return &BM25Index{
		cfg:    cfg,
		docIdx: make(map[string]int),
		idf:    make(map[string]float64),
		logger: logger,
	}
}

// Index 索引 chunk 文本，重复 ID 覆盖旧内容
func (idx *BM25Index) Index(ctx context.Context, chunks []types.Chunk) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk has empty id")
		}
		terms := tokenize(c.Text)
		tf := make(map[string]int, len(terms))
		for _, term := range terms {
			tf[term]++
		}
		doc := indexedDoc{id: c.ID, text: c.Text, termFreq: tf, length: len(terms)}

		if i, ok := idx.docIdx[c.ID]; ok {
			idx.docs[i] = doc
		} else {
			idx.docIdx[c.ID] = len(idx.docs)
			idx.docs = append(idx.docs, doc)
		}
	}

	idx.recomputeStats()

	idx.logger.Debug("chunks indexed",
		zap.Int("count", len(chunks)),
		zap.Int("total", len(idx.docs)))

	return nil
}

// recomputeStats 重算平均文档长度和 IDF，调用方必须持有写锁
func (idx *BM25Index) recomputeStats() {
	totalLen := 0
	termDocCount := make(map[string]int)

	for _, doc := range idx.docs {
		totalLen += doc.length
		for term := range doc.termFreq {
			termDocCount[term]++
		}
	}

	idx.avgDocLen = 0
	if len(idx.docs) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(idx.docs))
	}

	idx.idf = make(map[string]float64, len(termDocCount))
	N := float64(len(idx.docs))
	for term, df := range termDocCount {
		idx.idf[term] = math.Log((N-float64(df)+0.5)/(float64(df)+0.5) + 1.0)
	}
}

// Search 按 BM25 分数搜索
func (idx *BM25Index) Search(ctx context.Context, queryText string, topK int) ([]ScoredRef, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if topK <= 0 || len(idx.docs) == 0 {
		return []ScoredRef{}, nil
	}

	queryTerms := tokenize(queryText)
	if len(queryTerms) == 0 {
		return []ScoredRef{}, nil
	}

	results := make([]ScoredRef, 0, len(idx.docs))
	for _, doc := range idx.docs {
		score := 0.0
		docLen := float64(doc.length)

		for _, qTerm := range queryTerms {
			tf, ok := doc.termFreq[qTerm]
			if !ok {
				continue
			}
			// BM25 公式
			numerator := float64(tf) * (idx.cfg.K1 + 1.0)
			denominator := float64(tf) + idx.cfg.K1*(1.0-idx.cfg.B+idx.cfg.B*(docLen/idx.avgDocLen))
			score += idx.idf[qTerm] * (numerator / denominator)
		}

		if score > 0 {
			results = append(results, ScoredRef{ChunkID: doc.id, Text: doc.text, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Count 返回已索引的 chunk 数量
func (idx *BM25Index) Count(ctx context.Context) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs), nil
}

// tokenize 分词：转小写并按空白分割
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}
