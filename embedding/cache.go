package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachingProvider 在底层 Provider 外包一层基于 Redis 的嵌入缓存。
// 缓存键为模型名 + 文本内容的 SHA-256；缓存故障只降级为未命中，不影响嵌入结果。
type CachingProvider struct {
	inner  Provider
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// NewCachingProvider 创建缓存包装器。ttl 为缓存有效期，<=0 时禁用写入。
func NewCachingProvider(inner Provider, client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *CachingProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingProvider{
		inner:  inner,
		client: client,
		ttl:    ttl,
		prefix: "reasonmem:emb:",
		logger: logger.With(zap.String("component", "embedding_cache")),
	}
}

func (c *CachingProvider) Name() string      { return c.inner.Name() }
func (c *CachingProvider) Dimensions() int   { return c.inner.Dimensions() }
func (c *CachingProvider) MaxBatchSize() int { return c.inner.MaxBatchSize() }

func (c *CachingProvider) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.inner.Name() + "\x00" + text))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *CachingProvider) get(ctx context.Context, text string) ([]float64, bool) {
	data, err := c.client.Get(ctx, c.cacheKey(text)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("embedding cache get failed", zap.Error(err))
		}
		return nil, false
	}
	var emb []float64
	if err := json.Unmarshal(data, &emb); err != nil {
		c.logger.Warn("embedding cache entry corrupt", zap.Error(err))
		return nil, false
	}
	return emb, true
}

func (c *CachingProvider) put(ctx context.Context, text string, emb []float64) {
	if c.ttl <= 0 {
		return
	}
	data, err := json.Marshal(emb)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.cacheKey(text), data, c.ttl).Err(); err != nil {
		c.logger.Warn("embedding cache set failed", zap.Error(err))
	}
}

// Embed 透传到底层提供者，不走缓存（调用方需要 usage 信息时使用）。
func (c *CachingProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	return c.inner.Embed(ctx, req)
}

// EmbedQuery 先查缓存，未命中时调用底层提供者并写回。
func (c *CachingProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	if emb, ok := c.get(ctx, query); ok {
		return emb, nil
	}
	emb, err := c.inner.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	c.put(ctx, query, emb)
	return emb, nil
}

// EmbedDocuments 逐条查缓存，只把未命中的文本发给底层提供者。
func (c *CachingProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	result := make([][]float64, len(documents))
	missing := make([]string, 0, len(documents))
	missingIdx := make([]int, 0, len(documents))

	for i, text := range documents {
		if emb, ok := c.get(ctx, text); ok {
			result[i] = emb
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return result, nil
	}

	embs, err := c.inner.EmbedDocuments(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, emb := range embs {
		result[missingIdx[j]] = emb
		c.put(ctx, missing[j], emb)
	}

	c.logger.Debug("embedding cache batch",
		zap.Int("hits", len(documents)-len(missing)),
		zap.Int("misses", len(missing)))

	return result, nil
}
