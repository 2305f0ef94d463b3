// =============================================================================
// 📦 ReasonMem 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Fusion:    DefaultFusionConfig(),
		Raptor:    DefaultRaptorConfig(),
		Rerank:    DefaultRerankConfig(),
		Pipeline:  DefaultPipelineConfig(),
		Embedding: DefaultEmbeddingConfig(),
		Summarize: DefaultSummarizeConfig(),
		Qdrant:    DefaultQdrantConfig(),
		Redis:     DefaultRedisConfig(),
		Log:       DefaultLogConfig(),
	}
}

// DefaultFusionConfig 返回默认融合配置
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		K:          60,
		MaxResults: 100,
	}
}

// DefaultRaptorConfig 返回默认树构建配置
func DefaultRaptorConfig() RaptorConfig {
	return RaptorConfig{
		MaxDepth:                   5,
		ClusterSimilarityThreshold: 0.75,
		SummarizationRetryLimit:    3,
		BuildFailureAbortThreshold: 0.5,
		BuildWorkers:               4,
		TraversalTopK:              3,
	}
}

// DefaultRerankConfig 返回默认重排配置
func DefaultRerankConfig() RerankConfig {
	return RerankConfig{
		TopN:        20,
		Concurrency: 4,
		Provider:    "cohere",
		Model:       "rerank-v3.5",
	}
}

// DefaultPipelineConfig 返回默认管线配置
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		PerChannelTimeout:     5 * time.Second,
		OverallDeadline:       30 * time.Second,
		ExpansionVariantCount: 0,
		ContextTokenBudget:    4096,
		ChannelTopK:           20,
		EnableRerank:          true,
		TokenizerModel:        "gpt-4o",
	}
}

// DefaultEmbeddingConfig 返回默认嵌入配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:   "openai",
		Model:      "text-embedding-3-large",
		Dimensions: 3072,
		Timeout:    30 * time.Second,
		CacheTTL:   24 * time.Hour,
	}
}

// DefaultSummarizeConfig 返回默认摘要配置
func DefaultSummarizeConfig() SummarizeConfig {
	return SummarizeConfig{
		Model:     "gpt-4o-mini",
		MaxTokens: 512,
		Timeout:   60 * time.Second,
	}
}

// DefaultQdrantConfig 返回默认 Qdrant 配置。Host 默认为空，
// 表示使用内存向量存储；填写 Host 后才启用 Qdrant。
func DefaultQdrantConfig() QdrantConfig {
	return QdrantConfig{
		Port:       6333,
		Collection: "reasonmem",
		Timeout:    30 * time.Second,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置。Addr 默认为空，
// 表示不启用嵌入缓存。
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		DB: 0,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "json",
	}
}
