// Copyright 2025-2026 ReasonMem Authors. All rights reserved.
// Use of this source code is governed by the project license.

// Package reasonmem provides a top-level convenience entry point for the
// hybrid retrieval engine with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/reasonmem"
//
//	cfg := config.DefaultConfig()
//	engine, err := reasonmem.New(cfg)
//	err = engine.Ingest(ctx, chunks)
//	result, err := engine.Query(ctx, "how do solar panels work?")
//
// The engine wires together the vector store, the sparse index, the
// hierarchical summary tree, and the query pipeline. Individual components
// can be swapped via options.
package reasonmem

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/reasonmem/config"
	"github.com/BaSui01/reasonmem/embedding"
	"github.com/BaSui01/reasonmem/indexing"
	"github.com/BaSui01/reasonmem/internal/metrics"
	"github.com/BaSui01/reasonmem/raptor"
	"github.com/BaSui01/reasonmem/rerank"
	"github.com/BaSui01/reasonmem/retrieval"
	"github.com/BaSui01/reasonmem/storage"
	"github.com/BaSui01/reasonmem/summarize"
	"github.com/BaSui01/reasonmem/types"
)

// Engine 混合检索引擎的顶层封装。Ingest 更新全部索引并重建摘要树，
// Query 在当前快照上执行检索管线。两者可并发调用：查询始终看到
// 发布时刻的完整树，不会观察到半建状态。
type Engine struct {
	cfg       *config.Config
	logger    *zap.Logger
	embedder  embedding.Provider
	store     storage.VectorStore
	sparse    indexing.SparseIndex
	holder    *raptor.Holder
	builder   *raptor.Builder
	pipeline  *retrieval.Pipeline
	collector *metrics.Collector

	mu     sync.Mutex
	corpus map[string]types.Chunk
}

// Option 替换引擎的某个组件
type Option func(*options)

type options struct {
	logger     *zap.Logger
	embedder   embedding.Provider
	store      storage.VectorStore
	sparse     indexing.SparseIndex
	summarizer summarize.Service
	scorer     rerank.Provider
	expander   retrieval.Expander
	collector  *metrics.Collector
}

// WithLogger 使用自定义 zap logger
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// WithEmbedder 替换嵌入提供者
func WithEmbedder(p embedding.Provider) Option { return func(o *options) { o.embedder = p } }

// WithVectorStore 替换向量存储
func WithVectorStore(s storage.VectorStore) Option { return func(o *options) { o.store = s } }

// WithSparseIndex 替换稀疏索引
func WithSparseIndex(idx indexing.SparseIndex) Option { return func(o *options) { o.sparse = idx } }

// WithSummarizer 替换摘要服务
func WithSummarizer(s summarize.Service) Option { return func(o *options) { o.summarizer = s } }

// WithRerankProvider 替换交叉编码器打分提供者
func WithRerankProvider(p rerank.Provider) Option { return func(o *options) { o.scorer = p } }

// WithExpander 替换查询扩展器
func WithExpander(e retrieval.Expander) Option { return func(o *options) { o.expander = e } }

// WithCollector 接入指标收集
func WithCollector(c *metrics.Collector) Option { return func(o *options) { o.collector = c } }

// New 按配置装配引擎。未被选项覆盖的组件按配置构造：
// 嵌入走 OpenAI 兼容端点（配置了 Redis 时加缓存层），向量存储在
// 配置了 Qdrant 时用 Qdrant、否则内存实现，稀疏索引用内存 BM25。
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = newLogger(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
	}

	embedder := o.embedder
	if embedder == nil {
		embedder = embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			BaseURL:    cfg.Embedding.BaseURL,
			APIKey:     cfg.Embedding.APIKey,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    cfg.Embedding.Timeout,
		})
		if cfg.Embedding.CacheTTL > 0 && cfg.Redis.Addr != "" {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			embedder = embedding.NewCachingProvider(embedder, client, cfg.Embedding.CacheTTL, logger)
		}
	}

	store := o.store
	if store == nil {
		if cfg.Qdrant.Host != "" {
			store = storage.NewQdrantStore(storage.QdrantConfig{
				Host:                 cfg.Qdrant.Host,
				Port:                 cfg.Qdrant.Port,
				APIKey:               cfg.Qdrant.APIKey,
				Collection:           cfg.Qdrant.Collection,
				Timeout:              cfg.Qdrant.Timeout,
				AutoCreateCollection: true,
			}, logger)
		} else {
			store = storage.NewInMemoryVectorStore(logger)
		}
	}

	sparse := o.sparse
	if sparse == nil {
		sparse = indexing.NewBM25Index(indexing.DefaultBM25Config(), logger)
	}

	summarizer := o.summarizer
	if summarizer == nil {
		summarizer = summarize.NewChatProvider(summarize.Config{
			BaseURL:   cfg.Summarize.BaseURL,
			APIKey:    cfg.Summarize.APIKey,
			Model:     cfg.Summarize.Model,
			MaxTokens: cfg.Summarize.MaxTokens,
			Timeout:   cfg.Summarize.Timeout,
		}, logger)
	}

	holder := raptor.NewHolder()
	builder := raptor.NewBuilder(raptor.BuilderConfig{
		MaxDepth:                   cfg.Raptor.MaxDepth,
		ClusterSimilarityThreshold: cfg.Raptor.ClusterSimilarityThreshold,
		SummarizationRetryLimit:    cfg.Raptor.SummarizationRetryLimit,
		BuildFailureAbortThreshold: cfg.Raptor.BuildFailureAbortThreshold,
		Workers:                    cfg.Raptor.BuildWorkers,
	}, summarizer, embedder, o.collector, logger)

	channels := []retrieval.Channel{
		retrieval.NewDenseChannel(store, embedder, logger),
		retrieval.NewSparseChannel(sparse, logger),
		retrieval.NewSummaryChannel(holder, embedder, retrieval.SummaryModeCollapsed,
			cfg.Raptor.TraversalTopK, logger),
	}

	fusion := retrieval.NewFusionEngine(retrieval.FusionConfig{
		K:          cfg.Fusion.K,
		MaxResults: cfg.Fusion.MaxResults,
	}, logger)

	pipelineOpts := []retrieval.PipelineOption{
		retrieval.WithTokenCounter(retrieval.NewTiktokenCounter(cfg.Pipeline.TokenizerModel, logger)),
	}
	if o.collector != nil {
		pipelineOpts = append(pipelineOpts, retrieval.WithCollector(o.collector))
	}

	if cfg.Pipeline.EnableRerank {
		scorer := o.scorer
		if scorer == nil && cfg.Rerank.APIKey != "" {
			scorer = rerank.NewCohereProvider(rerank.CohereConfig{
				BaseURL: cfg.Rerank.BaseURL,
				APIKey:  cfg.Rerank.APIKey,
				Model:   cfg.Rerank.Model,
			})
		}
		if scorer != nil {
			pipelineOpts = append(pipelineOpts, retrieval.WithReranker(
				retrieval.NewReranker(retrieval.RerankerConfig{
					TopN:        cfg.Rerank.TopN,
					Concurrency: cfg.Rerank.Concurrency,
				}, scorer, logger)))
		}
	}

	if cfg.Pipeline.ExpansionVariantCount > 0 {
		expander := o.expander
		if expander == nil && cfg.Summarize.APIKey != "" {
			expander = retrieval.NewLLMExpander(retrieval.ExpanderConfig{
				BaseURL: cfg.Summarize.BaseURL,
				APIKey:  cfg.Summarize.APIKey,
				Model:   cfg.Summarize.Model,
			}, logger)
		}
		if expander != nil {
			pipelineOpts = append(pipelineOpts, retrieval.WithExpander(expander))
		}
	}

	pipeline, err := retrieval.NewPipeline(retrieval.PipelineConfig{
		PerChannelTimeout:     cfg.Pipeline.PerChannelTimeout,
		OverallDeadline:       cfg.Pipeline.OverallDeadline,
		ExpansionVariantCount: cfg.Pipeline.ExpansionVariantCount,
		ContextTokenBudget:    cfg.Pipeline.ContextTokenBudget,
		ChannelTopK:           cfg.Pipeline.ChannelTopK,
		EnableRerank:          cfg.Pipeline.EnableRerank,
	}, channels, fusion, logger, pipelineOpts...)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:       cfg,
		logger:    logger,
		embedder:  embedder,
		store:     store,
		sparse:    sparse,
		holder:    holder,
		builder:   builder,
		pipeline:  pipeline,
		collector: o.collector,
		corpus:    make(map[string]types.Chunk),
	}, nil
}

// Ingest 接收一批 chunk：补齐缺失的嵌入，写入向量存储与稀疏索引，
// 然后在全量语料上重建摘要树并原子发布。重复 ID 覆盖旧内容。
// 树重建失败时向量与稀疏通道仍然可用，本次错误返回给调用方。
func (e *Engine) Ingest(ctx context.Context, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks to ingest")
	}

	missing := make([]int, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	for i, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk %d has empty id", i)
		}
		if len(c.Embedding) == 0 {
			missing = append(missing, i)
			texts = append(texts, c.Text)
		}
	}
	if len(missing) > 0 {
		embs, err := e.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return err
		}
		if len(embs) != len(missing) {
			return fmt.Errorf("embedder returned %d vectors for %d texts", len(embs), len(missing))
		}
		for j, i := range missing {
			chunks[i].Embedding = embs[j]
		}
	}

	if err := e.store.Upsert(ctx, chunks); err != nil {
		return err
	}
	if err := e.sparse.Index(ctx, chunks); err != nil {
		return err
	}

	e.mu.Lock()
	for _, c := range chunks {
		e.corpus[c.ID] = c
	}
	corpus := make([]types.Chunk, 0, len(e.corpus))
	for _, c := range e.corpus {
		corpus = append(corpus, c)
	}
	e.mu.Unlock()

	tree, err := e.builder.Build(ctx, corpus)
	if err != nil {
		e.logger.Error("tree rebuild failed, summary channel keeps previous snapshot", zap.Error(err))
		return err
	}
	e.holder.Publish(tree)
	return nil
}

// Query 在当前索引与树快照上执行一次混合检索
func (e *Engine) Query(ctx context.Context, query string) (*retrieval.Result, error) {
	return e.pipeline.Query(ctx, query)
}

// Tree 返回当前发布的树快照，未发布时为 nil
func (e *Engine) Tree() *raptor.Tree {
	return e.holder.Load()
}

// newLogger 按配置构造 zap logger
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
