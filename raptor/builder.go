package raptor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/reasonmem/embedding"
	"github.com/BaSui01/reasonmem/internal/metrics"
	"github.com/BaSui01/reasonmem/internal/pool"
	"github.com/BaSui01/reasonmem/summarize"
	"github.com/BaSui01/reasonmem/types"
)

// BuilderConfig 树构建配置
type BuilderConfig struct {
	// 最大树深度，达到后合成单一聚合根
	MaxDepth int `json:"max_depth"`
	// 软聚类重叠阈值
	ClusterSimilarityThreshold float64 `json:"cluster_similarity_threshold"`
	// 每簇摘要重试上限（指数退避）
	SummarizationRetryLimit int `json:"summarization_retry_limit"`
	// 失败簇比例超过该值时中止构建
	BuildFailureAbortThreshold float64 `json:"build_failure_abort_threshold"`
	// 摘要并发 worker 数
	Workers int `json:"workers"`
}

// DefaultBuilderConfig 返回默认构建配置
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		MaxDepth:                   5,
		ClusterSimilarityThreshold: 0.75,
		SummarizationRetryLimit:    3,
		BuildFailureAbortThreshold: 0.5,
		Workers:                    4,
	}
}

// Builder 离线构建 RAPTOR 树
type Builder struct {
	cfg        BuilderConfig
	summarizer summarize.Service
	embedder   embedding.Provider
	collector  *metrics.Collector
	logger     *zap.Logger
}

// NewBuilder 创建树构建器。collector 可为 nil。
func NewBuilder(
	cfg BuilderConfig,
	summarizer summarize.Service,
	embedder embedding.Provider,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 5
	}
	if cfg.SummarizationRetryLimit <= 0 {
		cfg.SummarizationRetryLimit = 3
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Builder{
		cfg:        cfg,
		summarizer: summarizer,
		embedder:   embedder,
		collector:  collector,
		logger:     logger.With(zap.String("component", "raptor_builder")),
	}
}

// Build 从带嵌入的 chunk 集合构建一棵 RAPTOR 树。
// 失败的簇在有界重试后被排除（其成员保持无父、最终成为额外的根），
// 失败比例超过阈值时返回 TREE_BUILD_ABORTED。
func (b *Builder) Build(ctx context.Context, chunks []types.Chunk) (*Tree, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to build tree from")
	}

	start := time.Now()

	nodes := make(map[string]*Node, len(chunks)*2)
	current := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c.ID == "" {
			return nil, fmt.Errorf("chunk has empty id")
		}
		if len(c.Embedding) == 0 {
			return nil, fmt.Errorf("chunk %s has no embedding", c.ID)
		}
		if _, dup := nodes[c.ID]; dup {
			return nil, fmt.Errorf("duplicate chunk id %s", c.ID)
		}
		nodes[c.ID] = &Node{
			ID:        c.ID,
			Level:     0,
			Embedding: c.Embedding,
			Text:      c.Text,
		}
		current = append(current, c.ID)
	}
	// 叶子按 ID 排序，保证相同输入产生相同的聚类输入顺序
	sort.Strings(current)

	workers := pool.NewWorkerPool(b.cfg.Workers)
	defer workers.Close()

	totalClusters := 0
	failedClusters := 0

	for level := 1; len(current) > 1 && level <= b.cfg.MaxDepth; level++ {
		embeddings := make([][]float64, len(current))
		for i, id := range current {
			embeddings[i] = nodes[id].Embedding
		}

		clusters := softCluster(embeddings, b.cfg.ClusterSimilarityThreshold)
		totalClusters += len(clusters)

		parents, failed := b.buildLevel(ctx, workers, nodes, current, clusters, level)
		failedClusters += failed

		if totalClusters > 0 &&
			float64(failedClusters)/float64(totalClusters) > b.cfg.BuildFailureAbortThreshold {
			return nil, types.NewError(types.ErrTreeBuildAborted,
				fmt.Sprintf("%d of %d clusters failed summarization", failedClusters, totalClusters))
		}

		b.logger.Info("tree level built",
			zap.Int("level", level),
			zap.Int("clusters", len(clusters)),
			zap.Int("failed", failed),
			zap.Int("parents", len(parents)))

		if len(parents) == 0 {
			// 本层全部失败但仍低于中止阈值：剩余节点保持无父
			break
		}
		current = parents
	}

	// 达到最大深度仍有多个顶层节点时，合成一个不调用摘要服务的聚合根
	if len(current) > 1 {
		b.synthesizeRoot(nodes, current)
	}

	tree := &Tree{Nodes: nodes}
	for _, id := range tree.sortedNodeIDs() {
		if nodes[id].Parent == "" {
			tree.Roots = append(tree.Roots, id)
		}
	}

	if err := tree.Validate(); err != nil {
		return nil, err
	}

	b.collector.RecordTreeBuild(time.Since(start), failedClusters)
	b.logger.Info("tree build completed",
		zap.Int("chunks", len(chunks)),
		zap.Int("nodes", len(nodes)),
		zap.Int("roots", len(tree.Roots)),
		zap.Int("failed_clusters", failedClusters),
		zap.Duration("elapsed", time.Since(start)))

	return tree, nil
}

// buildLevel 并行构建一层的父节点，返回成功父节点 ID（按簇顺序）和失败簇数
func (b *Builder) buildLevel(
	ctx context.Context,
	workers *pool.WorkerPool,
	nodes map[string]*Node,
	current []string,
	clusters []Cluster,
	level int,
) ([]string, int) {
	results := make([]*Node, len(clusters))
	waits := make([]<-chan error, len(clusters))

	// 文本与子节点列表在提交前收集，任务内不再访问共享节点表
	for i, cl := range clusters {
		i := i
		texts := make([]string, 0, len(cl.Primary)+len(cl.Overlap))
		children := make([]string, 0, len(cl.Primary))
		for _, idx := range cl.Primary {
			id := current[idx]
			texts = append(texts, nodes[id].Text)
			children = append(children, id)
		}
		for _, idx := range cl.Overlap {
			texts = append(texts, nodes[current[idx]].Text)
		}

		result, err := workers.Submit(ctx, func(taskCtx context.Context) error {
			node, err := b.buildClusterNode(taskCtx, texts, children, level)
			if err != nil {
				return err
			}
			results[i] = node
			return nil
		})
		if err != nil {
			waits[i] = closedErrChan(err)
			continue
		}
		waits[i] = result
	}

	failed := 0
	parents := make([]string, 0, len(clusters))
	for i, wait := range waits {
		if err := <-wait; err != nil {
			failed++
			b.logger.Warn("cluster excluded from tree",
				zap.Int("level", level),
				zap.Int("cluster", i),
				zap.Int("members", len(clusters[i].Primary)),
				zap.Error(err))
			continue
		}

		node := results[i]
		nodes[node.ID] = node
		for _, childID := range node.Children {
			nodes[childID].Parent = node.ID
		}
		parents = append(parents, node.ID)
	}
	return parents, failed
}

// buildClusterNode 为一个簇生成父节点：摘要（texts 含重叠成员文本）→ 嵌入 → 建节点。
// 结构子边只来自 Primary 成员（children），保证每个节点只有一个父节点。
func (b *Builder) buildClusterNode(
	ctx context.Context,
	texts []string,
	children []string,
	level int,
) (*Node, error) {
	summary, err := backoff.Retry(ctx, func() (string, error) {
		s, err := b.summarizer.Summarize(ctx, texts)
		if err != nil && !types.IsRetryable(err) {
			return "", backoff.Permanent(err)
		}
		return s, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(b.cfg.SummarizationRetryLimit)),
	)
	if err != nil {
		return nil, types.NewError(types.ErrSummarizationFailure, "cluster summarization failed").
			WithCause(err)
	}

	embs, err := backoff.Retry(ctx, func() ([][]float64, error) {
		e, err := b.embedder.EmbedDocuments(ctx, []string{summary})
		if err != nil && !types.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return e, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(b.cfg.SummarizationRetryLimit)),
	)
	if err != nil {
		return nil, types.NewError(types.ErrSummarizationFailure, "summary embedding failed").
			WithCause(err)
	}
	if len(embs) != 1 || len(embs[0]) == 0 {
		return nil, types.NewError(types.ErrSummarizationFailure, "summary embedding empty")
	}

	return &Node{
		ID:        uuid.NewString(),
		Level:     level,
		Embedding: embs[0],
		Text:      summary,
		Children:  children,
	}, nil
}

// synthesizeRoot 在达到最大深度时合成聚合根：不调用摘要服务，
// 文本为子节点文本拼接，嵌入为子节点嵌入均值
func (b *Builder) synthesizeRoot(nodes map[string]*Node, current []string) {
	maxLevel := 0
	dim := 0
	for _, id := range current {
		if nodes[id].Level > maxLevel {
			maxLevel = nodes[id].Level
		}
		if dim == 0 {
			dim = len(nodes[id].Embedding)
		}
	}

	mean := make([]float64, dim)
	text := ""
	for _, id := range current {
		for d, v := range nodes[id].Embedding {
			if d < dim {
				mean[d] += v
			}
		}
		if text != "" {
			text += "\n\n"
		}
		text += nodes[id].Text
	}
	for d := range mean {
		mean[d] /= float64(len(current))
	}

	root := &Node{
		ID:        uuid.NewString(),
		Level:     maxLevel + 1,
		Embedding: mean,
		Text:      text,
		Children:  append([]string(nil), current...),
	}
	nodes[root.ID] = root
	for _, id := range current {
		nodes[id].Parent = root.ID
	}

	b.logger.Info("synthesized aggregation root",
		zap.Int("level", root.Level),
		zap.Int("children", len(current)))
}

func closedErrChan(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	close(ch)
	return ch
}
