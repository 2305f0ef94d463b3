package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/reasonmem/embedding"
	"github.com/BaSui01/reasonmem/indexing"
	"github.com/BaSui01/reasonmem/raptor"
	"github.com/BaSui01/reasonmem/storage"
	"github.com/BaSui01/reasonmem/types"
)

// Channel 一路检索通道。Retrieve 返回按相关性降序、Rank 从 1 开始的
// 候选列表；失败时返回 CHANNEL_UNAVAILABLE，由管线决定是否降级。
type Channel interface {
	// Name 返回通道标识
	Name() types.ChannelName

	// Retrieve 对单个查询召回至多 topK 个候选
	Retrieve(ctx context.Context, query string, topK int) ([]types.RetrievalCandidate, error)
}

// unavailable 把底层错误包装为通道不可用
func unavailable(channel types.ChannelName, cause error) error {
	return types.NewError(types.ErrChannelUnavailable,
		fmt.Sprintf("%s channel failed", channel)).
		WithChannel(channel).
		WithCause(cause).
		WithRetryable(true)
}

// DenseChannel 稠密向量通道：嵌入查询后在向量库中做相似度搜索
type DenseChannel struct {
	store    storage.VectorStore
	embedder embedding.Provider
	logger   *zap.Logger
}

// NewDenseChannel 创建稠密通道
func NewDenseChannel(store storage.VectorStore, embedder embedding.Provider, logger *zap.Logger) *DenseChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DenseChannel{
		store:    store,
		embedder: embedder,
		logger:   logger.With(zap.String("channel", string(types.ChannelDense))),
	}
}

func (c *DenseChannel) Name() types.ChannelName { return types.ChannelDense }

// Retrieve 召回与查询嵌入最相似的 chunk
func (c *DenseChannel) Retrieve(ctx context.Context, query string, topK int) ([]types.RetrievalCandidate, error) {
	queryEmb, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, unavailable(types.ChannelDense, err)
	}

	hits, err := c.store.Search(ctx, queryEmb, topK)
	if err != nil {
		return nil, unavailable(types.ChannelDense, err)
	}

	out := make([]types.RetrievalCandidate, 0, len(hits))
	for i, hit := range hits {
		out = append(out, types.RetrievalCandidate{
			Ref:      hit.Chunk.ID,
			Channel:  types.ChannelDense,
			Rank:     i + 1,
			RawScore: hit.Score,
			Text:     hit.Chunk.Text,
		})
	}
	return out, nil
}

// SparseChannel 稀疏词法通道：BM25 关键词匹配
type SparseChannel struct {
	index  indexing.SparseIndex
	logger *zap.Logger
}

// NewSparseChannel 创建稀疏通道
func NewSparseChannel(index indexing.SparseIndex, logger *zap.Logger) *SparseChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SparseChannel{
		index:  index,
		logger: logger.With(zap.String("channel", string(types.ChannelSparse))),
	}
}

func (c *SparseChannel) Name() types.ChannelName { return types.ChannelSparse }

// Retrieve 按词法分数召回 chunk
func (c *SparseChannel) Retrieve(ctx context.Context, query string, topK int) ([]types.RetrievalCandidate, error) {
	hits, err := c.index.Search(ctx, query, topK)
	if err != nil {
		return nil, unavailable(types.ChannelSparse, err)
	}

	out := make([]types.RetrievalCandidate, 0, len(hits))
	for i, hit := range hits {
		out = append(out, types.RetrievalCandidate{
			Ref:      hit.ChunkID,
			Channel:  types.ChannelSparse,
			Rank:     i + 1,
			RawScore: hit.Score,
			Text:     hit.Text,
		})
	}
	return out, nil
}

// SummaryMode 摘要树的检索方式
type SummaryMode string

const (
	// SummaryModeCollapsed 折叠树：所有层级平面竞争
	SummaryModeCollapsed SummaryMode = "collapsed"
	// SummaryModeTraversal 自根向下逐层束搜索，只返回叶子
	SummaryModeTraversal SummaryMode = "traversal"
)

// SummaryChannel 摘要树通道：在当前发布的 RAPTOR 树快照上检索。
// 树未发布时通道不可用，管线按通道失败降级。
type SummaryChannel struct {
	holder    *raptor.Holder
	embedder  embedding.Provider
	mode      SummaryMode
	beamWidth int
	logger    *zap.Logger
}

// NewSummaryChannel 创建摘要树通道。mode 为空时使用折叠树检索。
func NewSummaryChannel(holder *raptor.Holder, embedder embedding.Provider, mode SummaryMode, beamWidth int, logger *zap.Logger) *SummaryChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mode == "" {
		mode = SummaryModeCollapsed
	}
	return &SummaryChannel{
		holder:    holder,
		embedder:  embedder,
		mode:      mode,
		beamWidth: beamWidth,
		logger:    logger.With(zap.String("channel", string(types.ChannelSummary))),
	}
}

func (c *SummaryChannel) Name() types.ChannelName { return types.ChannelSummary }

// Retrieve 在树快照上检索；整次调用使用同一个快照
func (c *SummaryChannel) Retrieve(ctx context.Context, query string, topK int) ([]types.RetrievalCandidate, error) {
	tree := c.holder.Load()
	if tree == nil {
		return nil, unavailable(types.ChannelSummary,
			fmt.Errorf("no tree published"))
	}

	queryEmb, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, unavailable(types.ChannelSummary, err)
	}

	var hits []raptor.ScoredNode
	switch c.mode {
	case SummaryModeTraversal:
		hits = raptor.TraversalSearch(tree, queryEmb, topK, c.beamWidth)
	default:
		hits = raptor.CollapsedSearch(tree, queryEmb, topK)
	}

	out := make([]types.RetrievalCandidate, 0, len(hits))
	for i, hit := range hits {
		out = append(out, types.RetrievalCandidate{
			Ref:      hit.Node.ID,
			Channel:  types.ChannelSummary,
			Rank:     i + 1,
			RawScore: hit.Score,
			Text:     hit.Node.Text,
		})
	}
	return out, nil
}
