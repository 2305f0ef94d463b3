package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/reasonmem/internal/metrics"
	"github.com/BaSui01/reasonmem/types"
)

// PipelineConfig 查询管线参数
type PipelineConfig struct {
	// PerChannelTimeout 单次通道调用超时
	PerChannelTimeout time.Duration `json:"per_channel_timeout"`
	// OverallDeadline 整次查询的截止时间
	OverallDeadline time.Duration `json:"overall_deadline"`
	// ExpansionVariantCount 查询扩展变体数，0 禁用扩展
	ExpansionVariantCount int `json:"expansion_variant_count"`
	// ContextTokenBudget 上下文组装 token 预算，0 禁用组装
	ContextTokenBudget int `json:"context_token_budget"`
	// ChannelTopK 每通道每变体召回条数
	ChannelTopK int `json:"channel_top_k"`
	// EnableRerank 是否启用重排阶段
	EnableRerank bool `json:"enable_rerank"`
}

// DefaultPipelineConfig 返回默认管线参数
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		PerChannelTimeout:     5 * time.Second,
		OverallDeadline:       30 * time.Second,
		ExpansionVariantCount: 0,
		ContextTokenBudget:    4096,
		ChannelTopK:           20,
		EnableRerank:          true,
	}
}

// 剩余时间低于该值时跳过可选阶段
const minStageBudget = 200 * time.Millisecond

// 管线阶段名，出现在 Result.SkippedStages 中
const (
	StageExpand  = "expand"
	StageRerank  = "rerank"
	StageContext = "context"
)

// Result 一次查询的产出。Degraded 为 true 表示有通道失败或
// 可选阶段被跳过/回退，但结果仍然可用。
type Result struct {
	// Results 最终排序的结果，与 Fused 等长。重排成功时前 N 条为
	// 重排输出、其余按融合顺序跟在后面；重排失败或禁用时整体
	// 回退为融合排序（RerankScore 取融合分）。
	Results []types.RerankedResult `json:"results"`
	// Fused 完整的融合排名，重排只覆盖其前 N 条
	Fused []types.FusedResult `json:"fused"`
	// Context 按 token 预算组装的上下文文本
	Context string `json:"context,omitempty"`
	// Degraded 本次查询是否降级
	Degraded bool `json:"degraded"`
	// FailedChannels 全部变体都失败的通道
	FailedChannels []types.ChannelName `json:"failed_channels,omitempty"`
	// SkippedStages 因时间预算或上游失败而跳过的可选阶段
	SkippedStages []string `json:"skipped_stages,omitempty"`
}

// Pipeline 查询编排器：扩展 → 并发分发 → 融合 → 重排 → 上下文组装。
// 不持有跨查询可变状态，可被并发调用。
type Pipeline struct {
	cfg       PipelineConfig
	channels  []Channel
	fusion    *FusionEngine
	expander  Expander
	reranker  *Reranker
	counter   TokenCounter
	collector *metrics.Collector
	logger    *zap.Logger
}

// PipelineOption 管线可选配置
type PipelineOption func(*Pipeline)

// WithExpander 启用 LLM 查询扩展
func WithExpander(e Expander) PipelineOption {
	return func(p *Pipeline) { p.expander = e }
}

// WithReranker 启用交叉编码器重排
func WithReranker(r *Reranker) PipelineOption {
	return func(p *Pipeline) { p.reranker = r }
}

// WithTokenCounter 指定上下文组装的 token 计数器
func WithTokenCounter(c TokenCounter) PipelineOption {
	return func(p *Pipeline) { p.counter = c }
}

// WithCollector 接入指标收集
func WithCollector(c *metrics.Collector) PipelineOption {
	return func(p *Pipeline) { p.collector = c }
}

// NewPipeline 创建查询管线。至少需要一个通道。
func NewPipeline(cfg PipelineConfig, channels []Channel, fusion *FusionEngine, logger *zap.Logger, opts ...PipelineOption) (*Pipeline, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("pipeline requires at least one channel")
	}
	if fusion == nil {
		return nil, fmt.Errorf("pipeline requires a fusion engine")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PerChannelTimeout <= 0 {
		cfg.PerChannelTimeout = 5 * time.Second
	}
	if cfg.OverallDeadline <= 0 {
		cfg.OverallDeadline = 30 * time.Second
	}
	if cfg.ChannelTopK <= 0 {
		cfg.ChannelTopK = 20
	}

	p := &Pipeline{
		cfg:      cfg,
		channels: channels,
		fusion:   fusion,
		counter:  EstimateCounter{},
		logger:   logger.With(zap.String("component", "pipeline")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Query 执行一次混合检索。所有通道失败返回 ALL_CHANNELS_FAILED；
// 截止时间内无任何通道完成返回 PIPELINE_TIMEOUT；其余失败均降级。
func (p *Pipeline) Query(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.cfg.OverallDeadline)
	defer cancel()

	result := &Result{}

	queries := p.expandStage(ctx, query, result)
	lists := p.dispatchStage(ctx, queries, result)

	if len(lists) == 0 {
		p.collector.RecordQuery("failure", time.Since(start))
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, types.NewError(types.ErrPipelineTimeout,
				"no channel completed within the overall deadline")
		}
		return nil, types.NewError(types.ErrAllChannelsFailed,
			fmt.Sprintf("all %d channels failed", len(p.channels)))
	}

	result.Fused = p.fusion.Fuse(lists...)
	p.collector.RecordFusionOutput(len(result.Fused))

	result.Results = p.rerankStage(ctx, query, result)
	p.assembleContext(result)

	status := "success"
	if result.Degraded {
		status = "degraded"
	}
	p.collector.RecordQuery(status, time.Since(start))
	p.logger.Info("query completed",
		zap.String("status", status),
		zap.Int("results", len(result.Results)),
		zap.Int("fused", len(result.Fused)),
		zap.Any("failed_channels", result.FailedChannels),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// expandStage 生成查询变体。扩展失败只降级，原始查询始终保留。
func (p *Pipeline) expandStage(ctx context.Context, query string, result *Result) []string {
	queries := []string{query}
	if p.expander == nil || p.cfg.ExpansionVariantCount <= 0 {
		return queries
	}
	if remaining(ctx) < minStageBudget {
		result.SkippedStages = append(result.SkippedStages, StageExpand)
		result.Degraded = true
		return queries
	}

	variants, err := p.expander.Expand(ctx, query, p.cfg.ExpansionVariantCount)
	if err != nil {
		p.logger.Warn("query expansion failed, continuing with original query", zap.Error(err))
		result.SkippedStages = append(result.SkippedStages, StageExpand)
		result.Degraded = true
		return queries
	}
	return append(queries, variants...)
}

// dispatchStage 并发分发 通道 × 变体，返回每个存活通道一份合并后的
// 候选列表。通道的某个变体失败不影响其余变体；全部变体失败才算
// 通道失败。
func (p *Pipeline) dispatchStage(ctx context.Context, queries []string, result *Result) [][]types.RetrievalCandidate {
	var wg sync.WaitGroup
	var mu sync.Mutex
	perChannel := make([][][]types.RetrievalCandidate, len(p.channels))
	channelErrs := make([][]error, len(p.channels))

	for ci, ch := range p.channels {
		for _, q := range queries {
			ci, ch, q := ci, ch, q
			wg.Add(1)
			go func() {
				defer wg.Done()
				callCtx, cancel := context.WithTimeout(ctx, p.cfg.PerChannelTimeout)
				defer cancel()

				callStart := time.Now()
				list, err := ch.Retrieve(callCtx, q, p.cfg.ChannelTopK)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					channelErrs[ci] = append(channelErrs[ci], err)
					return
				}
				p.collector.RecordChannel(string(ch.Name()), time.Since(callStart))
				perChannel[ci] = append(perChannel[ci], list)
			}()
		}
	}
	wg.Wait()

	lists := make([][]types.RetrievalCandidate, 0, len(p.channels))
	for ci, ch := range p.channels {
		if len(perChannel[ci]) == 0 {
			p.collector.RecordChannelFailure(string(ch.Name()))
			result.FailedChannels = append(result.FailedChannels, ch.Name())
			result.Degraded = true
			p.logger.Warn("channel failed for all query variants",
				zap.String("channel", string(ch.Name())),
				zap.Errors("errors", channelErrs[ci]))
			continue
		}
		if len(channelErrs[ci]) > 0 {
			result.Degraded = true
			p.logger.Warn("channel failed for some query variants",
				zap.String("channel", string(ch.Name())),
				zap.Int("failed_variants", len(channelErrs[ci])))
		}
		lists = append(lists, mergeVariantLists(perChannel[ci]))
	}

	sort.Slice(result.FailedChannels, func(i, j int) bool {
		return result.FailedChannels[i] < result.FailedChannels[j]
	})
	return lists
}

// rerankStage 重排融合结果的前 N 条，前 N 之外的部分按融合顺序
// 接在重排段之后，保证最终列表长度与融合结果一致。重排禁用、
// 时间不足或打分失败时整体回退为融合排序，RerankScore 取融合分。
func (p *Pipeline) rerankStage(ctx context.Context, query string, result *Result) []types.RerankedResult {
	fallback := func() []types.RerankedResult {
		out := make([]types.RerankedResult, len(result.Fused))
		for i, f := range result.Fused {
			out[i] = types.RerankedResult{Ref: f.Ref, RerankScore: f.FusedScore, Text: f.Text}
		}
		return out
	}

	if !p.cfg.EnableRerank || p.reranker == nil || len(result.Fused) == 0 {
		return fallback()
	}
	if remaining(ctx) < minStageBudget {
		result.SkippedStages = append(result.SkippedStages, StageRerank)
		result.Degraded = true
		return fallback()
	}

	reranked, err := p.reranker.Rerank(ctx, query, result.Fused)
	if err != nil {
		p.collector.RecordRerankFallback()
		result.SkippedStages = append(result.SkippedStages, StageRerank)
		result.Degraded = true
		p.logger.Warn("rerank failed, falling back to fused order", zap.Error(err))
		return fallback()
	}
	for _, f := range result.Fused[len(reranked):] {
		reranked = append(reranked, types.RerankedResult{Ref: f.Ref, RerankScore: f.FusedScore, Text: f.Text})
	}
	return reranked
}

// assembleContext 按最终排序拼接结果文本，整条纳入直到 token 预算耗尽，
// 不截断任何一条的中间部分
func (p *Pipeline) assembleContext(result *Result) {
	if p.cfg.ContextTokenBudget <= 0 || len(result.Results) == 0 {
		return
	}

	var sb strings.Builder
	used := 0
	for _, r := range result.Results {
		if r.Text == "" {
			continue
		}
		cost := p.counter.CountTokens(r.Text)
		if used+cost > p.cfg.ContextTokenBudget {
			break
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(r.Text)
		used += cost
	}
	result.Context = sb.String()
}

func remaining(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return time.Duration(1<<62 - 1)
	}
	return time.Until(deadline)
}
