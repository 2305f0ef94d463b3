package retrieval

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/reasonmem/rerank"
	"github.com/BaSui01/reasonmem/types"
)

// RerankerConfig 重排阶段参数
type RerankerConfig struct {
	// TopN 参与重排的融合结果数
	TopN int `json:"top_n"`
	// Concurrency 批量打分的并发上限
	Concurrency int `json:"concurrency"`
}

// DefaultRerankerConfig 返回默认重排参数
func DefaultRerankerConfig() RerankerConfig {
	return RerankerConfig{TopN: 20, Concurrency: 4}
}

// Reranker 用交叉编码器对融合结果的前 N 条重打分。
// 打分失败时整体返回 RERANK_FAILURE，由管线回退到融合排序。
type Reranker struct {
	cfg      RerankerConfig
	provider rerank.Provider
	logger   *zap.Logger
}

// NewReranker 创建重排器
func NewReranker(cfg RerankerConfig, provider rerank.Provider, logger *zap.Logger) *Reranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 20
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Reranker{cfg: cfg, provider: provider, logger: logger.With(zap.String("component", "reranker"))}
}

// Rerank 对前 N 条融合结果重排。分批提交给提供者并发打分，
// 任一批失败则放弃整个重排阶段。输出按重排分降序，
// 同分保持融合顺序；未进入前 N 的结果不出现在输出中。
func (r *Reranker) Rerank(ctx context.Context, query string, fused []types.FusedResult) ([]types.RerankedResult, error) {
	n := len(fused)
	if n > r.cfg.TopN {
		n = r.cfg.TopN
	}
	if n == 0 {
		return nil, nil
	}
	head := fused[:n]

	batchSize := r.provider.MaxDocuments()
	if batchSize <= 0 {
		batchSize = n
	}

	scores := make([]float64, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for start := 0; start < n; start += batchSize {
		start := start
		end := start + batchSize
		if end > n {
			end = n
		}
		g.Go(func() error {
			texts := make([]string, end-start)
			for i, f := range head[start:end] {
				texts[i] = f.Text
			}
			batchScores, err := r.provider.ScoreBatch(gctx, query, texts)
			if err != nil {
				return err
			}
			if len(batchScores) != end-start {
				return types.NewError(types.ErrRerankFailure, "provider returned wrong score count")
			}
			copy(scores[start:end], batchScores)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if types.GetErrorCode(err) == types.ErrRerankFailure {
			return nil, err
		}
		return nil, types.NewError(types.ErrRerankFailure, "rerank scoring failed").WithCause(err)
	}

	out := make([]types.RerankedResult, n)
	for i, f := range head {
		out[i] = types.RerankedResult{
			Ref:         f.Ref,
			RerankScore: scores[i],
			Text:        f.Text,
		}
	}
	// 稳定排序下同分保持融合顺序
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RerankScore > out[j].RerankScore
	})
	return out, nil
}
