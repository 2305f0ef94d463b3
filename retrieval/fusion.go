package retrieval

import (
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/reasonmem/types"
)

// FusionConfig 排名融合参数
type FusionConfig struct {
	// K 是 RRF 平滑常数，单次贡献为 1/(K+rank)
	K int `json:"k"`
	// MaxResults 融合输出上限，0 表示不截断
	MaxResults int `json:"max_results"`
}

// DefaultFusionConfig 返回默认融合参数
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{K: 60, MaxResults: 100}
}

// FusionEngine 把多路通道的排名列表合并为单一融合排名。
// 纯 CPU 计算，无共享状态，可被多个查询并发使用。
type FusionEngine struct {
	cfg    FusionConfig
	logger *zap.Logger
}

// NewFusionEngine 创建融合引擎
func NewFusionEngine(cfg FusionConfig, logger *zap.Logger) *FusionEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.K <= 0 {
		cfg.K = 60
	}
	return &FusionEngine{cfg: cfg, logger: logger.With(zap.String("component", "fusion"))}
}

// Fuse 对多个通道排名做 Reciprocal Rank Fusion。
// 每个 Ref 在输出中恰出现一次，融合分为各通道 1/(K+rank) 之和；
// 排序为融合分降序，同分按最优单通道排名升序，再按 Ref 升序，
// 保证相同输入产生逐字节相同的输出顺序。
func (e *FusionEngine) Fuse(lists ...[]types.RetrievalCandidate) []types.FusedResult {
	acc := make(map[string]*fusedAcc)

	for _, list := range lists {
		for _, cand := range list {
			if cand.Rank < 1 {
				continue
			}
			entry, ok := acc[cand.Ref]
			if !ok {
				entry = &fusedAcc{
					ref:      cand.Ref,
					bestRank: cand.Rank,
					channels: make(map[types.ChannelName]bool),
					text:     cand.Text,
				}
				acc[cand.Ref] = entry
			}
			entry.score += 1.0 / float64(e.cfg.K+cand.Rank)
			entry.channels[cand.Channel] = true
			if cand.Rank < entry.bestRank {
				entry.bestRank = cand.Rank
			}
			if entry.text == "" {
				entry.text = cand.Text
			}
		}
	}

	out := make([]types.FusedResult, 0, len(acc))
	for _, entry := range acc {
		channels := make([]types.ChannelName, 0, len(entry.channels))
		for ch := range entry.channels {
			channels = append(channels, ch)
		}
		sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })

		out = append(out, types.FusedResult{
			Ref:                  entry.ref,
			FusedScore:           entry.score,
			ContributingChannels: channels,
			BestRank:             entry.bestRank,
			Text:                 entry.text,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		if out[i].BestRank != out[j].BestRank {
			return out[i].BestRank < out[j].BestRank
		}
		return out[i].Ref < out[j].Ref
	})

	if e.cfg.MaxResults > 0 && len(out) > e.cfg.MaxResults {
		out = out[:e.cfg.MaxResults]
	}
	return out
}

type fusedAcc struct {
	ref      string
	score    float64
	bestRank int
	channels map[types.ChannelName]bool
	text     string
}

// mergeVariantLists 合并同一通道下多个查询变体的候选列表：
// 每个 Ref 保留各变体中的最优排名，再按排名重排为单一列表。
// 融合阶段因此只看到每通道一份排名，变体数量不会放大通道权重。
func mergeVariantLists(lists [][]types.RetrievalCandidate) []types.RetrievalCandidate {
	if len(lists) == 1 {
		return lists[0]
	}

	best := make(map[string]types.RetrievalCandidate)
	for _, list := range lists {
		for _, cand := range list {
			prev, ok := best[cand.Ref]
			if !ok || cand.Rank < prev.Rank {
				best[cand.Ref] = cand
			}
		}
	}

	merged := make([]types.RetrievalCandidate, 0, len(best))
	for _, cand := range best {
		merged = append(merged, cand)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Rank != merged[j].Rank {
			return merged[i].Rank < merged[j].Rank
		}
		return merged[i].Ref < merged[j].Ref
	})

	// 合并后排名重新致密化为 1..n
	for i := range merged {
		merged[i].Rank = i + 1
	}
	return merged
}
