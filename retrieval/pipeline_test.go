package retrieval

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/reasonmem/types"
)

// fakeChannel 返回固定候选；fail 时返回通道不可用；delay 模拟慢通道
type fakeChannel struct {
	name  types.ChannelName
	hits  []types.RetrievalCandidate
	fail  bool
	delay time.Duration
}

func (c *fakeChannel) Name() types.ChannelName { return c.name }

func (c *fakeChannel) Retrieve(ctx context.Context, _ string, topK int) ([]types.RetrievalCandidate, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, unavailable(c.name, ctx.Err())
		}
	}
	if c.fail {
		return nil, unavailable(c.name, context.Canceled)
	}
	if len(c.hits) > topK {
		return c.hits[:topK], nil
	}
	return c.hits, nil
}

func denseHits() []types.RetrievalCandidate {
	return []types.RetrievalCandidate{
		cand("A", types.ChannelDense, 1),
		cand("B", types.ChannelDense, 2),
	}
}

func sparseHits() []types.RetrievalCandidate {
	return []types.RetrievalCandidate{
		cand("B", types.ChannelSparse, 1),
		cand("C", types.ChannelSparse, 2),
	}
}

func newTestPipeline(t *testing.T, cfg PipelineConfig, channels []Channel, opts ...PipelineOption) *Pipeline {
	t.Helper()
	p, err := NewPipeline(cfg, channels, NewFusionEngine(DefaultFusionConfig(), nil), nil, opts...)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	return p
}

func TestPipelineHappyPath(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, DefaultPipelineConfig(), []Channel{
		&fakeChannel{name: types.ChannelDense, hits: denseHits()},
		&fakeChannel{name: types.ChannelSparse, hits: sparseHits()},
	})

	got, err := p.Query(context.Background(), "query")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if got.Degraded {
		t.Fatalf("unexpected degradation: %+v", got)
	}
	if len(got.Fused) != 3 {
		t.Fatalf("fused %d results, want 3", len(got.Fused))
	}
	// B 同时被两个通道召回，融合分最高
	if got.Fused[0].Ref != "B" {
		t.Fatalf("top fused = %s, want B", got.Fused[0].Ref)
	}
	if len(got.Results) != len(got.Fused) {
		t.Fatalf("results %d, fused %d", len(got.Results), len(got.Fused))
	}
	if got.Context == "" {
		t.Fatalf("context not assembled")
	}
}

func TestPipelineDegradesOnChannelFailure(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, DefaultPipelineConfig(), []Channel{
		&fakeChannel{name: types.ChannelDense, hits: denseHits()},
		&fakeChannel{name: types.ChannelSparse, fail: true},
	})

	got, err := p.Query(context.Background(), "query")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !got.Degraded {
		t.Fatalf("expected degraded result")
	}
	if len(got.FailedChannels) != 1 || got.FailedChannels[0] != types.ChannelSparse {
		t.Fatalf("FailedChannels = %v, want [sparse]", got.FailedChannels)
	}
	if len(got.Fused) != 2 {
		t.Fatalf("fused %d results from surviving channel, want 2", len(got.Fused))
	}
}

func TestPipelineAllChannelsFailed(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, DefaultPipelineConfig(), []Channel{
		&fakeChannel{name: types.ChannelDense, fail: true},
		&fakeChannel{name: types.ChannelSparse, fail: true},
	})

	_, err := p.Query(context.Background(), "query")
	if err == nil {
		t.Fatalf("expected error")
	}
	if types.GetErrorCode(err) != types.ErrAllChannelsFailed {
		t.Fatalf("error code = %s, want %s", types.GetErrorCode(err), types.ErrAllChannelsFailed)
	}
}

func TestPipelineChannelTimeoutDegrades(t *testing.T) {
	t.Parallel()

	cfg := DefaultPipelineConfig()
	cfg.PerChannelTimeout = 20 * time.Millisecond
	p := newTestPipeline(t, cfg, []Channel{
		&fakeChannel{name: types.ChannelDense, hits: denseHits()},
		&fakeChannel{name: types.ChannelSparse, hits: sparseHits(), delay: 500 * time.Millisecond},
	})

	got, err := p.Query(context.Background(), "query")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !got.Degraded {
		t.Fatalf("expected degraded result")
	}
	if len(got.FailedChannels) != 1 || got.FailedChannels[0] != types.ChannelSparse {
		t.Fatalf("FailedChannels = %v, want [sparse]", got.FailedChannels)
	}
}

func TestPipelineOverallDeadline(t *testing.T) {
	t.Parallel()

	cfg := DefaultPipelineConfig()
	cfg.OverallDeadline = 20 * time.Millisecond
	cfg.PerChannelTimeout = time.Second
	p := newTestPipeline(t, cfg, []Channel{
		&fakeChannel{name: types.ChannelDense, hits: denseHits(), delay: 500 * time.Millisecond},
	})

	_, err := p.Query(context.Background(), "query")
	if err == nil {
		t.Fatalf("expected error")
	}
	if types.GetErrorCode(err) != types.ErrPipelineTimeout {
		t.Fatalf("error code = %s, want %s", types.GetErrorCode(err), types.ErrPipelineTimeout)
	}
}

func TestPipelineRerankFallback(t *testing.T) {
	t.Parallel()

	cfg := DefaultPipelineConfig()
	cfg.EnableRerank = true
	reranker := NewReranker(DefaultRerankerConfig(), &fakeScorer{fail: true}, nil)
	p := newTestPipeline(t, cfg, []Channel{
		&fakeChannel{name: types.ChannelDense, hits: denseHits()},
	}, WithReranker(reranker))

	got, err := p.Query(context.Background(), "query")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !got.Degraded {
		t.Fatalf("expected degraded result after rerank fallback")
	}
	found := false
	for _, s := range got.SkippedStages {
		if s == StageRerank {
			found = true
		}
	}
	if !found {
		t.Fatalf("SkippedStages = %v, want rerank", got.SkippedStages)
	}
	// 回退为融合排序
	for i, f := range got.Fused {
		if got.Results[i].Ref != f.Ref {
			t.Fatalf("fallback order mismatch at %d: %s vs %s", i, got.Results[i].Ref, f.Ref)
		}
	}
}

func TestPipelineRerankReordersTopN(t *testing.T) {
	t.Parallel()

	reranker := NewReranker(RerankerConfig{TopN: 3, Concurrency: 2}, &fakeScorer{}, nil)
	p := newTestPipeline(t, DefaultPipelineConfig(), []Channel{
		&fakeChannel{name: types.ChannelDense, hits: denseHits()},
		&fakeChannel{name: types.ChannelSparse, hits: sparseHits()},
	}, WithReranker(reranker))

	got, err := p.Query(context.Background(), "query")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if got.Degraded {
		t.Fatalf("unexpected degradation: %+v", got)
	}
	if len(got.Results) != 3 {
		t.Fatalf("reranked %d results, want 3", len(got.Results))
	}
}

func TestPipelineRerankKeepsFusedTail(t *testing.T) {
	t.Parallel()

	// TopN 小于融合结果数时，前 N 之外的部分按融合顺序跟在重排段后面
	reranker := NewReranker(RerankerConfig{TopN: 2, Concurrency: 2}, &fakeScorer{}, nil)
	p := newTestPipeline(t, DefaultPipelineConfig(), []Channel{
		&fakeChannel{name: types.ChannelDense, hits: denseHits()},
		&fakeChannel{name: types.ChannelSparse, hits: sparseHits()},
	}, WithReranker(reranker))

	got, err := p.Query(context.Background(), "query")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(got.Results) != len(got.Fused) {
		t.Fatalf("got %d results, want %d", len(got.Results), len(got.Fused))
	}
	for i := 2; i < len(got.Fused); i++ {
		if got.Results[i].Ref != got.Fused[i].Ref {
			t.Fatalf("tail at %d = %s, want fused %s", i, got.Results[i].Ref, got.Fused[i].Ref)
		}
	}
}

// staticExpander 返回固定变体
type staticExpander struct{ variants []string }

func (e staticExpander) Expand(_ context.Context, _ string, n int) ([]string, error) {
	if len(e.variants) > n {
		return e.variants[:n], nil
	}
	return e.variants, nil
}

// variantChannel 对不同查询返回不同候选
type variantChannel struct {
	name    types.ChannelName
	byQuery map[string][]types.RetrievalCandidate
}

func (c *variantChannel) Name() types.ChannelName { return c.name }

func (c *variantChannel) Retrieve(_ context.Context, query string, _ int) ([]types.RetrievalCandidate, error) {
	hits, ok := c.byQuery[query]
	if !ok {
		return nil, unavailable(c.name, context.Canceled)
	}
	return hits, nil
}

func TestPipelineExpansionUnion(t *testing.T) {
	t.Parallel()

	cfg := DefaultPipelineConfig()
	cfg.ExpansionVariantCount = 1
	ch := &variantChannel{
		name: types.ChannelDense,
		byQuery: map[string][]types.RetrievalCandidate{
			"query":   {cand("A", types.ChannelDense, 1)},
			"variant": {cand("Z", types.ChannelDense, 1)},
		},
	}
	p := newTestPipeline(t, cfg, []Channel{ch},
		WithExpander(staticExpander{variants: []string{"variant"}}))

	got, err := p.Query(context.Background(), "query")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(got.Fused) != 2 {
		t.Fatalf("fused %d results, want union of 2", len(got.Fused))
	}
	refs := map[string]bool{}
	for _, f := range got.Fused {
		refs[f.Ref] = true
	}
	if !refs["A"] || !refs["Z"] {
		t.Fatalf("union missing refs: %v", refs)
	}
}

func TestPipelineContextBudget(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("word ", 200)
	cfg := DefaultPipelineConfig()
	cfg.ContextTokenBudget = 10
	cfg.EnableRerank = false
	p := newTestPipeline(t, cfg, []Channel{
		&fakeChannel{name: types.ChannelDense, hits: []types.RetrievalCandidate{
			{Ref: "short", Channel: types.ChannelDense, Rank: 1, Text: "tiny"},
			{Ref: "long", Channel: types.ChannelDense, Rank: 2, Text: long},
		}},
	}, WithTokenCounter(EstimateCounter{}))

	got, err := p.Query(context.Background(), "query")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	// 预算只容得下第一条，长文本整条排除而不是截断
	if got.Context != "tiny" {
		t.Fatalf("context = %q, want %q", got.Context, "tiny")
	}
}

func TestPipelineRejectsEmptyQuery(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, DefaultPipelineConfig(), []Channel{
		&fakeChannel{name: types.ChannelDense, hits: denseHits()},
	})
	if _, err := p.Query(context.Background(), "   "); err == nil {
		t.Fatalf("expected error for blank query")
	}
}
