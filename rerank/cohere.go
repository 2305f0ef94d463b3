package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/BaSui01/reasonmem/types"
)

// CohereProvider 使用 Cohere rerank API 执行交叉编码器打分.
// 端点连续失败时由熔断器短路后续请求，调用方按 RERANK_FAILURE 降级.
type CohereProvider struct {
	cfg     CohereConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewCohereProvider 创建新的 Cohere reranker 提供者.
func NewCohereProvider(cfg CohereConfig) *CohereProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cohere.ai"
	}
	if cfg.Model == "" {
		cfg.Model = "rerank-v3.5"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "cohere-rerank",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &CohereProvider{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
	}
}

func (p *CohereProvider) Name() string      { return "cohere-rerank" }
func (p *CohereProvider) MaxDocuments() int { return 1000 }

type cohereRerankRequest struct {
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	Model           string   `json:"model"`
	TopN            int      `json:"top_n,omitempty"`
	ReturnDocuments bool     `json:"return_documents,omitempty"`
}

type cohereRerankResponse struct {
	ID      string `json:"id"`
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Score 对单个 (查询, 候选文本) 打分.
func (p *CohereProvider) Score(ctx context.Context, query, text string) (float64, error) {
	scores, err := p.ScoreBatch(ctx, query, []string{text})
	if err != nil {
		return 0, err
	}
	return scores[0], nil
}

// ScoreBatch 对同一查询下的多个候选文本批量打分.
func (p *CohereProvider) ScoreBatch(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return []float64{}, nil
	}
	if len(texts) > p.MaxDocuments() {
		return nil, fmt.Errorf("too many documents: %d > %d", len(texts), p.MaxDocuments())
	}

	body := cohereRerankRequest{
		Query:     query,
		Documents: texts,
		Model:     p.cfg.Model,
		TopN:      len(texts),
	}

	result, err := p.breaker.Execute(func() (any, error) {
		return p.doRerank(ctx, body)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, types.NewError(types.ErrRerankFailure, "rerank circuit open").
				WithCause(err).
				WithRetryable(true)
		}
		return nil, err
	}

	resp := result.(*cohereRerankResponse)

	scores := make([]float64, len(texts))
	seen := make([]bool, len(texts))
	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, types.NewError(types.ErrRerankFailure,
				fmt.Sprintf("rerank result index %d out of range", r.Index))
		}
		scores[r.Index] = r.RelevanceScore
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, types.NewError(types.ErrRerankFailure,
				fmt.Sprintf("rerank response missing score for document %d", i))
		}
	}

	return scores, nil
}

func (p *CohereProvider) doRerank(ctx context.Context, body cohereRerankRequest) (*cohereRerankResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.BaseURL, "/")+"/v2/rerank", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrRerankFailure, "rerank request failed").
			WithCause(err).
			WithRetryable(true)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, types.NewError(types.ErrRerankFailure,
			fmt.Sprintf("rerank endpoint returned status %d: %s", resp.StatusCode, string(raw))).
			WithRetryable(retryable)
	}

	var cr cohereRerankResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &cr, nil
}
