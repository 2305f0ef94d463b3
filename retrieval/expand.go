package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Expander 生成查询的语义变体。返回的切片不含原始查询；
// 失败或返回空时管线只用原始查询继续，不影响整次检索。
type Expander interface {
	// Expand 为查询生成至多 n 个改写变体
	Expand(ctx context.Context, query string, n int) ([]string, error)
}

// ExpanderConfig 配置 LLM 查询扩展
type ExpanderConfig struct {
	BaseURL string        `json:"base_url,omitempty"`
	APIKey  string        `json:"api_key"`
	Model   string        `json:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"`
}

// LLMExpander 基于 OpenAI 兼容 Chat Completions 端点的查询改写
type LLMExpander struct {
	cfg    ExpanderConfig
	client *http.Client
	logger *zap.Logger
}

// NewLLMExpander 创建查询扩展器
func NewLLMExpander(cfg ExpanderConfig, logger *zap.Logger) *LLMExpander {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &LLMExpander{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("component", "expander")),
	}
}

const expandPrompt = `Rewrite the following search query into %d alternative phrasings that preserve its meaning but use different wording. Return one rewrite per line, with no numbering or extra text.

Query: %s`

type expandChatRequest struct {
	Model    string              `json:"model"`
	Messages []expandChatMessage `json:"messages"`
}

type expandChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type expandChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Expand 生成至多 n 个查询变体，按行解析模型输出并去重
func (e *LLMExpander) Expand(ctx context.Context, query string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	body := expandChatRequest{
		Model: e.cfg.Model,
		Messages: []expandChatMessage{
			{Role: "user", Content: fmt.Sprintf(expandPrompt, n, query)},
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(e.cfg.BaseURL, "/")+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("expansion request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("expansion endpoint returned status %d: %s", resp.StatusCode, string(raw))
	}

	var cr expandChatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("empty completion")
	}

	seen := map[string]bool{strings.TrimSpace(query): true}
	variants := make([]string, 0, n)
	for _, line := range strings.Split(cr.Choices[0].Message.Content, "\n") {
		v := strings.TrimSpace(line)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		variants = append(variants, v)
		if len(variants) == n {
			break
		}
	}
	return variants, nil
}
