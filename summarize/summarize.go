// Copyright 2025-2026 ReasonMem Authors. All rights reserved.
// Use of this source code is governed by the project license.

// Package summarize 提供摘要服务接口和基于 Chat Completions 端点的实现，
// 供 raptor 树构建时为每个簇生成父节点摘要。
package summarize

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

	"github.com/BaSui01/reasonmem/types"
)

// Service 摘要服务接口
type Service interface {
	// Summarize 将一组文本压缩为一段摘要
	Summarize(ctx context.Context, texts []string) (string, error)

	// Name 返回提供者名称
	Name() string
}

// Config 配置 Chat Completions 摘要提供者
type Config struct {
	BaseURL   string        `json:"base_url,omitempty"`
	APIKey    string        `json:"api_key"`
	Model     string        `json:"model,omitempty"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
}

// ChatProvider 基于 OpenAI 兼容 Chat Completions 端点的摘要实现
type ChatProvider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewChatProvider 创建摘要提供者
func NewChatProvider(cfg Config, logger *zap.Logger) *ChatProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &ChatProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("component", "summarizer")),
	}
}

func (p *ChatProvider) Name() string { return "chat-summarizer" }

const summaryPrompt = `Write a detailed summary of the following passages. The summary should cover the main topics, key facts, and relationships across all passages so it can stand in for them during retrieval.

Passages:
%s

Summary:`

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Summarize 将一组文本压缩为一段摘要
func (p *ChatProvider) Summarize(ctx context.Context, texts []string) (string, error) {
	if len(texts) == 0 {
		return "", fmt.Errorf("no texts to summarize")
	}

	var sb strings.Builder
	for i, t := range texts {
		fmt.Fprintf(&sb, "[%d] %s\n\n", i+1, t)
	}

	body := chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "user", Content: fmt.Sprintf(summaryPrompt, sb.String())},
		},
		MaxTokens: p.cfg.MaxTokens,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.BaseURL, "/")+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", types.NewError(types.ErrSummarizationFailure, "summarization request failed").
			WithCause(err).
			WithRetryable(true)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", types.NewError(types.ErrSummarizationFailure,
			fmt.Sprintf("summarization endpoint returned status %d: %s", resp.StatusCode, string(raw))).
			WithRetryable(retryable)
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", types.NewError(types.ErrSummarizationFailure, "empty completion")
	}

	summary := strings.TrimSpace(cr.Choices[0].Message.Content)
	if summary == "" {
		return "", types.NewError(types.ErrSummarizationFailure, "blank summary")
	}
	return summary, nil
}
