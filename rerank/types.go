// Copyright 2025-2026 ReasonMem Authors. All rights reserved.
// Use of this source code is governed by the project license.

// Package rerank 提供统一的交叉编码器打分接口和实现。
// 交叉编码器对 (查询, 候选文本) 联合打分，用于融合结果的精排。
package rerank

import (
	"context"
	"time"
)

// Provider 定义统一的交叉编码器接口.
type Provider interface {
	// Score 对单个 (查询, 候选文本) 打分.
	Score(ctx context.Context, query, text string) (float64, error)

	// ScoreBatch 对同一查询下的多个候选文本批量打分，
	// 返回与 texts 顺序一致的分数切片.
	ScoreBatch(ctx context.Context, query string, texts []string) ([]float64, error)

	// Name 返回提供者名称.
	Name() string

	// MaxDocuments 返回单次批量打分支持的最大文档数.
	MaxDocuments() int
}

// CohereConfig 配置 Cohere 重排提供者.
type CohereConfig struct {
	BaseURL string        `json:"base_url,omitempty"`
	APIKey  string        `json:"api_key"`
	Model   string        `json:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"`
}
