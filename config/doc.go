// Copyright 2025-2026 ReasonMem Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package config 提供 reasonmem 的统一配置加载。

配置优先级: 默认值 → YAML 文件 → 环境变量（前缀 REASONMEM）。

	cfg, err := config.NewLoader().
	    WithConfigPath("reasonmem.yaml").
	    WithEnvPrefix("REASONMEM").
	    Load()

核心配置块:

  - Fusion — RRF 常数与融合输出上限
  - Raptor — 树构建参数（最大深度、聚类阈值、摘要重试、失败中止阈值）
  - Rerank — 交叉编码器重排参数（TopN、并发上限）
  - Pipeline — 查询管线参数（通道超时、总体截止时间、扩展变体数、上下文预算）
  - Qdrant / Redis — 外部后端连接配置
  - Embedding / Summarize / Rerank 提供者端点配置
*/
package config
