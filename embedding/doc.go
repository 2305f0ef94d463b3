// Copyright 2025-2026 ReasonMem Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package embedding 提供统一的嵌入提供者接口和实现。

  - Provider — 嵌入提供者接口（Embed / EmbedQuery / EmbedDocuments）
  - OpenAIProvider — OpenAI 兼容端点实现
  - CachingProvider — Redis 缓存包装器，按文本内容哈希缓存嵌入
*/
package embedding
