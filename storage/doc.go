// Copyright 2025-2026 ReasonMem Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package storage 提供 chunk 向量存储后端。

  - VectorStore — 向量存储统一接口（Upsert / Search / Delete / Count）
  - InMemoryVectorStore — 内存实现，用于测试和嵌入式场景
  - QdrantStore — 基于 Qdrant REST API 的实现

后端在配置时选定（嵌入式 vs 集群），查询路径只依赖 VectorStore 接口。
*/
package storage
