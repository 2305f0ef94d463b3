// Copyright 2025-2026 ReasonMem Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package indexing 提供稀疏全文索引。

  - SparseIndex — 稀疏索引统一接口（Index / Search / Count）
  - BM25Index — 内存 BM25 实现（k1/b 可配置，同分按 chunk ID 决定顺序）

生产部署可以用外部全文索引服务替换 BM25Index，查询路径只依赖 SparseIndex 接口。
*/
package indexing
