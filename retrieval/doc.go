// Copyright 2025-2026 ReasonMem Authors. All rights reserved.
// Use of this source code is governed by the project license.

// Package retrieval 实现混合检索管线：查询扩展、三路通道并发召回
// （稠密向量、稀疏 BM25、层级摘要树）、RRF 排名融合、交叉编码器重排
// 与 token 预算内的上下文组装。任一通道失败都只降级结果集，
// 只有全部通道失败时整次查询才失败。
package retrieval
