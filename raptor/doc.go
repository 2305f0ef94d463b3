// Copyright 2025-2026 ReasonMem Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package raptor 实现 RAPTOR 层级摘要树（Sarthi et al. 2024）。

树在离线构建：level 0 节点与 chunk 一一对应，逐层对节点嵌入做软聚类，
每个簇经摘要服务生成父节点，直到收敛为单一根或达到最大深度。
构建产出不可变的 Tree，通过 Holder 的原子指针发布新版本，
正在进行的查询继续使用旧快照，读路径完全无锁。

查询支持两种模式：

  - CollapsedSearch — 将所有层级摊平为一个候选池，按嵌入相似度排序，
    偏向跨抽象层级的召回
  - TraversalSearch — 从根自顶向下，每层只保留 top-K 最相似子节点，
    最终只返回叶子 chunk，偏向精确且访问节点数有界

摘要失败的簇在有界重试后被排除，其成员仅在 level 0 可检索；
失败比例超过配置阈值时整体中止构建。
*/
package raptor
