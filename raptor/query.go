package raptor

import (
	"sort"
)

// ScoredNode 一次树检索命中
type ScoredNode struct {
	Node  *Node
	Score float64
}

// CollapsedSearch 折叠树检索：把所有层级的节点视为一个平面集合，
// 按与查询嵌入的余弦相似度取 top-k。摘要节点与叶子节点同场竞争，
// 宽泛的查询自然命中高层摘要，具体的查询命中叶子。
func CollapsedSearch(t *Tree, query []float64, k int) []ScoredNode {
	if t == nil || len(t.Nodes) == 0 || k <= 0 {
		return nil
	}

	scored := make([]ScoredNode, 0, len(t.Nodes))
	for _, id := range t.sortedNodeIDs() {
		node := t.Nodes[id]
		scored = append(scored, ScoredNode{Node: node, Score: cosine(query, node.Embedding)})
	}
	sortScored(scored)

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// TraversalSearch 自根向下检索：每层保留与查询最相似的 beamWidth 个节点，
// 展开其子节点进入下一层，最终只返回到达的叶子节点（最多 k 个）。
// 适合需要完整局部上下文而非跨层混合的查询。
func TraversalSearch(t *Tree, query []float64, k, beamWidth int) []ScoredNode {
	if t == nil || len(t.Nodes) == 0 || k <= 0 {
		return nil
	}
	if beamWidth <= 0 {
		beamWidth = 3
	}

	frontier := make([]*Node, 0, len(t.Roots))
	for _, id := range t.Roots {
		frontier = append(frontier, t.Nodes[id])
	}

	leaves := make([]ScoredNode, 0, k)
	seen := make(map[string]bool)

	for len(frontier) > 0 {
		scored := make([]ScoredNode, 0, len(frontier))
		for _, node := range frontier {
			scored = append(scored, ScoredNode{Node: node, Score: cosine(query, node.Embedding)})
		}
		sortScored(scored)
		if len(scored) > beamWidth {
			scored = scored[:beamWidth]
		}

		frontier = frontier[:0]
		for _, sn := range scored {
			if sn.Node.Level == 0 {
				if !seen[sn.Node.ID] {
					seen[sn.Node.ID] = true
					leaves = append(leaves, sn)
				}
				continue
			}
			for _, childID := range sn.Node.Children {
				frontier = append(frontier, t.Nodes[childID])
			}
		}
	}

	sortScored(leaves)
	if len(leaves) > k {
		leaves = leaves[:k]
	}
	return leaves
}

// sortScored 按相似度降序排序，相同分数按节点 ID 升序，保证确定性
func sortScored(scored []ScoredNode) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Node.ID < scored[j].Node.ID
	})
}
