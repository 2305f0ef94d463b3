package raptor

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/BaSui01/reasonmem/types"
)

// Node 树中的一个节点。level 0 节点与 chunk 一一对应（ID 即 chunk ID，
// Text 即 chunk 文本）；更高层节点的 Text 是其子节点文本的摘要。
// 父子关系以 ID 引用表示，节点不持有指针，便于并发只读快照。
type Node struct {
	ID        string    `json:"id"`
	Level     int       `json:"level"`
	Embedding []float64 `json:"embedding"`
	Text      string    `json:"text"`
	Children  []string  `json:"children,omitempty"` // 空 当且仅当 level == 0
	Parent    string    `json:"parent,omitempty"`
}

// Tree 是一次构建产出的不可变层级摘要树。
// nodes 是以 ID 为键的扁平节点表；roots 是所有无父节点的节点 ID。
type Tree struct {
	Nodes   map[string]*Node `json:"nodes"`
	Roots   []string         `json:"roots"`
	Version uint64           `json:"version"`
}

// ChunkCount 返回 level 0 节点数
func (t *Tree) ChunkCount() int {
	n := 0
	for _, node := range t.Nodes {
		if node.Level == 0 {
			n++
		}
	}
	return n
}

// MaxLevel 返回树中最高层级
func (t *Tree) MaxLevel() int {
	max := 0
	for _, node := range t.Nodes {
		if node.Level > max {
			max = node.Level
		}
	}
	return max
}

// Validate 检查树结构不变量，发现破坏时返回 TREE_INVARIANT_VIOLATION。
// 检查项: 父子引用一致、非根节点恰有一个父节点、无环、
// 父节点层级严格大于所有子节点、所有 level 0 节点可从根到达（完整性）。
func (t *Tree) Validate() error {
	if len(t.Nodes) == 0 {
		return nil
	}

	roots := make(map[string]bool, len(t.Roots))
	for _, id := range t.Roots {
		if _, ok := t.Nodes[id]; !ok {
			return invariant(fmt.Sprintf("root %s not in node table", id))
		}
		roots[id] = true
	}

	parentOf := make(map[string]string, len(t.Nodes))
	for id, node := range t.Nodes {
		if node.ID != id {
			return invariant(fmt.Sprintf("node table key %s does not match node id %s", id, node.ID))
		}
		if node.Level == 0 && len(node.Children) > 0 {
			return invariant(fmt.Sprintf("leaf node %s has children", id))
		}
		if node.Level > 0 && len(node.Children) == 0 {
			return invariant(fmt.Sprintf("non-leaf node %s (level %d) has no children", id, node.Level))
		}

		for _, childID := range node.Children {
			child, ok := t.Nodes[childID]
			if !ok {
				return invariant(fmt.Sprintf("node %s references missing child %s", id, childID))
			}
			if prev, seen := parentOf[childID]; seen && prev != id {
				return invariant(fmt.Sprintf("node %s has two parents: %s and %s", childID, prev, id))
			}
			parentOf[childID] = id
			if child.Parent != id {
				return invariant(fmt.Sprintf("child %s parent ref %q does not match actual parent %s", childID, child.Parent, id))
			}
			if child.Level >= node.Level {
				return invariant(fmt.Sprintf("node %s (level %d) has child %s at level %d", id, node.Level, childID, child.Level))
			}
		}
	}

	for id, node := range t.Nodes {
		_, hasParent := parentOf[id]
		if hasParent && roots[id] {
			return invariant(fmt.Sprintf("root %s has a parent", id))
		}
		if !hasParent && !roots[id] {
			return invariant(fmt.Sprintf("node %s has no parent and is not a root", id))
		}
		if !hasParent && node.Parent != "" {
			return invariant(fmt.Sprintf("node %s parent ref %q but no node claims it", id, node.Parent))
		}
	}

	// 自根向下遍历：层级严格递减保证无环，同时统计可达的叶子
	reachableLeaves := make(map[string]bool)
	var walk func(id string) error
	walk = func(id string) error {
		node := t.Nodes[id]
		if node.Level == 0 {
			reachableLeaves[id] = true
			return nil
		}
		for _, childID := range node.Children {
			if err := walk(childID); err != nil {
				return err
			}
		}
		return nil
	}
	for _, rootID := range t.Roots {
		if err := walk(rootID); err != nil {
			return err
		}
	}

	for id, node := range t.Nodes {
		if node.Level == 0 && !reachableLeaves[id] {
			return invariant(fmt.Sprintf("chunk %s not reachable from any root", id))
		}
	}

	return nil
}

func invariant(msg string) error {
	return types.NewError(types.ErrTreeInvariantViolated, msg)
}

// sortedNodeIDs 返回按 ID 排序的全部节点 ID，供确定性遍历使用
func (t *Tree) sortedNodeIDs() []string {
	ids := make([]string, 0, len(t.Nodes))
	for id := range t.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Holder 持有当前发布的树版本。Publish 是唯一的跨查询共享可变状态，
// 通过单次原子指针替换完成版本切换；Load 取得的快照在查询期间保持不变。
type Holder struct {
	ptr     atomic.Pointer[Tree]
	version atomic.Uint64
}

// NewHolder 创建空的树持有者
func NewHolder() *Holder {
	return &Holder{}
}

// Load 返回当前树快照，未发布过时返回 nil
func (h *Holder) Load() *Tree {
	return h.ptr.Load()
}

// Publish 原子发布新树并为其分配单调递增的版本号
func (h *Holder) Publish(t *Tree) {
	t.Version = h.version.Add(1)
	h.ptr.Store(t)
}
