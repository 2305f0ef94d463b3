package raptor

import (
	"testing"
)

// threeLevelTree 两个主题分支: root -> {topicA, topicB} -> 叶子
func threeLevelTree() *Tree {
	nodes := map[string]*Node{
		"a1": {ID: "a1", Level: 0, Embedding: []float64{1, 0, 0}, Text: "a1", Parent: "topicA"},
		"a2": {ID: "a2", Level: 0, Embedding: []float64{0.9, 0.1, 0}, Text: "a2", Parent: "topicA"},
		"b1": {ID: "b1", Level: 0, Embedding: []float64{0, 1, 0}, Text: "b1", Parent: "topicB"},
		"b2": {ID: "b2", Level: 0, Embedding: []float64{0, 0.9, 0.1}, Text: "b2", Parent: "topicB"},
		"topicA": {ID: "topicA", Level: 1, Embedding: []float64{0.95, 0.05, 0}, Text: "about A",
			Children: []string{"a1", "a2"}, Parent: "root"},
		"topicB": {ID: "topicB", Level: 1, Embedding: []float64{0, 0.95, 0.05}, Text: "about B",
			Children: []string{"b1", "b2"}, Parent: "root"},
		"root": {ID: "root", Level: 2, Embedding: []float64{0.5, 0.5, 0}, Text: "everything",
			Children: []string{"topicA", "topicB"}},
	}
	return &Tree{Nodes: nodes, Roots: []string{"root"}}
}

func TestCollapsedSearchMixesLevels(t *testing.T) {
	t.Parallel()

	tree := threeLevelTree()
	if err := tree.Validate(); err != nil {
		t.Fatalf("fixture invalid: %v", err)
	}

	// 贴近主题 A 的查询：叶子和主题 A 的摘要都应进入前三
	got := CollapsedSearch(tree, []float64{1, 0, 0}, 3)
	if len(got) != 3 {
		t.Fatalf("got %d results, want 3", len(got))
	}
	wantTop := map[string]bool{"a1": true, "a2": true, "topicA": true}
	for _, sn := range got {
		if !wantTop[sn.Node.ID] {
			t.Fatalf("unexpected result %s in top 3", sn.Node.ID)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("results not sorted by score")
		}
	}
}

func TestCollapsedSearchDeterministicTies(t *testing.T) {
	t.Parallel()

	// 所有节点与查询同分时按节点 ID 升序
	tree := &Tree{
		Nodes: map[string]*Node{
			"x": {ID: "x", Level: 0, Embedding: []float64{1, 0}, Text: "x"},
			"y": {ID: "y", Level: 0, Embedding: []float64{2, 0}, Text: "y"},
			"z": {ID: "z", Level: 0, Embedding: []float64{3, 0}, Text: "z"},
		},
		Roots: []string{"x", "y", "z"},
	}

	got := CollapsedSearch(tree, []float64{1, 0}, 2)
	if len(got) != 2 || got[0].Node.ID != "x" || got[1].Node.ID != "y" {
		t.Fatalf("tie break by id failed: %v", got)
	}
}

func TestTraversalSearchReturnsLeavesOnly(t *testing.T) {
	t.Parallel()

	tree := threeLevelTree()
	got := TraversalSearch(tree, []float64{0, 1, 0}, 10, 1)

	if len(got) == 0 {
		t.Fatalf("no results")
	}
	for _, sn := range got {
		if sn.Node.Level != 0 {
			t.Fatalf("traversal returned non-leaf %s", sn.Node.ID)
		}
	}
	// beam 1 只沿主题 B 分支下降
	for _, sn := range got {
		if sn.Node.ID != "b1" && sn.Node.ID != "b2" {
			t.Fatalf("beam 1 escaped topic B branch: %s", sn.Node.ID)
		}
	}
}

func TestTraversalSearchWideBeam(t *testing.T) {
	t.Parallel()

	tree := threeLevelTree()
	got := TraversalSearch(tree, []float64{0.5, 0.5, 0}, 10, 4)
	if len(got) != 4 {
		t.Fatalf("wide beam reached %d leaves, want all 4", len(got))
	}
}

func TestSearchEmptyInputs(t *testing.T) {
	t.Parallel()

	tree := threeLevelTree()
	if got := CollapsedSearch(nil, []float64{1}, 3); got != nil {
		t.Fatalf("nil tree returned results")
	}
	if got := CollapsedSearch(tree, []float64{1, 0, 0}, 0); got != nil {
		t.Fatalf("k=0 returned results")
	}
	if got := TraversalSearch(nil, []float64{1}, 3, 2); got != nil {
		t.Fatalf("nil tree returned results")
	}
}
