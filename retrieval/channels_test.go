package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/BaSui01/reasonmem/embedding"
	"github.com/BaSui01/reasonmem/indexing"
	"github.com/BaSui01/reasonmem/raptor"
	"github.com/BaSui01/reasonmem/storage"
	"github.com/BaSui01/reasonmem/types"
)

// vecEmbedder 返回预设向量；未知文本报错
type vecEmbedder struct {
	vectors map[string][]float64
}

func (e vecEmbedder) Embed(_ context.Context, req *embedding.EmbeddingRequest) (*embedding.EmbeddingResponse, error) {
	resp := &embedding.EmbeddingResponse{Provider: "fake"}
	for i, text := range req.Input {
		v, ok := e.vectors[text]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", text)
		}
		resp.Embeddings = append(resp.Embeddings, embedding.EmbeddingData{Index: i, Embedding: v})
	}
	return resp, nil
}

func (e vecEmbedder) EmbedQuery(_ context.Context, query string) ([]float64, error) {
	v, ok := e.vectors[query]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", query)
	}
	return v, nil
}

func (e vecEmbedder) EmbedDocuments(_ context.Context, documents []string) ([][]float64, error) {
	out := make([][]float64, len(documents))
	for i, d := range documents {
		v, ok := e.vectors[d]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", d)
		}
		out[i] = v
	}
	return out, nil
}

func (vecEmbedder) Name() string      { return "fake" }
func (vecEmbedder) Dimensions() int   { return 2 }
func (vecEmbedder) MaxBatchSize() int { return 16 }

func TestDenseChannelRanksHits(t *testing.T) {
	t.Parallel()

	store := storage.NewInMemoryVectorStore(nil)
	err := store.Upsert(context.Background(), []types.Chunk{
		{ID: "c1", Text: "first", Embedding: []float64{1, 0}},
		{ID: "c2", Text: "second", Embedding: []float64{0.7, 0.7}},
		{ID: "c3", Text: "third", Embedding: []float64{0, 1}},
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	ch := NewDenseChannel(store, vecEmbedder{vectors: map[string][]float64{"q": {1, 0}}}, nil)
	got, err := ch.Retrieve(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].Ref != "c1" || got[0].Rank != 1 {
		t.Fatalf("top candidate = %+v, want c1 at rank 1", got[0])
	}
	if got[1].Ref != "c2" || got[1].Rank != 2 {
		t.Fatalf("second candidate = %+v, want c2 at rank 2", got[1])
	}
	if got[0].Channel != types.ChannelDense {
		t.Fatalf("channel = %s, want dense", got[0].Channel)
	}
}

func TestDenseChannelEmbedFailure(t *testing.T) {
	t.Parallel()

	ch := NewDenseChannel(storage.NewInMemoryVectorStore(nil), vecEmbedder{}, nil)
	_, err := ch.Retrieve(context.Background(), "unknown", 5)
	if err == nil {
		t.Fatalf("expected error")
	}
	if types.GetErrorCode(err) != types.ErrChannelUnavailable {
		t.Fatalf("error code = %s, want %s", types.GetErrorCode(err), types.ErrChannelUnavailable)
	}
}

func TestSparseChannelRanksHits(t *testing.T) {
	t.Parallel()

	idx := indexing.NewBM25Index(indexing.DefaultBM25Config(), nil)
	err := idx.Index(context.Background(), []types.Chunk{
		{ID: "c1", Text: "the cat sat on the mat"},
		{ID: "c2", Text: "dogs chase cats in the yard"},
		{ID: "c3", Text: "quantum computing with qubits"},
	})
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	ch := NewSparseChannel(idx, nil)
	got, err := ch.Retrieve(context.Background(), "cat mat", 5)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(got) == 0 {
		t.Fatalf("no candidates")
	}
	if got[0].Ref != "c1" || got[0].Rank != 1 {
		t.Fatalf("top candidate = %+v, want c1 at rank 1", got[0])
	}
	for i := range got {
		if got[i].Rank != i+1 {
			t.Fatalf("rank at %d = %d, want %d", i, got[i].Rank, i+1)
		}
	}
}

func TestSummaryChannelRequiresTree(t *testing.T) {
	t.Parallel()

	holder := raptor.NewHolder()
	ch := NewSummaryChannel(holder, vecEmbedder{}, SummaryModeCollapsed, 3, nil)

	_, err := ch.Retrieve(context.Background(), "q", 5)
	if err == nil {
		t.Fatalf("expected error before tree publish")
	}
	if types.GetErrorCode(err) != types.ErrChannelUnavailable {
		t.Fatalf("error code = %s, want %s", types.GetErrorCode(err), types.ErrChannelUnavailable)
	}
}

func TestSummaryChannelSearchesSnapshot(t *testing.T) {
	t.Parallel()

	tree := &raptor.Tree{
		Nodes: map[string]*raptor.Node{
			"leaf": {ID: "leaf", Level: 0, Embedding: []float64{1, 0}, Text: "leaf text", Parent: "root"},
			"root": {ID: "root", Level: 1, Embedding: []float64{0, 1}, Text: "summary text",
				Children: []string{"leaf"}},
		},
		Roots: []string{"root"},
	}
	holder := raptor.NewHolder()
	holder.Publish(tree)

	ch := NewSummaryChannel(holder, vecEmbedder{vectors: map[string][]float64{"q": {1, 0}}}, SummaryModeCollapsed, 3, nil)
	got, err := ch.Retrieve(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].Ref != "leaf" {
		t.Fatalf("top candidate = %s, want leaf", got[0].Ref)
	}
	if got[0].Channel != types.ChannelSummary {
		t.Fatalf("channel = %s, want summary", got[0].Channel)
	}
}
