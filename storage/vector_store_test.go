package storage

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/BaSui01/reasonmem/types"
)

func TestInMemoryVectorStore_SearchRanksBySimilarity(t *testing.T) {
	t.Parallel()

	store := NewInMemoryVectorStore(zap.NewNop())
	chunks := []types.Chunk{
		{ID: "c1", Text: "goroutines and channels", DocID: "d1", Embedding: []float64{1, 0}},
		{ID: "c2", Text: "dynamic typing", DocID: "d1", Embedding: []float64{0, 1}},
		{ID: "c3", Text: "static typing", DocID: "d2", Embedding: []float64{0.9, 0.1}},
	}
	if err := store.Upsert(context.Background(), chunks); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := store.Search(context.Background(), []float64{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Chunk.ID != "c1" {
		t.Fatalf("expected top chunk c1, got %s", results[0].Chunk.ID)
	}
	if results[1].Chunk.ID != "c3" {
		t.Fatalf("expected second chunk c3, got %s", results[1].Chunk.ID)
	}
}

func TestInMemoryVectorStore_TieBreakByID(t *testing.T) {
	t.Parallel()

	store := NewInMemoryVectorStore(zap.NewNop())
	chunks := []types.Chunk{
		{ID: "b", Text: "beta", Embedding: []float64{1, 0}},
		{ID: "a", Text: "alpha", Embedding: []float64{1, 0}},
	}
	if err := store.Upsert(context.Background(), chunks); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := store.Search(context.Background(), []float64{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results[0].Chunk.ID != "a" || results[1].Chunk.ID != "b" {
		t.Fatalf("expected tie broken by id (a, b), got (%s, %s)",
			results[0].Chunk.ID, results[1].Chunk.ID)
	}
}

func TestInMemoryVectorStore_UpsertRejectsMissingEmbedding(t *testing.T) {
	t.Parallel()

	store := NewInMemoryVectorStore(zap.NewNop())
	err := store.Upsert(context.Background(), []types.Chunk{{ID: "x", Text: "no embedding"}})
	if err == nil {
		t.Fatalf("expected error for chunk without embedding")
	}
}

func TestInMemoryVectorStore_DeleteAndCount(t *testing.T) {
	t.Parallel()

	store := NewInMemoryVectorStore(zap.NewNop())
	chunks := []types.Chunk{
		{ID: "c1", Embedding: []float64{1, 0}},
		{ID: "c2", Embedding: []float64{0, 1}},
	}
	if err := store.Upsert(context.Background(), chunks); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.Delete(context.Background(), []string{"c1"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	n, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected count 1, got %d", n)
	}

	results, err := store.Search(context.Background(), []float64{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "c2" {
		t.Fatalf("expected only c2 after delete, got %+v", results)
	}
}
