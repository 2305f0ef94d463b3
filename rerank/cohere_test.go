package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/reasonmem/types"
)

func TestCohereProvider_ScoreBatchPreservesInputOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/rerank", r.URL.Path)

		var req cohereRerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "which doc", req.Query)
		require.Len(t, req.Documents, 3)

		// Cohere 按相关度排序返回，index 指向输入位置
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"id": "r1",
			"results": []map[string]any{
				{"index": 2, "relevance_score": 0.9},
				{"index": 0, "relevance_score": 0.5},
				{"index": 1, "relevance_score": 0.1},
			},
		}))
	}))
	defer srv.Close()

	p := NewCohereProvider(CohereConfig{BaseURL: srv.URL, APIKey: "k"})

	scores, err := p.ScoreBatch(context.Background(), "which doc", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.1, 0.9}, scores)
}

func TestCohereProvider_MissingScoreIsRerankFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"id": "r1",
			"results": []map[string]any{
				{"index": 0, "relevance_score": 0.5},
			},
		}))
	}))
	defer srv.Close()

	p := NewCohereProvider(CohereConfig{BaseURL: srv.URL, APIKey: "k"})

	_, err := p.ScoreBatch(context.Background(), "q", []string{"a", "b"})
	require.Error(t, err)
	assert.Equal(t, types.ErrRerankFailure, types.GetErrorCode(err))
}

func TestCohereProvider_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewCohereProvider(CohereConfig{BaseURL: srv.URL, APIKey: "k"})

	for i := 0; i < 5; i++ {
		_, err := p.Score(context.Background(), "q", "doc")
		require.Error(t, err)
	}

	// 第六次调用应由熔断器短路
	_, err := p.Score(context.Background(), "q", "doc")
	require.Error(t, err)
	assert.Equal(t, types.ErrRerankFailure, types.GetErrorCode(err))
	assert.Contains(t, err.Error(), "circuit open")
}
