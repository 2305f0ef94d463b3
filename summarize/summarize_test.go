package summarize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/reasonmem/types"
)

func TestChatProvider_SummarizeJoinsPassages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.True(t, strings.Contains(req.Messages[0].Content, "[1] first passage"))
		assert.True(t, strings.Contains(req.Messages[0].Content, "[2] second passage"))

		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  a combined summary \n"}},
			},
		}))
	}))
	defer srv.Close()

	p := NewChatProvider(Config{BaseURL: srv.URL, APIKey: "k"}, nil)

	got, err := p.Summarize(context.Background(), []string{"first passage", "second passage"})
	require.NoError(t, err)
	assert.Equal(t, "a combined summary", got)
}

func TestChatProvider_ServerErrorIsRetryableSummarizationFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewChatProvider(Config{BaseURL: srv.URL, APIKey: "k"}, nil)

	_, err := p.Summarize(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.Equal(t, types.ErrSummarizationFailure, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestChatProvider_RejectsEmptyInput(t *testing.T) {
	p := NewChatProvider(Config{BaseURL: "http://unused", APIKey: "k"}, nil)
	_, err := p.Summarize(context.Background(), nil)
	require.Error(t, err)
}
