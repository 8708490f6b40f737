package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// embeddingsServer answers /embeddings with vectors [i, len(input_i)] in reverse order.
func embeddingsServer(t *testing.T, dims int, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*calls++
		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, dims)
			vec[0] = float32(i)
			if dims > 1 {
				vec[1] = float32(len(req.Input[i]))
			}
			data = append(data, item{Object: "embedding", Index: i, Embedding: vec})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "model": req.Model, "data": data})
	}))
}

func TestOpenAIEmbedder_EmbedBatchOrdersByIndex(t *testing.T) {
	var calls int
	srv := embeddingsServer(t, 2, &calls)
	defer srv.Close()

	e := NewOpenAIEmbedder("sk-test", srv.URL+"/v1", "text-embedding-3-small", 2)
	out, err := e.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, v := range out {
		assert.Equal(t, float32(i), v[0])
		assert.Equal(t, float32(i+1), v[1])
	}
	assert.Equal(t, 1, calls)
}

func TestOpenAIEmbedder_batches(t *testing.T) {
	var calls int
	srv := embeddingsServer(t, 2, &calls)
	defer srv.Close()

	texts := make([]string, openAIBatchSize+5)
	for i := range texts {
		texts[i] = "x"
	}
	out, err := NewOpenAIEmbedder("sk-test", srv.URL+"/v1", "m", 2).EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, out, len(texts))
	assert.Equal(t, 2, calls)
}

func TestOpenAIEmbedder_dimensionMismatch(t *testing.T) {
	var calls int
	srv := embeddingsServer(t, 3, &calls)
	defer srv.Close()

	_, err := NewOpenAIEmbedder("sk-test", srv.URL+"/v1", "m", 2).Embed(context.Background(), "x")
	assert.ErrorContains(t, err, "3 dimensions")
}

func TestOpenAIEmbedder_httpError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIEmbedder("sk-test", srv.URL+"/v1", "m", 2).Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
}
