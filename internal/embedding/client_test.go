package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covalent-ai/covalent/libs/rag-engine/internal/cache"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/observability"
)

func testServer(t *testing.T, dim int, hook func(req EmbeddingRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req EmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if hook != nil {
			hook(req)
		}

		resp := EmbeddingResponse{Object: "list", Model: req.Model}
		for i := range req.Input {
			vec := make([]float32, dim)
			vec[0] = float32(i + 1)
			resp.Data = append(resp.Data, EmbeddingData{Object: "embedding", Embedding: vec, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, endpoint string, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		Type:      "openai",
		Endpoint:  endpoint,
		Model:     "test-model",
		Dimension: 4,
		BatchSize: 50,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	c.batchPause = time.Millisecond
	return c
}

func TestEmbedBatchesLargeInput(t *testing.T) {
	var requests atomic.Int32
	srv := testServer(t, 4, func(req EmbeddingRequest) {
		requests.Add(1)
		assert.LessOrEqual(t, len(req.Input), 50)
	})

	c := newTestClient(t, srv.URL, nil)

	texts := make([]string, 120)
	for i := range texts {
		texts[i] = "passage"
	}
	vectors, err := c.Embed(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vectors, 120)
	assert.Equal(t, int32(3), requests.Load())
}

func TestEmbedEmptyStringIsZeroVector(t *testing.T) {
	srv := testServer(t, 4, func(req EmbeddingRequest) {
		for _, in := range req.Input {
			assert.NotEmpty(t, in)
		}
	})

	c := newTestClient(t, srv.URL, nil)

	vectors, err := c.Embed(context.Background(), []string{"hello", "", "  ", "world"})
	require.NoError(t, err)
	require.Len(t, vectors, 4)
	assert.Equal(t, []float32{0, 0, 0, 0}, vectors[1])
	assert.Equal(t, []float32{0, 0, 0, 0}, vectors[2])
	assert.NotEqual(t, []float32{0, 0, 0, 0}, vectors[0])
}

func TestEmbedNoInput(t *testing.T) {
	c := newTestClient(t, "http://unused.invalid", nil)
	vectors, err := c.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestPrefixSensitiveProvider(t *testing.T) {
	var lastInput string
	srv := testServer(t, 4, func(req EmbeddingRequest) {
		lastInput = req.Input[0]
	})

	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.Type = "nomic" })

	_, err := c.Embed(context.Background(), []string{"the passage"})
	require.NoError(t, err)
	assert.Equal(t, "search_document: the passage", lastInput)

	_, err = c.EmbedQuery(context.Background(), "the question")
	require.NoError(t, err)
	assert.Equal(t, "search_query: the question", lastInput)
}

func TestOpenAIProviderHasNoPrefix(t *testing.T) {
	var lastInput string
	srv := testServer(t, 4, func(req EmbeddingRequest) {
		lastInput = req.Input[0]
	})

	c := newTestClient(t, srv.URL, nil)

	_, err := c.EmbedQuery(context.Background(), "the question")
	require.NoError(t, err)
	assert.Equal(t, "the question", lastInput)
}

func TestEmbedNormalizesVectors(t *testing.T) {
	srv := testServer(t, 4, nil)
	c := newTestClient(t, srv.URL, nil)

	vectors, err := c.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)

	var norm float64
	for _, x := range vectors[0] {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestEmbedRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
			return
		}
		resp := EmbeddingResponse{Data: []EmbeddingData{{Embedding: []float32{1, 0, 0, 0}, Index: 0}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)

	vectors, err := c.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbedAuthFailureIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)

	_, err := c.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbedExhaustedRetriesIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)

	_, err := c.Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestEmbedDimensionMismatch(t *testing.T) {
	srv := testServer(t, 7, nil)
	c := newTestClient(t, srv.URL, nil)

	_, err := c.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}

func TestCachedEmbedderServesFromCache(t *testing.T) {
	inner := &countingEmbedder{FakeEmbedder: NewFakeEmbedder(8)}
	cached := NewCachedEmbedder(inner, cache.NewMemoryClient(100), time.Minute, observability.Nop())

	ctx := context.Background()
	first, err := cached.EmbedQuery(ctx, "what is the refund policy")
	require.NoError(t, err)

	second, err := cached.EmbedQuery(ctx, "what is the refund policy")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), inner.queryCalls.Load())
}

func TestCachedEmbedderDoesNotCachePassages(t *testing.T) {
	inner := &countingEmbedder{FakeEmbedder: NewFakeEmbedder(8)}
	cached := NewCachedEmbedder(inner, cache.NewMemoryClient(100), time.Minute, observability.Nop())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := cached.Embed(ctx, []string{"same passage"})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), inner.embedCalls.Load())
}

func TestFakeEmbedderDeterministic(t *testing.T) {
	f := NewFakeEmbedder(16)

	a, err := f.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	b, err := f.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	c, err := f.EmbedQuery(context.Background(), "goodbye")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	var norm float64
	for _, x := range a {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

type countingEmbedder struct {
	*FakeEmbedder
	embedCalls atomic.Int32
	queryCalls atomic.Int32
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.embedCalls.Add(1)
	return c.FakeEmbedder.Embed(ctx, texts)
}

func (c *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	c.queryCalls.Add(1)
	return c.FakeEmbedder.EmbedQuery(ctx, text)
}
