package integration

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covalent-ai/covalent/libs/rag-engine/internal/cache"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/embedding"
)

// countingEmbedder counts query embeddings reaching the provider.
type countingEmbedder struct {
	embedding.Embedder
	queryCalls atomic.Int64
}

func (e *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.queryCalls.Add(1)
	return e.Embedder.EmbedQuery(ctx, text)
}

func TestRedisQueryEmbeddingCache(t *testing.T) {
	skipUnlessDocker(t)

	addr := startRedis(t)
	client, err := cache.NewRedisClient(cache.RedisConfig{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	inner := &countingEmbedder{Embedder: embedding.NewFakeEmbedder(testDimension)}
	cached := embedding.NewCachedEmbedder(inner, client, time.Minute, nil)

	ctx := context.Background()
	first, err := cached.EmbedQuery(ctx, "what is the refund policy?")
	require.NoError(t, err)
	second, err := cached.EmbedQuery(ctx, "what is the refund policy?")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), inner.queryCalls.Load(), "second query should be served from Redis")

	// A different question misses the cache.
	_, err = cached.EmbedQuery(ctx, "what is the shipping policy?")
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.queryCalls.Load())
}
