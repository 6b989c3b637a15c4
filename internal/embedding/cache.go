package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"

	"github.com/covalent-ai/covalent/libs/rag-engine/internal/cache"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/observability"
)

// CachedEmbedder wraps an Embedder with a cache on the query path. Passage
// embeddings are never cached; ingestion rarely sees the same text twice.
// Cache failures degrade to the underlying embedder.
type CachedEmbedder struct {
	inner  Embedder
	cache  cache.Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewCachedEmbedder wraps embedder with a query-embedding cache.
func NewCachedEmbedder(inner Embedder, c cache.Client, ttl time.Duration, logger *observability.Logger) *CachedEmbedder {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &CachedEmbedder{inner: inner, cache: c, ttl: ttl, logger: logger}
}

// Embed delegates to the underlying embedder.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.Embed(ctx, texts)
}

// EmbedQuery returns a cached query embedding when available.
func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if data, err := c.cache.Get(ctx, key); err == nil {
		if vec, ok := decodeVector(data, c.inner.Dimension()); ok {
			return vec, nil
		}
		// Corrupt entry, drop it and recompute.
		_ = c.cache.Delete(ctx, key)
	}

	vec, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, encodeVector(vec), c.ttl); err != nil {
		c.logger.Warn().Err(err).Msg("query embedding cache write failed")
	}
	return vec, nil
}

// Model returns the underlying model name.
func (c *CachedEmbedder) Model() string { return c.inner.Model() }

// Dimension returns the underlying embedding dimension.
func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

// cacheKey hashes the query text together with the model so a model change
// never serves stale vectors.
func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.New()
	h.Write([]byte(c.inner.Model()))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return "emb:q:" + hex.EncodeToString(h.Sum(nil))
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, x := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(data []byte, dim int) ([]float32, bool) {
	if len(data) != 4*dim {
		return nil, false
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, true
}

var _ Embedder = (*CachedEmbedder)(nil)
