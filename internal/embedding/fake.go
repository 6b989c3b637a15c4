package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
)

// FakeEmbedder generates deterministic embeddings from a hash of the input
// text. Useful for tests and offline development; similar texts do not get
// similar vectors, but identical texts always get identical vectors.
type FakeEmbedder struct {
	model     string
	dimension int
}

// NewFakeEmbedder creates a fake embedder with the given dimension.
func NewFakeEmbedder(dimension int) *FakeEmbedder {
	if dimension <= 0 {
		dimension = 768
	}
	return &FakeEmbedder{model: "fake-embedder", dimension: dimension}
}

// Embed generates deterministic vectors for each text.
func (f *FakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = f.vectorFor(t)
	}
	return vectors, nil
}

// EmbedQuery generates a deterministic vector for the query.
func (f *FakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.vectorFor(text), nil
}

// Model returns the fake model name.
func (f *FakeEmbedder) Model() string { return f.model }

// Dimension returns the embedding dimension.
func (f *FakeEmbedder) Dimension() int { return f.dimension }

func (f *FakeEmbedder) vectorFor(text string) []float32 {
	vec := make([]float32, f.dimension)
	if text == "" {
		return vec
	}
	seed := sha256.Sum256([]byte(text))
	for i := range vec {
		// Stretch the 32-byte digest across the full dimension.
		word := binary.LittleEndian.Uint32(seed[(i*4)%28:])
		vec[i] = float32(int32(word+uint32(i)*2654435761)) / float32(1<<31)
	}
	return Normalize(vec)
}

var _ Embedder = (*FakeEmbedder)(nil)
