// Package embedding provides passage and query embedding via pluggable
// OpenAI-compatible providers.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrUnavailable indicates the provider kept failing after the retry budget
// was exhausted.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Embedder generates embeddings for passages and queries. Every returned
// vector has the configured dimension and unit L2 norm; the vector for an
// empty input string is all zeros.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Model() string
	Dimension() int
}

// Capabilities describes provider quirks the client must honor.
type Capabilities struct {
	// PrefixSensitive models (nomic, jina) distinguish passages from
	// queries by a text prefix.
	PrefixSensitive bool
	PassagePrefix   string
	QueryPrefix     string
	// MaxBatch is the provider's documented batch ceiling.
	MaxBatch int
}

// capabilitiesFor returns the capability descriptor for a provider type.
func capabilitiesFor(providerType string) Capabilities {
	switch strings.ToLower(providerType) {
	case "nomic":
		return Capabilities{PrefixSensitive: true, PassagePrefix: "search_document: ", QueryPrefix: "search_query: ", MaxBatch: 50}
	case "jina":
		return Capabilities{PrefixSensitive: true, PassagePrefix: "passage: ", QueryPrefix: "query: ", MaxBatch: 50}
	default: // openai-compatible
		return Capabilities{MaxBatch: 50}
	}
}

// Client calls an OpenAI-compatible /embeddings endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	batchSize  int
	caps       Capabilities
	batchPause time.Duration
}

// Config holds embedding client configuration.
type Config struct {
	Type      string // openai, nomic, jina
	Endpoint  string
	APIKey    string
	Model     string
	Dimension int
	BatchSize int
	Timeout   time.Duration
}

// NewClient creates a new embedding client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dimension)
	}

	caps := capabilitiesFor(cfg.Type)

	batchSize := cfg.BatchSize
	if batchSize <= 0 || batchSize > caps.MaxBatch {
		batchSize = caps.MaxBatch
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:    100,
		MaxConnsPerHost: 500,
		IdleConnTimeout: 90 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		baseURL:    strings.TrimSuffix(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		batchSize:  batchSize,
		caps:       caps,
		batchPause: 100 * time.Millisecond,
	}, nil
}

// EmbeddingRequest represents a request to generate embeddings.
type EmbeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

// EmbeddingResponse represents the API response.
type EmbeddingResponse struct {
	Object string          `json:"object"`
	Data   []EmbeddingData `json:"data"`
	Model  string          `json:"model"`
	Usage  EmbeddingUsage  `json:"usage"`
	Error  *EmbeddingError `json:"error,omitempty"`
}

// EmbeddingData contains the embedding vector.
type EmbeddingData struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// EmbeddingUsage contains token usage information.
type EmbeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// EmbeddingError represents an API error.
type EmbeddingError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Embed generates unit-normalized passage embeddings, batching requests up
// to the provider's ceiling with a brief pause between batches. Empty input
// strings map to the zero vector and are never sent to the provider.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embed(ctx, texts, c.caps.PassagePrefix)
}

// EmbedQuery generates a unit-normalized query embedding, applying the
// query prefix when the model is prefix-sensitive.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embed(ctx, []string{text}, c.caps.QueryPrefix)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *Client) embed(ctx context.Context, texts []string, prefix string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))

	// Empty strings become zero vectors; only the rest go to the provider.
	var payload []string
	var payloadIdx []int
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			vectors[i] = make([]float32, c.dimension)
			continue
		}
		if c.caps.PrefixSensitive && prefix != "" {
			t = prefix + t
		}
		payload = append(payload, t)
		payloadIdx = append(payloadIdx, i)
	}

	for start := 0; start < len(payload); start += c.batchSize {
		end := start + c.batchSize
		if end > len(payload) {
			end = len(payload)
		}

		if start > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.batchPause):
			}
		}

		batch, err := c.embedBatch(ctx, payload[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		for j, vec := range batch {
			vectors[payloadIdx[start+j]] = vec
		}
	}

	return vectors, nil
}

// embedBatch sends one request, retrying transient failures with
// exponential backoff up to 3 attempts.
func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32

	operation := func() error {
		vecs, err := c.doRequest(ctx, texts)
		if err != nil {
			return err
		}
		out = vecs
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Unwrap()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

func (c *Client) doRequest(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(EmbeddingRequest{Input: texts, Model: c.model})
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, truncate(string(respBody), 300))
		// 429 and 5xx are transient; everything else (auth, bad request)
		// fails immediately.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, apiErr
		}
		return nil, backoff.Permanent(apiErr)
	}

	var embResp EmbeddingResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if embResp.Error != nil {
		return nil, backoff.Permanent(fmt.Errorf("API error: %s (type: %s)", embResp.Error.Message, embResp.Error.Type))
	}
	if len(embResp.Data) != len(texts) {
		return nil, fmt.Errorf("provider returned %d embeddings for %d inputs", len(embResp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, data := range embResp.Data {
		if data.Index < 0 || data.Index >= len(vectors) {
			return nil, backoff.Permanent(fmt.Errorf("embedding index %d out of range", data.Index))
		}
		if len(data.Embedding) != c.dimension {
			return nil, backoff.Permanent(fmt.Errorf("provider returned dimension %d, configured %d", len(data.Embedding), c.dimension))
		}
		vectors[data.Index] = Normalize(data.Embedding)
	}
	return vectors, nil
}

// Model returns the model being used.
func (c *Client) Model() string {
	return c.model
}

// Dimension returns the embedding dimension.
func (c *Client) Dimension() int {
	return c.dimension
}

// Normalize scales a vector to unit L2 length in place and returns it.
// Cosine similarity over unit vectors reduces to a dot product.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Embedder = (*Client)(nil)
