// Package query runs the retrieval-augmented answer pipeline: embed,
// search, decrypt, assemble, stream.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/covalent-ai/covalent/libs/rag-engine/internal/completion"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/crypto"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/embedding"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/observability"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/sse"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/storage"
)

// Default and bounds for the retrieval depth.
const (
	DefaultK = 8
	MinK     = 1
	MaxK     = 32
)

// Searcher is the slice of the chunk repository the pipeline needs.
type Searcher interface {
	Search(ctx context.Context, orgID string, queryVector []float32, k int) ([]storage.SearchResult, error)
}

// DocumentGetter resolves document metadata for headers and citations.
type DocumentGetter interface {
	GetByID(ctx context.Context, orgID, docID string) (*storage.Document, error)
}

// Options are the per-request knobs.
type Options struct {
	K             int
	FastMode      bool
	Citations     bool
	CorrelationID string
}

// Config holds pipeline-wide settings.
type Config struct {
	ContextBudget int
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration
}

// Pipeline answers questions against one organization's indexed chunks.
type Pipeline struct {
	logger    *observability.Logger
	metrics   *observability.Metrics
	embedder  embedding.Embedder
	completer completion.Completer
	search    Searcher
	docs      DocumentGetter
	vault     *crypto.KeyVault
	cfg       Config
}

// NewPipeline wires the query stages together.
func NewPipeline(
	logger *observability.Logger,
	metrics *observability.Metrics,
	embedder embedding.Embedder,
	completer completion.Completer,
	search Searcher,
	docs DocumentGetter,
	vault *crypto.KeyVault,
	cfg Config,
) *Pipeline {
	if logger == nil {
		logger = observability.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = 12000
	}
	return &Pipeline{
		logger:    logger,
		metrics:   metrics,
		embedder:  embedder,
		completer: completer,
		search:    search,
		docs:      docs,
		vault:     vault,
		cfg:       cfg,
	}
}

// Run streams one answer onto emit. Failures after the stream has opened
// become error events; the returned error is for logging only.
func (p *Pipeline) Run(ctx context.Context, orgID, message string, opts Options, emit sse.Emitter) error {
	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.QueryDuration.Observe(time.Since(start).Seconds())
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	log := p.logger.WithOrg(orgID)
	if opts.CorrelationID != "" {
		log = log.WithCorrelation(opts.CorrelationID)
	}

	conversationID := uuid.NewString()
	if err := emit.Emit(sse.Start(conversationID)); err != nil {
		return err
	}

	k := opts.K
	if k == 0 {
		k = DefaultK
	}
	if k < MinK {
		k = MinK
	}
	if k > MaxK {
		k = MaxK
	}

	queryVector, err := p.embedder.EmbedQuery(ctx, message)
	if err != nil {
		return p.fail(log, emit, "embedding the question failed", err)
	}

	results, err := p.search.Search(ctx, orgID, queryVector, k)
	if err != nil {
		return p.fail(log, emit, "retrieval failed", err)
	}

	chunks, meta, err := p.decryptResults(ctx, orgID, results, log)
	if err != nil {
		return p.fail(log, emit, "decryption failed", err)
	}

	if len(chunks) == 0 {
		// Nothing usable; the provider is never called.
		if err := emit.Emit(sse.Token(NoInformationSentence)); err != nil {
			return err
		}
		return emit.Emit(sse.Done())
	}

	contextBlock := buildContext(chunks, meta, p.cfg.ContextBudget)
	messages := []completion.Message{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: userPrompt(contextBlock, message)},
	}

	tier := completion.TierQuality
	if opts.FastMode {
		tier = completion.TierFast
	}

	filter := &ThinkFilter{}
	var answer strings.Builder
	var emitErr error

	streamErr := p.completer.Stream(ctx, messages, completion.Options{
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
		Tier:        tier,
	}, func(token string) error {
		visible := filter.Feed(token)
		if visible == "" {
			return nil
		}
		answer.WriteString(visible)
		if err := emit.Emit(sse.Token(visible)); err != nil {
			emitErr = err
			return err
		}
		return nil
	})

	if emitErr != nil {
		// Client went away; tear down silently.
		return emitErr
	}
	if streamErr != nil {
		return p.fail(log, emit, "completion failed", streamErr)
	}

	if tail := filter.Flush(); tail != "" {
		answer.WriteString(tail)
		if err := emit.Emit(sse.Token(tail)); err != nil {
			return err
		}
	}

	if opts.Citations && !isNoInformation(answer.String()) {
		if err := emit.Emit(sse.Citations(buildCitations(chunks, meta))); err != nil {
			return err
		}
	}

	usage := sse.Usage(
		estimateTokens(SystemPrompt)+estimateTokens(userPrompt(contextBlock, message)),
		estimateTokens(answer.String()),
		p.completer.Name(),
	)
	if err := emit.Emit(usage); err != nil {
		return err
	}

	log.Info().
		Int("chunks", len(chunks)).
		Int("answer_chars", answer.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("Query answered")

	return emit.Emit(sse.Done())
}

// decryptResults unwraps the org DEK and decrypts each result, skipping
// chunks that fail the integrity check.
func (p *Pipeline) decryptResults(ctx context.Context, orgID string, results []storage.SearchResult, log *observability.Logger) ([]retrieved, map[string]docMeta, error) {
	if len(results) == 0 {
		return nil, nil, nil
	}

	dek, err := p.vault.Get(ctx, orgID)
	if err != nil {
		if errors.Is(err, crypto.ErrKeyNotFound) {
			// Rows exist but the key is gone; nothing is readable.
			log.Warn().Int("rows", len(results)).Msg("Chunks present but org key missing")
			return nil, nil, nil
		}
		return nil, nil, err
	}

	chunks := make([]retrieved, 0, len(results))
	meta := make(map[string]docMeta)

	for _, res := range results {
		plaintext, err := crypto.Decrypt(res.Row.Ciphertext, res.Row.Nonce, dek, res.Row.AAD)
		if err != nil {
			log.Warn().
				Int64("chunk_id", res.Row.ID).
				Str("document_id", res.Row.DocumentID).
				Int("chunk_index", res.Row.ChunkIndex).
				Err(err).
				Msg("Skipping chunk that failed integrity check")
			continue
		}

		chunks = append(chunks, retrieved{row: res.Row, text: string(plaintext), similarity: res.Similarity})

		if _, ok := meta[res.Row.DocumentID]; !ok {
			m := docMeta{}
			if doc, docErr := p.docs.GetByID(ctx, orgID, res.Row.DocumentID); docErr == nil {
				m.title = doc.Filename
				m.fileType = doc.FileType
			}
			meta[res.Row.DocumentID] = m
		}
	}

	return chunks, meta, nil
}

// buildCitations orders sources by score descending.
func buildCitations(chunks []retrieved, meta map[string]docMeta) []sse.Citation {
	items := make([]sse.Citation, 0, len(chunks))
	for _, c := range chunks {
		item := sse.Citation{
			DocumentID:    c.row.DocumentID,
			DocumentTitle: meta[c.row.DocumentID].title,
			ChunkIndex:    c.row.ChunkIndex,
			Score:         c.similarity,
		}
		if c.row.Section != nil {
			item.Section = *c.row.Section
		}
		if c.row.Page != nil {
			item.Page = *c.row.Page
		}
		items = append(items, item)
	}
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].Score > items[j-1].Score; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
	return items
}

func (p *Pipeline) fail(log *observability.Logger, emit sse.Emitter, message string, err error) error {
	log.Error().Err(err).Msg("Query pipeline failed")
	if emitErr := emit.Emit(sse.Error(message)); emitErr != nil {
		return emitErr
	}
	return fmt.Errorf("%s: %w", message, err)
}

// estimateTokens approximates provider token counts from byte length.
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	n := len(s) / 4
	if n == 0 {
		n = 1
	}
	return n
}
