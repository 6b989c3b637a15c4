package integration

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covalent-ai/covalent/libs/rag-engine/internal/blob"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/chunk"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/completion"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/crypto"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/embedding"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/extract"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/ingest"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/query"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/sse"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/storage"
)

// countingCompleter counts provider invocations.
type countingCompleter struct {
	inner completion.Completer
	calls atomic.Int64
}

func (c *countingCompleter) Name() string { return c.inner.Name() }

func (c *countingCompleter) Stream(ctx context.Context, messages []completion.Message, opts completion.Options, onToken completion.TokenFunc) error {
	c.calls.Add(1)
	return c.inner.Stream(ctx, messages, opts, onToken)
}

// ragStack is a fully wired engine against a real database.
type ragStack struct {
	pool   *pgxpool.Pool
	docs   *storage.DocumentRepository
	chunks *storage.ChunkRepository
	vault  *crypto.KeyVault
	blobs  *blob.MemStore
	ingest *ingest.Pipeline
}

func newRAGStack(t *testing.T) *ragStack {
	t.Helper()

	pool := startPostgres(t)

	docs := storage.NewDocumentRepository(pool)
	chunks := storage.NewChunkRepository(pool, testDimension)
	keys := storage.NewOrgKeyRepository(pool)

	masterKey := make([]byte, crypto.MasterKeySize)
	for i := range masterKey {
		masterKey[i] = byte(i + 1)
	}
	vault, err := crypto.NewKeyVault(masterKey, keys, nil)
	require.NoError(t, err)

	blobs := blob.NewMemStore()
	chunker := chunk.New(chunk.Config{Size: 200, Overlap: 40})
	embedder := embedding.NewFakeEmbedder(testDimension)

	pipeline := ingest.NewPipeline(nil, nil, docs, chunks, blobs, extract.New(nil), chunker, embedder, vault)

	return &ragStack{
		pool:   pool,
		docs:   docs,
		chunks: chunks,
		vault:  vault,
		blobs:  blobs,
		ingest: pipeline,
	}
}

// queryWith builds a query pipeline around the given completer.
func (s *ragStack) queryWith(completer completion.Completer) *query.Pipeline {
	return query.NewPipeline(
		nil, nil,
		embedding.NewFakeEmbedder(testDimension),
		completer,
		s.chunks,
		s.docs,
		s.vault,
		query.Config{ContextBudget: 12000, MaxTokens: 512},
	)
}

// addDocument registers a document row and its blob.
func (s *ragStack) addDocument(t *testing.T, orgID, docID, path, text string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.docs.Insert(ctx, &storage.Document{
		ID:       docID,
		OrgID:    orgID,
		Filename: path,
		FileType: "text/plain",
		FilePath: path,
	}))
	s.blobs.Put(blob.Ref{OrgID: orgID, DocumentID: docID, Path: path}, []byte(text), "text/plain")
}

func collectTokens(c *sse.Collector) string {
	var sb strings.Builder
	for _, e := range c.Events {
		if tok, ok := e.(sse.TokenEvent); ok {
			sb.WriteString(tok.Text)
		}
	}
	return sb.String()
}

func findCitations(c *sse.Collector) (sse.CitationsEvent, bool) {
	for _, e := range c.Events {
		if cit, ok := e.(sse.CitationsEvent); ok {
			return cit, true
		}
	}
	return sse.CitationsEvent{}, false
}

func TestHappyPathAskWithCitations(t *testing.T) {
	skipUnlessDocker(t)
	stack := newRAGStack(t)
	ctx := context.Background()

	stack.addDocument(t, "org-1", "doc-paris", "docs/paris.txt", "Paris is the capital of France.")
	require.NoError(t, stack.ingest.Run(ctx, "org-1", "doc-paris", false))

	doc, err := stack.docs.GetByID(ctx, "org-1", "doc-paris")
	require.NoError(t, err)
	require.Equal(t, storage.StatusReady, doc.Status)

	completer := &countingCompleter{inner: completion.NewFakeCompleter(
		"Paris is the capital of France according to the indexed document.")}
	pipeline := stack.queryWith(completer)

	collector := &sse.Collector{}
	require.NoError(t, pipeline.Run(ctx, "org-1", "What is the capital of France?", query.Options{Citations: true}, collector))

	types := collector.Types()
	assert.Equal(t, "start", types[0])
	assert.Equal(t, "done", types[len(types)-1])
	assert.Contains(t, collectTokens(collector), "Paris")

	citations, ok := findCitations(collector)
	require.True(t, ok)
	require.Len(t, citations.Items, 1)
	assert.Equal(t, "doc-paris", citations.Items[0].DocumentID)
	assert.Equal(t, int64(1), completer.calls.Load())
}

func TestTenantIsolation(t *testing.T) {
	skipUnlessDocker(t)
	stack := newRAGStack(t)
	ctx := context.Background()

	stack.addDocument(t, "org-1", "doc-paris", "docs/paris.txt", "Paris is the capital of France.")
	require.NoError(t, stack.ingest.Run(ctx, "org-1", "doc-paris", false))

	completer := &countingCompleter{inner: completion.NewFakeCompleter("should never run")}
	pipeline := stack.queryWith(completer)

	collector := &sse.Collector{}
	require.NoError(t, pipeline.Run(ctx, "org-2", "What is the capital of France?", query.Options{Citations: true}, collector))

	assert.Equal(t, []string{"start", "token", "done"}, collector.Types())
	assert.Equal(t, query.NoInformationSentence, collectTokens(collector))
	_, ok := findCitations(collector)
	assert.False(t, ok)
	assert.Zero(t, completer.calls.Load())
}

func TestIntegrityViolationSkipsChunk(t *testing.T) {
	skipUnlessDocker(t)
	stack := newRAGStack(t)
	ctx := context.Background()

	stack.addDocument(t, "org-1", "doc-paris", "docs/paris.txt", "Paris is the capital of France.")
	require.NoError(t, stack.ingest.Run(ctx, "org-1", "doc-paris", false))

	_, err := stack.pool.Exec(ctx, `UPDATE rag_chunks SET aad = 'tampered' WHERE org_id = $1`, "org-1")
	require.NoError(t, err)

	completer := &countingCompleter{inner: completion.NewFakeCompleter("should never run")}
	pipeline := stack.queryWith(completer)

	collector := &sse.Collector{}
	require.NoError(t, pipeline.Run(ctx, "org-1", "What is the capital of France?", query.Options{}, collector))

	assert.Equal(t, query.NoInformationSentence, collectTokens(collector))
	assert.Equal(t, "done", collector.Types()[len(collector.Types())-1])
	assert.Zero(t, completer.calls.Load())
}

func TestIngestionIdempotence(t *testing.T) {
	skipUnlessDocker(t)
	stack := newRAGStack(t)
	ctx := context.Background()

	var sb strings.Builder
	for i := 0; i < 10; i++ {
		sb.WriteString("The quarterly report covers revenue, expenses and forecasts in detail. ")
	}
	stack.addDocument(t, "org-1", "doc-report", "docs/report.txt", sb.String())

	require.NoError(t, stack.ingest.Run(ctx, "org-1", "doc-report", false))
	first := readChunkHashes(t, stack.pool, "org-1", "doc-report")
	require.NotEmpty(t, first)

	require.NoError(t, stack.ingest.Run(ctx, "org-1", "doc-report", true))
	second := readChunkHashes(t, stack.pool, "org-1", "doc-report")

	require.Equal(t, len(first), len(second))
	for idx, hash := range first {
		assert.Equal(t, hash, second[idx], "hash changed for chunk %d", idx)
	}
	// Indices stay dense from zero.
	for i := 0; i < len(second); i++ {
		_, ok := second[i]
		assert.True(t, ok, "missing chunk index %d", i)
	}
}

func readChunkHashes(t *testing.T, pool *pgxpool.Pool, orgID, docID string) map[int]string {
	t.Helper()

	rows, err := pool.Query(context.Background(),
		`SELECT chunk_index, encode(plaintext_sha256, 'hex') FROM rag_chunks WHERE org_id = $1 AND document_id = $2`,
		orgID, docID)
	require.NoError(t, err)
	defer rows.Close()

	hashes := make(map[int]string)
	for rows.Next() {
		var idx int
		var hash string
		require.NoError(t, rows.Scan(&idx, &hash))
		hashes[idx] = hash
	}
	require.NoError(t, rows.Err())
	return hashes
}

func TestProviderFailover(t *testing.T) {
	skipUnlessDocker(t)
	stack := newRAGStack(t)
	ctx := context.Background()

	stack.addDocument(t, "org-1", "doc-paris", "docs/paris.txt", "Paris is the capital of France.")
	require.NoError(t, stack.ingest.Run(ctx, "org-1", "doc-paris", false))

	primary := &completion.FakeCompleter{Fail: errors.New("503 from primary")}
	secondary := completion.NewFakeCompleter("The capital of France is Paris according to the provided context.")
	chain, err := completion.NewChain(nil, primary, secondary)
	require.NoError(t, err)

	pipeline := stack.queryWith(chain)
	collector := &sse.Collector{}
	require.NoError(t, pipeline.Run(ctx, "org-1", "What is the capital of France?", query.Options{}, collector))

	assert.Contains(t, collectTokens(collector), "Paris")
	assert.NotContains(t, collector.Types(), "error")
	assert.Equal(t, "done", collector.Types()[len(collector.Types())-1])
}

// cancellingEmitter cancels the stream after the first token event.
type cancellingEmitter struct {
	sse.Collector
	cancel context.CancelFunc
	seen   bool
}

func (e *cancellingEmitter) Emit(event sse.Event) error {
	if _, ok := event.(sse.TokenEvent); ok && !e.seen {
		e.seen = true
		e.cancel()
	}
	return e.Collector.Emit(event)
}

func TestClientCancellationStopsStream(t *testing.T) {
	skipUnlessDocker(t)
	stack := newRAGStack(t)
	ctx := context.Background()

	stack.addDocument(t, "org-1", "doc-paris", "docs/paris.txt", "Paris is the capital of France.")
	require.NoError(t, stack.ingest.Run(ctx, "org-1", "doc-paris", false))

	pipeline := stack.queryWith(completion.NewFakeCompleter(
		"A long answer with many tokens that keeps streaming for a while and a while more."))

	queryCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	emitter := &cancellingEmitter{cancel: cancel}

	done := make(chan error, 1)
	go func() {
		done <- pipeline.Run(queryCtx, "org-1", "What is the capital of France?", query.Options{}, emitter)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("pipeline did not stop within 1s of cancellation")
	}
}
