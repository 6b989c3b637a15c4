package ingest

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covalent-ai/covalent/libs/rag-engine/internal/blob"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/chunk"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/crypto"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/embedding"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/extract"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/jobs"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/observability"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/storage"
)

// syncBuffer guards log writes against the worker goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServiceCarriesCorrelationIntoJobLogs(t *testing.T) {
	masterKey := make([]byte, crypto.MasterKeySize)
	for i := range masterKey {
		masterKey[i] = byte(i)
	}
	vault, err := crypto.NewKeyVault(masterKey, &memKeyStore{keys: make(map[string][]byte)}, nil)
	require.NoError(t, err)

	out := &syncBuffer{}
	logger := observability.NewLogger(observability.LogConfig{Level: "debug", Output: out, ServiceName: "test"})

	docs := newFakeDocStore()
	chunks := newFakeChunkStore()
	blobs := blob.NewMemStore()
	docs.add(&storage.Document{ID: "doc-1", OrgID: "org-1", Filename: "doc-1.txt", FileType: "text/plain"})
	blobs.Put(blob.Ref{OrgID: "org-1", DocumentID: "doc-1"}, []byte("Paris is the capital of France."), "text/plain")

	pipeline := NewPipeline(
		logger, nil,
		docs, chunks, blobs,
		extract.New(nil),
		chunk.New(chunk.Config{Size: 200, Overlap: 40}),
		embedding.NewFakeEmbedder(32),
		vault,
	)

	scheduler := jobs.New(jobs.Config{Workers: 1, QueueSize: 4}, nil, nil)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = scheduler.Stop(ctx)
	}()

	service := NewService(pipeline, scheduler, docs, nil)
	require.NoError(t, service.Submit(context.Background(), "org-1", "doc-1", false, "corr-123"))

	deadline := time.After(5 * time.Second)
	for docs.status("org-1", "doc-1") != storage.StatusReady {
		select {
		case <-deadline:
			t.Fatalf("document never became ready, status %s", docs.status("org-1", "doc-1"))
		case <-time.After(5 * time.Millisecond):
		}
	}

	assert.Contains(t, out.String(), `"correlation_id":"corr-123"`)
	assert.Contains(t, out.String(), "Document ingested")
}

func TestServiceResetsClaimOnFullQueue(t *testing.T) {
	docs := newFakeDocStore()
	docs.add(&storage.Document{ID: "doc-1", OrgID: "org-1"})

	block := make(chan struct{})
	defer close(block)
	scheduler := jobs.New(jobs.Config{Workers: 1, QueueSize: 1}, nil, nil)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = scheduler.Stop(ctx)
	}()

	// Occupy the worker and fill the queue so the real submit overflows.
	blocker := jobs.Job{Name: "blocker", Run: func(ctx context.Context) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}}
	require.NoError(t, scheduler.Submit(blocker))
	deadline := time.After(5 * time.Second)
	for {
		if err := scheduler.Submit(blocker); err == nil {
			select {
			case <-deadline:
				t.Fatal("queue never filled")
			case <-time.After(time.Millisecond):
			}
			continue
		}
		break
	}

	service := NewService(nil, scheduler, docs, nil)
	err := service.Submit(context.Background(), "org-1", "doc-1", false, "")
	assert.ErrorIs(t, err, jobs.ErrBusy)
	assert.Equal(t, storage.StatusPending, docs.status("org-1", "doc-1"))
}
