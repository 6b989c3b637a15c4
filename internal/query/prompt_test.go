package query

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covalent-ai/covalent/libs/rag-engine/internal/storage"
)

func TestTruncateAtRuneKeepsValidUTF8(t *testing.T) {
	// "é" is 2 bytes; cutting at 3 would land inside the second rune.
	s := "aéé"
	for n := 0; n <= len(s); n++ {
		cut := truncateAtRune(s, n)
		assert.True(t, utf8.ValidString(cut), "cut at %d produced %q", n, cut)
		assert.LessOrEqual(t, len(cut), n)
	}
	assert.Equal(t, "a", truncateAtRune("aéé", 2))
	assert.Equal(t, "aé", truncateAtRune("aéé", 3))
	assert.Equal(t, "aéé", truncateAtRune("aéé", 100))
}

func TestBuildContextTruncationPreservesUTF8(t *testing.T) {
	// Multi-byte text long enough to force per-chunk truncation.
	text := strings.Repeat("日本語のテキスト。", 120)
	require.Greater(t, len(text), truncatedChunkLength)

	chunks := []retrieved{{
		row:        storage.ChunkRow{DocumentID: "doc-a", ChunkIndex: 0},
		text:       text,
		similarity: 0.9,
	}}
	meta := map[string]docMeta{"doc-a": {title: "doc-a.txt", fileType: "text/plain"}}

	ctx := buildContext(chunks, meta, 100)
	assert.True(t, utf8.ValidString(ctx))
	assert.Contains(t, ctx, "...")
	assert.Less(t, len(ctx), len(text))
}

func TestBuildContextWithinBudgetIsNotTruncated(t *testing.T) {
	chunks := []retrieved{{
		row:        storage.ChunkRow{DocumentID: "doc-a", ChunkIndex: 0},
		text:       "short chunk",
		similarity: 0.9,
	}}
	meta := map[string]docMeta{"doc-a": {title: "doc-a.txt"}}

	ctx := buildContext(chunks, meta, 12000)
	assert.Contains(t, ctx, "short chunk")
	assert.NotContains(t, ctx, "...")
}
