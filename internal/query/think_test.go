package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// feedAll pushes tokens through a fresh filter and returns the visible text.
func feedAll(tokens ...string) string {
	f := &ThinkFilter{}
	var out string
	for _, t := range tokens {
		out += f.Feed(t)
	}
	return out + f.Flush()
}

func TestThinkFilterPassThrough(t *testing.T) {
	assert.Equal(t, "plain answer text", feedAll("plain ", "answer ", "text"))
}

func TestThinkFilterStripsWholeBlock(t *testing.T) {
	assert.Equal(t, "Answer.", feedAll("<think>reasoning goes here</think>Answer."))
}

func TestThinkFilterTagSplitAcrossTokens(t *testing.T) {
	assert.Equal(t, "Answer.", feedAll("<thi", "nk>hidden", " more hidden</th", "ink>Answer."))
}

func TestThinkFilterBlockInMiddle(t *testing.T) {
	assert.Equal(t, "Before After", feedAll("Before <think>x</think>After"))
}

func TestThinkFilterUnclosedBlockDropped(t *testing.T) {
	// A stream that ends inside a think block yields nothing further.
	assert.Equal(t, "Start ", feedAll("Start <think>never closed"))
}

func TestThinkFilterPartialTagAtEndFlushed(t *testing.T) {
	// "<thi" could still become an opening tag, so it is held back until
	// Flush proves the stream ended.
	f := &ThinkFilter{}
	assert.Equal(t, "value ", f.Feed("value <thi"))
	assert.Equal(t, "<thi", f.Flush())
}

func TestThinkFilterAngleBracketsKept(t *testing.T) {
	assert.Equal(t, "a < b and x<y>z", feedAll("a < b ", "and x<y>z"))
}

func TestThinkFilterMultipleBlocks(t *testing.T) {
	assert.Equal(t, "one two", feedAll("<think>a</think>one <think>b</think>two"))
}
