package sse

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterFramesEvents(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec, nil)
	require.NoError(t, err)

	require.NoError(t, w.Emit(Token("hello")))
	require.NoError(t, w.Emit(Done()))

	body := rec.Body.String()
	frames := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	require.Len(t, frames, 2)

	for _, frame := range frames {
		assert.True(t, strings.HasPrefix(frame, "data: "), "frame %q", frame)
	}

	var tok TokenEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frames[0], "data: ")), &tok))
	assert.Equal(t, "token", tok.Type)
	assert.Equal(t, "hello", tok.Text)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

func TestWriterEscapesNewlines(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec, nil)
	require.NoError(t, err)

	require.NoError(t, w.Emit(Token("line one\nline two")))

	// One frame only; the newline must live inside the JSON string.
	body := rec.Body.String()
	assert.Equal(t, 1, strings.Count(body, "data: "))

	var tok TokenEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSuffix(strings.TrimPrefix(body, "data: "), "\n\n")), &tok))
	assert.Equal(t, "line one\nline two", tok.Text)
}

func TestEventTypes(t *testing.T) {
	assert.Equal(t, "start", Start("c1").EventType())
	assert.Equal(t, "status", Status("working").EventType())
	assert.Equal(t, "token", Token("t").EventType())
	assert.Equal(t, "citations", Citations(nil).EventType())
	assert.Equal(t, "usage", Usage(1, 2, "m").EventType())
	assert.Equal(t, "done", Done().EventType())
	assert.Equal(t, "error", Error("boom").EventType())
}

func TestStartEventCarriesConversation(t *testing.T) {
	ev := Start("conv-42")
	assert.Equal(t, "conv-42", ev.ConversationID)
	assert.NotEmpty(t, ev.Timestamp)
}

func TestUsageEventKeepsZeroCounts(t *testing.T) {
	data, err := json.Marshal(Usage(0, 0, "model-x"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tokens_input":0`)
	assert.Contains(t, string(data), `"tokens_output":0`)
}

func TestCollectorRecordsSequence(t *testing.T) {
	c := &Collector{}
	require.NoError(t, c.Emit(Start("c")))
	require.NoError(t, c.Emit(Token("x")))
	require.NoError(t, c.Emit(Done()))
	assert.Equal(t, []string{"start", "token", "done"}, c.Types())
}
