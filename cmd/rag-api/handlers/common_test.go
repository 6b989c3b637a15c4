package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteErrorBodyIsDetailOnly(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusNotFound, "document not found", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"detail": "document not found"}, body)
}

func TestWriteErrorAppendsHint(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusConflict, "document already indexed", "retry with force to re-index")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "document already indexed: retry with force to re-index", body["detail"])
	assert.Len(t, body, 1)
}
