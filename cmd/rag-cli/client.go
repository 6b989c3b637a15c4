package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to a running rag-api server.
type Client struct {
	base string
	http *http.Client
}

// NewAPIClient creates a client for the given base URL. Streaming calls
// manage their own deadlines, so the underlying http.Client has none.
func NewAPIClient(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{},
	}
}

// APIError carries a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *Client) decodeError(resp *http.Response) error {
	var body struct {
		Detail string `json:"detail"`
	}
	msg := resp.Status
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err == nil && body.Detail != "" {
		msg = body.Detail
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.decodeError(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Index queues a document for ingestion.
func (c *Client) Index(ctx context.Context, orgID, docID string, force bool) error {
	body := map[string]any{"org_id": orgID, "document_id": docID, "force": force}
	return c.postJSON(ctx, "/rag/index", body, nil)
}

// DocumentStatus is the indexing state of one document.
type DocumentStatus struct {
	OrgID      string `json:"org_id"`
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	IndexedAt  string `json:"indexed_at,omitempty"`
	Chunks     int    `json:"chunks"`
}

// Status fetches a document's indexing state.
func (c *Client) Status(ctx context.Context, orgID, docID string) (*DocumentStatus, error) {
	var out DocumentStatus
	if err := c.getJSON(ctx, fmt.Sprintf("/rag/documents/%s/%s", orgID, docID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health is the server's health report.
type Health struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Database  string            `json:"database"`
	Providers map[string]string `json:"providers"`
}

// CheckHealth fetches the server health report. Degraded responses come
// back with a non-nil report and a nil error.
func (c *Client) CheckHealth(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/rag/health", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out Health
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InvalidateKeys drops cached org keys server-side. Empty orgID means all.
func (c *Client) InvalidateKeys(ctx context.Context, orgID string) error {
	return c.postJSON(ctx, "/rag/admin/keys/invalidate", map[string]string{"org_id": orgID}, nil)
}

// Purge deletes a document's chunk rows and returns how many were removed.
func (c *Client) Purge(ctx context.Context, orgID, docID string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/rag/documents/%s/%s/chunks", c.base, orgID, docID), nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, c.decodeError(resp)
	}

	var out struct {
		ChunksDeleted int64 `json:"chunks_deleted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.ChunksDeleted, nil
}

// AskRequest is one streamed question.
type AskRequest struct {
	OrgID         string `json:"org_id"`
	Message       string `json:"message"`
	K             int    `json:"k,omitempty"`
	FastMode      bool   `json:"fast_mode,omitempty"`
	Citations     *bool  `json:"citations,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// StreamEvent is one decoded SSE frame. Fields are populated per type.
type StreamEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text,omitempty"`
	Message        string `json:"message,omitempty"`
	Items          []struct {
		DocumentID    string  `json:"document_id"`
		DocumentTitle string  `json:"document_title"`
		ChunkIndex    int     `json:"chunk_index"`
		Section       string  `json:"section,omitempty"`
		Page          int     `json:"page,omitempty"`
		Score         float64 `json:"score"`
	} `json:"items,omitempty"`
	TokensInput  int    `json:"tokens_input,omitempty"`
	TokensOutput int    `json:"tokens_output,omitempty"`
	Model        string `json:"model,omitempty"`
}

// Ask streams one answer, invoking onEvent per SSE frame in order.
func (c *Client) Ask(ctx context.Context, ask AskRequest, onEvent func(StreamEvent) error) error {
	payload, err := json.Marshal(ask)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/rag/ask", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			return fmt.Errorf("malformed stream frame: %w", err)
		}
		if err := onEvent(event); err != nil {
			return err
		}
		if event.Type == "done" || event.Type == "error" {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream interrupted: %w", err)
	}
	return nil
}

// WaitForReady polls a document until it leaves the processing states or
// the context expires. onPoll fires after every poll.
func (c *Client) WaitForReady(ctx context.Context, orgID, docID string, interval time.Duration, onPoll func(*DocumentStatus)) (*DocumentStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.Status(ctx, orgID, docID)
		if err != nil {
			return nil, err
		}
		if onPoll != nil {
			onPoll(status)
		}
		if status.Status != "pending" && status.Status != "processing" {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}
