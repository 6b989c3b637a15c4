package completion

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

// OpenAIClient streams chat completions from an OpenAI-compatible
// /chat/completions endpoint (OpenAI, Groq, Mistral, local inference
// servers).
type OpenAIClient struct {
	httpClient        *http.Client
	name              string
	baseURL           string
	apiKey            string
	fastModel         string
	qualityModel      string
	callTimeout       time.Duration
	inactivityTimeout time.Duration
}

// OpenAIConfig holds configuration for an OpenAI-compatible provider.
type OpenAIConfig struct {
	Name              string
	Endpoint          string
	APIKey            string
	FastModel         string
	QualityModel      string
	CallTimeout       time.Duration
	InactivityTimeout time.Duration
}

// NewOpenAIClient creates a streaming client for an OpenAI-compatible API.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("completion endpoint is required")
	}
	if cfg.QualityModel == "" {
		return nil, fmt.Errorf("completion quality model is required")
	}

	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	fastModel := cfg.FastModel
	if fastModel == "" {
		fastModel = cfg.QualityModel
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 60 * time.Second
	}
	inactivity := cfg.InactivityTimeout
	if inactivity <= 0 {
		inactivity = 30 * time.Second
	}

	return &OpenAIClient{
		// No client-level timeout; streaming reads outlive any fixed
		// request budget. Deadlines come from the context.
		httpClient:        &http.Client{},
		name:              name,
		baseURL:           strings.TrimSuffix(cfg.Endpoint, "/"),
		apiKey:            cfg.APIKey,
		fastModel:         fastModel,
		qualityModel:      cfg.QualityModel,
		callTimeout:       callTimeout,
		inactivityTimeout: inactivity,
	}, nil
}

// ChatRequest is the OpenAI-compatible request body.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// ChatResponse is one streamed response frame.
type ChatResponse struct {
	ID      string       `json:"id"`
	Choices []ChatChoice `json:"choices"`
}

// ChatChoice is a single completion choice.
type ChatChoice struct {
	Delta        ChatDelta `json:"delta"`
	FinishReason string    `json:"finish_reason"`
}

// ChatDelta is a message fragment in a streaming response.
type ChatDelta struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string { return c.name }

// Stream sends the chat request and forwards each SSE token to onToken.
// The stream aborts when the call deadline passes or no token arrives
// within the inactivity window.
func (c *OpenAIClient) Stream(ctx context.Context, messages []Message, opts Options, onToken TokenFunc) error {
	model := c.qualityModel
	if opts.Tier == TierFast {
		model = c.fastModel
	}

	body, err := json.Marshal(ChatRequest{
		Model:       model,
		Messages:    messages,
		Stream:      true,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	// Inactivity watchdog. The cancel unblocks the body read.
	watchdog := time.AfterFunc(c.inactivityTimeout, cancel)
	defer watchdog.Stop()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return nil
		}

		var frame ChatResponse
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			// Keep-alive or malformed frame, skip.
			continue
		}
		if len(frame.Choices) == 0 {
			continue
		}

		choice := frame.Choices[0]
		if choice.Delta.Content != "" {
			watchdog.Reset(c.inactivityTimeout)
			if err := onToken(choice.Delta.Content); err != nil {
				return err
			}
		}
		if choice.FinishReason != "" {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("stream interrupted: %w", ctx.Err())
		}
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

var _ Completer = (*OpenAIClient)(nil)
