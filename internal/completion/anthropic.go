package completion

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient streams completions through the Anthropic Messages API.
type AnthropicClient struct {
	client            anthropic.Client
	fastModel         string
	qualityModel      string
	callTimeout       time.Duration
	inactivityTimeout time.Duration
}

// AnthropicConfig holds configuration for the Anthropic provider.
type AnthropicConfig struct {
	APIKey            string
	Endpoint          string // optional override
	FastModel         string
	QualityModel      string
	CallTimeout       time.Duration
	InactivityTimeout time.Duration
}

// NewAnthropicClient creates an Anthropic streaming client.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if cfg.QualityModel == "" {
		return nil, fmt.Errorf("anthropic quality model is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
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

	return &AnthropicClient{
		client:            anthropic.NewClient(opts...),
		fastModel:         fastModel,
		qualityModel:      cfg.QualityModel,
		callTimeout:       callTimeout,
		inactivityTimeout: inactivity,
	}, nil
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string { return "anthropic" }

// Stream sends the conversation to the Messages API and forwards text
// deltas to onToken. System messages map to the top-level system prompt.
func (c *AnthropicClient) Stream(ctx context.Context, messages []Message, opts Options, onToken TokenFunc) error {
	model := c.qualityModel
	if opts.Tier == TierFast {
		model = c.fastModel
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	var system []anthropic.TextBlockParam
	var turns []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case "assistant":
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	stream := c.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(opts.Temperature),
		System:      system,
		Messages:    turns,
	})
	defer stream.Close()

	watchdog := time.AfterFunc(c.inactivityTimeout, cancel)
	defer watchdog.Stop()

	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text != "" {
					watchdog.Reset(c.inactivityTimeout)
					if err := onToken(delta.Text); err != nil {
						return err
					}
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("stream interrupted: %w", ctx.Err())
		}
		return fmt.Errorf("anthropic stream: %w", err)
	}
	return nil
}

var _ Completer = (*AnthropicClient)(nil)
