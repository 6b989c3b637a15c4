package completion

import (
	"context"
	"fmt"

	"github.com/covalent-ai/covalent/libs/rag-engine/internal/config"
	"github.com/covalent-ai/covalent/libs/rag-engine/internal/observability"
)

// Chain tries providers in order. A provider that fails before emitting
// any token is skipped silently; once a token has reached the caller the
// stream is committed and failures surface as-is.
type Chain struct {
	providers []Completer
	logger    *observability.Logger
}

// NewChain creates a failover chain over the given providers.
func NewChain(logger *observability.Logger, providers ...Completer) (*Chain, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one completion provider is required")
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Chain{providers: providers, logger: logger}, nil
}

// NewChainFromConfig builds the provider chain described by cfg.
func NewChainFromConfig(cfg config.CompletionConfig, logger *observability.Logger) (*Chain, error) {
	providers := make([]Completer, 0, 1+len(cfg.Fallbacks))

	primary, err := buildProvider(cfg.Primary, cfg)
	if err != nil {
		return nil, fmt.Errorf("primary provider: %w", err)
	}
	providers = append(providers, primary)

	for i, pc := range cfg.Fallbacks {
		p, err := buildProvider(pc, cfg)
		if err != nil {
			return nil, fmt.Errorf("fallback provider %d: %w", i, err)
		}
		providers = append(providers, p)
	}

	return NewChain(logger, providers...)
}

func buildProvider(pc config.CompletionProviderConfig, cfg config.CompletionConfig) (Completer, error) {
	switch pc.Type {
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey:            pc.APIKey,
			Endpoint:          pc.Endpoint,
			FastModel:         pc.FastModel,
			QualityModel:      pc.QualityModel,
			CallTimeout:       cfg.CallTimeout,
			InactivityTimeout: cfg.InactivityTimeout,
		})
	default:
		return NewOpenAIClient(OpenAIConfig{
			Name:              pc.Type,
			Endpoint:          pc.Endpoint,
			APIKey:            pc.APIKey,
			FastModel:         pc.FastModel,
			QualityModel:      pc.QualityModel,
			CallTimeout:       cfg.CallTimeout,
			InactivityTimeout: cfg.InactivityTimeout,
		})
	}
}

// Name returns the name of the first provider in the chain.
func (c *Chain) Name() string { return c.providers[0].Name() }

// Stream runs the failover loop.
func (c *Chain) Stream(ctx context.Context, messages []Message, opts Options, onToken TokenFunc) error {
	var lastErr error

	for _, provider := range c.providers {
		if err := ctx.Err(); err != nil {
			return err
		}

		emitted := false
		err := provider.Stream(ctx, messages, opts, func(token string) error {
			emitted = true
			return onToken(token)
		})
		if err == nil {
			return nil
		}
		if emitted {
			// Tokens already reached the caller; failover would
			// splice two answers together.
			return err
		}

		c.logger.Warn().
			Str("provider", provider.Name()).
			Err(err).
			Msg("completion provider failed before first token, trying next")
		lastErr = err
	}

	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

var _ Completer = (*Chain)(nil)
