// Package completion streams chat completions from pluggable providers
// with silent failover between them.
package completion

import (
	"context"
	"errors"
)

// ErrUnavailable indicates every configured provider failed before
// emitting a token.
var ErrUnavailable = errors.New("completion providers unavailable")

// Tier selects the model class within a provider.
type Tier string

const (
	TierFast    Tier = "fast"
	TierQuality Tier = "quality"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Options control a single completion call.
type Options struct {
	Temperature float64
	MaxTokens   int
	Tier        Tier
}

// TokenFunc receives ordered text fragments as the provider emits them.
// Returning an error aborts the stream.
type TokenFunc func(token string) error

// Completer streams a chat completion, invoking onToken for each text
// fragment in order.
type Completer interface {
	Stream(ctx context.Context, messages []Message, opts Options, onToken TokenFunc) error
	Name() string
}
