package completion

import (
	"context"
	"strings"
)

// FakeCompleter emits a scripted response split into word tokens. Useful
// for tests and offline development.
type FakeCompleter struct {
	Response string
	Fail     error // returned before any token when set
}

// NewFakeCompleter creates a fake that streams response word by word.
func NewFakeCompleter(response string) *FakeCompleter {
	return &FakeCompleter{Response: response}
}

// Name returns the fake provider name.
func (f *FakeCompleter) Name() string { return "fake" }

// Stream emits the scripted response as whitespace-delimited tokens.
func (f *FakeCompleter) Stream(ctx context.Context, messages []Message, opts Options, onToken TokenFunc) error {
	if f.Fail != nil {
		return f.Fail
	}
	words := strings.Fields(f.Response)
	for i, w := range words {
		if err := ctx.Err(); err != nil {
			return err
		}
		token := w
		if i < len(words)-1 {
			token += " "
		}
		if err := onToken(token); err != nil {
			return err
		}
	}
	return nil
}

var _ Completer = (*FakeCompleter)(nil)
