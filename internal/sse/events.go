// Package sse implements the wire protocol for streamed answers: one JSON
// object per event, framed as data: <json>\n\n.
package sse

import "time"

// Event is any protocol event. The concrete structs below carry the type
// discriminator in their JSON encoding.
type Event interface {
	EventType() string
}

// StartEvent opens a stream.
type StartEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	Timestamp      string `json:"timestamp"`
}

// StatusEvent carries an optional progress message.
type StatusEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// TokenEvent carries one completion fragment.
type TokenEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Citation points at one source chunk.
type Citation struct {
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	ChunkIndex    int     `json:"chunk_index"`
	Section       string  `json:"section,omitempty"`
	Page          int     `json:"page,omitempty"`
	Score         float64 `json:"score"`
}

// CitationsEvent lists sources ordered by score descending.
type CitationsEvent struct {
	Type  string     `json:"type"`
	Items []Citation `json:"items"`
}

// UsageEvent reports token accounting for the stream.
type UsageEvent struct {
	Type         string `json:"type"`
	TokensInput  int    `json:"tokens_input"`
	TokensOutput int    `json:"tokens_output"`
	Model        string `json:"model"`
}

// DoneEvent terminates a successful stream.
type DoneEvent struct {
	Type string `json:"type"`
}

// ErrorEvent terminates a failed stream.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e StartEvent) EventType() string     { return "start" }
func (e StatusEvent) EventType() string    { return "status" }
func (e TokenEvent) EventType() string     { return "token" }
func (e CitationsEvent) EventType() string { return "citations" }
func (e UsageEvent) EventType() string     { return "usage" }
func (e DoneEvent) EventType() string      { return "done" }
func (e ErrorEvent) EventType() string     { return "error" }

// Start creates a start event stamped with the current UTC time.
func Start(conversationID string) StartEvent {
	return StartEvent{
		Type:           "start",
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
}

// Status creates a status event.
func Status(message string) StatusEvent {
	return StatusEvent{Type: "status", Message: message}
}

// Token creates a token event.
func Token(text string) TokenEvent {
	return TokenEvent{Type: "token", Text: text}
}

// Citations creates a citations event.
func Citations(items []Citation) CitationsEvent {
	return CitationsEvent{Type: "citations", Items: items}
}

// Usage creates a usage event.
func Usage(tokensInput, tokensOutput int, model string) UsageEvent {
	return UsageEvent{Type: "usage", TokensInput: tokensInput, TokensOutput: tokensOutput, Model: model}
}

// Done creates a done event.
func Done() DoneEvent {
	return DoneEvent{Type: "done"}
}

// Error creates an error event.
func Error(message string) ErrorEvent {
	return ErrorEvent{Type: "error", Message: message}
}
