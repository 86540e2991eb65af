package assistant

import (
	"context"

	"threadline/internal/domain/streamevent"
)

// Finish reasons a runtime may report.
const (
	FinishStop      = "stop"
	FinishLength    = "length"
	FinishCancelled = "cancelled"
	FinishError     = "error"
)

// PromptMessage is one entry of the assembled thread context.
type PromptMessage struct {
	Role    string
	Content string
}

// Request asks a runtime for a reply.
type Request struct {
	ConversationID string
	MessageID      string
	Messages       []PromptMessage
	// Metadata["model"] selects the model; empty falls back to the configured default.
	Metadata map[string]string
}

// Model returns the requested model name.
func (r Request) Model() string {
	return r.Metadata["model"]
}

// EstimatePromptTokens approximates prompt size at four characters per token. It stands in
// until a backend reports usage.
func EstimatePromptTokens(messages []PromptMessage) int {
	n := 0
	for _, m := range messages {
		n += len(m.Content) / 4
	}
	return n
}

// Chunk is one partial completion. Usage is set only when the backend reports it.
type Chunk struct {
	Delta        string
	Cumulative   string
	FinishReason string
	Usage        *streamevent.Usage
}

// Stream yields chunks until io.EOF. Recv must return promptly once ctx is done.
// PromptTokens may change as chunks arrive; its value after io.EOF is final.
type Stream interface {
	Recv(ctx context.Context) (Chunk, error)
	PromptTokens() int
	Close() error
}

// Runtime starts reply generations. Implementations never retry silently.
type Runtime interface {
	StreamReply(ctx context.Context, req Request) (Stream, error)
}
