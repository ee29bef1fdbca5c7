package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// GenerateOptions carries per-call sampling settings.
type GenerateOptions struct {
	Temperature float32
}

type Client interface {
	Generate(ctx context.Context, messages []Message, opts GenerateOptions) (Response, error)
}

// Stream yields assistant text fragments. Recv returns io.EOF once the
// upstream terminator has been received.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Streamer is implemented by clients that can deliver a reply incrementally.
type Streamer interface {
	Stream(ctx context.Context, messages []Message, opts GenerateOptions) (Stream, error)
}

// ModelNamer is implemented by clients that know which model they call.
type ModelNamer interface {
	Model() string
}

// ModelName reports the model c calls, or fallback when c does not say.
func ModelName(c Client, fallback string) string {
	if n, ok := c.(ModelNamer); ok && n.Model() != "" {
		return n.Model()
	}
	return fallback
}
