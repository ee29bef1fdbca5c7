// Package relay forwards a conversation to the upstream completion service,
// either as one blocking call or as a stream of text fragments.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"chat-relay/internal/llm"
)

type Options struct {
	Temperature       float32
	StreamTemperature float32
}

func DefaultOptions() Options {
	return Options{Temperature: 0.7, StreamTemperature: 0.3}
}

type Relay struct {
	client       llm.Client
	systemPrompt string
	opts         Options
}

func New(client llm.Client, systemPrompt string, opts Options) *Relay {
	return &Relay{client: client, systemPrompt: systemPrompt, opts: opts}
}

// BuildMessages prepends the system prompt to history and appends the new
// user prompt. history is not modified.
func (r *Relay) BuildMessages(history []llm.Message, prompt string) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+2)
	if r.systemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: r.systemPrompt})
	}
	msgs = append(msgs, history...)
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: prompt})
}

// Complete performs a single blocking completion.
func (r *Relay) Complete(ctx context.Context, history []llm.Message, prompt string) (llm.Response, error) {
	resp, err := r.client.Generate(ctx, r.BuildMessages(history, prompt), llm.GenerateOptions{Temperature: r.opts.Temperature})
	if err != nil {
		return llm.Response{}, asUpstream(err)
	}
	return resp, nil
}

// CompleteStreaming forwards every fragment to onChunk as it arrives and
// returns the accumulated reply once the upstream terminator is seen. On any
// failure, including an onChunk error or ctx cancellation, the partial text
// is dropped and the error returned.
func (r *Relay) CompleteStreaming(ctx context.Context, history []llm.Message, prompt string, onChunk func(string) error) (string, error) {
	stream, err := llm.OpenStream(ctx, r.client, r.BuildMessages(history, prompt), llm.GenerateOptions{Temperature: r.opts.StreamTemperature})
	if err != nil {
		return "", asUpstream(err)
	}
	defer stream.Close()

	var reply strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return reply.String(), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if err != nil {
			return "", asUpstream(err)
		}
		if err := onChunk(chunk); err != nil {
			return "", fmt.Errorf("forward fragment: %w", err)
		}
		reply.WriteString(chunk)
	}
}

func asUpstream(err error) error {
	var ue *llm.UpstreamError
	if errors.As(err, &ue) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &llm.UpstreamError{Detail: err.Error(), Err: err}
}
