package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to any OpenAI-compatible chat completion API
// (DeepSeek, OpenAI, OpenRouter).
type OpenAIClient struct {
	client     *openai.Client
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

type headerTransport struct {
	rt      http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone request to avoid mutating the original
	cl := req.Clone(req.Context())
	for k, vs := range t.headers {
		for _, v := range vs {
			cl.Header.Add(k, v)
		}
	}
	return t.rt.RoundTrip(cl)
}

func NewOpenAI(apiKey, baseURL, model, referrer, title string) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	httpClient := &http.Client{}
	// Inject optional headers (useful for OpenRouter)
	if referrer != "" || title != "" {
		h := http.Header{}
		if referrer != "" {
			h.Set("HTTP-Referer", referrer)
		}
		if title != "" {
			h.Set("X-Title", title)
		}
		httpClient.Transport = headerTransport{rt: http.DefaultTransport, headers: h}
	}
	config.HTTPClient = httpClient
	return &OpenAIClient{
		client:     openai.NewClientWithConfig(config),
		httpClient: httpClient,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		apiKey:     apiKey,
		model:      model,
	}
}

func (c *OpenAIClient) Model() string { return c.model }

func (c *OpenAIClient) request(messages []Message, opts GenerateOptions) openai.ChatCompletionRequest {
	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    oaMsgs,
		Temperature: opts.Temperature,
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, messages []Message, opts GenerateOptions) (Response, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.request(messages, opts))
	if err != nil {
		return Response{}, fmt.Errorf("failed to create chat completion: %w", upstreamError(err))
	}
	if len(resp.Choices) == 0 {
		return Response{}, &UpstreamError{StatusCode: http.StatusOK, Detail: errEmptyChoices.Error(), Err: errEmptyChoices}
	}

	out := Response{
		Content: resp.Choices[0].Message.Content,
		Model:   c.model,
	}
	if resp.Model != "" {
		out.Model = resp.Model
	}
	out.PromptTokens = resp.Usage.PromptTokens
	out.CompletionTokens = resp.Usage.CompletionTokens
	out.TotalTokens = resp.Usage.TotalTokens
	return out, nil
}

// Stream posts a streaming completion request and returns the decoded
// fragment stream. The caller must Close it; cancelling ctx aborts the read.
func (c *OpenAIClient) Stream(ctx context.Context, messages []Message, opts GenerateOptions) (Stream, error) {
	req := c.request(messages, opts)
	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode stream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Detail: err.Error(), Err: fmt.Errorf("send stream request: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Detail:     strings.TrimSpace(string(detail)),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	return newSSEStream(resp.Body), nil
}
