package llm

import (
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// UpstreamError reports a failed call to the completion service: a transport
// failure, a non-2xx status or a payload without the expected reply.
type UpstreamError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// StreamProtocolError describes a single stream payload that could not be
// decoded. It is never fatal to the stream it came from.
type StreamProtocolError struct {
	Payload string
	Err     error
}

func (e *StreamProtocolError) Error() string {
	return fmt.Sprintf("malformed stream fragment %q: %v", truncate(e.Payload, 120), e.Err)
}

func (e *StreamProtocolError) Unwrap() error { return e.Err }

var errEmptyChoices = errors.New("response has no choices")

// upstreamError converts go-openai errors into an UpstreamError, keeping the
// status code and message the service returned.
func upstreamError(err error) *UpstreamError {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{StatusCode: apiErr.HTTPStatusCode, Detail: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := ""
		if reqErr.Err != nil {
			detail = reqErr.Err.Error()
		}
		return &UpstreamError{StatusCode: reqErr.HTTPStatusCode, Detail: detail, Err: err}
	}
	return &UpstreamError{Detail: err.Error(), Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
