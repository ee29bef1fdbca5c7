package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
)

// OpenStream starts a streaming completion. Clients that cannot stream are
// called once and their reply is delivered as a single fragment.
func OpenStream(ctx context.Context, c Client, messages []Message, opts GenerateOptions) (Stream, error) {
	if s, ok := c.(Streamer); ok {
		return s.Stream(ctx, messages, opts)
	}
	resp, err := c.Generate(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	return &replyStream{content: resp.Content}, nil
}

type replyStream struct {
	content string
	sent    bool
}

func (s *replyStream) Recv() (string, error) {
	if s.sent || s.content == "" {
		return "", io.EOF
	}
	s.sent = true
	return s.content, nil
}

func (s *replyStream) Close() error { return nil }

// sseStream adapts a Decoder over an HTTP response body to the Stream
// interface. Malformed fragments are logged and skipped.
type sseStream struct {
	body io.ReadCloser
	dec  *Decoder
	done bool
}

func newSSEStream(body io.ReadCloser) *sseStream {
	return &sseStream{body: body, dec: NewDecoder(body)}
}

func (s *sseStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for {
		f, err := s.dec.Next()
		if errors.Is(err, io.EOF) {
			return "", &UpstreamError{Detail: "stream ended before [DONE]", Err: io.ErrUnexpectedEOF}
		}
		if err != nil {
			return "", &UpstreamError{Detail: err.Error(), Err: fmt.Errorf("read stream: %w", err)}
		}
		switch f.Kind {
		case FragmentDone:
			s.done = true
			return "", io.EOF
		case FragmentMalformed:
			log.Printf("⚠️ skipping stream fragment: %v", f.Err)
			continue
		default:
			return f.Content, nil
		}
	}
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
