package relay

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"chat-relay/internal/llm"
)

type fakeLLM struct {
	resp llm.Response
	err  error
	got  []llm.Message
	opts llm.GenerateOptions
}

func (f *fakeLLM) Generate(ctx context.Context, msgs []llm.Message, opts llm.GenerateOptions) (llm.Response, error) {
	f.got = msgs
	f.opts = opts
	return f.resp, f.err
}

type scriptedStream struct {
	chunks []string
	err    error // returned after chunks; nil means clean terminator
	closed bool
}

func (s *scriptedStream) Recv() (string, error) {
	if len(s.chunks) > 0 {
		c := s.chunks[0]
		s.chunks = s.chunks[1:]
		return c, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

type fakeStreamer struct {
	fakeLLM
	stream  *scriptedStream
	openErr error
}

func (f *fakeStreamer) Stream(ctx context.Context, msgs []llm.Message, opts llm.GenerateOptions) (llm.Stream, error) {
	f.got = msgs
	f.opts = opts
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.stream, nil
}

func TestBuildMessages(t *testing.T) {
	r := New(&fakeLLM{}, "be nice", DefaultOptions())
	history := []llm.Message{
		{Role: llm.RoleUser, Content: "q1"},
		{Role: llm.RoleAssistant, Content: "a1"},
	}

	msgs := r.BuildMessages(history, "q2")
	if len(msgs) != 4 {
		t.Fatalf("want 4 messages, got %d", len(msgs))
	}
	if msgs[0].Role != llm.RoleSystem || msgs[0].Content != "be nice" {
		t.Fatalf("system prompt missing: %+v", msgs[0])
	}
	if msgs[3].Role != llm.RoleUser || msgs[3].Content != "q2" {
		t.Fatalf("new prompt missing: %+v", msgs[3])
	}
	if len(history) != 2 {
		t.Fatalf("history modified")
	}

	bare := New(&fakeLLM{}, "", DefaultOptions()).BuildMessages(nil, "hi")
	if len(bare) != 1 || bare[0].Role != llm.RoleUser {
		t.Fatalf("empty system prompt should be omitted: %+v", bare)
	}
}

func TestComplete(t *testing.T) {
	f := &fakeLLM{resp: llm.Response{Content: "una junta es...", Model: "deepseek-chat"}}
	r := New(f, "sys", Options{Temperature: 0.7, StreamTemperature: 0.3})

	resp, err := r.Complete(context.Background(), nil, "¿Qué es una junta de propietarios?")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Content != "una junta es..." {
		t.Fatalf("unexpected reply: %q", resp.Content)
	}
	if f.opts.Temperature != 0.7 {
		t.Fatalf("blocking temperature = %v", f.opts.Temperature)
	}
	if len(f.got) != 2 || f.got[0].Role != llm.RoleSystem {
		t.Fatalf("unexpected upstream messages: %+v", f.got)
	}
}

func TestComplete_WrapsErrors(t *testing.T) {
	r := New(&fakeLLM{err: errors.New("connection refused")}, "", DefaultOptions())

	_, err := r.Complete(context.Background(), nil, "hi")
	var ue *llm.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("want UpstreamError, got %T %v", err, err)
	}
	if ue.Detail != "connection refused" {
		t.Fatalf("detail = %q", ue.Detail)
	}
}

func TestCompleteStreaming_ForwardsAndAccumulates(t *testing.T) {
	s := &scriptedStream{chunks: []string{"Hola", ", ", "vecino"}}
	f := &fakeStreamer{stream: s}
	r := New(f, "sys", DefaultOptions())

	var forwarded []string
	reply, err := r.CompleteStreaming(context.Background(), nil, "hi", func(c string) error {
		forwarded = append(forwarded, c)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if reply != "Hola, vecino" {
		t.Fatalf("reply = %q", reply)
	}
	if strings.Join(forwarded, "|") != "Hola|, |vecino" {
		t.Fatalf("forwarded = %v", forwarded)
	}
	if f.opts.Temperature != 0.3 {
		t.Fatalf("stream temperature = %v", f.opts.Temperature)
	}
	if !s.closed {
		t.Fatalf("stream not closed")
	}
}

func TestCompleteStreaming_FailureDropsPartialReply(t *testing.T) {
	boom := &llm.UpstreamError{Detail: "reset by peer", Err: errors.New("reset")}
	s := &scriptedStream{chunks: []string{"part", "ial"}, err: boom}
	r := New(&fakeStreamer{stream: s}, "", DefaultOptions())

	var forwarded []string
	reply, err := r.CompleteStreaming(context.Background(), nil, "hi", func(c string) error {
		forwarded = append(forwarded, c)
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want upstream error, got %v", err)
	}
	if reply != "" {
		t.Fatalf("partial reply leaked: %q", reply)
	}
	if len(forwarded) != 2 {
		t.Fatalf("partial fragments should still be forwarded, got %v", forwarded)
	}
	if !s.closed {
		t.Fatalf("stream not closed after failure")
	}
}

func TestCompleteStreaming_OpenError(t *testing.T) {
	r := New(&fakeStreamer{openErr: &llm.UpstreamError{StatusCode: 401, Detail: "bad key", Err: errors.New("401")}}, "", DefaultOptions())

	called := false
	_, err := r.CompleteStreaming(context.Background(), nil, "hi", func(string) error {
		called = true
		return nil
	})
	var ue *llm.UpstreamError
	if !errors.As(err, &ue) || ue.StatusCode != 401 {
		t.Fatalf("want 401 UpstreamError, got %v", err)
	}
	if called {
		t.Fatalf("onChunk called without fragments")
	}
}

func TestCompleteStreaming_CallerGone(t *testing.T) {
	s := &scriptedStream{chunks: []string{"a", "b", "c"}}
	r := New(&fakeStreamer{stream: s}, "", DefaultOptions())

	gone := errors.New("client disconnected")
	n := 0
	_, err := r.CompleteStreaming(context.Background(), nil, "hi", func(string) error {
		n++
		if n == 2 {
			return gone
		}
		return nil
	})
	if !errors.Is(err, gone) {
		t.Fatalf("want forward error, got %v", err)
	}
	if n != 2 {
		t.Fatalf("forwarding continued after failure: %d calls", n)
	}
	if !s.closed {
		t.Fatalf("upstream not released")
	}
}

func TestCompleteStreaming_ContextCancelled(t *testing.T) {
	s := &scriptedStream{chunks: []string{"a", "b"}}
	r := New(&fakeStreamer{stream: s}, "", DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	_, err := r.CompleteStreaming(ctx, nil, "hi", func(string) error {
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestCompleteStreaming_NonStreamingClient(t *testing.T) {
	r := New(&fakeLLM{resp: llm.Response{Content: "whole reply"}}, "", DefaultOptions())

	var forwarded []string
	reply, err := r.CompleteStreaming(context.Background(), nil, "hi", func(c string) error {
		forwarded = append(forwarded, c)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if reply != "whole reply" || len(forwarded) != 1 {
		t.Fatalf("reply=%q forwarded=%v", reply, forwarded)
	}
}
