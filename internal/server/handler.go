package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"chat-relay/internal/history"
	"chat-relay/internal/llm"
	"chat-relay/internal/relay"
	"chat-relay/internal/storage"
)

const (
	apiKeyVar       = "DEEPSEEK_API_KEY"
	maxRequestBytes = 1 << 20
)

// sessionKey accepts both JSON strings and numbers, since older widgets send
// a numeric conversationId.
type sessionKey string

func (k *sessionKey) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*k = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*k = sessionKey(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("session id must be a string or number: %w", err)
	}
	*k = sessionKey(n.String())
	return nil
}

type ChatRequest struct {
	Prompt         string     `json:"prompt"`
	Stream         bool       `json:"stream"`
	SessionID      sessionKey `json:"sessionId"`
	ConversationID sessionKey `json:"conversationId"`
	ClearHistory   bool       `json:"clearHistory"`
}

// key returns the caller's session key or a freshly generated one.
func (r ChatRequest) key() string {
	if k := strings.TrimSpace(string(r.SessionID)); k != "" {
		return k
	}
	if k := strings.TrimSpace(string(r.ConversationID)); k != "" {
		return k
	}
	return history.NewKey()
}

type usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

type ChatResponse struct {
	Reply          string `json:"reply"`
	SessionID      string `json:"sessionId"`
	ConversationID string `json:"conversationId"`
	Model          string `json:"model,omitempty"`
	MessageCount   int    `json:"messageCount"`
	Usage          usage  `json:"usage"`
}

type contentFrame struct {
	Content string `json:"content"`
}

type sessionFrame struct {
	SessionID      string `json:"sessionId"`
	ConversationID string `json:"conversationId"`
}

// ChatHandler serves the single chat endpoint. Session history is written
// only after the upstream call succeeded.
type ChatHandler struct {
	store    *history.Store
	relay    *relay.Relay
	recorder storage.Recorder
	apiKey   string
	model    string
	now      func() time.Time
}

// NewChatHandler wires the endpoint. rec may be nil.
func NewChatHandler(store *history.Store, r *relay.Relay, rec storage.Recorder, apiKey, model string) *ChatHandler {
	return &ChatHandler{
		store:    store,
		relay:    r,
		recorder: rec,
		apiKey:   apiKey,
		model:    model,
		now:      time.Now,
	}
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed, use POST"})
		return
	}

	if h.apiKey == "" {
		log.Printf("❌ %s is not configured", apiKeyVar)
		h.fail(w, &ConfigError{Var: apiKeyVar})
		return
	}

	req, err := decodeChatRequest(w, r)
	if err != nil {
		h.fail(w, err)
		return
	}

	key := req.key()
	// A requested clear is applied with the reply, so a failed call
	// leaves the stored history as it was.
	var past []llm.Message
	if !req.ClearHistory {
		past = h.store.Get(key)
	}

	if req.Stream {
		h.serveStream(w, r, req, key, past)
		return
	}
	h.serveBlocking(w, r, req, key, past)
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (ChatRequest, error) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		return ChatRequest{}, &ValidationError{Reason: "invalid JSON body: " + err.Error()}
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return ChatRequest{}, &ValidationError{Field: "prompt", Reason: "is required"}
	}
	return req, nil
}

func (h *ChatHandler) serveBlocking(w http.ResponseWriter, r *http.Request, req ChatRequest, key string, past []llm.Message) {
	resp, err := h.relay.Complete(r.Context(), past, req.Prompt)
	if err != nil {
		log.Printf("❌ completion failed for session %s: %v", key, err)
		h.fail(w, err)
		return
	}

	if h.persist(key, req, resp.Content) {
		h.record(storage.Event{
			SessionID:         key,
			UserMessage:       req.Prompt,
			AssistantResponse: resp.Content,
			Model:             resp.Model,
			TotalTokens:       resp.TotalTokens,
		})
	}

	log.Printf("LLM response [session=%s, model=%s, tokens: prompt=%d, completion=%d, total=%d]",
		key, resp.Model, resp.PromptTokens, resp.CompletionTokens, resp.TotalTokens)

	writeJSON(w, http.StatusOK, ChatResponse{
		Reply:          resp.Content,
		SessionID:      key,
		ConversationID: key,
		Model:          resp.Model,
		MessageCount:   len(h.store.Get(key)),
		Usage: usage{
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.CompletionTokens,
			TotalTokens:      resp.TotalTokens,
		},
	})
}

func (h *ChatHandler) serveStream(w http.ResponseWriter, r *http.Request, req ChatRequest, key string, past []llm.Message) {
	out := newEventWriter(w)
	reply, err := h.relay.CompleteStreaming(r.Context(), past, req.Prompt, func(chunk string) error {
		return out.send(contentFrame{Content: chunk})
	})
	if err != nil {
		if r.Context().Err() != nil {
			log.Printf("🔌 caller left session %s mid-stream, nothing stored", key)
			return
		}
		log.Printf("❌ stream failed for session %s: %v", key, err)
		if !out.started {
			h.fail(w, err)
			return
		}
		_, body := envelope(err)
		if werr := out.send(body); werr != nil {
			log.Printf("failed to send stream error frame: %v", werr)
		}
		return
	}

	if h.persist(key, req, reply) {
		h.record(storage.Event{
			SessionID:         key,
			UserMessage:       req.Prompt,
			AssistantResponse: reply,
			Streamed:          true,
			Model:             h.model,
		})
	}

	if err := out.send(sessionFrame{SessionID: key, ConversationID: key}); err != nil {
		log.Printf("failed to send session frame: %v", err)
	}
}

// persist stores one successful exchange. A requested clear happens here;
// an empty reply is not stored. It reports whether the exchange was stored.
func (h *ChatHandler) persist(key string, req ChatRequest, reply string) bool {
	if req.ClearHistory {
		h.store.Clear(key)
	}
	if reply == "" {
		log.Printf("⚠️ empty reply for session %s, exchange not stored", key)
		return false
	}
	h.store.AppendUser(key, req.Prompt)
	h.store.AppendAssistant(key, reply)
	return true
}

func (h *ChatHandler) record(ev storage.Event) {
	if h.recorder == nil {
		return
	}
	ev.Timestamp = h.now().UTC()
	if err := h.recorder.AppendInteraction(ev); err != nil {
		log.Printf("failed to record interaction: %v", err)
	}
}

func (h *ChatHandler) fail(w http.ResponseWriter, err error) {
	status, body := envelope(err)
	writeJSON(w, status, body)
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

// eventWriter emits `data: {...}` frames. Headers are committed on the first
// frame so failures before any output can still be answered with a status.
type eventWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newEventWriter(w http.ResponseWriter) *eventWriter {
	return &eventWriter{w: w, rc: http.NewResponseController(w)}
}

func (e *eventWriter) send(v any) error {
	if !e.started {
		h := e.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		e.w.WriteHeader(http.StatusOK)
		e.started = true
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if err := e.rc.Flush(); err != nil {
		return fmt.Errorf("flush frame: %w", err)
	}
	return nil
}
