package storage

import "time"

// Event is one completed exchange: the caller's prompt and the assistant's
// reply within a session. Failed exchanges are never recorded.
// Events are expected to be appended in chronological order.
type Event struct {
	ID                string    `json:"id"`
	Timestamp         time.Time `json:"timestamp"`
	SessionID         string    `json:"session_id"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response"`
	Streamed          bool      `json:"streamed,omitempty"`
	Model             string    `json:"model,omitempty"`
	TotalTokens       int       `json:"total_tokens,omitempty"`
}

// Recorder abstracts persistence of interaction events.
// LoadInteractions should return events in chronological order.
// AppendInteraction should atomically append a new event.
// Implementations must be safe for concurrent use.
type Recorder interface {
	AppendInteraction(event Event) error
	LoadInteractions() ([]Event, error)
}
