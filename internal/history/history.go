// Package history keeps short-lived conversation history per session key.
package history

import (
	"sync"
	"time"

	"chat-relay/internal/llm"
)

type session struct {
	messages  []llm.Message
	lastWrite time.Time
}

// Store maps session keys to their recent messages. The system prompt is
// never stored here. Sessions idle for longer than ttl are invisible to Get
// and removed by Expire.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
	limit    int
	ttl      time.Duration
	now      func() time.Time
}

type Option func(*Store)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(limit int, ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*session),
		limit:    limit,
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a copy of the session history, oldest first.
func (s *Store) Get(key string) []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key]
	if !ok || s.expired(sess, s.now()) {
		return []llm.Message{}
	}
	out := make([]llm.Message, len(sess.messages))
	copy(out, sess.messages)
	return out
}

func (s *Store) AppendUser(key, content string) {
	s.append(key, llm.Message{Role: llm.RoleUser, Content: content})
}

func (s *Store) AppendAssistant(key, content string) {
	s.append(key, llm.Message{Role: llm.RoleAssistant, Content: content})
}

func (s *Store) append(key string, msg llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	sess, ok := s.sessions[key]
	if !ok || s.expired(sess, now) {
		sess = &session{}
		s.sessions[key] = sess
	}
	sess.messages = append(sess.messages, msg)
	if s.limit > 0 && len(sess.messages) > s.limit {
		// Copy so the dropped prefix can be collected.
		trimmed := make([]llm.Message, s.limit)
		copy(trimmed, sess.messages[len(sess.messages)-s.limit:])
		sess.messages = trimmed
	}
	sess.lastWrite = now
}

// Clear empties the history but keeps the key alive.
func (s *Store) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key] = &session{lastWrite: s.now()}
}

// Expire drops every session whose last write is older than the TTL and
// reports how many were removed.
func (s *Store) Expire() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for key, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed
}

// Len is the number of sessions currently held, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) expired(sess *session, now time.Time) bool {
	return s.ttl > 0 && now.Sub(sess.lastWrite) > s.ttl
}
