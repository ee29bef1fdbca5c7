package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"chat-relay/internal/history"
)

// Server wraps the HTTP listener for the chat endpoint.
type Server struct {
	server    *http.Server
	store     *history.Store
	startTime time.Time
}

func New(addr, chatPath string, chat http.Handler, store *history.Store) *Server {
	s := &Server{store: store, startTime: time.Now()}

	mux := http.NewServeMux()
	mux.Handle(chatPath, chat)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: streamed replies can outlive any fixed budget.
		IdleTimeout: 60 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start blocks until the server stops. A graceful Stop is not an error.
func (s *Server) Start() error {
	log.Printf("🌐 Starting chat relay on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.store.Len(),
		"uptime":   time.Since(s.startTime).Round(time.Second).String(),
	})
}
