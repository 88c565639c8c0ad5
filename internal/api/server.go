// ABOUTME: HTTP server wiring for the chatd API
// ABOUTME: Registers authenticated API routes and health endpoints on a ServeMux

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/skillswap/chatd/internal/auth"
	"github.com/skillswap/chatd/internal/chat"
)

// Server holds the HTTP API dependencies.
type Server struct {
	chat        *chat.Service
	verifier    auth.TokenVerifier
	sendTimeout time.Duration
	logger      *slog.Logger
}

// Option tunes server behavior.
type Option func(*Server)

// WithSendTimeout bounds the persist phase of a send, both for POST
// message requests and for sessions opened by the stream endpoint.
func WithSendTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.sendTimeout = d
		}
	}
}

// NewServer creates an API server. Pass nil logger for default.
func NewServer(chatService *chat.Service, verifier auth.TokenVerifier, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		chat:        chatService,
		verifier:    verifier,
		sendTimeout: chat.DefaultSendTimeout,
		logger:      logger.With("component", "api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the ServeMux with all API routes registered. Everything
// under /api requires a valid bearer token; health endpoints do not.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)

	authMiddleware := auth.Middleware(s.verifier)
	mux.Handle("/api/conversations", authMiddleware(http.HandlerFunc(s.handleConversations)))
	mux.Handle("/api/conversations/", authMiddleware(http.HandlerFunc(s.handleConversationRoutes)))

	return mux
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
