// ABOUTME: HTTP API handlers for conversations and messages
// ABOUTME: JSON endpoints plus an SSE stream backed by a live conversation session

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/skillswap/chatd/internal/auth"
	"github.com/skillswap/chatd/internal/chat"
	"github.com/skillswap/chatd/internal/profile"
	"github.com/skillswap/chatd/internal/store"
)

// OpenConversationRequest is the JSON request body for POST /api/conversations.
type OpenConversationRequest struct {
	PeerID string `json:"peer_id"`
}

// SendMessageRequest is the JSON request body for POST /api/conversations/{id}/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// ConversationResponse is the JSON representation of one conversation.
type ConversationResponse struct {
	ID          string           `json:"id"`
	Counterpart *profile.Summary `json:"counterpart"`
	CreatedAt   string           `json:"created_at"`
	UpdatedAt   string           `json:"updated_at"`
}

// ListConversationsResponse is the JSON response for GET /api/conversations.
type ListConversationsResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

// MessageResponse is the JSON representation of one message.
type MessageResponse struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
	IsRead         bool   `json:"is_read"`
	CreatedAt      string `json:"created_at"`
}

// MessagesResponse is the JSON response for GET /api/conversations/{id}/messages.
type MessagesResponse struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []MessageResponse `json:"messages"`
}

// MarkReadResponse is the JSON response for POST /api/conversations/{id}/read.
type MarkReadResponse struct {
	Marked int64 `json:"marked"`
}

func conversationResponse(conv *store.Conversation, counterpart *profile.Summary) ConversationResponse {
	return ConversationResponse{
		ID:          conv.ID,
		Counterpart: counterpart,
		CreatedAt:   conv.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:   conv.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func messageResponse(msg *store.Message) MessageResponse {
	return MessageResponse{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		IsRead:         msg.IsRead,
		CreatedAt:      msg.CreatedAt.Format(time.RFC3339Nano),
	}
}

// handleConversations routes /api/conversations by HTTP method.
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListConversations(w, r)
	case http.MethodPost:
		s.handleOpenConversation(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleOpenConversation handles POST /api/conversations.
// Opening a conversation with a peer is idempotent: both participants, in
// either order, land on the same conversation.
func (s *Server) handleOpenConversation(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustUserFromContext(r.Context())

	var req OpenConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PeerID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "peer_id is required")
		return
	}

	conv, counterpart, err := s.chat.FindOrCreate(r.Context(), userID, req.PeerID)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrSelfConversation):
			s.sendJSONError(w, http.StatusBadRequest, "cannot open a conversation with yourself")
		case errors.Is(err, chat.ErrEmptyUserID):
			s.sendJSONError(w, http.StatusBadRequest, "peer_id is required")
		default:
			s.logger.Error("failed to open conversation", "error", err)
			s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conversationResponse(conv, counterpart))
}

// handleListConversations handles GET /api/conversations.
// Conversations are ordered by recent activity, most recent first.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID := auth.MustUserFromContext(r.Context())

	entries, err := s.chat.ListConversations(r.Context(), userID)
	if err != nil {
		s.logger.Error("failed to list conversations", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := ListConversationsResponse{
		Conversations: make([]ConversationResponse, len(entries)),
	}
	for i, e := range entries {
		response.Conversations[i] = conversationResponse(e.Conversation, e.Counterpart)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleConversationRoutes dispatches /api/conversations/{id}[/...] paths.
func (s *Server) handleConversationRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	if rest == "" {
		s.sendJSONError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}

	convID, sub, _ := strings.Cut(rest, "/")
	if convID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}

	switch sub {
	case "":
		s.handleConversation(w, r, convID)
	case "messages":
		s.handleMessages(w, r, convID)
	case "read":
		s.handleMarkRead(w, r, convID)
	case "stream":
		s.handleStream(w, r, convID)
	default:
		s.sendJSONError(w, http.StatusNotFound, "not found")
	}
}

// handleConversation handles GET and DELETE on /api/conversations/{id}.
func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request, convID string) {
	userID := auth.MustUserFromContext(r.Context())

	switch r.Method {
	case http.MethodGet:
		conv, err := s.chat.GetConversation(r.Context(), convID, userID)
		if err != nil {
			s.sendChatError(w, err, "failed to get conversation")
			return
		}
		counterpart := s.chat.Counterpart(r.Context(), conv, userID)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(conversationResponse(conv, counterpart))

	case http.MethodDelete:
		if err := s.chat.Delete(r.Context(), convID, userID); err != nil {
			s.sendChatError(w, err, "failed to delete conversation")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleMessages handles GET and POST on /api/conversations/{id}/messages.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, convID string) {
	userID := auth.MustUserFromContext(r.Context())

	switch r.Method {
	case http.MethodGet:
		messages, err := s.chat.History(r.Context(), convID, userID)
		if err != nil {
			s.sendChatError(w, err, "failed to load messages")
			return
		}

		// Optional ?limit=N keeps only the most recent N, still ascending
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			limit, err := strconv.Atoi(limitStr)
			if err != nil || limit < 1 {
				s.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			if limit < len(messages) {
				messages = messages[len(messages)-limit:]
			}
		}

		response := MessagesResponse{
			ConversationID: convID,
			Messages:       make([]MessageResponse, len(messages)),
		}
		for i, msg := range messages {
			response.Messages[i] = messageResponse(msg)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)

	case http.MethodPost:
		var req SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.sendTimeout)
		defer cancel()

		msg, err := s.chat.SendMessage(ctx, convID, userID, req.Content)
		if err != nil {
			if errors.Is(err, chat.ErrEmptyMessage) {
				s.sendJSONError(w, http.StatusBadRequest, "content is required")
				return
			}
			s.sendChatError(w, err, "failed to send message")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(messageResponse(msg))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleMarkRead handles POST /api/conversations/{id}/read.
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request, convID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID := auth.MustUserFromContext(r.Context())

	marked, err := s.chat.MarkRead(r.Context(), convID, userID)
	if err != nil {
		s.sendChatError(w, err, "failed to mark conversation read")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(MarkReadResponse{Marked: marked})
}

// sendChatError maps chat service errors to HTTP status codes.
func (s *Server) sendChatError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.sendJSONError(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, chat.ErrNotParticipant):
		s.sendJSONError(w, http.StatusForbidden, "not a participant")
	case errors.Is(err, context.DeadlineExceeded):
		s.sendJSONError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		s.logger.Error(logMsg, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (s *Server) writeSSEEvent(w http.ResponseWriter, event string, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
