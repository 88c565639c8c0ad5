// ABOUTME: SSE streaming endpoint backed by a live conversation session
// ABOUTME: Streams the history snapshot, then appended/confirmed/removed list updates

package api

import (
	"net/http"

	"github.com/skillswap/chatd/internal/auth"
	"github.com/skillswap/chatd/internal/chat"
)

// StreamMessage is the JSON payload of message-carrying SSE events.
type StreamMessage struct {
	Message MessageResponse `json:"message"`
	TempID  string          `json:"temp_id,omitempty"`
}

// SnapshotEvent is the JSON payload of the initial "snapshot" SSE event.
type SnapshotEvent struct {
	ConversationID string            `json:"conversation_id"`
	Messages       []MessageResponse `json:"messages"`
}

// handleStream handles GET /api/conversations/{id}/stream.
// It opens a conversation session for the authenticated user (which marks
// pending messages read) and streams the history snapshot followed by
// every list update until the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, convID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID := auth.MustUserFromContext(r.Context())

	// Check streaming support before opening the session (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sess, err := s.chat.OpenSession(r.Context(), convID, userID, chat.WithSendTimeout(s.sendTimeout))
	if err != nil {
		s.sendChatError(w, err, "failed to open session")
		return
	}
	defer sess.Close()

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	snapshot := sess.Messages()
	snapshotEvent := SnapshotEvent{
		ConversationID: convID,
		Messages:       make([]MessageResponse, len(snapshot)),
	}
	for i := range snapshot {
		snapshotEvent.Messages[i] = messageResponse(&snapshot[i])
	}
	s.writeSSEEvent(w, "snapshot", snapshotEvent)
	flusher.Flush()

	s.streamUpdates(r, w, flusher, sess)
}

// streamUpdates forwards session list updates as SSE events until the
// client disconnects or the session closes.
func (s *Server) streamUpdates(r *http.Request, w http.ResponseWriter, flusher http.Flusher, sess *chat.Session) {
	for {
		select {
		case <-r.Context().Done():
			return

		case update, ok := <-sess.Updates():
			if !ok {
				return
			}

			payload := StreamMessage{
				Message: messageResponse(&update.Message),
				TempID:  update.TempID,
			}
			s.writeSSEEvent(w, string(update.Type), payload)
			flusher.Flush()
		}
	}
}
