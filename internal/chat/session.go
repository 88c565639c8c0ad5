// ABOUTME: Conversation session holding the active message list for one open conversation
// ABOUTME: Single-writer run loop applies optimistic sends, realtime events, and read marks

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skillswap/chatd/internal/dedupe"
	"github.com/skillswap/chatd/internal/store"
)

// ErrSessionClosed is returned when operating on a closed session
var ErrSessionClosed = errors.New("session closed")

// localIDPrefix namespaces optimistic temporary IDs so they can never
// collide with server-issued UUIDs.
const localIDPrefix = "local-"

// DefaultSendTimeout bounds how long a send may sit in the Persisting
// state before it is treated as failed and its optimistic entry removed.
const DefaultSendTimeout = 10 * time.Second

// seenTTL and seenMax size the per-session duplicate-delivery cache.
const (
	seenTTL   = 10 * time.Minute
	seenMax   = 4096
	updateBuf = 64
)

// UpdateType identifies a session list mutation.
type UpdateType string

const (
	// UpdateAppended: a message was appended to the list (optimistic or realtime).
	UpdateAppended UpdateType = "appended"
	// UpdateConfirmed: an optimistic entry was replaced in place by the stored message.
	UpdateConfirmed UpdateType = "confirmed"
	// UpdateRemoved: an optimistic entry was removed after a failed send.
	UpdateRemoved UpdateType = "removed"
)

// Update describes one mutation of the session's message list, emitted
// for observers (SSE layer, UI bindings).
type Update struct {
	Type    UpdateType
	Message store.Message
	// TempID is the optimistic ID that was confirmed or removed.
	TempID string
}

// Session is the active client-held state for one open conversation:
// the ordered message list, a realtime subscription, and read-receipt
// tracking. All list mutations, whether from sends or from the event
// bus, funnel through a single run loop, so no two updates interleave.
type Session struct {
	svc            *Service
	conversationID string
	userID         string
	sendTimeout    time.Duration
	logger         *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	ops     chan func()
	events  <-chan *store.Message
	seen    *dedupe.Cache
	updates chan Update

	// Owned by the run loop; never touched directly from outside it.
	messages []*store.Message
	pending  map[string]struct{}

	// Serializes Send calls. The optimistic append still happens
	// immediately per call; only the persist phase is serialized.
	sendMu sync.Mutex

	closeOnce sync.Once
}

// SessionOption tunes session behavior.
type SessionOption func(*Session)

// WithSendTimeout overrides the default timeout for the persist phase
// of a send.
func WithSendTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.sendTimeout = d
		}
	}
}

// OpenSession opens a conversation session for userID: it fetches the
// full history (ascending by created_at), marks the counterpart's
// unread messages as read, and subscribes to the event bus. A session
// always derives its state from this fresh fetch, never from a cache.
func (s *Service) OpenSession(ctx context.Context, conversationID, userID string, opts ...SessionOption) (*Session, error) {
	conv, err := s.GetConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	history, err := s.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	// Opening the conversation reads everything the counterpart sent.
	// Best-effort: a failure here is corrected on the next open.
	if _, err := s.store.MarkRead(ctx, conv.ID, userID); err != nil {
		s.logger.Warn("mark read on open failed",
			"conversation_id", conv.ID,
			"error", err)
	} else {
		for _, msg := range history {
			if msg.SenderID != userID {
				msg.IsRead = true
			}
		}
	}

	sessCtx, cancel := context.WithCancel(context.Background())

	sess := &Session{
		svc:            s,
		conversationID: conv.ID,
		userID:         userID,
		sendTimeout:    DefaultSendTimeout,
		logger:         s.logger.With("conversation_id", conv.ID, "user_id", userID),
		ctx:            sessCtx,
		cancel:         cancel,
		done:           make(chan struct{}),
		ops:            make(chan func()),
		seen:           dedupe.New(seenTTL, seenMax),
		updates:        make(chan Update, updateBuf),
		messages:       history,
		pending:        make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(sess)
	}

	for _, msg := range history {
		sess.seen.CheckAndMark(msg.ID)
	}

	events, _ := s.broadcaster.Subscribe(sessCtx, conv.ID)
	sess.events = events

	go sess.run()

	s.logger.Debug("session opened", "conversation_id", conv.ID, "user_id", userID)
	return sess, nil
}

// run is the single writer for the session's message list.
func (s *Session) run() {
	defer close(s.done)
	defer s.seen.Close()
	defer close(s.updates)

	for {
		select {
		case <-s.ctx.Done():
			return
		case op := <-s.ops:
			op()
		case msg, ok := <-s.events:
			if !ok {
				// Subscription channel closed under us (broadcaster
				// shutdown); the session is no longer live.
				s.cancel()
				return
			}
			s.handleEvent(msg)
		}
	}
}

// apply runs fn on the run loop and waits for it to complete.
func (s *Session) apply(fn func()) error {
	ran := make(chan struct{})
	select {
	case s.ops <- func() {
		fn()
		close(ran)
	}:
	case <-s.ctx.Done():
		return ErrSessionClosed
	}

	select {
	case <-ran:
		return nil
	case <-s.ctx.Done():
		return ErrSessionClosed
	}
}

// Send runs the optimistic send pipeline: the provisional message is
// appended to the list before any I/O, then persisted; on success the
// provisional entry is replaced in place by the stored message, on
// failure (or timeout) it is removed and the error returned.
func (s *Session) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	temp := &store.Message{
		ID:             localIDPrefix + uuid.New().String(),
		ConversationID: s.conversationID,
		SenderID:       s.userID,
		Content:        text,
		IsRead:         true, // the sender always considers their own message read
		CreatedAt:      time.Now(),
	}

	if err := s.apply(func() {
		s.pending[temp.ID] = struct{}{}
		s.appendLocked(temp)
	}); err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	msg, err := s.svc.SendMessage(sendCtx, s.conversationID, s.userID, text)
	if err != nil {
		// Roll the list back to its pre-send state. The send error is
		// what the caller needs even if the session closed meanwhile.
		_ = s.apply(func() {
			delete(s.pending, temp.ID)
			s.removeLocked(temp.ID)
		})
		return fmt.Errorf("sending message: %w", err)
	}

	confirmed := *msg
	confirmed.IsRead = true
	return s.apply(func() {
		delete(s.pending, temp.ID)
		s.seen.CheckAndMark(confirmed.ID)
		s.confirmLocked(temp.ID, &confirmed)
	})
}

// handleEvent processes one realtime "message inserted" event.
// Runs on the run loop.
func (s *Session) handleEvent(msg *store.Message) {
	if msg.SenderID == s.userID {
		// The bus is conversation-scoped, so our own sends echo back.
		// With an optimistic entry outstanding the pipeline will
		// reconcile it; drop the echo outright.
		if len(s.pending) > 0 {
			return
		}
		// No outstanding send: could be this user on another device.
		// Dedup by ID before appending.
		if s.seen.CheckAndMark(msg.ID) || s.containsLocked(msg.ID) {
			return
		}
		own := *msg
		own.IsRead = true
		s.appendLocked(&own)
		return
	}

	if s.seen.CheckAndMark(msg.ID) || s.containsLocked(msg.ID) {
		return
	}

	// The recipient has the conversation open, so the message is read
	// the moment it lands. The store write is best-effort.
	incoming := *msg
	incoming.IsRead = true
	s.appendLocked(&incoming)
	go s.markReadAsync()
}

// appendLocked appends at the tail and emits an update. Run loop only.
func (s *Session) appendLocked(msg *store.Message) {
	s.messages = append(s.messages, msg)
	s.emit(Update{Type: UpdateAppended, Message: *msg})
}

// confirmLocked replaces the optimistic entry in place, preserving list
// position. Run loop only.
func (s *Session) confirmLocked(tempID string, msg *store.Message) {
	for i, m := range s.messages {
		if m.ID == tempID {
			s.messages[i] = msg
			s.emit(Update{Type: UpdateConfirmed, Message: *msg, TempID: tempID})
			return
		}
	}
	// Optimistic entry vanished (session raced with a close); keep the
	// authoritative message rather than losing it.
	s.appendLocked(msg)
}

// removeLocked drops the optimistic entry entirely. Run loop only.
func (s *Session) removeLocked(tempID string) {
	for i, m := range s.messages {
		if m.ID == tempID {
			removed := *m
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			s.emit(Update{Type: UpdateRemoved, Message: removed, TempID: tempID})
			return
		}
	}
}

// containsLocked reports whether a message ID is already in the list.
// Run loop only.
func (s *Session) containsLocked(id string) bool {
	for _, m := range s.messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

// emit delivers an update without blocking the run loop; a full
// observer channel drops the oldest update first.
func (s *Session) emit(u Update) {
	for {
		select {
		case s.updates <- u:
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}

// markReadAsync records the read receipt with its own timeout context,
// so it survives request cancellation and never blocks the loop.
func (s *Session) markReadAsync() {
	ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
	defer cancel()

	if _, err := s.svc.store.MarkRead(ctx, s.conversationID, s.userID); err != nil {
		s.logger.Warn("mark read failed", "error", err)
	}
}

// Messages returns a snapshot of the current message list, ordered by
// arrival (history ascending, live entries at the tail). Returns nil
// after Close.
func (s *Session) Messages() []store.Message {
	var snapshot []store.Message
	if err := s.apply(func() {
		snapshot = make([]store.Message, len(s.messages))
		for i, m := range s.messages {
			snapshot[i] = *m
		}
	}); err != nil {
		return nil
	}
	return snapshot
}

// Updates returns the channel of list mutations. It is closed when the
// session closes.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

// ConversationID returns the conversation this session is bound to.
func (s *Session) ConversationID() string {
	return s.conversationID
}

// UserID returns the local user the session belongs to.
func (s *Session) UserID() string {
	return s.userID
}

// Close releases the realtime subscription and stops the run loop.
// Safe to call multiple times and guaranteed to release the
// subscription on every exit path.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		s.logger.Debug("session closed")
	})
}
