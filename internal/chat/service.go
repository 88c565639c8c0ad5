// ABOUTME: Chat service coordinating persistence, profiles, and the event bus
// ABOUTME: Find-or-create is race tolerant; sends persist first, then publish

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skillswap/chatd/internal/profile"
	"github.com/skillswap/chatd/internal/store"
)

// ErrEmptyMessage is returned when a message is empty after trimming
var ErrEmptyMessage = errors.New("message must not be empty")

// ErrNotParticipant is returned when a user operates on a conversation
// they are not part of
var ErrNotParticipant = errors.New("not a participant of this conversation")

// touchTimeout bounds the background updated_at write after a send.
const touchTimeout = 5 * time.Second

// ConversationEntry pairs a conversation with the counterpart's profile
// summary for display.
type ConversationEntry struct {
	Conversation *store.Conversation
	Counterpart  *profile.Summary
}

// Service is the central chat layer. All messages flow through here:
// the store is the source of truth and the broadcaster is only a
// low-latency notification channel layered on top of it.
type Service struct {
	store       store.Store
	directory   profile.Directory
	broadcaster *Broadcaster
	logger      *slog.Logger
}

// NewService creates a chat service. Pass nil logger for default.
func NewService(st store.Store, directory profile.Directory, broadcaster *Broadcaster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       st,
		directory:   directory,
		broadcaster: broadcaster,
		logger:      logger.With("component", "chat"),
	}
}

// Broadcaster exposes the event bus for session subscriptions.
func (s *Service) Broadcaster() *Broadcaster {
	return s.broadcaster
}

// FindOrCreate resolves the canonical pair for the two users and
// returns their conversation, creating it on first contact. Concurrent
// first contact from both sides is tolerated: a uniqueness violation on
// the pair means another client won the insert, so the winner is
// re-fetched and returned. Also returns the counterpart's profile
// summary (degraded to the raw ID if the directory is unavailable).
func (s *Service) FindOrCreate(ctx context.Context, userID, otherUserID string) (*store.Conversation, *profile.Summary, error) {
	pair, err := ResolvePair(userID, otherUserID)
	if err != nil {
		return nil, nil, err
	}

	conv, err := s.store.FindConversationByPair(ctx, pair.Low, pair.High)
	if err == nil {
		return conv, s.lookupCounterpart(ctx, conv, userID), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("looking up conversation: %w", err)
	}

	now := time.Now()
	conv = &store.Conversation{
		ID:        uuid.New().String(),
		UserLow:   pair.Low,
		UserHigh:  pair.High,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		// Handle race condition: the other participant may have created
		// the conversation between our lookup and insert attempt
		if errors.Is(err, store.ErrDuplicateConversation) {
			existing, lookupErr := s.store.FindConversationByPair(ctx, pair.Low, pair.High)
			if lookupErr == nil {
				s.logger.Debug("found existing conversation after race", "conversation_id", existing.ID)
				return existing, s.lookupCounterpart(ctx, existing, userID), nil
			}
			s.logger.Error("retry lookup failed after duplicate error", "lookup_error", lookupErr)
			return nil, nil, fmt.Errorf("refetching conversation after race: %w", lookupErr)
		}
		return nil, nil, fmt.Errorf("creating conversation: %w", err)
	}

	s.logger.Debug("conversation created",
		"conversation_id", conv.ID,
		"user_low", conv.UserLow,
		"user_high", conv.UserHigh)
	return conv, s.lookupCounterpart(ctx, conv, userID), nil
}

// GetConversation returns the conversation if userID participates in it.
// Non-participants get ErrNotFound, never another user's data.
func (s *Service) GetConversation(ctx context.Context, conversationID, userID string) (*store.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, store.ErrNotFound
	}
	return conv, nil
}

// ListConversations returns the user's conversations ordered by most
// recent activity, each joined with the counterpart's profile summary.
// Directory failures degrade individual entries to the raw ID; they
// never fail the list.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]*ConversationEntry, error) {
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	entries := make([]*ConversationEntry, 0, len(convs))
	for _, conv := range convs {
		entries = append(entries, &ConversationEntry{
			Conversation: conv,
			Counterpart:  s.lookupCounterpart(ctx, conv, userID),
		})
	}
	return entries, nil
}

// SendMessage validates, persists, and publishes a message. The
// authoritative row is inserted first; only then does the broadcaster
// notify subscribers, so an event always refers to a stored message.
// The conversation's updated_at touch is fire-and-forget.
func (s *Service) SendMessage(ctx context.Context, conversationID, senderID, content string) (*store.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	conv, err := s.GetConversation(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        content,
		IsRead:         false,
		CreatedAt:      time.Now(),
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persisting message: %w", err)
	}

	s.broadcaster.Publish(conv.ID, msg)
	go s.touchConversation(conv.ID, msg.CreatedAt)

	s.logger.Debug("message sent",
		"conversation_id", conv.ID,
		"message_id", msg.ID,
		"sender", senderID)
	return msg, nil
}

// History returns the conversation's messages ordered ascending by
// created_at, provided userID is a participant.
func (s *Service) History(ctx context.Context, conversationID, userID string) ([]*store.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID)
}

// MarkRead marks the counterpart's unread messages as read on behalf
// of readerID. Read-receipt writes are best-effort; callers treat
// failures as non-fatal since the next session open corrects them.
func (s *Service) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	if _, err := s.GetConversation(ctx, conversationID, readerID); err != nil {
		return 0, err
	}
	return s.store.MarkRead(ctx, conversationID, readerID)
}

// Delete removes a conversation and all its messages. Only a
// participant may delete.
func (s *Service) Delete(ctx context.Context, conversationID, userID string) error {
	if _, err := s.GetConversation(ctx, conversationID, userID); err != nil {
		return err
	}
	if err := s.store.DeleteConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	s.logger.Info("conversation deleted", "conversation_id", conversationID, "by", userID)
	return nil
}

// Counterpart resolves the other participant's profile summary for a
// conversation the user already holds.
func (s *Service) Counterpart(ctx context.Context, conv *store.Conversation, userID string) *profile.Summary {
	return s.lookupCounterpart(ctx, conv, userID)
}

// lookupCounterpart resolves the other participant's profile summary,
// degrading to the raw ID when the directory fails or is absent.
func (s *Service) lookupCounterpart(ctx context.Context, conv *store.Conversation, userID string) *profile.Summary {
	counterpartID := conv.Counterpart(userID)
	if counterpartID == "" {
		return nil
	}
	if s.directory == nil {
		return profile.Fallback(counterpartID)
	}

	summary, err := s.directory.Lookup(ctx, counterpartID)
	if err != nil {
		s.logger.Debug("profile lookup failed, using fallback",
			"user_id", counterpartID,
			"error", err)
		return profile.Fallback(counterpartID)
	}
	return summary
}

// touchConversation updates updated_at with a separate timeout context.
// This keeps the freshness signal flowing even if the request context
// is already done, and never blocks the send path.
func (s *Service) touchConversation(conversationID string, at time.Time) {
	touchCtx, cancel := context.WithTimeout(context.Background(), touchTimeout)
	defer cancel()

	if err := s.store.TouchConversation(touchCtx, conversationID, at); err != nil {
		s.logger.Error("failed to touch conversation",
			"error", err,
			"conversation_id", conversationID)
	}
}
