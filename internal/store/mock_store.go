// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu        sync.RWMutex
	convs     map[string]*Conversation // keyed by conversation ID
	pairIndex map[string]string        // keyed by "userLow:userHigh" -> conversation ID
	messages  map[string][]*Message    // keyed by conversation ID

	// Error injection for failure-path tests
	CreateMessageErr error
	MarkReadErr      error

	// CreateMessageBlock, when non-nil, is received from inside
	// CreateMessage before the insert takes effect. Lets tests hold a
	// send in the Persisting state.
	CreateMessageBlock chan struct{}
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		convs:     make(map[string]*Conversation),
		pairIndex: make(map[string]string),
		messages:  make(map[string][]*Message),
	}
}

func pairKey(userLow, userHigh string) string {
	return userLow + ":" + userHigh
}

// CreateConversation stores a new conversation, enforcing the same
// uniqueness rule as the SQLite pair index.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey(conv.UserLow, conv.UserHigh)
	if _, exists := m.pairIndex[key]; exists {
		return ErrDuplicateConversation
	}

	c := *conv
	m.convs[c.ID] = &c
	m.pairIndex[key] = c.ID
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *c
	return &result, nil
}

// FindConversationByPair retrieves a conversation by its canonical pair.
func (m *MockStore) FindConversationByPair(ctx context.Context, userLow, userHigh string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.pairIndex[pairKey(userLow, userHigh)]
	if !ok {
		return nil, ErrNotFound
	}
	result := *m.convs[id]
	return &result, nil
}

// ListConversations returns the user's conversations ordered by
// updated_at descending.
func (m *MockStore) ListConversations(ctx context.Context, userID string) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var convs []*Conversation
	for _, c := range m.convs {
		if c.HasParticipant(userID) {
			result := *c
			convs = append(convs, &result)
		}
	}

	sort.Slice(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
	return convs, nil
}

// TouchConversation updates the conversation's updated_at timestamp.
func (m *MockStore) TouchConversation(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.convs[id]
	if !ok {
		return ErrNotFound
	}
	c.UpdatedAt = at
	return nil
}

// DeleteConversation removes a conversation and its messages.
func (m *MockStore) DeleteConversation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.convs[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.pairIndex, pairKey(c.UserLow, c.UserHigh))
	delete(m.convs, id)
	delete(m.messages, id)
	return nil
}

// CreateMessage stores a new message.
func (m *MockStore) CreateMessage(ctx context.Context, msg *Message) error {
	if m.CreateMessageBlock != nil {
		select {
		case <-m.CreateMessageBlock:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.CreateMessageErr != nil {
		return m.CreateMessageErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	msgCopy := *msg
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], &msgCopy)
	return nil
}

// ListMessages returns a conversation's messages ordered by created_at
// ascending.
func (m *MockStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.messages[conversationID]
	msgs := make([]*Message, 0, len(stored))
	for _, msg := range stored {
		result := *msg
		msgs = append(msgs, &result)
	}

	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

// MarkRead flips is_read on unread messages not sent by readerID.
func (m *MockStore) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	if m.MarkReadErr != nil {
		return 0, m.MarkReadErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var marked int64
	for _, msg := range m.messages[conversationID] {
		if msg.SenderID != readerID && !msg.IsRead {
			msg.IsRead = true
			marked++
		}
	}
	return marked, nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}
