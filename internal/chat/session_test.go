// ABOUTME: Tests for the conversation Session
// ABOUTME: Covers optimistic round-trip, failure cleanup, echo suppression, and read receipts

package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap/chatd/internal/store"
)

func openTestSession(t *testing.T, svc *Service, convID, userID string, opts ...SessionOption) *Session {
	t.Helper()
	sess, err := svc.OpenSession(context.Background(), convID, userID, opts...)
	require.NoError(t, err)
	t.Cleanup(sess.Close)
	return sess
}

func TestSession_OptimisticRoundTrip(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	conv, _, err := svc.FindOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)

	// Hold the store insert so the send stays in the Persisting state
	mock.CreateMessageBlock = make(chan struct{})

	sess := openTestSession(t, svc, conv.ID, "u1")

	sendDone := make(chan error, 1)
	go func() {
		sendDone <- sess.Send(ctx, "hello")
	}()

	// The provisional entry must appear before the store call resolves
	require.Eventually(t, func() bool {
		msgs := sess.Messages()
		return len(msgs) == 1 && strings.HasPrefix(msgs[0].ID, localIDPrefix)
	}, time.Second, 5*time.Millisecond, "optimistic entry should render before persistence")

	msgs := sess.Messages()
	assert.Equal(t, "u1", msgs[0].SenderID)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.True(t, msgs[0].IsRead, "sender considers their own message read")

	// Let the persist finish
	close(mock.CreateMessageBlock)
	require.NoError(t, <-sendDone)

	// Exactly one entry, now carrying the server-issued ID, same position
	msgs = sess.Messages()
	require.Len(t, msgs, 1, "provisional entry must be replaced, not duplicated")
	assert.False(t, strings.HasPrefix(msgs[0].ID, localIDPrefix))
	assert.Equal(t, "hello", msgs[0].Content)
	assert.True(t, msgs[0].IsRead)
}

func TestSession_SendFailureRemovesOptimisticEntry(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	conv, _, err := svc.FindOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)

	sess := openTestSession(t, svc, conv.ID, "u1")
	require.NoError(t, sess.Send(ctx, "first"))
	before := sess.Messages()

	mock.CreateMessageErr = errors.New("store down")
	err = sess.Send(ctx, "doomed")
	require.Error(t, err)

	after := sess.Messages()
	require.Len(t, after, len(before), "list must return to its pre-send state")
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
	}
}

func TestSession_SendEmptyRejectedBeforeAppend(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, _, err := svc.FindOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)

	sess := openTestSession(t, svc, conv.ID, "u1")

	err = sess.Send(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, sess.Messages())
}

func TestSession_SelfEchoSuppressed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, _, err := svc.FindOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)

	sess := openTestSession(t, svc, conv.ID, "u1")

	// Send publishes to the bus; the sender's own session gets the echo
	require.NoError(t, sess.Send(ctx, "hello"))

	// Give the echo time to arrive and be (wrongly) appended if the
	// suppression were broken
	time.Sleep(50 * time.Millisecond)

	msgs := sess.Messages()
	require.Len(t, msgs, 1, "self echo must never produce a duplicate entry")

	// A redelivered copy of the confirmed message is also dropped
	svc.Broadcaster().Publish(conv.ID, &store.Message{
		ID:             msgs[0].ID,
		ConversationID: conv.ID,
		SenderID:       "u1",
		Content:        "hello",
		CreatedAt:      msgs[0].CreatedAt,
	})
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, sess.Messages(), 1)
}

func TestSession_OwnMessageFromAnotherDeviceAppendsOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, _, err := svc.FindOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)

	sess := openTestSession(t, svc, conv.ID, "u1")

	// u1 sends from a different client, so this session has no
	// optimistic entry outstanding
	msg, err := svc.SendMessage(ctx, conv.ID, "u1", "from my phone")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(sess.Messages()) == 1
	}, time.Second, 5*time.Millisecond)

	// At-least-once delivery: the same event again is deduplicated
	svc.Broadcaster().Publish(conv.ID, msg)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, sess.Messages(), 1)
}

func TestSession_IncomingMessageAppendedAndMarkedRead(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	conv, _, err := svc.FindOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)

	sess := openTestSession(t, svc, conv.ID, "u1")

	_, err = svc.SendMessage(ctx, conv.ID, "u2", "hey there")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msgs := sess.Messages()
		return len(msgs) == 1 && msgs[0].IsRead
	}, time.Second, 5*time.Millisecond, "incoming message should land read, recipient has the conversation open")

	// The read receipt reaches the store best-effort
	require.Eventually(t, func() bool {
		stored, err := mock.ListMessages(ctx, conv.ID)
		return err == nil && len(stored) == 1 && stored[0].IsRead
	}, time.Second, 5*time.Millisecond)
}

func TestSession_OpenMarksHistoryRead(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	conv, _, err := svc.FindOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)

	// u2 sent while u1 was away
	_, err = svc.SendMessage(ctx, conv.ID, "u2", "are you there?")
	require.NoError(t, err)

	sess := openTestSession(t, svc, conv.ID, "u1")

	msgs := sess.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsRead, "history should reflect the mark-read on open")

	stored, err := mock.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, stored[0].IsRead)
}

func TestSession_NonParticipantCannotOpen(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, _, err := svc.FindOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)

	_, err = svc.OpenSession(ctx, conv.ID, "mallory")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSession_SendTimeout(t *testing.T) {
	svc, mock := newTestService(t)
	ctx := context.Background()

	conv, _, err := svc.FindOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)

	// Never unblocked: the persist hangs until the send timeout fires
	mock.CreateMessageBlock = make(chan struct{})

	sess := openTestSession(t, svc, conv.ID, "u1", WithSendTimeout(50*time.Millisecond))

	err = sess.Send(ctx, "stuck")
	require.Error(t, err)
	assert.Empty(t, sess.Messages(), "timed-out send must not strand its optimistic entry")
}

func TestSession_UpdatesEmitted(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, _, err := svc.FindOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)

	sess := openTestSession(t, svc, conv.ID, "u1")
	updates := sess.Updates()

	require.NoError(t, sess.Send(ctx, "hello"))

	var kinds []UpdateType
	for len(kinds) < 2 {
		select {
		case u := <-updates:
			kinds = append(kinds, u.Type)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for updates, got %v", kinds)
		}
	}
	assert.Equal(t, UpdateAppended, kinds[0])
	assert.Equal(t, UpdateConfirmed, kinds[1])
}

func TestSession_CloseReleasesSubscription(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, _, err := svc.FindOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)

	sess, err := svc.OpenSession(ctx, conv.ID, "u1")
	require.NoError(t, err)

	sess.Close()
	sess.Close() // idempotent

	assert.Nil(t, sess.Messages())
	assert.ErrorIs(t, sess.Send(ctx, "too late"), ErrSessionClosed)

	// Publishing after close must not panic or block
	svc.Broadcaster().Publish(conv.ID, makeMessage("late", conv.ID, "u2"))
}

// TestSession_FirstContactScenario walks the end-to-end scenario:
// <no prior contact> → find-or-create from either side returns the
// same conversation, then u1's "hello" is visible to u1 immediately
// and reaches u2's open session via the bus.
func TestSession_FirstContactScenario(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	conv, _, err := svc.FindOrCreate(ctx, "u2", "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", conv.UserLow)
	assert.Equal(t, "u2", conv.UserHigh)

	again, _, err := svc.FindOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)
	require.Equal(t, conv.ID, again.ID)

	sender := openTestSession(t, svc, conv.ID, "u1")
	recipient := openTestSession(t, svc, conv.ID, "u2")

	require.NoError(t, sender.Send(ctx, "hello"))

	msgs := sender.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "u1", msgs[0].SenderID)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.True(t, msgs[0].IsRead)

	require.Eventually(t, func() bool {
		got := recipient.Messages()
		return len(got) == 1 && got[0].Content == "hello"
	}, time.Second, 5*time.Millisecond)
}
