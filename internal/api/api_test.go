// ABOUTME: HTTP API tests covering conversations, messages, auth, and errors
// ABOUTME: Runs handlers against httptest with an in-memory store

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap/chatd/internal/auth"
	"github.com/skillswap/chatd/internal/chat"
	"github.com/skillswap/chatd/internal/profile"
	"github.com/skillswap/chatd/internal/store"
)

type testAPI struct {
	server   *httptest.Server
	svc      *chat.Service
	mock     *store.MockStore
	verifier *auth.JWTVerifier
}

func newTestAPI(t *testing.T, opts ...Option) *testAPI {
	t.Helper()

	mock := store.NewMockStore()
	directory := profile.NewStaticDirectory(
		&profile.Summary{ID: "u1", DisplayName: "Ada"},
		&profile.Summary{ID: "u2", DisplayName: "Grace"},
	)
	broadcaster := chat.NewBroadcaster(nil)
	t.Cleanup(broadcaster.Close)

	svc := chat.NewService(mock, directory, broadcaster, nil)
	verifier := auth.NewJWTVerifier([]byte("test-secret"))

	apiServer := NewServer(svc, verifier, nil, opts...)
	server := httptest.NewServer(apiServer.Routes())
	t.Cleanup(server.Close)

	return &testAPI{
		server:   server,
		svc:      svc,
		mock:     mock,
		verifier: verifier,
	}
}

func (a *testAPI) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := a.verifier.Generate(userID, time.Hour)
	require.NoError(t, err)
	return token
}

func (a *testAPI) do(t *testing.T, method, path, userID string, body interface{}) *http.Response {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, a.server.URL+path, reqBody)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+a.token(t, userID))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestAPI_RequiresAuth(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(t, http.MethodGet, "/api/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_HealthIsUnauthenticated(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_OpenConversation(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(t, http.MethodPost, "/api/conversations", "u1", OpenConversationRequest{PeerID: "u2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var conv ConversationResponse
	decodeJSON(t, resp, &conv)
	assert.NotEmpty(t, conv.ID)
	require.NotNil(t, conv.Counterpart)
	assert.Equal(t, "u2", conv.Counterpart.ID)
	assert.Equal(t, "Grace", conv.Counterpart.DisplayName)

	// Opening from the other side lands on the same conversation
	resp = a.do(t, http.MethodPost, "/api/conversations", "u2", OpenConversationRequest{PeerID: "u1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var again ConversationResponse
	decodeJSON(t, resp, &again)
	assert.Equal(t, conv.ID, again.ID)
	require.NotNil(t, again.Counterpart)
	assert.Equal(t, "u1", again.Counterpart.ID)
}

func TestAPI_OpenConversation_Rejections(t *testing.T) {
	a := newTestAPI(t)

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{name: "self conversation", body: OpenConversationRequest{PeerID: "u1"}, want: http.StatusBadRequest},
		{name: "missing peer", body: OpenConversationRequest{}, want: http.StatusBadRequest},
		{name: "invalid json", body: "not-json", want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := a.do(t, http.MethodPost, "/api/conversations", "u1", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestAPI_ListConversations(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()

	first, _, err := a.svc.FindOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)
	second, _, err := a.svc.FindOrCreate(ctx, "u1", "u3")
	require.NoError(t, err)

	// Activity in the first conversation bumps it to the top
	_, err = a.svc.SendMessage(ctx, first.ID, "u1", "bump")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		convs, err := a.mock.ListConversations(ctx, "u1")
		return err == nil && convs[0].ID == first.ID
	}, time.Second, 5*time.Millisecond)

	resp := a.do(t, http.MethodGet, "/api/conversations", "u1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list ListConversationsResponse
	decodeJSON(t, resp, &list)
	require.Len(t, list.Conversations, 2)
	assert.Equal(t, first.ID, list.Conversations[0].ID)
	assert.Equal(t, second.ID, list.Conversations[1].ID)

	// u3 only sees their own conversation
	resp = a.do(t, http.MethodGet, "/api/conversations", "u3", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &list)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, second.ID, list.Conversations[0].ID)
}

func TestAPI_SendAndHistory(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()

	conv, _, err := a.svc.FindOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)

	resp := a.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%s/messages", conv.ID), "u1",
		SendMessageRequest{Content: "  hello  "})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var sent MessageResponse
	decodeJSON(t, resp, &sent)
	assert.Equal(t, "hello", sent.Content, "content is trimmed")
	assert.Equal(t, "u1", sent.SenderID)

	resp = a.do(t, http.MethodGet, fmt.Sprintf("/api/conversations/%s/messages", conv.ID), "u2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var history MessagesResponse
	decodeJSON(t, resp, &history)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, sent.ID, history.Messages[0].ID)
}

func TestAPI_HistoryLimit(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()

	conv, _, err := a.svc.FindOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := a.svc.SendMessage(ctx, conv.ID, "u1", fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	resp := a.do(t, http.MethodGet, fmt.Sprintf("/api/conversations/%s/messages?limit=2", conv.ID), "u1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var history MessagesResponse
	decodeJSON(t, resp, &history)
	require.Len(t, history.Messages, 2)
	// The most recent two, still ascending
	assert.Equal(t, "message 3", history.Messages[0].Content)
	assert.Equal(t, "message 4", history.Messages[1].Content)
}

func TestAPI_SendEmptyMessage(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()

	conv, _, err := a.svc.FindOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)

	resp := a.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%s/messages", conv.ID), "u1",
		SendMessageRequest{Content: "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_SendTimeoutBoundsStuckPersist(t *testing.T) {
	a := newTestAPI(t, WithSendTimeout(100*time.Millisecond))
	ctx := context.Background()

	conv, _, err := a.svc.FindOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)

	// Persist never completes; only the request timeout unblocks it
	a.mock.CreateMessageBlock = make(chan struct{})

	start := time.Now()
	resp := a.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%s/messages", conv.ID), "u1",
		SendMessageRequest{Content: "hello"})
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	assert.Less(t, time.Since(start), 5*time.Second)

	a.mock.CreateMessageBlock = nil
	messages, err := a.mock.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, messages, "a timed-out send must not persist")
}

func TestWithSendTimeout(t *testing.T) {
	verifier := auth.NewJWTVerifier([]byte("test-secret"))

	s := NewServer(nil, verifier, nil)
	assert.Equal(t, chat.DefaultSendTimeout, s.sendTimeout)

	s = NewServer(nil, verifier, nil, WithSendTimeout(2*time.Second))
	assert.Equal(t, 2*time.Second, s.sendTimeout)

	// Zero and negative values keep the default
	s = NewServer(nil, verifier, nil, WithSendTimeout(0))
	assert.Equal(t, chat.DefaultSendTimeout, s.sendTimeout)
}

func TestAPI_NonParticipantGets404(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()

	conv, _, err := a.svc.FindOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)

	paths := []struct {
		method string
		path   string
		body   interface{}
	}{
		{http.MethodGet, "/api/conversations/" + conv.ID, nil},
		{http.MethodGet, fmt.Sprintf("/api/conversations/%s/messages", conv.ID), nil},
		{http.MethodPost, fmt.Sprintf("/api/conversations/%s/messages", conv.ID), SendMessageRequest{Content: "hi"}},
		{http.MethodPost, fmt.Sprintf("/api/conversations/%s/read", conv.ID), nil},
		{http.MethodDelete, "/api/conversations/" + conv.ID, nil},
	}

	for _, p := range paths {
		resp := a.do(t, p.method, p.path, "mallory", p.body)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "%s %s", p.method, p.path)
	}
}

func TestAPI_MarkRead(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()

	conv, _, err := a.svc.FindOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)

	_, err = a.svc.SendMessage(ctx, conv.ID, "u2", "unread one")
	require.NoError(t, err)
	_, err = a.svc.SendMessage(ctx, conv.ID, "u2", "unread two")
	require.NoError(t, err)

	resp := a.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%s/read", conv.ID), "u1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var marked MarkReadResponse
	decodeJSON(t, resp, &marked)
	assert.Equal(t, int64(2), marked.Marked)

	// Second call is a no-op
	resp = a.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%s/read", conv.ID), "u1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &marked)
	assert.Equal(t, int64(0), marked.Marked)
}

func TestAPI_DeleteConversation(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()

	conv, _, err := a.svc.FindOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)
	_, err = a.svc.SendMessage(ctx, conv.ID, "u1", "soon gone")
	require.NoError(t, err)

	resp := a.do(t, http.MethodDelete, "/api/conversations/"+conv.ID, "u1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = a.do(t, http.MethodGet, "/api/conversations/"+conv.ID, "u1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_UnknownSubresource(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()

	conv, _, err := a.svc.FindOrCreate(ctx, "u1", "u2")
	require.NoError(t, err)

	resp := a.do(t, http.MethodGet, "/api/conversations/"+conv.ID+"/nope", "u1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
