// Package api exposes the chatd HTTP API.
//
// # Endpoints
//
// All /api routes require a bearer token (see the auth package). The
// authenticated user is always one side of every operation; acting on
// another user's conversations yields 404.
//
//	POST   /api/conversations                     find or create a conversation with a peer
//	GET    /api/conversations                     list conversations, most recent activity first
//	GET    /api/conversations/{id}                fetch one conversation
//	DELETE /api/conversations/{id}                delete a conversation and its messages
//	GET    /api/conversations/{id}/messages       message history, ascending
//	POST   /api/conversations/{id}/messages       send a message
//	POST   /api/conversations/{id}/read           mark the counterpart's messages read
//	GET    /api/conversations/{id}/stream         SSE stream of list updates
//	GET    /health                                liveness probe (unauthenticated)
//
// # Streaming
//
// The stream endpoint opens a conversation session for the caller, which
// marks pending messages as read, then emits SSE events:
//
//	event: snapshot     full history at open
//	event: appended     a message was appended to the list
//	event: confirmed    an optimistic entry was replaced by the stored message
//	event: removed      an optimistic entry was removed after a failed send
//
// EventSource clients cannot set headers, so the stream endpoint accepts
// the JWT as a "token" query parameter.
package api
