// Package chat provides the realtime direct-messaging core.
//
// # Overview
//
// The chat package sits between the HTTP API and the store, providing
// conversation-level abstractions: canonical pair resolution,
// find-or-create, the send pipeline, and live conversation sessions.
//
// # Conversations
//
// A conversation is the unique record for an unordered pair of users.
// ResolvePair orders the two IDs so resolve(a, b) == resolve(b, a), and
// the store's UNIQUE(user_low, user_high) index guarantees at most one
// row per pair. Concurrent first contact from both sides is resolved by
// treating the losing insert's uniqueness violation as "already exists,
// re-fetch".
//
// # Send pipeline
//
// A send moves through Composed → Optimistic → Persisting → Confirmed,
// or → Failed → Removed on error:
//
//  1. The trimmed text is validated before any I/O
//  2. A provisional message with a local- prefixed ID is appended to
//     the session list immediately, so it renders without waiting on
//     the network
//  3. The store insert runs under a send timeout
//  4. On success the provisional entry is replaced in place by the
//     authoritative row; on failure it is removed entirely
//
// # Sessions
//
// A Session owns the ordered message list for one open conversation.
// Every mutation, from sends or from the event bus, funnels through a
// single run loop, so optimistic confirmation and realtime delivery can
// never interleave. Opening a session fetches history, marks the
// counterpart's unread messages read, and subscribes to the
// Broadcaster; closing it releases the subscription.
//
// # Event bus
//
// The Broadcaster is a per-conversation in-memory pub/sub channel with
// at-least-once, best-effort-ordered delivery and no replay. It is a
// notification layer only: the history fetch on session open is always
// the source of truth. Because the bus is conversation-scoped, a
// sender's own message echoes back to its session and is suppressed
// there (outstanding optimistic entry, or dedup by message ID).
package chat
