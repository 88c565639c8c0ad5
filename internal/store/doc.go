// Package store provides persistent storage for chatd using SQLite.
//
// # Data Models
//
//   - Conversation: the unique record for an unordered pair of users,
//     stored with participants in canonical (user_low < user_high) order
//   - Message: a single message owned by exactly one conversation;
//     immutable after insert except for the is_read flag
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// The UNIQUE index on (user_low, user_high) makes concurrent
// find-or-create race safe: the losing insert gets
// ErrDuplicateConversation and the caller re-fetches the winner.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrDuplicateConversation: Pair already has a conversation
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests and NewSQLiteStore(":memory:") or a
// t.TempDir() path for integration tests with real SQLite.
package store
