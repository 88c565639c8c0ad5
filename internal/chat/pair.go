// ABOUTME: Canonical participant pair resolution for conversations
// ABOUTME: Orders two user IDs so any unordered pair maps to one key

package chat

import (
	"errors"
	"strings"
)

// ErrSelfConversation is returned when both participants are the same user
var ErrSelfConversation = errors.New("cannot open a conversation with yourself")

// ErrEmptyUserID is returned when a participant ID is empty
var ErrEmptyUserID = errors.New("user id must not be empty")

// Pair is a canonical ordered participant pair: Low < High under
// lexicographic comparison, regardless of argument order.
type Pair struct {
	Low  string
	High string
}

// ResolvePair derives the canonical pair for two distinct user IDs.
// ResolvePair(a, b) == ResolvePair(b, a) for all valid inputs.
func ResolvePair(a, b string) (Pair, error) {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)

	if a == "" || b == "" {
		return Pair{}, ErrEmptyUserID
	}
	if a == b {
		return Pair{}, ErrSelfConversation
	}

	if a < b {
		return Pair{Low: a, High: b}, nil
	}
	return Pair{Low: b, High: a}, nil
}
