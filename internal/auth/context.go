// ABOUTME: Authenticated user identity propagation through request handlers
// ABOUTME: Provides WithUser/UserFromContext for carrying the user ID via context

package auth

import (
	"context"
)

// userIDKey is the key type for storing the authenticated user ID in context.Context.
type userIDKey struct{}

// WithUser returns a new context with the authenticated user ID attached.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserFromContext retrieves the authenticated user ID from the context,
// returning "" if not present.
func UserFromContext(ctx context.Context) string {
	val := ctx.Value(userIDKey{})
	if val == nil {
		return ""
	}
	userID, ok := val.(string)
	if !ok {
		return ""
	}
	return userID
}

// MustUserFromContext retrieves the authenticated user ID, panicking if not
// present. For handlers that run strictly behind Middleware.
func MustUserFromContext(ctx context.Context) string {
	userID := UserFromContext(ctx)
	if userID == "" {
		panic("auth: user ID not found in context")
	}
	return userID
}
