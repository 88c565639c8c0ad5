// Package auth provides JWT authentication for chatd's HTTP API.
//
// # Tokens
//
// Clients authenticate with HS256-signed JWTs carrying the user ID in the
// "sub" claim. Tokens are signed with the configured jwt_secret:
//
//	verifier := auth.NewJWTVerifier(secret)
//	token, err := verifier.Generate(userID, time.Hour)
//	userID, err := verifier.Verify(token)
//
// # Middleware
//
// Middleware wraps an http.Handler, rejecting requests without a valid
// bearer token and attaching the authenticated user ID to the request
// context. Handlers retrieve it with UserFromContext. EventSource clients
// cannot set request headers, so the middleware also accepts the token as
// a "token" query parameter.
package auth
