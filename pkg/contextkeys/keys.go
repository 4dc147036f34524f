// Package contextkeys provides centralized context key definitions.
//
// All context keys used across the application must be defined here. This
// prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// UserKey contains *auth.LocalUser
	// Set by: middleware.RequireAuth / middleware.LoadUser
	// Required by: protected handlers, logout flow
	UserKey Key = "user"

	// SessionKey contains *session.Session
	// Set by: middleware.LoadUser
	// Required by: logout flow, ledger correlation
	SessionKey Key = "session"

	// RequestIDKey contains request ID string (UUID)
	// Set by: HTTP middleware
	// Used by: Logger, audit trail
	RequestIDKey Key = "request_id"
)

// WithValue attaches a value under a typed key
func WithValue(ctx context.Context, key Key, value interface{}) context.Context {
	return context.WithValue(ctx, key, value)
}

// Value retrieves a value stored under a typed key
func Value(ctx context.Context, key Key) interface{} {
	return ctx.Value(key)
}
