package session

import (
	"context"
	"time"
)

// Session is a server-side login session. Values carries small per-session
// state such as a stashed post-login destination.
type Session struct {
	Key       string            `json:"key"`
	UserID    int64             `json:"user_id"`
	Username  string            `json:"username"`
	Values    map[string]string `json:"values,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// Expired reports whether the session is past its expiry
func (s *Session) Expired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// Store persists sessions. Get returns (nil, nil) for unknown or expired
// keys; errors are reserved for backend failures.
type Store interface {
	Create(ctx context.Context, userID int64, username string) (*Session, error)
	Get(ctx context.Context, key string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
