package audit

import (
	"context"
	"time"
)

// EventType categorizes audit events
type EventType string

const (
	EventLogin       EventType = "auth.login"
	EventLoginFailed EventType = "auth.login_failed"
	EventLogout      EventType = "auth.logout"
)

// Event is an auditable authentication event
type Event struct {
	ID         int64             `json:"id,omitempty"`
	Type       EventType         `json:"type"`
	Username   string            `json:"username,omitempty"`
	UserID     int64             `json:"user_id,omitempty"`
	RemoteAddr string            `json:"remote_addr,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Logger records audit events
type Logger interface {
	Log(ctx context.Context, event *Event) error
}
