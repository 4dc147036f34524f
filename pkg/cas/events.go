package cas

import (
	"context"
	"sync"
	"time"

	"github.com/dideher/secondments/pkg/auth"
)

// EventType categorizes authentication events
type EventType string

const (
	EventAuthenticated EventType = "auth.login"
	EventLoginFailed   EventType = "auth.login_failed"
	EventLogout        EventType = "auth.logout"
)

// Event is emitted on successful authentication and on logout. Subscribers
// (audit log, downstream provisioning) are external collaborators.
type Event struct {
	Type       EventType
	User       *auth.LocalUser
	Created    bool
	Username   string
	Attributes map[string]string
	Ticket     string
	SessionKey string

	// Request context
	RemoteAddr string
	UserAgent  string

	OccurredAt time.Time
}

// Listener receives authentication events. Implementations must not block:
// slow sinks should buffer internally.
type Listener interface {
	HandleAuthEvent(ctx context.Context, event *Event)
}

// ListenerFunc adapts a function to the Listener interface
type ListenerFunc func(ctx context.Context, event *Event)

// HandleAuthEvent calls the wrapped function
func (f ListenerFunc) HandleAuthEvent(ctx context.Context, event *Event) {
	f(ctx, event)
}

// EventBroker fans authentication events out to registered listeners.
// Registration happens at wiring time; Notify is safe for concurrent use.
type EventBroker struct {
	mu        sync.RWMutex
	listeners []Listener
}

// NewEventBroker creates an empty event broker
func NewEventBroker() *EventBroker {
	return &EventBroker{}
}

// Subscribe registers a listener for all subsequent events
func (b *EventBroker) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Notify delivers the event to every listener in registration order
func (b *EventBroker) Notify(ctx context.Context, event *Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	b.mu.RLock()
	listeners := make([]Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()

	for _, l := range listeners {
		l.HandleAuthEvent(ctx, event)
	}
}
