package audit

import (
	"context"
	"time"

	"github.com/dideher/secondments/pkg/cas"
	"github.com/dideher/secondments/pkg/observability"
)

// BrokerListener translates authentication events into audit records. It is
// subscribed to the event broker so the authentication flow never talks to
// the audit trail directly.
type BrokerListener struct {
	sink   Logger
	logger *observability.Logger
}

// NewBrokerListener creates a listener that records events into sink
func NewBrokerListener(sink Logger, logger *observability.Logger) *BrokerListener {
	return &BrokerListener{sink: sink, logger: logger}
}

// HandleAuthEvent implements the broker listener contract
func (b *BrokerListener) HandleAuthEvent(ctx context.Context, event *cas.Event) {
	record := &Event{
		Type:       EventType(event.Type),
		Username:   event.Username,
		RemoteAddr: event.RemoteAddr,
		UserAgent:  event.UserAgent,
		OccurredAt: event.OccurredAt,
		Details:    map[string]string{},
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now()
	}
	if event.User != nil {
		record.UserID = event.User.ID
	}
	if event.Created {
		record.Details["user_created"] = "true"
	}
	if event.Ticket != "" {
		record.Details["ticket"] = event.Ticket
	}

	if err := b.sink.Log(ctx, record); err != nil {
		b.logger.WithError(err).Warn("failed to record audit event")
	}
}
