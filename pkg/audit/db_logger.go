package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dideher/secondments/pkg/observability"
)

// DBLogger persists audit events to Postgres
type DBLogger struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewDBLogger creates a database-backed audit logger
func NewDBLogger(db *sql.DB, logger *observability.Logger) *DBLogger {
	return &DBLogger{db: db, logger: logger}
}

// Log writes one audit event
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	var details []byte
	if len(event.Details) > 0 {
		var err error
		details, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audit_events (event_type, username, user_id, remote_addr, user_agent, details, occurred_at)
		VALUES ($1, $2, NULLIF($3, 0), $4, $5, $6, $7)`,
		string(event.Type), event.Username, event.UserID,
		event.RemoteAddr, event.UserAgent, details, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// MultiLogger fans one audit event out to several sinks. A failing sink is
// logged and skipped so the remaining sinks still receive the event.
type MultiLogger struct {
	sinks  []Logger
	logger *observability.Logger
}

// NewMultiLogger creates a fan-out audit logger
func NewMultiLogger(logger *observability.Logger, sinks ...Logger) *MultiLogger {
	return &MultiLogger{sinks: sinks, logger: logger}
}

// Log delivers the event to every sink
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	for _, sink := range m.sinks {
		if err := sink.Log(ctx, event); err != nil {
			m.logger.WithError(err).Warn("audit sink failed")
		}
	}
	return nil
}

// LogSink writes audit events to the structured log, for deployments
// without a database audit trail
type LogSink struct {
	logger *observability.Logger
}

// NewLogSink creates a log-backed audit sink
func NewLogSink(logger *observability.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Log(_ context.Context, event *Event) error {
	s.logger.WithFields(map[string]interface{}{
		"event_type": string(event.Type),
		"username":   event.Username,
		"user_id":    event.UserID,
		"ip":         event.RemoteAddr,
	}).Info("audit event")
	return nil
}
