package cas

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dideher/secondments/pkg/observability"
)

// SessionChecker reports whether a session key still refers to a live session.
// Used by the orphan sweep to find ledger rows whose sessions have expired.
type SessionChecker interface {
	Exists(ctx context.Context, sessionKey string) (bool, error)
}

// SessionTicketLedger persists the session-key-to-ticket mapping that single
// logout depends on. Keys are truncated to SessionKeyMaxLength on both write
// and read so that lookups always agree with what was stored.
type SessionTicketLedger struct {
	db      *sql.DB
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewSessionTicketLedger creates a ledger over the given database handle
func NewSessionTicketLedger(db *sql.DB, logger *observability.Logger, metrics *observability.Metrics) *SessionTicketLedger {
	return &SessionTicketLedger{
		db:      db,
		logger:  logger,
		metrics: metrics,
	}
}

// Record associates a session key with the ticket that authenticated it.
// Re-recording the same session key replaces the ticket, so repeated logins
// on one session never leave duplicate rows.
func (l *SessionTicketLedger) Record(ctx context.Context, sessionKey, ticket string) error {
	key := TruncateSessionKey(sessionKey)

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO session_tickets (session_key, ticket, created_on, logged_in)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (session_key)
		DO UPDATE SET ticket = EXCLUDED.ticket, logged_in = NOW()`,
		key, ticket)
	if err != nil {
		l.observe("record", "error")
		return fmt.Errorf("failed to record session ticket: %w", err)
	}

	l.observe("record", "ok")
	return nil
}

// Lookup returns the ticket recorded for a session key, or nil when no
// mapping exists
func (l *SessionTicketLedger) Lookup(ctx context.Context, sessionKey string) (*SessionTicket, error) {
	key := TruncateSessionKey(sessionKey)

	var st SessionTicket
	err := l.db.QueryRowContext(ctx, `
		SELECT id, session_key, ticket, created_on, logged_in
		FROM session_tickets
		WHERE session_key = $1`,
		key).Scan(&st.ID, &st.SessionKey, &st.Ticket, &st.CreatedOn, &st.LoggedIn)
	if errors.Is(err, sql.ErrNoRows) {
		l.observe("lookup", "miss")
		return nil, nil
	}
	if err != nil {
		l.observe("lookup", "error")
		return nil, fmt.Errorf("failed to look up session ticket: %w", err)
	}

	l.observe("lookup", "hit")
	return &st, nil
}

// Remove deletes the mapping for a session key. Removing an absent key is
// a no-op.
func (l *SessionTicketLedger) Remove(ctx context.Context, sessionKey string) error {
	key := TruncateSessionKey(sessionKey)

	_, err := l.db.ExecContext(ctx,
		`DELETE FROM session_tickets WHERE session_key = $1`, key)
	if err != nil {
		l.observe("remove", "error")
		return fmt.Errorf("failed to remove session ticket: %w", err)
	}

	l.observe("remove", "ok")
	return nil
}

// CleanupOrphans deletes ledger rows whose sessions no longer exist in the
// session store. Returns the number of rows removed. Rows whose liveness
// cannot be determined are kept for the next sweep.
func (l *SessionTicketLedger) CleanupOrphans(ctx context.Context, sessions SessionChecker) (int, error) {
	if l.metrics != nil {
		l.metrics.OrphanSweepsTotal.Inc()
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT session_key FROM session_tickets`)
	if err != nil {
		return 0, fmt.Errorf("failed to list session tickets: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return 0, fmt.Errorf("failed to scan session ticket row: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate session tickets: %w", err)
	}

	removed := 0
	for _, key := range keys {
		alive, err := sessions.Exists(ctx, key)
		if err != nil {
			l.logger.WithError(err).WithField("session_key", key).
				Warn("could not check session liveness, keeping row")
			continue
		}
		if alive {
			continue
		}

		if err := l.Remove(ctx, key); err != nil {
			l.logger.WithError(err).WithField("session_key", key).
				Warn("failed to remove orphaned session ticket")
			continue
		}
		removed++
	}

	if l.metrics != nil {
		l.metrics.OrphansRemovedTotal.Add(float64(removed))
	}
	l.logger.WithFields(map[string]interface{}{
		"scanned": len(keys),
		"removed": removed,
	}).Info("orphaned session sweep finished")

	return removed, nil
}

func (l *SessionTicketLedger) observe(operation, status string) {
	if l.metrics != nil {
		l.metrics.LedgerOperationsTotal.WithLabelValues(operation, status).Inc()
	}
}
