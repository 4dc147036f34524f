package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/dideher/secondments/pkg/contextkeys"
	"github.com/dideher/secondments/pkg/observability"
)

const requestIDHeader = "X-Request-ID"

// RequestID assigns each request a UUID, honoring an inbound header from a
// trusted proxy, and attaches a request-scoped logger to the context.
func RequestID(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.New().String()
			}
			w.Header().Set(requestIDHeader, id)

			ctx := contextkeys.WithValue(r.Context(), contextkeys.RequestIDKey, id)
			ctx = observability.WithLogger(ctx, logger.WithField("request_id", id))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
