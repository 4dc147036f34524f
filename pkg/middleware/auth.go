// Package middleware provides HTTP middleware for session loading,
// authentication enforcement and request identification.
package middleware

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dideher/secondments/pkg/auth"
	"github.com/dideher/secondments/pkg/contextkeys"
	"github.com/dideher/secondments/pkg/observability"
	"github.com/dideher/secondments/pkg/session"
)

// SessionAuth resolves the session cookie into a user and attaches both to
// the request context. Handlers behind RequireAuth are guaranteed a user;
// LoadUser merely annotates and lets anonymous requests through.
type SessionAuth struct {
	sessions session.Store
	cookies  *session.CookieManager
	users    auth.UserStore
	logger   *observability.Logger

	// LoginPath is where unauthenticated requests are redirected
	LoginPath string
}

// NewSessionAuth creates the session authentication middleware
func NewSessionAuth(sessions session.Store, cookies *session.CookieManager, users auth.UserStore, logger *observability.Logger) *SessionAuth {
	return &SessionAuth{
		sessions:  sessions,
		cookies:   cookies,
		users:     users,
		logger:    logger,
		LoginPath: "/accounts/login",
	}
}

// LoadUser resolves the session and user when a valid cookie is present.
// Requests without a session pass through untouched.
func (m *SessionAuth) LoadUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		key, ok := m.cookies.Read(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := m.sessions.Get(ctx, key)
		if err != nil {
			m.logger.WithError(err).Warn("session lookup failed")
			next.ServeHTTP(w, r)
			return
		}
		if sess == nil {
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.users.GetByID(ctx, sess.UserID)
		if err != nil {
			m.logger.WithError(err).Warn("user lookup failed")
			next.ServeHTTP(w, r)
			return
		}
		if user == nil || !user.CanAuthenticate() {
			next.ServeHTTP(w, r)
			return
		}

		ctx = contextkeys.WithValue(ctx, contextkeys.SessionKey, sess)
		ctx = contextkeys.WithValue(ctx, contextkeys.UserKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects anonymous requests by redirecting them to the login
// endpoint with the original URL as the next page
func (m *SessionAuth) RequireAuth(next http.Handler) http.Handler {
	return m.LoadUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			q := url.Values{}
			q.Set("next", r.URL.RequestURI())
			http.Redirect(w, r, m.LoginPath+"?"+q.Encode(), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// UserFromContext returns the authenticated user, or nil for anonymous
// requests
func UserFromContext(ctx context.Context) *auth.LocalUser {
	if user, ok := contextkeys.Value(ctx, contextkeys.UserKey).(*auth.LocalUser); ok {
		return user
	}
	return nil
}

// SessionFromContext returns the request's session, or nil when anonymous
func SessionFromContext(ctx context.Context) *session.Session {
	if sess, ok := contextkeys.Value(ctx, contextkeys.SessionKey).(*session.Session); ok {
		return sess
	}
	return nil
}
