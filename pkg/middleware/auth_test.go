package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dideher/secondments/pkg/auth"
	"github.com/dideher/secondments/pkg/observability"
	"github.com/dideher/secondments/pkg/session"
)

type stubSessions map[string]*session.Session

func (s stubSessions) Create(context.Context, int64, string) (*session.Session, error) {
	return nil, nil
}
func (s stubSessions) Get(_ context.Context, key string) (*session.Session, error) {
	return s[key], nil
}
func (s stubSessions) Save(context.Context, *session.Session) error { return nil }
func (s stubSessions) Delete(context.Context, string) error         { return nil }
func (s stubSessions) Exists(context.Context, string) (bool, error) { return false, nil }

type stubUsers map[int64]*auth.LocalUser

func (s stubUsers) GetByID(_ context.Context, id int64) (*auth.LocalUser, error) { return s[id], nil }
func (s stubUsers) GetByUsername(context.Context, string) (*auth.LocalUser, error) {
	return nil, nil
}
func (s stubUsers) GetByField(context.Context, string, string) (*auth.LocalUser, error) {
	return nil, nil
}
func (s stubUsers) GetOrCreate(context.Context, string) (*auth.LocalUser, bool, error) {
	return nil, false, nil
}
func (s stubUsers) GetOrCreateWithID(context.Context, int64, string) (*auth.LocalUser, bool, error) {
	return nil, false, nil
}
func (s stubUsers) Save(context.Context, *auth.LocalUser) error { return nil }

func newTestAuth() (*SessionAuth, stubSessions, stubUsers) {
	sessions := stubSessions{}
	users := stubUsers{}
	cookies := session.NewCookieManager("test_session", time.Hour, false)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewSessionAuth(sessions, cookies, users, logger), sessions, users
}

func TestLoadUserAttachesContext(t *testing.T) {
	m, sessions, users := newTestAuth()
	sessions["sess-1"] = &session.Session{Key: "sess-1", UserID: 7, Username: "jdoe"}
	users[7] = &auth.LocalUser{ID: 7, Username: "jdoe", IsActive: true}

	var gotUser *auth.LocalUser
	var gotSession *session.Session
	handler := m.LoadUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserFromContext(r.Context())
		gotSession = SessionFromContext(r.Context())
	}))

	r := httptest.NewRequest("GET", "/reports", nil)
	r.AddCookie(&http.Cookie{Name: "test_session", Value: "sess-1"})
	handler.ServeHTTP(httptest.NewRecorder(), r)

	require.NotNil(t, gotUser)
	assert.Equal(t, "jdoe", gotUser.Username)
	require.NotNil(t, gotSession)
	assert.Equal(t, "sess-1", gotSession.Key)
}

func TestLoadUserAnonymousPassesThrough(t *testing.T) {
	m, _, _ := newTestAuth()

	var called bool
	handler := m.LoadUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Nil(t, UserFromContext(r.Context()))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/reports", nil))
	assert.True(t, called)
}

func TestLoadUserInactiveUserStaysAnonymous(t *testing.T) {
	m, sessions, users := newTestAuth()
	sessions["sess-1"] = &session.Session{Key: "sess-1", UserID: 7}
	users[7] = &auth.LocalUser{ID: 7, IsActive: false}

	handler := m.LoadUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Nil(t, UserFromContext(r.Context()), "deactivated users lose their sessions")
	}))

	r := httptest.NewRequest("GET", "/reports", nil)
	r.AddCookie(&http.Cookie{Name: "test_session", Value: "sess-1"})
	handler.ServeHTTP(httptest.NewRecorder(), r)
}

func TestRequireAuthRedirects(t *testing.T) {
	m, _, _ := newTestAuth()

	handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for anonymous requests")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/reports?year=2026", nil))

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/accounts/login?next=%2Freports%3Fyear%3D2026", w.Header().Get("Location"))
}

func TestRequireAuthAllowsAuthenticated(t *testing.T) {
	m, sessions, users := newTestAuth()
	sessions["sess-1"] = &session.Session{Key: "sess-1", UserID: 7}
	users[7] = &auth.LocalUser{ID: 7, Username: "jdoe", IsActive: true}

	var called bool
	handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	r := httptest.NewRequest("GET", "/reports", nil)
	r.AddCookie(&http.Cookie{Name: "test_session", Value: "sess-1"})
	handler.ServeHTTP(httptest.NewRecorder(), r)
	assert.True(t, called)
}
