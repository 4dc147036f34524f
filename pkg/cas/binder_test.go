package cas

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dideher/secondments/pkg/auth"
	"github.com/dideher/secondments/pkg/config"
)

// fakeUserStore is an in-memory UserStore for binder tests
type fakeUserStore struct {
	users  map[string]*auth.LocalUser
	nextID int64
	saved  []*auth.LocalUser
	calls  int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]*auth.LocalUser{}, nextID: 1}
}

func (s *fakeUserStore) GetByID(_ context.Context, id int64) (*auth.LocalUser, error) {
	s.calls++
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (s *fakeUserStore) GetByUsername(_ context.Context, username string) (*auth.LocalUser, error) {
	s.calls++
	return s.users[username], nil
}

func (s *fakeUserStore) GetByField(_ context.Context, field, value string) (*auth.LocalUser, error) {
	s.calls++
	for _, u := range s.users {
		if field == "email" && u.Email == value {
			return u, nil
		}
	}
	return nil, nil
}

func (s *fakeUserStore) GetOrCreate(_ context.Context, username string) (*auth.LocalUser, bool, error) {
	s.calls++
	if u, ok := s.users[username]; ok {
		return u, false, nil
	}
	u := &auth.LocalUser{ID: s.nextID, Username: username, IsActive: true}
	s.nextID++
	s.users[username] = u
	return u, true, nil
}

func (s *fakeUserStore) GetOrCreateWithID(_ context.Context, id int64, username string) (*auth.LocalUser, bool, error) {
	s.calls++
	if u, ok := s.users[username]; ok && u.ID == id {
		return u, false, nil
	}
	u := &auth.LocalUser{ID: id, Username: username, IsActive: true}
	s.users[username] = u
	return u, true, nil
}

func (s *fakeUserStore) Save(_ context.Context, user *auth.LocalUser) error {
	s.calls++
	s.saved = append(s.saved, user)
	return nil
}

func defaultBinderConfig() config.CASConfig {
	return config.CASConfig{
		CreateUser:      true,
		UsernameCase:    config.UsernameCaseLower,
		ApplyAttributes: true,
	}
}

func strptr(s string) *string { return &s }

func TestBindCreatesUser(t *testing.T) {
	store := newFakeUserStore()
	binder := NewIdentityBinder(store, defaultBinderConfig(), NewEventBroker(), testLogger())

	user, err := binder.Bind(context.Background(), &VerifiedIdentity{Username: "JDOE"}, "ST-1", nil)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "jdoe", user.Username, "username is lowercased by default")
}

func TestBindUsernameCasePolicies(t *testing.T) {
	tests := []struct {
		policy string
		want   string
	}{
		{config.UsernameCaseLower, "jdoe"},
		{config.UsernameCaseUpper, "JDOE"},
		{config.UsernameCaseNone, "jDoe"},
	}

	for _, tt := range tests {
		t.Run("policy "+tt.policy, func(t *testing.T) {
			cfg := defaultBinderConfig()
			cfg.UsernameCase = tt.policy
			binder := NewIdentityBinder(newFakeUserStore(), cfg, NewEventBroker(), testLogger())

			user, err := binder.Bind(context.Background(), &VerifiedIdentity{Username: "jDoe"}, "ST-1", nil)
			require.NoError(t, err)
			require.NotNil(t, user)
			assert.Equal(t, tt.want, user.Username)
		})
	}
}

func TestBindInvalidCasePolicy(t *testing.T) {
	cfg := defaultBinderConfig()
	cfg.UsernameCase = "title"
	store := newFakeUserStore()
	binder := NewIdentityBinder(store, cfg, NewEventBroker(), testLogger())

	_, err := binder.Bind(context.Background(), &VerifiedIdentity{Username: "jdoe"}, "ST-1", nil)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Zero(t, store.calls, "bad policy must fail before any store access")
}

func TestBindEmptyUsername(t *testing.T) {
	binder := NewIdentityBinder(newFakeUserStore(), defaultBinderConfig(), NewEventBroker(), testLogger())

	user, err := binder.Bind(context.Background(), &VerifiedIdentity{Username: ""}, "ST-1", nil)
	require.NoError(t, err)
	assert.Nil(t, user)

	user, err = binder.Bind(context.Background(), nil, "ST-1", nil)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestBindAppliesAttributes(t *testing.T) {
	store := newFakeUserStore()
	binder := NewIdentityBinder(store, defaultBinderConfig(), NewEventBroker(), testLogger())

	identity := &VerifiedIdentity{
		Username: "jdoe",
		Attributes: map[string]*string{
			"email":      strptr("jdoe@example.org"),
			"first_name": strptr("John"),
			"last_name":  nil,
			"is_staff":   strptr("True"),
			"is_active":  strptr("yes"),
			"department": strptr("physics"),
			"clearance":  nil,
		},
	}

	user, err := binder.Bind(context.Background(), identity, "ST-1", nil)
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.Equal(t, "jdoe@example.org", user.Email)
	assert.Equal(t, "John", user.FirstName)
	assert.Empty(t, user.LastName, "null string attributes become empty")
	assert.True(t, user.IsStaff, `"True" is the only truthy boolean encoding`)
	assert.False(t, user.IsActive, `"yes" is not a truthy boolean encoding`)
	assert.Equal(t, "physics", user.Attributes["department"])
	assert.NotContains(t, user.Attributes, "clearance", "null unknown attributes are dropped")

	require.Len(t, store.saved, 1, "applied attributes are persisted")
}

func TestBindRenameAttributes(t *testing.T) {
	cfg := defaultBinderConfig()
	cfg.RenameAttributes = map[string]string{"ln": "last_name", "same": "same"}
	store := newFakeUserStore()
	binder := NewIdentityBinder(store, cfg, NewEventBroker(), testLogger())

	identity := &VerifiedIdentity{
		Username: "jdoe",
		Attributes: map[string]*string{
			"ln":   strptr("Doe"),
			"same": strptr("kept"),
		},
	}

	user, err := binder.Bind(context.Background(), identity, "ST-1", nil)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "Doe", user.LastName)
	assert.Equal(t, "kept", user.Attributes["same"], "identity renames are skipped, value survives")
}

func TestBindCreateUserWithID(t *testing.T) {
	cfg := defaultBinderConfig()
	cfg.CreateUserWithID = true
	store := newFakeUserStore()
	binder := NewIdentityBinder(store, cfg, NewEventBroker(), testLogger())

	t.Run("no attributes", func(t *testing.T) {
		_, err := binder.Bind(context.Background(), &VerifiedIdentity{Username: "jdoe"}, "ST-1", nil)
		require.Error(t, err)
		assert.True(t, IsConfigError(err))
	})

	t.Run("missing id", func(t *testing.T) {
		identity := &VerifiedIdentity{Username: "jdoe", Attributes: map[string]*string{"email": strptr("x@y")}}
		_, err := binder.Bind(context.Background(), identity, "ST-1", nil)
		require.Error(t, err)
		assert.True(t, IsConfigError(err))
	})

	t.Run("non-numeric id", func(t *testing.T) {
		identity := &VerifiedIdentity{Username: "jdoe", Attributes: map[string]*string{"id": strptr("abc")}}
		_, err := binder.Bind(context.Background(), identity, "ST-1", nil)
		require.Error(t, err)
		assert.True(t, IsConfigError(err))
	})

	t.Run("valid id", func(t *testing.T) {
		identity := &VerifiedIdentity{Username: "jdoe", Attributes: map[string]*string{"id": strptr("4242")}}
		user, err := binder.Bind(context.Background(), identity, "ST-1", nil)
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, int64(4242), user.ID)
	})
}

func TestBindRejectsInactiveUser(t *testing.T) {
	store := newFakeUserStore()
	store.users["jdoe"] = &auth.LocalUser{ID: 1, Username: "jdoe", IsActive: false}
	binder := NewIdentityBinder(store, defaultBinderConfig(), NewEventBroker(), testLogger())

	user, err := binder.Bind(context.Background(), &VerifiedIdentity{Username: "jdoe"}, "ST-1", nil)
	require.NoError(t, err)
	assert.Nil(t, user, "inactive users are a rejection, not an error")
}

func TestBindNoCreateLookups(t *testing.T) {
	t.Run("unknown user rejected", func(t *testing.T) {
		cfg := defaultBinderConfig()
		cfg.CreateUser = false
		binder := NewIdentityBinder(newFakeUserStore(), cfg, NewEventBroker(), testLogger())

		user, err := binder.Bind(context.Background(), &VerifiedIdentity{Username: "ghost"}, "ST-1", nil)
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("alternate field lookup", func(t *testing.T) {
		cfg := defaultBinderConfig()
		cfg.CreateUser = false
		cfg.LocalNameField = "email"
		store := newFakeUserStore()
		store.users["existing"] = &auth.LocalUser{ID: 7, Username: "existing", Email: "jdoe@example.org", IsActive: true}
		binder := NewIdentityBinder(store, cfg, NewEventBroker(), testLogger())

		user, err := binder.Bind(context.Background(), &VerifiedIdentity{Username: "jdoe@example.org"}, "ST-1", nil)
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, int64(7), user.ID)
	})

	t.Run("attributes applied but never saved", func(t *testing.T) {
		cfg := defaultBinderConfig()
		cfg.CreateUser = false
		store := newFakeUserStore()
		store.users["jdoe"] = &auth.LocalUser{ID: 1, Username: "jdoe", IsActive: true}
		binder := NewIdentityBinder(store, cfg, NewEventBroker(), testLogger())

		identity := &VerifiedIdentity{Username: "jdoe", Attributes: map[string]*string{"email": strptr("x@y")}}
		user, err := binder.Bind(context.Background(), identity, "ST-1", nil)
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "x@y", user.Email)
		assert.Empty(t, store.saved, "foreign user records are not persisted")
	})
}

func TestBindConfigureUserHook(t *testing.T) {
	store := newFakeUserStore()
	binder := NewIdentityBinder(store, defaultBinderConfig(), NewEventBroker(), testLogger())

	var configured []string
	binder.ConfigureUser = func(_ context.Context, user *auth.LocalUser) (*auth.LocalUser, error) {
		configured = append(configured, user.Username)
		return user, nil
	}

	_, err := binder.Bind(context.Background(), &VerifiedIdentity{Username: "jdoe"}, "ST-1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"jdoe"}, configured)

	// Hook runs once: the second login finds an existing user
	_, err = binder.Bind(context.Background(), &VerifiedIdentity{Username: "jdoe"}, "ST-2", nil)
	require.NoError(t, err)
	assert.Len(t, configured, 1)
}

func TestBindConfigureUserHookError(t *testing.T) {
	binder := NewIdentityBinder(newFakeUserStore(), defaultBinderConfig(), NewEventBroker(), testLogger())
	binder.ConfigureUser = func(context.Context, *auth.LocalUser) (*auth.LocalUser, error) {
		return nil, fmt.Errorf("ldap unreachable")
	}

	_, err := binder.Bind(context.Background(), &VerifiedIdentity{Username: "jdoe"}, "ST-1", nil)
	assert.Error(t, err)
}

func TestBindEmitsEvent(t *testing.T) {
	broker := NewEventBroker()
	var events []*Event
	broker.Subscribe(ListenerFunc(func(_ context.Context, e *Event) {
		events = append(events, e)
	}))

	binder := NewIdentityBinder(newFakeUserStore(), defaultBinderConfig(), broker, testLogger())

	identity := &VerifiedIdentity{
		Username:   "JDoe",
		Attributes: map[string]*string{"email": strptr("x@y"), "nick": nil},
	}
	_, err := binder.Bind(context.Background(), identity, "ST-1", nil)
	require.NoError(t, err)

	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, EventAuthenticated, e.Type)
	assert.True(t, e.Created)
	assert.Equal(t, "jdoe", e.Username)
	assert.Equal(t, "ST-1", e.Ticket)
	assert.Equal(t, "x@y", e.Attributes["email"])
	assert.Equal(t, "", e.Attributes["nick"], "null attribute values flatten to empty strings")
	assert.False(t, e.OccurredAt.IsZero())
}
