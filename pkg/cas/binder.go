package cas

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dideher/secondments/pkg/auth"
	"github.com/dideher/secondments/pkg/config"
	"github.com/dideher/secondments/pkg/observability"
)

// fieldSetters is the allow-listed projection from attribute keys onto typed
// LocalUser fields. String fields coerce null to the empty string; boolean
// fields coerce the string "True" to true and anything else to false. The
// primary key is deliberately absent: it is only consumed at creation time.
var fieldSetters = map[string]func(u *auth.LocalUser, v *string){
	"username":   func(u *auth.LocalUser, v *string) { u.Username = stringValue(v) },
	"email":      func(u *auth.LocalUser, v *string) { u.Email = stringValue(v) },
	"first_name": func(u *auth.LocalUser, v *string) { u.FirstName = stringValue(v) },
	"last_name":  func(u *auth.LocalUser, v *string) { u.LastName = stringValue(v) },
	"is_active":  func(u *auth.LocalUser, v *string) { u.IsActive = boolValue(v) },
	"is_staff":   func(u *auth.LocalUser, v *string) { u.IsStaff = boolValue(v) },
}

// IdentityBinder maps verified identities onto local user records:
// create-or-fetch, case normalization, attribute projection and the
// id-based creation policy.
type IdentityBinder struct {
	store  auth.UserStore
	cfg    config.CASConfig
	broker *EventBroker
	logger *observability.Logger

	// ConfigureUser is invoked once after a user is created, for custom
	// setup actions. The default is a no-op.
	ConfigureUser func(ctx context.Context, user *auth.LocalUser) (*auth.LocalUser, error)

	// CanAuthenticate gates resolved users. The default rejects users
	// with is_active=false.
	CanAuthenticate func(user *auth.LocalUser) bool
}

// NewIdentityBinder creates a binder over the given user store
func NewIdentityBinder(store auth.UserStore, cfg config.CASConfig, broker *EventBroker, logger *observability.Logger) *IdentityBinder {
	return &IdentityBinder{
		store:  store,
		cfg:    cfg,
		broker: broker,
		logger: logger,
		CanAuthenticate: func(user *auth.LocalUser) bool {
			return user.CanAuthenticate()
		},
	}
}

// Bind resolves a verified identity to a local user. A nil result with a nil
// error is a binding rejection (unknown user, inactive user): an expected
// outcome that drives the caller's retry/reject branch. Configuration errors
// are returned as *ConfigError and must abort the request.
func (b *IdentityBinder) Bind(ctx context.Context, identity *VerifiedIdentity, ticket string, r *http.Request) (*auth.LocalUser, error) {
	if identity == nil || identity.Username == "" {
		return nil, nil
	}

	username, err := b.cleanUsername(identity.Username)
	if err != nil {
		return nil, err
	}

	attributes := b.renameAttributes(identity.Attributes)

	var (
		user    *auth.LocalUser
		created bool
	)

	if b.cfg.CreateUser {
		if b.cfg.CreateUserWithID {
			id, err := b.userIDFromAttributes(attributes)
			if err != nil {
				return nil, err
			}
			user, created, err = b.store.GetOrCreateWithID(ctx, id, username)
			if err != nil {
				return nil, fmt.Errorf("failed to get or create user %q: %w", username, err)
			}
		} else {
			user, created, err = b.store.GetOrCreate(ctx, username)
			if err != nil {
				return nil, fmt.Errorf("failed to get or create user %q: %w", username, err)
			}
		}

		if created && b.ConfigureUser != nil {
			user, err = b.ConfigureUser(ctx, user)
			if err != nil {
				return nil, fmt.Errorf("user configuration hook failed: %w", err)
			}
		}
	} else {
		if b.cfg.LocalNameField != "" {
			user, err = b.store.GetByField(ctx, b.cfg.LocalNameField, username)
		} else {
			user, err = b.store.GetByUsername(ctx, username)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up user %q: %w", username, err)
		}
	}

	if user == nil || !b.CanAuthenticate(user) {
		b.logger.WithField("username", username).Info("binding rejected")
		return nil, nil
	}

	if b.cfg.ApplyAttributes && len(attributes) > 0 {
		b.applyAttributes(user, attributes)

		// Only persist when we own a local copy of the user record
		if b.cfg.CreateUser {
			if err := b.store.Save(ctx, user); err != nil {
				return nil, fmt.Errorf("failed to save user %q: %w", username, err)
			}
		}
	}

	b.broker.Notify(ctx, &Event{
		Type:       EventAuthenticated,
		User:       user,
		Created:    created,
		Username:   username,
		Attributes: flattenAttributes(attributes),
		Ticket:     ticket,
		RemoteAddr: remoteAddr(r),
		UserAgent:  userAgent(r),
	})

	return user, nil
}

// cleanUsername normalizes the username per the configured case policy. Any
// other policy value is a deployment misconfiguration and fails before any
// store access.
func (b *IdentityBinder) cleanUsername(username string) (string, error) {
	switch b.cfg.UsernameCase {
	case config.UsernameCaseLower:
		return strings.ToLower(username), nil
	case config.UsernameCaseUpper:
		return strings.ToUpper(username), nil
	case config.UsernameCaseNone:
		return username, nil
	default:
		return "", NewConfigError("username case policy",
			fmt.Sprintf("invalid value %q: valid values are 'lower', 'upper' and empty", b.cfg.UsernameCase))
	}
}

// renameAttributes applies the configured rename table. Renames where source
// equals target are skipped; unmatched keys pass through untouched.
func (b *IdentityBinder) renameAttributes(attributes map[string]*string) map[string]*string {
	if attributes == nil {
		return nil
	}

	out := make(map[string]*string, len(attributes))
	for key, value := range attributes {
		out[key] = value
	}
	for source, target := range b.cfg.RenameAttributes {
		if source == target {
			continue
		}
		if value, ok := out[source]; ok {
			out[target] = value
			delete(out, source)
		}
	}
	return out
}

// userIDFromAttributes extracts the externally assigned user id. Missing
// attributes or a missing id are configuration errors: auto-assigned ids are
// forbidden in this mode so that primary keys stay aligned with the provider.
func (b *IdentityBinder) userIDFromAttributes(attributes map[string]*string) (int64, error) {
	if len(attributes) == 0 {
		return 0, NewConfigError("create user with id",
			"enabled, but no attributes were provided")
	}

	raw, ok := attributes["id"]
	if !ok || raw == nil || *raw == "" {
		return 0, NewConfigError("create user with id",
			"enabled, but 'id' is not part of attributes")
	}

	id, err := strconv.ParseInt(*raw, 10, 64)
	if err != nil {
		return 0, NewConfigError("create user with id",
			fmt.Sprintf("attribute 'id' is not numeric: %q", *raw))
	}
	return id, nil
}

// applyAttributes projects the attribute mapping onto the user. Keys with a
// typed setter are coerced and applied; unknown keys are applied verbatim
// into the user's attributes overflow.
func (b *IdentityBinder) applyAttributes(user *auth.LocalUser, attributes map[string]*string) {
	for key, value := range attributes {
		if key == "id" {
			continue
		}
		if setter, ok := fieldSetters[key]; ok {
			setter(user, value)
			continue
		}
		if value == nil {
			continue
		}
		if user.Attributes == nil {
			user.Attributes = make(map[string]string)
		}
		user.Attributes[key] = *value
	}
}

// flattenAttributes renders the attribute mapping for event consumers,
// coercing nulls to empty strings
func flattenAttributes(attributes map[string]*string) map[string]string {
	if attributes == nil {
		return nil
	}
	out := make(map[string]string, len(attributes))
	for key, value := range attributes {
		out[key] = stringValue(value)
	}
	return out
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func boolValue(v *string) bool {
	return v != nil && *v == "True"
}

func remoteAddr(r *http.Request) string {
	if r == nil {
		return ""
	}
	return r.RemoteAddr
}

func userAgent(r *http.Request) string {
	if r == nil {
		return ""
	}
	return r.UserAgent()
}
