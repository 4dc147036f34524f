package auth

import "time"

// LocalUser is the application's identity record. Fields mirror the upstream
// user model; provider attributes with no matching field are kept in
// Attributes and persisted as JSONB.
type LocalUser struct {
	ID         int64      `json:"id"`
	Username   string     `json:"username"`
	Email      string     `json:"email,omitempty"`
	FirstName  string     `json:"first_name,omitempty"`
	LastName   string     `json:"last_name,omitempty"`
	IsActive   bool       `json:"is_active"`
	IsStaff    bool       `json:"is_staff"`
	DateJoined time.Time  `json:"date_joined"`
	LastLogin  *time.Time `json:"last_login,omitempty"`

	// Attributes holds provider attributes that do not project onto a
	// typed field above
	Attributes map[string]string `json:"attributes,omitempty"`
}

// CanAuthenticate rejects users with is_active=false
func (u *LocalUser) CanAuthenticate() bool {
	if u == nil {
		return false
	}
	return u.IsActive
}
