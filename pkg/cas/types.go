package cas

import "time"

// SessionKeyMaxLength caps ledger session keys. Some session backends
// (signed cookies) produce keys longer than this; they are prefix-truncated
// identically on every read and write.
const SessionKeyMaxLength = 1024

// SignedChallenge is the ephemeral, HMAC-signed nonce sent to the provider to
// authenticate proxy calls. It is regenerated per request and never stored.
type SignedChallenge struct {
	// Digest is the hex HMAC-SHA256 over the application name plus a
	// random nonce, computed with the shared secret
	Digest string `json:"d"`
	// IssuedFor is the application name the digest was computed for
	IssuedFor string `json:"issued_for"`
}

// VerifiedIdentity is the transient result of a successful ticket
// verification. Attribute values may be null on the wire.
type VerifiedIdentity struct {
	Username   string             `json:"u"`
	Attributes map[string]*string `json:"a,omitempty"`
}

// SessionTicket maps a local session key to the CAS ticket that
// authenticated it. One row per active authenticated session.
type SessionTicket struct {
	ID         int64     `json:"id"`
	SessionKey string    `json:"session_key"`
	Ticket     string    `json:"ticket"`
	CreatedOn  time.Time `json:"created_on"`
	LoggedIn   time.Time `json:"logged_in"`
}

// TruncateSessionKey prefix-truncates a session key to SessionKeyMaxLength
// so over-length keys resolve identically on record and lookup.
func TruncateSessionKey(key string) string {
	if len(key) > SessionKeyMaxLength {
		return key[:SessionKeyMaxLength]
	}
	return key
}
