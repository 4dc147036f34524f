package session

import (
	"net/http"
	"time"
)

// CookieManager reads and writes the session cookie
type CookieManager struct {
	Name   string
	Path   string
	MaxAge time.Duration
	Secure bool
}

// NewCookieManager creates a cookie manager with the given name and lifetime
func NewCookieManager(name string, maxAge time.Duration, secure bool) *CookieManager {
	return &CookieManager{
		Name:   name,
		Path:   "/",
		MaxAge: maxAge,
		Secure: secure,
	}
}

// Read returns the session key from the request cookie, or false when the
// cookie is absent or empty
func (c *CookieManager) Read(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(c.Name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// Set writes the session cookie
func (c *CookieManager) Set(w http.ResponseWriter, key string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    key,
		Path:     c.Path,
		MaxAge:   int(c.MaxAge.Seconds()),
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the session cookie
func (c *CookieManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     c.Path,
		MaxAge:   -1,
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
