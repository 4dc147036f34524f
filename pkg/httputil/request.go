package httputil

import (
	"net/http"
	"net/url"
)

// ClientIP extracts the client IP, honoring reverse-proxy headers
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}

// Scheme returns "https" when the request arrived over TLS or through a
// TLS-terminating proxy, else "http"
func Scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" {
		return "https"
	}
	return "http"
}

// RequestURL reconstructs the absolute URL of the inbound request
func RequestURL(r *http.Request) string {
	u := url.URL{
		Scheme: Scheme(r),
		Host:   r.Host,
		Path:   r.URL.Path,
	}
	u.RawQuery = r.URL.RawQuery
	return u.String()
}

// HostURL returns the absolute root URL of the host serving the request,
// e.g. "https://site.example/"
func HostURL(r *http.Request) string {
	u := url.URL{
		Scheme: Scheme(r),
		Host:   r.Host,
		Path:   "/",
	}
	return u.String()
}
