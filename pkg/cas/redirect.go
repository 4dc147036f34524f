package cas

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/dideher/secondments/pkg/httputil"
)

// RedirectResolver computes safe next-page targets for the login and logout
// flows, enforcing a local-URL-only policy on caller-supplied destinations.
type RedirectResolver struct {
	// defaultURL is where users land when no referrer and no next page
	// are set
	defaultURL string
	// ignoreReferer skips the Referer fallback
	ignoreReferer bool
	// checkNext validates caller-supplied targets against the host
	checkNext bool
}

// NewRedirectResolver creates a resolver with the given policy
func NewRedirectResolver(defaultURL string, ignoreReferer, checkNext bool) *RedirectResolver {
	return &RedirectResolver{
		defaultURL:    defaultURL,
		ignoreReferer: ignoreReferer,
		checkNext:     checkNext,
	}
}

// ResolveNext returns the post-login/logout destination. A supplied candidate
// is validated (unless validation is disabled) and returned as-is; otherwise
// the referrer or the configured default is used, stripped to a path-relative
// target when it points at the request's own scheme and host.
func (rr *RedirectResolver) ResolveNext(r *http.Request, requested string) (string, error) {
	next, err := rr.CleanNextPage(r, requested)
	if err != nil {
		return "", err
	}
	if next != "" {
		return next, nil
	}
	return rr.fallback(r), nil
}

// CleanNextPage validates a caller-supplied next page. Empty input passes
// through; a non-local target yields ErrUnsafeRedirect.
func (rr *RedirectResolver) CleanNextPage(r *http.Request, next string) (string, error) {
	if next == "" {
		return next, nil
	}
	if rr.checkNext && !IsLocalURL(httputil.HostURL(r), next) {
		return "", ErrUnsafeRedirect
	}
	return next, nil
}

// fallback redirects to the referring page, or the configured default when
// no referrer is set or referrers are ignored.
func (rr *RedirectResolver) fallback(r *http.Request) string {
	next := rr.defaultURL
	if !rr.ignoreReferer {
		if referer := r.Header.Get("Referer"); referer != "" {
			next = referer
		}
	}

	prefix := (&url.URL{Scheme: httputil.Scheme(r), Host: r.Host}).String()
	if strings.HasPrefix(next, prefix) {
		next = next[len(prefix):]
	}
	return next
}

// IsLocalURL reports whether rawURL is local to hostURL. A URL without a
// network location is always local. Otherwise the network locations must
// match exactly, the scheme must match when the URL specifies one, and the
// URL path, slash-normalized, must start with the slash-normalized host path.
func IsLocalURL(hostURL, rawURL string) bool {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	if parsed.Host == "" {
		return true
	}

	host, err := url.Parse(hostURL)
	if err != nil {
		return false
	}
	if parsed.Host != host.Host {
		return false
	}
	if parsed.Scheme != "" && parsed.Scheme != host.Scheme {
		return false
	}

	return strings.HasPrefix(normalizePath(parsed.Path), normalizePath(host.Path))
}

// normalizePath guarantees a trailing slash so path comparison is
// directory-prefix based ("/app" never matches "/application")
func normalizePath(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}
