package cas

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsLocalURL(t *testing.T) {
	tests := []struct {
		name    string
		hostURL string
		rawURL  string
		want    bool
	}{
		{"relative path", "https://site.example/", "/dashboard", true},
		{"same host", "https://site.example/", "https://site.example/dashboard", true},
		{"same host no scheme", "https://site.example/", "//site.example/dashboard", true},
		{"other host", "https://site.example/", "https://evil.example/", false},
		{"other scheme", "https://site.example/", "http://site.example/", false},
		{"subdomain", "https://site.example/", "https://sub.site.example/", false},
		{"host path prefix", "https://site.example/app/", "https://site.example/app/page", true},
		{"outside host path", "https://site.example/app/", "https://site.example/other", false},
		{"path prefix is not directory prefix", "https://site.example/app/", "https://site.example/application", false},
		{"empty", "https://site.example/", "", true},
		{"whitespace trimmed", "https://site.example/", "  /dashboard  ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsLocalURL(tt.hostURL, tt.rawURL))
		})
	}
}

func TestCleanNextPage(t *testing.T) {
	rr := NewRedirectResolver("/", true, true)
	r := httptest.NewRequest("GET", "https://site.example/accounts/login", nil)
	r.Host = "site.example"

	next, err := rr.CleanNextPage(r, "/dashboard")
	require.NoError(t, err)
	assert.Equal(t, "/dashboard", next)

	_, err = rr.CleanNextPage(r, "https://evil.example/")
	assert.ErrorIs(t, err, ErrUnsafeRedirect)

	next, err = rr.CleanNextPage(r, "")
	require.NoError(t, err)
	assert.Empty(t, next)
}

func TestCleanNextPageCheckDisabled(t *testing.T) {
	rr := NewRedirectResolver("/", true, false)
	r := httptest.NewRequest("GET", "https://site.example/accounts/login", nil)

	next, err := rr.CleanNextPage(r, "https://evil.example/")
	require.NoError(t, err)
	assert.Equal(t, "https://evil.example/", next)
}

func TestResolveNextFallback(t *testing.T) {
	t.Run("default when referrers ignored", func(t *testing.T) {
		rr := NewRedirectResolver("/home", true, true)
		r := httptest.NewRequest("GET", "https://site.example/accounts/logout", nil)
		r.Header.Set("Referer", "https://site.example/somewhere")

		next, err := rr.ResolveNext(r, "")
		require.NoError(t, err)
		assert.Equal(t, "/home", next)
	})

	t.Run("referrer stripped to local path", func(t *testing.T) {
		rr := NewRedirectResolver("/home", false, true)
		r := httptest.NewRequest("GET", "https://site.example/accounts/logout", nil)
		r.Host = "site.example"
		r.Header.Set("Referer", "https://site.example/somewhere")

		next, err := rr.ResolveNext(r, "")
		require.NoError(t, err)
		assert.Equal(t, "/somewhere", next)
	})

	t.Run("foreign referrer kept absolute", func(t *testing.T) {
		rr := NewRedirectResolver("/home", false, true)
		r := httptest.NewRequest("GET", "https://site.example/accounts/logout", nil)
		r.Host = "site.example"
		r.Header.Set("Referer", "https://other.example/page")

		next, err := rr.ResolveNext(r, "")
		require.NoError(t, err)
		assert.Equal(t, "https://other.example/page", next)
	})

	t.Run("requested target wins", func(t *testing.T) {
		rr := NewRedirectResolver("/home", true, true)
		r := httptest.NewRequest("GET", "https://site.example/accounts/login", nil)
		r.Host = "site.example"

		next, err := rr.ResolveNext(r, "/reports")
		require.NoError(t, err)
		assert.Equal(t, "/reports", next)
	})
}
