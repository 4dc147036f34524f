package cas

import (
	"fmt"
	"net/url"
	"strings"
)

// ProviderEndpoints builds the outbound URLs of the CAS provider
type ProviderEndpoints struct {
	baseURL string
	appName string
}

// NewProviderEndpoints creates URL builders for the given provider base URL
// and application name
func NewProviderEndpoints(baseURL, appName string) *ProviderEndpoints {
	return &ProviderEndpoints{
		baseURL: strings.TrimRight(baseURL, "/"),
		appName: appName,
	}
}

// LoginURL is the browser redirect target for the login challenge
func (p *ProviderEndpoints) LoginURL(digest, requestURL string) string {
	params := url.Values{}
	params.Set("d", digest)
	params.Set("u", requestURL)
	return fmt.Sprintf("%s/login/%s?%s", p.baseURL, p.appName, params.Encode())
}

// VerifyURL is the out-of-band ticket verification endpoint
func (p *ProviderEndpoints) VerifyURL() string {
	return fmt.Sprintf("%s/login/%s/verify", p.baseURL, p.appName)
}

// LogoutURL is the browser redirect target for upstream logout propagation
func (p *ProviderEndpoints) LogoutURL(requestURL, ticket string) string {
	params := url.Values{}
	params.Set("u", requestURL)
	params.Set("t", ticket)
	params.Set("app", p.appName)
	return fmt.Sprintf("%s/logout?%s", p.baseURL, params.Encode())
}
