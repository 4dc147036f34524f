package cas

import (
	"errors"
	"fmt"
)

// ErrUnsafeRedirect signals that a ?next= target pointed outside the host
// application. Recovered by falling back to the configured default or
// surfaced as a bad request.
var ErrUnsafeRedirect = errors.New("non-local url is forbidden to be redirected to")

// ErrLoginFailed is the terminal denial when a ticket cannot be verified or
// bound and retrying is disabled.
var ErrLoginFailed = errors.New("login failed")

// ConfigError reports deployment misconfiguration. It is fatal: it must
// propagate to the top of the request and never be retried.
type ConfigError struct {
	Setting string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("improperly configured: %s: %s", e.Setting, e.Reason)
}

// NewConfigError creates a ConfigError for the named setting
func NewConfigError(setting, reason string) *ConfigError {
	return &ConfigError{Setting: setting, Reason: reason}
}

// IsConfigError reports whether err is a configuration error
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
