package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SECONDMENTS_CAS_PROVIDER_URL", "https://sso.example")
	t.Setenv("SECONDMENTS_CAS_APP_NAME", "payroll")
	t.Setenv("SECONDMENTS_CAS_SECRET_KEY", "secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "/", cfg.CAS.RedirectURL)
	assert.False(t, cfg.CAS.RetryLogin)
	assert.True(t, cfg.CAS.IgnoreReferer)
	assert.False(t, cfg.CAS.StoreNext)
	assert.True(t, cfg.CAS.CreateUser)
	assert.False(t, cfg.CAS.CreateUserWithID)
	assert.Equal(t, UsernameCaseLower, cfg.CAS.UsernameCase)
	assert.True(t, cfg.CAS.ApplyAttributes)
	assert.True(t, cfg.CAS.LogoutCompletely)
	assert.True(t, cfg.CAS.CheckNext)
	assert.Equal(t, 10*time.Second, cfg.CAS.VerifyTimeout)
	assert.Equal(t, "@hourly", cfg.CAS.CleanupSchedule)
	assert.Equal(t, 24*time.Hour, cfg.Storage.SessionTTL)
}

func TestLoadConfigMissingRequired(t *testing.T) {
	tests := []struct {
		name string
		omit string
	}{
		{"provider url", "SECONDMENTS_CAS_PROVIDER_URL"},
		{"app name", "SECONDMENTS_CAS_APP_NAME"},
		{"secret key", "SECONDMENTS_CAS_SECRET_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.omit, "")

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigInvalidUsernameCase(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SECONDMENTS_CAS_USERNAME_CASE", "title")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SECONDMENTS_CAS_USERNAME_CASE")
}

func TestLoadConfigRenameAttributesEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SECONDMENTS_CAS_RENAME_ATTRIBUTES", "ln=last_name, fn=first_name")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ln": "last_name", "fn": "first_name"}, cfg.CAS.RenameAttributes)
}

func TestLoadConfigSettingsFile(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"rename_attributes:\n  ln: last_name\nlocal_name_field: email\n"), 0o600))
	t.Setenv("SECONDMENTS_SETTINGS_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"ln": "last_name"}, cfg.CAS.RenameAttributes)
	assert.Equal(t, "email", cfg.CAS.LocalNameField)
}

func TestLoadConfigSettingsFileMissing(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SECONDMENTS_SETTINGS_FILE", "/does/not/exist.yaml")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestParseKeyValueList(t *testing.T) {
	assert.Empty(t, parseKeyValueList(""))
	assert.Equal(t, map[string]string{"a": "b"}, parseKeyValueList("a=b"))
	assert.Equal(t, map[string]string{"a": "b", "c": "d"}, parseKeyValueList("a=b,c=d"))
	assert.Empty(t, parseKeyValueList("garbage"), "pairs without a separator are skipped")
}
