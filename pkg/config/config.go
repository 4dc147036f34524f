package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dideher/secondments/pkg/observability"
)

// Username case policies accepted by CASConfig.UsernameCase.
const (
	UsernameCaseLower = "lower"
	UsernameCaseUpper = "upper"
	UsernameCaseNone  = ""
)

// Config holds all application configuration. It is built once at process
// start and passed by reference; no component reads ambient global state.
type Config struct {
	// Server configuration
	Server ServerConfig

	// CAS proxy protocol configuration
	CAS CASConfig

	// Storage configuration
	Storage StorageConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// CASConfig holds every setting of the CAS proxy authentication flow
type CASConfig struct {
	// ProviderURL is the base URL of the CAS proxy identity provider
	ProviderURL string
	// AppName identifies this application to the provider
	AppName string
	// SecretKey is the shared HMAC secret for signed challenges
	SecretKey string

	// RedirectURL is where users land after login/logout when no referrer
	// and no next page are set
	RedirectURL string
	// RetryLogin redirects back to the provider when an unknown or invalid
	// ticket is received
	RetryLogin bool
	// IgnoreReferer always sends users to RedirectURL after logout instead
	// of the referring page
	IgnoreReferer bool
	// StoreNext keeps the post-login destination across the challenge
	// round-trip, which avoids encoding problems with some providers
	StoreNext bool
	// CreateUser creates a local user when CAS authentication succeeds
	CreateUser bool
	// CreateUserWithID creates users with the id supplied in the CAS
	// attributes; a missing id is a configuration error
	CreateUserWithID bool
	// UsernameCase is "lower", "upper" or empty (leave unchanged)
	UsernameCase string
	// ApplyAttributes copies CAS attributes onto the local user record
	ApplyAttributes bool
	// RenameAttributes maps provider attribute keys to local field names
	RenameAttributes map[string]string
	// LocalNameField looks users up by this field instead of the username
	// when CreateUser is disabled
	LocalNameField string
	// LogoutCompletely also terminates the upstream provider session on
	// logout
	LogoutCompletely bool
	// CheckNext restricts ?next= targets to local URLs
	CheckNext bool

	// VerifyTimeout bounds the out-of-band verification call
	VerifyTimeout time.Duration
	// CleanupSchedule is the cron expression for the orphaned session sweep
	CleanupSchedule string
}

// StorageConfig holds database and session store configuration
type StorageConfig struct {
	PostgresURL         string
	PostgresReplicaURLs string
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration

	RedisURL       string
	SessionTTL     time.Duration
	SessionCookie  string
	CacheSize      int
	CacheTTL       time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables. When
// SECONDMENTS_SETTINGS_FILE is set, map-valued settings (the attribute rename
// table) are read from that YAML file as well.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		CAS:           loadCASConfig(),
		Storage:       loadStorageConfig(),
		Observability: loadObservabilityConfig(),
	}

	if path := getEnv("SECONDMENTS_SETTINGS_FILE", ""); path != "" {
		if err := cfg.applySettingsFile(path); err != nil {
			return nil, fmt.Errorf("failed to load settings file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("SECONDMENTS_HOST", "0.0.0.0"),
		Port:            getEnv("SECONDMENTS_PORT", "8080"),
		ReadTimeout:     getEnvDuration("SECONDMENTS_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("SECONDMENTS_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("SECONDMENTS_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SECONDMENTS_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("SECONDMENTS_HEALTH_PORT", "9090"),
	}
}

// loadCASConfig loads CAS protocol configuration from environment. Defaults
// match a typical provider deployment: create users, lowercase usernames,
// apply attributes, full logout propagation.
func loadCASConfig() CASConfig {
	return CASConfig{
		ProviderURL:      getEnv("SECONDMENTS_CAS_PROVIDER_URL", ""),
		AppName:          getEnv("SECONDMENTS_CAS_APP_NAME", ""),
		SecretKey:        getEnv("SECONDMENTS_CAS_SECRET_KEY", ""),
		RedirectURL:      getEnv("SECONDMENTS_CAS_REDIRECT_URL", "/"),
		RetryLogin:       getEnvBool("SECONDMENTS_CAS_RETRY_LOGIN", false),
		IgnoreReferer:    getEnvBool("SECONDMENTS_CAS_IGNORE_REFERER", true),
		StoreNext:        getEnvBool("SECONDMENTS_CAS_STORE_NEXT", false),
		CreateUser:       getEnvBool("SECONDMENTS_CAS_CREATE_USER", true),
		CreateUserWithID: getEnvBool("SECONDMENTS_CAS_CREATE_USER_WITH_ID", false),
		UsernameCase:     getEnv("SECONDMENTS_CAS_USERNAME_CASE", UsernameCaseLower),
		ApplyAttributes:  getEnvBool("SECONDMENTS_CAS_APPLY_ATTRIBUTES", true),
		RenameAttributes: parseKeyValueList(getEnv("SECONDMENTS_CAS_RENAME_ATTRIBUTES", "")),
		LocalNameField:   getEnv("SECONDMENTS_CAS_LOCAL_NAME_FIELD", ""),
		LogoutCompletely: getEnvBool("SECONDMENTS_CAS_LOGOUT_COMPLETELY", true),
		CheckNext:        getEnvBool("SECONDMENTS_CAS_CHECK_NEXT", true),
		VerifyTimeout:    getEnvDuration("SECONDMENTS_CAS_VERIFY_TIMEOUT", 10*time.Second),
		CleanupSchedule:  getEnv("SECONDMENTS_CAS_CLEANUP_SCHEDULE", "@hourly"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() StorageConfig {
	return StorageConfig{
		PostgresURL:         getEnv("SECONDMENTS_POSTGRES_URL", ""),
		PostgresReplicaURLs: getEnv("SECONDMENTS_POSTGRES_REPLICA_URLS", ""),
		PostgresMaxConns:    getEnvInt("SECONDMENTS_POSTGRES_MAX_CONNS", 25),
		PostgresMinConns:    getEnvInt("SECONDMENTS_POSTGRES_MIN_CONNS", 5),
		PostgresTimeout:     getEnvDuration("SECONDMENTS_POSTGRES_TIMEOUT", 5*time.Second),
		RedisURL:            getEnv("SECONDMENTS_REDIS_URL", "redis://localhost:6379"),
		SessionTTL:          getEnvDuration("SECONDMENTS_SESSION_TTL", 24*time.Hour),
		SessionCookie:       getEnv("SECONDMENTS_SESSION_COOKIE", "secondments_session"),
		CacheSize:           getEnvInt("SECONDMENTS_SESSION_CACHE_SIZE", 1024),
		CacheTTL:            getEnvDuration("SECONDMENTS_SESSION_CACHE_TTL", time.Minute),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("SECONDMENTS_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("SECONDMENTS_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("SECONDMENTS_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("SECONDMENTS_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("SECONDMENTS_OTEL_SERVICE_NAME", "secondments"),
		OTelServiceVersion: getEnv("SECONDMENTS_OTEL_SERVICE_VERSION", "dev"),
		OTelInsecure:       getEnvBool("SECONDMENTS_OTEL_INSECURE", true),
	}
}

// settingsFile is the YAML shape of the optional settings file. Only settings
// that are awkward to express as environment variables live here.
type settingsFile struct {
	RenameAttributes map[string]string `yaml:"rename_attributes"`
	LocalNameField   string            `yaml:"local_name_field"`
}

// applySettingsFile overlays YAML-provided settings onto the config
func (c *Config) applySettingsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var sf settingsFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if len(sf.RenameAttributes) > 0 {
		c.CAS.RenameAttributes = sf.RenameAttributes
	}
	if sf.LocalNameField != "" {
		c.CAS.LocalNameField = sf.LocalNameField
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SECONDMENTS_PORT cannot be empty")
	}
	if c.CAS.ProviderURL == "" {
		return fmt.Errorf("SECONDMENTS_CAS_PROVIDER_URL is required")
	}
	if c.CAS.AppName == "" {
		return fmt.Errorf("SECONDMENTS_CAS_APP_NAME is required")
	}
	if c.CAS.SecretKey == "" {
		return fmt.Errorf("SECONDMENTS_CAS_SECRET_KEY is required")
	}
	switch c.CAS.UsernameCase {
	case UsernameCaseLower, UsernameCaseUpper, UsernameCaseNone:
	default:
		return fmt.Errorf("invalid value %q for SECONDMENTS_CAS_USERNAME_CASE: valid values are 'lower', 'upper' and empty", c.CAS.UsernameCase)
	}
	if c.CAS.VerifyTimeout <= 0 {
		return fmt.Errorf("SECONDMENTS_CAS_VERIFY_TIMEOUT must be positive")
	}
	if c.Storage.SessionTTL <= 0 {
		return fmt.Errorf("SECONDMENTS_SESSION_TTL must be positive")
	}
	return nil
}

// parseKeyValueList parses "from1=to1,from2=to2" into a rename table
func parseKeyValueList(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		out[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return out
}

// getEnv retrieves an environment variable or returns a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvBool retrieves a boolean environment variable
func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvInt retrieves an integer environment variable
func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvDuration retrieves a duration environment variable
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
