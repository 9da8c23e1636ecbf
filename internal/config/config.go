package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/otplogin/internal/constants"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	ServerAddress string
	Environment   string
	LogJSON       bool
	DatabaseURL   string // SQLite file path or postgres:// DSN

	// ExposeErrorDetails controls whether server error pages include the
	// underlying error text. Off in production unless explicitly enabled.
	ExposeErrorDetails bool

	Stytch    StytchConfig
	Session   SessionConfig
	SMS       SMSConfig
	Telemetry TelemetryConfig
}

// StytchConfig holds Stytch API credentials
type StytchConfig struct {
	ProjectID string
	Secret    string
	Env       string // "test" or "live"
	BaseURL   string // Optional override of the API host
}

// SessionConfig holds session cookie configuration
type SessionConfig struct {
	Secret       string
	CookieName   string
	CookieDomain string
	SecureCookie bool
}

// SMSConfig holds SMS login configuration
type SMSConfig struct {
	SupportedCountries []string
}

// TelemetryConfig holds OpenTelemetry exporter configuration
type TelemetryConfig struct {
	OTLPEndpoint string
	Insecure     bool
	ServiceName  string
}

const (
	devSessionSecret   = "dev-only-session-secret-change-me"
	defaultDatabaseURL = "./data/app.db"
)

var (
	ErrStytchProjectIDRequired = errors.New("STYTCH_PROJECT_ID is not defined")
	ErrStytchSecretRequired    = errors.New("STYTCH_SECRET is not defined")
	ErrSessionSecretRequired   = errors.New("SESSION_SECRET must be set when APP_ENV=production")
)

// Load loads configuration from environment variables with defaults.
// When CONFIG_FILE is set, that file is read first and environment variables
// override its values.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	v.SetDefault("SERVER_ADDRESS", ":8080")
	v.SetDefault("APP_ENV", constants.EnvironmentProduction)
	v.SetDefault("DATABASE_URL", defaultDatabaseURL)
	v.SetDefault("STYTCH_ENV", constants.StytchEnvTest)
	v.SetDefault("SESSION_COOKIE_NAME", constants.DefaultSessionCookieName)
	v.SetDefault("SESSION_SECURE_COOKIE", true)
	v.SetDefault("SMS_SUPPORTED_COUNTRIES", strings.Join(constants.DefaultSMSCountries, ","))
	v.SetDefault("OTEL_SERVICE_NAME", "otplogin")

	environment := v.GetString("APP_ENV")
	production := environment == constants.EnvironmentProduction

	cfg := &Config{
		ServerAddress:      v.GetString("SERVER_ADDRESS"),
		Environment:        environment,
		LogJSON:            boolOrDefault(v, "LOG_JSON", environment != constants.EnvironmentDevelopment),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		ExposeErrorDetails: boolOrDefault(v, "EXPOSE_ERROR_DETAILS", !production),
		Stytch: StytchConfig{
			ProjectID: v.GetString("STYTCH_PROJECT_ID"),
			Secret:    v.GetString("STYTCH_SECRET"),
			Env:       v.GetString("STYTCH_ENV"),
			BaseURL:   v.GetString("STYTCH_BASE_URL"),
		},
		Session: SessionConfig{
			Secret:       v.GetString("SESSION_SECRET"),
			CookieName:   v.GetString("SESSION_COOKIE_NAME"),
			CookieDomain: v.GetString("SESSION_COOKIE_DOMAIN"),
			SecureCookie: v.GetBool("SESSION_SECURE_COOKIE"),
		},
		SMS: SMSConfig{
			SupportedCountries: parseCountryList(v.GetString("SMS_SUPPORTED_COUNTRIES")),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Insecure:     v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
			ServiceName:  v.GetString("OTEL_SERVICE_NAME"),
		},
	}

	if cfg.Stytch.ProjectID == "" {
		return nil, ErrStytchProjectIDRequired
	}
	if cfg.Stytch.Secret == "" {
		return nil, ErrStytchSecretRequired
	}
	if cfg.Session.Secret == "" {
		if production {
			return nil, ErrSessionSecretRequired
		}
		cfg.Session.Secret = devSessionSecret
	}

	return cfg, nil
}

// DatabaseURL reads only DATABASE_URL, for tools that need no Stytch or session settings
func DatabaseURL() string {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("DATABASE_URL", defaultDatabaseURL)
	return v.GetString("DATABASE_URL")
}

// IsProduction reports whether the app runs with APP_ENV=production
func (c *Config) IsProduction() bool {
	return c.Environment == constants.EnvironmentProduction
}

func boolOrDefault(v *viper.Viper, key string, def bool) bool {
	if v.IsSet(key) && v.GetString(key) != "" {
		return v.GetBool(key)
	}
	return def
}

// parseCountryList splits a comma-separated list of country codes, upper-casing each
func parseCountryList(s string) []string {
	items := parseCommaSeparatedList(s)
	for i := range items {
		items[i] = strings.ToUpper(items[i])
	}
	return items
}

// parseCommaSeparatedList splits a comma-separated string into a slice
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return []string{}
	}

	items := strings.Split(s, ",")
	result := make([]string, 0, len(items))

	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}

	return result
}
