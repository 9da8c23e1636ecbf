package constants

import "time"

// OTP delivery methods. These are also the values carried in the
// methodName query parameter between the login steps.
const (
	MethodEmail = "email"
	MethodSMS   = "sms"
)

// Environment names
const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)

// Stytch environments
const (
	StytchEnvTest = "test"
	StytchEnvLive = "live"
)

// Session cookie defaults
const (
	DefaultSessionCookieName = "__session"

	// SessionDuration is the absolute lifetime of a session cookie. Sessions
	// are never renewed; a new login is required once it elapses.
	SessionDuration = 30 * 24 * time.Hour
)

// OTPCodeLength is the number of characters in a one-time passcode
const OTPCodeLength = 6

// Flag values for the userCreated query/form parameter
const (
	UserCreatedYes = "1"
	UserCreatedNo  = "0"
)

// DefaultSMSCountries are the ISO 3166-1 alpha-2 codes SMS login is offered for
var DefaultSMSCountries = []string{"US", "CA"}

// HTTP server limits
const (
	MaxFormBodySize = 1 << 20 // 1MB
	ReadTimeout     = 30 * time.Second
	WriteTimeout    = 30 * time.Second
	IdleTimeout     = 120 * time.Second
	ShutdownTimeout = 15 * time.Second
)
