package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/otplogin/internal/constants"
)

var (
	// ErrNoSession is returned when the request carries no session cookie
	ErrNoSession = errors.New("no session cookie")
	// ErrInvalidSession is returned for a cookie that fails signature, expiry or field checks
	ErrInvalidSession = errors.New("invalid session")
)

// Session identifies a signed-in user
type Session struct {
	UserID       string
	StytchUserID string
	ExpiresAt    time.Time
}

// Claims is the JWT payload stored in the session cookie
type Claims struct {
	jwt.StandardClaims
	UserID       string `json:"userId"`
	StytchUserID string `json:"stytchUserId"`
}

// Options configures the session cookie
type Options struct {
	Secret     string
	CookieName string
	Domain     string
	Secure     bool
	Duration   time.Duration
}

// Manager creates, reads and destroys signed session cookies
type Manager struct {
	secret     []byte
	cookieName string
	domain     string
	secure     bool
	duration   time.Duration
	now        func() time.Time
}

// NewManager creates a session manager. Empty cookie name and zero duration
// fall back to the defaults.
func NewManager(opts Options) *Manager {
	m := &Manager{
		secret:     []byte(opts.Secret),
		cookieName: opts.CookieName,
		domain:     opts.Domain,
		secure:     opts.Secure,
		duration:   opts.Duration,
		now:        time.Now,
	}
	if m.cookieName == "" {
		m.cookieName = constants.DefaultSessionCookieName
	}
	if m.duration == 0 {
		m.duration = constants.SessionDuration
	}
	return m
}

// CookieName returns the name of the session cookie
func (m *Manager) CookieName() string {
	return m.cookieName
}

// Create signs a new session for the user and returns the cookie carrying it.
// The session expires a fixed duration after issuance and is never renewed.
func (m *Manager) Create(userID, stytchUserID string) (*http.Cookie, error) {
	if userID == "" || stytchUserID == "" {
		return nil, fmt.Errorf("%w: user id and stytch user id are required", ErrInvalidSession)
	}

	issuedAt := m.now()
	expiresAt := issuedAt.Add(m.duration)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  issuedAt.Unix(),
			ExpiresAt: expiresAt.Unix(),
			Subject:   userID,
		},
		UserID:       userID,
		StytchUserID: stytchUserID,
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session: %w", err)
	}

	cookie := m.baseCookie()
	cookie.Value = signed
	cookie.MaxAge = int(m.duration.Seconds())
	cookie.Expires = expiresAt.UTC()
	return cookie, nil
}

// Read extracts and verifies the session carried by the request
func (m *Manager) Read(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoSession
	}
	return m.Decode(cookie.Value)
}

// Decode verifies a signed session value
func (m *Manager) Decode(value string) (*Session, error) {
	claims := &Claims{}
	parser := &jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}

	token, err := parser.ParseWithClaims(value, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	// Expiry is mandatory; jwt only checks it when present
	if claims.ExpiresAt == 0 || m.now().Unix() > claims.ExpiresAt {
		return nil, fmt.Errorf("%w: expired", ErrInvalidSession)
	}
	if claims.UserID == "" || claims.StytchUserID == "" {
		return nil, fmt.Errorf("%w: missing user fields", ErrInvalidSession)
	}

	return &Session{
		UserID:       claims.UserID,
		StytchUserID: claims.StytchUserID,
		ExpiresAt:    time.Unix(claims.ExpiresAt, 0).UTC(),
	}, nil
}

// Destroy returns a cookie that clears the session in the browser
func (m *Manager) Destroy() *http.Cookie {
	cookie := m.baseCookie()
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0).UTC()
	return cookie
}

func (m *Manager) baseCookie() *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Path:     "/",
		Domain:   m.domain,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
