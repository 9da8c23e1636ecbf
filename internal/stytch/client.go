package stytch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stytchauth/stytch-go/v16/stytch/consumer/otps"
	"github.com/stytchauth/stytch-go/v16/stytch/consumer/otps/email"
	"github.com/stytchauth/stytch-go/v16/stytch/consumer/otps/sms"
	"github.com/stytchauth/stytch-go/v16/stytch/consumer/stytchapi"
	"github.com/stytchauth/stytch-go/v16/stytch/consumer/users"
	"github.com/stytchauth/stytch-go/v16/stytch/stytcherror"

	"github.com/otplogin/internal/constants"
	"github.com/otplogin/internal/domain"
)

const (
	testBaseURL = "https://test.stytch.com"
	liveBaseURL = "https://api.stytch.com"
)

// ErrMalformedResponse is returned when Stytch answers a call successfully
// but leaves out an identifier the login flow depends on
var ErrMalformedResponse = errors.New("malformed stytch response")

// Client adapts the Stytch consumer SDK to domain.AuthProvider
type Client struct {
	api     *stytchapi.API
	baseURL string
}

type clientOptions struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*clientOptions)

// WithBaseURL points the client at a different API host
func WithBaseURL(baseURL string) Option {
	return func(o *clientOptions) {
		if baseURL == "" {
			return
		}
		o.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient replaces the HTTP client the SDK sends requests with
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = httpClient
	}
}

// NewClient creates a Stytch API client. env "live" selects the live API host,
// anything else the test host. The SDK loads the project's JWKS while it is
// constructed, so this makes a network call.
func NewClient(projectID, secret, env string, opts ...Option) (*Client, error) {
	o := clientOptions{
		baseURL:    testBaseURL,
		httpClient: NewRealHTTPClient(),
	}
	if env == constants.StytchEnvLive {
		o.baseURL = liveBaseURL
	}
	for _, opt := range opts {
		opt(&o)
	}

	api, err := stytchapi.NewClient(projectID, secret,
		stytchapi.WithBaseURI(o.baseURL),
		stytchapi.WithHTTPClient(o.httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stytch client: %w", err)
	}

	return &Client{api: api, baseURL: o.baseURL}, nil
}

// BaseURL returns the API host the client sends requests to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// LoginOrCreateByEmail sends an email OTP, creating a pending user if the address is new
func (c *Client) LoginOrCreateByEmail(ctx context.Context, address string) (*domain.ProviderChallenge, error) {
	resp, err := c.api.OTPs.Email.LoginOrCreate(ctx, &email.LoginOrCreateParams{
		Email:               address,
		CreateUserAsPending: true,
	})
	if err != nil {
		return nil, translateError(err)
	}
	if resp.UserID == "" || resp.EmailID == "" {
		return nil, fmt.Errorf("%w: email login_or_create without user_id or email_id (request %s)",
			ErrMalformedResponse, resp.RequestID)
	}

	slog.DebugContext(ctx, "Stytch email OTP sent", "request_id", resp.RequestID, "user_created", resp.UserCreated)
	return &domain.ProviderChallenge{
		StytchUserID: resp.UserID,
		MethodID:     resp.EmailID,
		UserCreated:  resp.UserCreated,
	}, nil
}

// LoginOrCreateBySMS sends an SMS OTP to an E.164 number, creating a pending user if the number is new
func (c *Client) LoginOrCreateBySMS(ctx context.Context, phoneNumber string) (*domain.ProviderChallenge, error) {
	resp, err := c.api.OTPs.Sms.LoginOrCreate(ctx, &sms.LoginOrCreateParams{
		PhoneNumber:         phoneNumber,
		CreateUserAsPending: true,
	})
	if err != nil {
		return nil, translateError(err)
	}
	if resp.UserID == "" || resp.PhoneID == "" {
		return nil, fmt.Errorf("%w: sms login_or_create without user_id or phone_id (request %s)",
			ErrMalformedResponse, resp.RequestID)
	}

	slog.DebugContext(ctx, "Stytch SMS OTP sent", "request_id", resp.RequestID, "user_created", resp.UserCreated)
	return &domain.ProviderChallenge{
		StytchUserID: resp.UserID,
		MethodID:     resp.PhoneID,
		UserCreated:  resp.UserCreated,
	}, nil
}

// AuthenticateOTP checks code against the challenge identified by methodID and
// returns the Stytch user id it belongs to
func (c *Client) AuthenticateOTP(ctx context.Context, methodID, code string) (string, error) {
	resp, err := c.api.OTPs.Authenticate(ctx, &otps.AuthenticateParams{
		MethodID: methodID,
		Code:     code,
	})
	if err != nil {
		return "", translateError(err)
	}
	if resp.UserID == "" {
		return "", fmt.Errorf("%w: authenticate without user_id (request %s)", ErrMalformedResponse, resp.RequestID)
	}
	return resp.UserID, nil
}

// GetUser fetches a Stytch user by id
func (c *Client) GetUser(ctx context.Context, stytchUserID string) (*domain.ProviderUser, error) {
	resp, err := c.api.Users.Get(ctx, &users.GetParams{UserID: stytchUserID})
	if err != nil {
		return nil, translateError(err)
	}

	user := &domain.ProviderUser{
		UserID:       resp.UserID,
		Status:       resp.Status,
		Emails:       make([]domain.ProviderEmail, 0, len(resp.Emails)),
		PhoneNumbers: make([]domain.ProviderPhoneNumber, 0, len(resp.PhoneNumbers)),
	}
	for _, e := range resp.Emails {
		user.Emails = append(user.Emails, domain.ProviderEmail{
			EmailID:  e.EmailID,
			Email:    e.Email,
			Verified: e.Verified,
		})
	}
	for _, p := range resp.PhoneNumbers {
		user.PhoneNumbers = append(user.PhoneNumbers, domain.ProviderPhoneNumber{
			PhoneID:     p.PhoneID,
			PhoneNumber: p.PhoneNumber,
			Verified:    p.Verified,
		})
	}
	return user, nil
}

// translateError turns a 4xx Stytch error object into *Error, which the login
// flow reports as a rejection. Server-side Stytch errors and transport
// failures are returned as plain errors.
func translateError(err error) error {
	var sdkErr stytcherror.Error
	if !errors.As(err, &sdkErr) {
		return fmt.Errorf("stytch request failed: %w", err)
	}

	apiErr := &Error{
		StatusCode:   int(sdkErr.StatusCode),
		RequestID:    string(sdkErr.RequestID),
		ErrorType:    string(sdkErr.ErrorType),
		ErrorMessage: string(sdkErr.ErrorMessage),
	}
	if apiErr.ErrorType == "" || apiErr.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("stytch returned status %d: %s", apiErr.StatusCode, sdkErr.Error())
	}
	return apiErr
}
