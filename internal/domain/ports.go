package domain

import (
	"context"

	"github.com/otplogin/internal/db"
)

// ============================================================================
// Primary Ports (Application Use Cases)
// ============================================================================

// LoginService defines the primary port for the passwordless login use cases
type LoginService interface {
	RequestEmailOTP(ctx context.Context, req EmailLoginRequest) (*LoginChallenge, error)
	RequestSMSOTP(ctx context.Context, req SMSLoginRequest) (*LoginChallenge, error)
	VerifyOTP(ctx context.Context, req VerifyOTPRequest) (*VerificationResult, error)
	GetProfile(ctx context.Context, userID, stytchUserID string) (*Profile, error)
}

// ============================================================================
// Secondary Ports (Infrastructure Adapters)
// ============================================================================

// AuthProvider is the external OTP authentication service
type AuthProvider interface {
	LoginOrCreateByEmail(ctx context.Context, email string) (*ProviderChallenge, error)
	LoginOrCreateBySMS(ctx context.Context, phoneNumber string) (*ProviderChallenge, error)
	AuthenticateOTP(ctx context.Context, methodID, code string) (string, error)
	GetUser(ctx context.Context, stytchUserID string) (*ProviderUser, error)
}

// UserStore persists the local user records
type UserStore interface {
	CreateUser(ctx context.Context, user *db.User) error
	GetUserByID(ctx context.Context, id string) (*db.User, error)
	GetUserByStytchUserID(ctx context.Context, stytchUserID string) (*db.User, error)
}

// ============================================================================
// Request/Response Types
// ============================================================================

// EmailLoginRequest is the submitted email login form
type EmailLoginRequest struct {
	Email string `form:"email" validate:"required,email"`
}

// SMSLoginRequest is the submitted SMS login form
type SMSLoginRequest struct {
	Country string `form:"country" validate:"required,len=2,alpha,uppercase"`
	Phone   string `form:"phone" validate:"required,phone"`
}

// LoginFlowState is the state carried in the verification page URL between
// requesting an OTP and submitting it
type LoginFlowState struct {
	MethodName         string `form:"methodName" validate:"required,oneof=email sms"`
	MethodID           string `form:"methodId" validate:"required"`
	UserCreated        string `form:"userCreated" validate:"required,oneof=0 1"`
	VerificationTarget string `form:"verificationTarget" validate:"required"`
}

// VerifyOTPRequest is the code-entry form. MethodName and VerificationTarget
// are only echoed back when the form is re-rendered.
type VerifyOTPRequest struct {
	Code               string `form:"code" validate:"len=6"`
	MethodID           string `form:"methodId" validate:"required"`
	UserCreated        string `form:"userCreated" validate:"required,oneof=0 1"`
	MethodName         string `form:"methodName"`
	VerificationTarget string `form:"verificationTarget"`
}

// IsUserCreated reports whether the flow created the provider user
func (r *VerifyOTPRequest) IsUserCreated() bool {
	return r.UserCreated == "1"
}

// ProviderChallenge is the provider's answer to a login_or_create call
type ProviderChallenge struct {
	StytchUserID string
	MethodID     string
	UserCreated  bool
}

// LoginChallenge is everything the verification page needs after an OTP was sent
type LoginChallenge struct {
	UserID             string
	StytchUserID       string
	MethodName         string
	MethodID           string
	UserCreated        bool
	VerificationTarget string
}

// VerificationResult identifies the user after a successful OTP check
type VerificationResult struct {
	UserID       string
	StytchUserID string
	UserCreated  bool
}

// ProviderEmail is an email factor on the provider user
type ProviderEmail struct {
	EmailID  string `json:"email_id"`
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
}

// ProviderPhoneNumber is a phone factor on the provider user
type ProviderPhoneNumber struct {
	PhoneID     string `json:"phone_id"`
	PhoneNumber string `json:"phone_number"`
	Verified    bool   `json:"verified"`
}

// ProviderUser is the provider's record of a user
type ProviderUser struct {
	UserID       string                `json:"user_id"`
	Status       string                `json:"status"`
	Emails       []ProviderEmail       `json:"emails"`
	PhoneNumbers []ProviderPhoneNumber `json:"phone_numbers"`
}

// Profile is the merged local and provider view of the signed-in user
type Profile struct {
	ID           string                `json:"id"`
	StytchUserID string                `json:"stytch_user_id"`
	CreatedAt    string                `json:"created_at"`
	Status       string                `json:"status"`
	Emails       []ProviderEmail       `json:"emails"`
	PhoneNumbers []ProviderPhoneNumber `json:"phone_numbers"`
}
