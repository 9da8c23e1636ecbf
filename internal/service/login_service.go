package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/otplogin/internal/constants"
	"github.com/otplogin/internal/db"
	"github.com/otplogin/internal/domain"
	"github.com/otplogin/internal/telemetry"
	"github.com/otplogin/internal/validation"
)

const (
	emailLoginFailurePrefix = "We were not able to login using the provided email address"
	smsLoginFailurePrefix   = "We were not able to login using the provided phone number"
	verifyFailurePrefix     = "We were not able to verify the provided code"
)

// loginService implements the LoginService interface
type loginService struct {
	provider  domain.AuthProvider
	store     domain.UserStore
	validator *validation.Validator
	logger    *slog.Logger
	metrics   *telemetry.LoginMetrics
	tracer    trace.Tracer
}

// NewLoginService creates a new login service. metrics may be nil.
func NewLoginService(
	provider domain.AuthProvider,
	store domain.UserStore,
	validator *validation.Validator,
	logger *slog.Logger,
	metrics *telemetry.LoginMetrics,
) domain.LoginService {
	return &loginService{
		provider:  provider,
		store:     store,
		validator: validator,
		logger:    logger,
		metrics:   metrics,
		tracer:    otel.Tracer(telemetry.MeterName),
	}
}

// RequestEmailOTP sends a one-time code to an email address and makes sure a
// local user exists for the Stytch user behind it
func (s *loginService) RequestEmailOTP(ctx context.Context, req domain.EmailLoginRequest) (*domain.LoginChallenge, error) {
	if fieldErrs := s.validator.Struct(&req); fieldErrs != nil {
		s.metrics.OTPRequested(ctx, constants.MethodEmail, telemetry.OutcomeInvalid)
		return nil, domain.WrapValidationError("email login", fieldErrs)
	}

	ctx, span := s.tracer.Start(ctx, "LoginService.RequestEmailOTP",
		trace.WithAttributes(attribute.String("login.method", constants.MethodEmail)))
	defer span.End()

	challenge, err := s.provider.LoginOrCreateByEmail(ctx, req.Email)
	if err != nil {
		return nil, s.providerFailure(ctx, span, constants.MethodEmail, emailLoginFailurePrefix, err)
	}

	return s.completeChallenge(ctx, span, constants.MethodEmail, req.Email, challenge)
}

// RequestSMSOTP normalizes a phone number against its declared country, sends
// a one-time code to it and makes sure a local user exists
func (s *loginService) RequestSMSOTP(ctx context.Context, req domain.SMSLoginRequest) (*domain.LoginChallenge, error) {
	if fieldErrs := s.validator.Struct(&req); fieldErrs != nil {
		s.metrics.OTPRequested(ctx, constants.MethodSMS, telemetry.OutcomeInvalid)
		return nil, domain.WrapValidationError("sms login", fieldErrs)
	}

	phoneNumber, err := s.validator.NormalizePhone(req.Country, req.Phone)
	if err != nil {
		s.metrics.OTPRequested(ctx, constants.MethodSMS, telemetry.OutcomeInvalid)
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "LoginService.RequestSMSOTP",
		trace.WithAttributes(
			attribute.String("login.method", constants.MethodSMS),
			attribute.String("login.country", req.Country),
		))
	defer span.End()

	challenge, err := s.provider.LoginOrCreateBySMS(ctx, phoneNumber)
	if err != nil {
		return nil, s.providerFailure(ctx, span, constants.MethodSMS, smsLoginFailurePrefix, err)
	}

	return s.completeChallenge(ctx, span, constants.MethodSMS, phoneNumber, challenge)
}

func (s *loginService) providerFailure(ctx context.Context, span trace.Span, method, prefix string, err error) error {
	wrapped := domain.WrapProviderError(prefix, err)
	outcome := telemetry.OutcomeFailure
	if domain.IsClientError(wrapped) {
		outcome = telemetry.OutcomeRejected
	}
	s.metrics.OTPRequested(ctx, method, outcome)
	recordError(span, err)
	s.logger.ErrorContext(ctx, "Stytch login_or_create failed", "method", method, "error", err)
	return wrapped
}

func (s *loginService) completeChallenge(ctx context.Context, span trace.Span, method, target string, challenge *domain.ProviderChallenge) (*domain.LoginChallenge, error) {
	user, err := s.ensureLocalUser(ctx, challenge.StytchUserID)
	if err != nil {
		s.metrics.OTPRequested(ctx, method, telemetry.OutcomeFailure)
		recordError(span, err)
		// The code has already been dispatched by Stytch at this point
		if domain.IsConflictError(err) {
			s.logger.WarnContext(ctx, "Local user was created by a concurrent login",
				"method", method, "stytch_user_id", challenge.StytchUserID, "error", err)
			return nil, err
		}
		s.logger.ErrorContext(ctx, "Local user sync failed after OTP was sent",
			"method", method, "stytch_user_id", challenge.StytchUserID, "error", err)
		return nil, err
	}

	s.metrics.OTPRequested(ctx, method, telemetry.OutcomeSuccess)
	s.logger.InfoContext(ctx, "OTP sent",
		"method", method, "method_id", challenge.MethodID, "user_created", challenge.UserCreated)

	return &domain.LoginChallenge{
		UserID:             user.ID,
		StytchUserID:       challenge.StytchUserID,
		MethodName:         method,
		MethodID:           challenge.MethodID,
		UserCreated:        challenge.UserCreated,
		VerificationTarget: target,
	}, nil
}

// ensureLocalUser looks up the local user for a Stytch user and creates it when
// absent. The two steps are not atomic: a concurrent creator that wins the
// insert makes this call fail with USER_ALREADY_EXISTS.
func (s *loginService) ensureLocalUser(ctx context.Context, stytchUserID string) (*db.User, error) {
	if stytchUserID == "" {
		return nil, domain.NewDomainError(domain.ErrProviderFailure.Code,
			"Stytch did not return a user id", nil)
	}

	existing, err := s.store.GetUserByStytchUserID(ctx, stytchUserID)
	if err != nil {
		return nil, domain.WrapDatabaseOperation("find user", err)
	}
	if existing != nil {
		return existing, nil
	}

	user := db.NewUser(stytchUserID)
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, domain.NewDomainError(domain.ErrUserAlreadyExists.Code,
				fmt.Sprintf("user for stytch user %s was created concurrently", stytchUserID), err)
		}
		return nil, domain.WrapDatabaseOperation("create user", err)
	}

	s.metrics.UserCreated(ctx)
	s.logger.InfoContext(ctx, "Created local user", "user_id", user.ID, "stytch_user_id", stytchUserID)
	return user, nil
}

// VerifyOTP checks a submitted code with Stytch and resolves the local user it
// belongs to. No result is returned unless Stytch accepted the code.
func (s *loginService) VerifyOTP(ctx context.Context, req domain.VerifyOTPRequest) (*domain.VerificationResult, error) {
	if fieldErrs := s.validator.Struct(&req); fieldErrs != nil {
		s.metrics.OTPVerified(ctx, telemetry.OutcomeInvalid)
		return nil, domain.WrapValidationError("otp", fieldErrs)
	}

	ctx, span := s.tracer.Start(ctx, "LoginService.VerifyOTP")
	defer span.End()

	stytchUserID, err := s.provider.AuthenticateOTP(ctx, req.MethodID, req.Code)
	if err != nil {
		wrapped := domain.WrapProviderError(verifyFailurePrefix, err)
		outcome := telemetry.OutcomeFailure
		if domain.IsClientError(wrapped) {
			outcome = telemetry.OutcomeRejected
		}
		s.metrics.OTPVerified(ctx, outcome)
		recordError(span, err)
		s.logger.ErrorContext(ctx, "Stytch OTP authentication failure", "method_id", req.MethodID, "error", err)
		return nil, wrapped
	}

	user, err := s.store.GetUserByStytchUserID(ctx, stytchUserID)
	if err != nil {
		err = domain.WrapDatabaseOperation("find user", err)
	} else if user == nil {
		err = domain.WrapUserNotFound(stytchUserID)
	}
	if err != nil {
		s.metrics.OTPVerified(ctx, telemetry.OutcomeFailure)
		recordError(span, err)
		msg := "Failed to resolve local user after OTP authentication"
		if domain.IsNotFoundError(err) {
			msg = "Stytch accepted the code for a user with no local record"
		}
		s.logger.ErrorContext(ctx, msg, "stytch_user_id", stytchUserID, "error", err)
		return nil, err
	}

	s.metrics.OTPVerified(ctx, telemetry.OutcomeSuccess)
	return &domain.VerificationResult{
		UserID:       user.ID,
		StytchUserID: stytchUserID,
		UserCreated:  req.IsUserCreated(),
	}, nil
}

// GetProfile fetches the Stytch user and the local user concurrently and merges them
func (s *loginService) GetProfile(ctx context.Context, userID, stytchUserID string) (*domain.Profile, error) {
	ctx, span := s.tracer.Start(ctx, "LoginService.GetProfile")
	defer span.End()

	var (
		stytchUser *domain.ProviderUser
		localUser  *db.User
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := s.provider.GetUser(gctx, stytchUserID)
		if err != nil {
			return domain.NewDomainError(domain.ErrProviderFailure.Code, "failed to fetch the Stytch user", err)
		}
		stytchUser = u
		return nil
	})
	g.Go(func() error {
		u, err := s.store.GetUserByID(gctx, userID)
		if err != nil {
			return domain.WrapDatabaseOperation("get user", err)
		}
		if u == nil {
			return &domain.DomainError{
				Code:    domain.ErrUserNotFound.Code,
				Message: fmt.Sprintf("no local user with id %s", userID),
			}
		}
		localUser = u
		return nil
	})
	if err := g.Wait(); err != nil {
		recordError(span, err)
		s.logger.ErrorContext(ctx, "Failed to load profile", "user_id", userID, "stytch_user_id", stytchUserID, "error", err)
		return nil, err
	}

	profile := &domain.Profile{
		ID:           localUser.ID,
		StytchUserID: stytchUser.UserID,
		CreatedAt:    localUser.CreatedAt.UTC().Format(time.RFC3339),
		Status:       stytchUser.Status,
		Emails:       stytchUser.Emails,
		PhoneNumbers: stytchUser.PhoneNumbers,
	}
	if profile.Emails == nil {
		profile.Emails = []domain.ProviderEmail{}
	}
	if profile.PhoneNumbers == nil {
		profile.PhoneNumbers = []domain.ProviderPhoneNumber{}
	}
	return profile, nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
