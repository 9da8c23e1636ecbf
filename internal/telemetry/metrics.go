package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of the login metrics
const MeterName = "github.com/otplogin/internal/service"

// Outcome attribute values
const (
	OutcomeSuccess  = "success"
	OutcomeInvalid  = "invalid"
	OutcomeRejected = "rejected"
	OutcomeFailure  = "failure"
)

// LoginMetrics counts login flow events. A nil *LoginMetrics records nothing.
type LoginMetrics struct {
	otpRequests   metric.Int64Counter
	verifications metric.Int64Counter
	usersCreated  metric.Int64Counter
}

// NewLoginMetrics registers the login counters on meter
func NewLoginMetrics(meter metric.Meter) (*LoginMetrics, error) {
	otpRequests, err := meter.Int64Counter("otplogin.otp.requests",
		metric.WithDescription("OTP login requests by delivery method and outcome"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	verifications, err := meter.Int64Counter("otplogin.otp.verifications",
		metric.WithDescription("OTP code verifications by outcome"),
		metric.WithUnit("{verification}"))
	if err != nil {
		return nil, err
	}

	usersCreated, err := meter.Int64Counter("otplogin.users.created",
		metric.WithDescription("Local users created on first login"),
		metric.WithUnit("{user}"))
	if err != nil {
		return nil, err
	}

	return &LoginMetrics{
		otpRequests:   otpRequests,
		verifications: verifications,
		usersCreated:  usersCreated,
	}, nil
}

// OTPRequested records an OTP request for method with its outcome
func (m *LoginMetrics) OTPRequested(ctx context.Context, method, outcome string) {
	if m == nil {
		return
	}
	m.otpRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("outcome", outcome),
	))
}

// OTPVerified records a code verification with its outcome
func (m *LoginMetrics) OTPVerified(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.verifications.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// UserCreated records a new local user
func (m *LoginMetrics) UserCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.usersCreated.Add(ctx, 1)
}
