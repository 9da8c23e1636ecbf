package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ============================================================================
// Domain Error Types
// ============================================================================

// DomainError represents a domain-specific error with a code and message
type DomainError struct {
	Code    string
	Message string
	Cause   error
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, cause error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ============================================================================
// Common Domain Errors
// ============================================================================

var (
	// Input errors
	ErrValidationFailed = &DomainError{
		Code:    "VALIDATION_FAILED",
		Message: "validation failed",
	}
	ErrUnsupportedCountry = &DomainError{
		Code:    "UNSUPPORTED_COUNTRY",
		Message: "Sorry, we don't support sms login for your country yet.",
	}
	ErrPhoneCountryMismatch = &DomainError{
		Code:    "PHONE_COUNTRY_MISMATCH",
		Message: "The phone number you provided does not match the country code you selected.",
	}
	ErrInvalidFlowState = &DomainError{
		Code:    "INVALID_FLOW_STATE",
		Message: "invalid OTP verification request",
	}

	// Authentication provider errors
	ErrProviderRejected = &DomainError{
		Code:    "PROVIDER_REJECTED",
		Message: "authentication provider rejected the request",
	}
	ErrProviderFailure = &DomainError{
		Code:    "PROVIDER_FAILURE",
		Message: "We encountered a login failure",
	}

	// User errors
	ErrUserNotFound = &DomainError{
		Code:    "USER_NOT_FOUND",
		Message: "user not found",
	}
	ErrUserAlreadyExists = &DomainError{
		Code:    "USER_ALREADY_EXISTS",
		Message: "user already exists",
	}

	// Session errors
	ErrSessionInvalid = &DomainError{
		Code:    "SESSION_INVALID",
		Message: "session is missing or invalid",
	}

	// Infrastructure Errors
	ErrDatabaseOperation = &DomainError{
		Code:    "DATABASE_OPERATION_FAILED",
		Message: "database operation failed",
	}
)

// ProviderRejection is implemented by errors the authentication provider
// reports about the request itself (bad contact, wrong or expired code).
type ProviderRejection interface {
	error
	ProviderMessage() string
}

// ============================================================================
// Error Wrapping Helpers
// ============================================================================

// WrapValidationError wraps a field validation failure
func WrapValidationError(field string, cause error) error {
	message := fmt.Sprintf("validation failed for %s", field)
	if cause != nil {
		message = fmt.Sprintf("%s: %v", message, cause)
	}
	return &DomainError{
		Code:    ErrValidationFailed.Code,
		Message: message,
		Cause:   cause,
	}
}

// WrapProviderError classifies an error returned by the authentication provider.
// Rejections become PROVIDER_REJECTED with the provider's message appended to
// prefix; anything else becomes PROVIDER_FAILURE.
func WrapProviderError(prefix string, cause error) error {
	var rejection ProviderRejection
	if errors.As(cause, &rejection) {
		return &DomainError{
			Code:    ErrProviderRejected.Code,
			Message: fmt.Sprintf("%s: %s", prefix, rejection.ProviderMessage()),
			Cause:   cause,
		}
	}
	return &DomainError{
		Code:    ErrProviderFailure.Code,
		Message: ErrProviderFailure.Message,
		Cause:   cause,
	}
}

// WrapUserNotFound wraps a missing local user for a provider user id
func WrapUserNotFound(stytchUserID string) error {
	return &DomainError{
		Code:    ErrUserNotFound.Code,
		Message: fmt.Sprintf("no local user for provider user %s", stytchUserID),
	}
}

// WrapDatabaseOperation wraps an error as a database operation failure
func WrapDatabaseOperation(operation string, cause error) error {
	return &DomainError{
		Code:    ErrDatabaseOperation.Code,
		Message: fmt.Sprintf("database operation failed: %s", operation),
		Cause:   cause,
	}
}

// ============================================================================
// Error Checking Helpers
// ============================================================================

func hasCode(err error, codes ...string) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	for _, code := range codes {
		if domainErr.Code == code {
			return true
		}
	}
	return false
}

// IsValidationError checks if an error is a field validation error
func IsValidationError(err error) bool {
	return hasCode(err, ErrValidationFailed.Code)
}

// IsClientError checks if an error should be reported as a bad request
func IsClientError(err error) bool {
	return hasCode(err,
		ErrValidationFailed.Code,
		ErrUnsupportedCountry.Code,
		ErrPhoneCountryMismatch.Code,
		ErrInvalidFlowState.Code,
		ErrProviderRejected.Code,
	)
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return hasCode(err, ErrUserNotFound.Code)
}

// IsConflictError checks if an error is a uniqueness conflict
func IsConflictError(err error) bool {
	return hasCode(err, ErrUserAlreadyExists.Code)
}

// HTTPStatus maps an error to the HTTP status it is reported with.
// Client errors are 400; every other failure is a server fault.
func HTTPStatus(err error) int {
	if IsClientError(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the user-facing message of an error without its code
// or cause. Errors outside the domain taxonomy get a generic message.
func PublicMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return "An error occurred"
}
