package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/otplogin/internal/apipaths"
	"github.com/otplogin/internal/constants"
	"github.com/otplogin/internal/domain"
	"github.com/otplogin/internal/httputil"
	"github.com/otplogin/internal/validation"
)

// fieldErrors extracts per-field validation messages from a service error
func fieldErrors(err error) (validation.FieldErrors, bool) {
	if !domain.IsValidationError(err) {
		return nil, false
	}
	var fieldErrs validation.FieldErrors
	if errors.As(err, &fieldErrs) {
		return fieldErrs, true
	}
	return nil, false
}

func (s *Server) emailLoginPage(c *gin.Context) {
	s.renderEmailLogin(c, http.StatusOK, "", nil)
}

func (s *Server) renderEmailLogin(c *gin.Context, status int, email string, errs validation.FieldErrors) {
	c.HTML(status, "login_email.html", page("Email Login", trail(loginCrumb, emailLoginCrumb), gin.H{
		"Email":  email,
		"Errors": errs,
	}))
}

// submitEmailLogin sends an OTP to the submitted email address
func (s *Server) submitEmailLogin(c *gin.Context) {
	var req domain.EmailLoginRequest
	if err := c.ShouldBind(&req); err != nil {
		s.writeError(c, domain.WrapValidationError("email login form", err))
		return
	}

	challenge, err := s.loginService.RequestEmailOTP(c.Request.Context(), req)
	if err != nil {
		if errs, ok := fieldErrors(err); ok {
			s.renderEmailLogin(c, http.StatusOK, req.Email, errs)
			return
		}
		s.writeError(c, err)
		return
	}

	c.Redirect(http.StatusFound, apipaths.OTPVerify(
		challenge.MethodName, challenge.MethodID, challenge.UserCreated, challenge.VerificationTarget))
}

func (s *Server) smsLoginPage(c *gin.Context) {
	s.renderSMSLogin(c, http.StatusOK, "", "", nil)
}

func (s *Server) renderSMSLogin(c *gin.Context, status int, country, phone string, errs validation.FieldErrors) {
	countries := s.config.SMS.SupportedCountries
	if country == "" && len(countries) > 0 {
		country = countries[0]
	}

	c.HTML(status, "login_sms.html", page("SMS Login", trail(loginCrumb, smsLoginCrumb), gin.H{
		"Countries": countries,
		"Country":   country,
		"Phone":     phone,
		"Errors":    errs,
	}))
}

// submitSMSLogin sends an OTP to the submitted phone number
func (s *Server) submitSMSLogin(c *gin.Context) {
	var req domain.SMSLoginRequest
	if err := c.ShouldBind(&req); err != nil {
		s.writeError(c, domain.WrapValidationError("sms login form", err))
		return
	}

	challenge, err := s.loginService.RequestSMSOTP(c.Request.Context(), req)
	if err != nil {
		if errs, ok := fieldErrors(err); ok {
			s.renderSMSLogin(c, http.StatusOK, req.Country, req.Phone, errs)
			return
		}
		s.writeError(c, err)
		return
	}

	c.Redirect(http.StatusFound, apipaths.OTPVerify(
		challenge.MethodName, challenge.MethodID, challenge.UserCreated, challenge.VerificationTarget))
}

type otpPageState struct {
	MethodName         string
	MethodID           string
	UserCreated        string
	VerificationTarget string
}

func (s *Server) renderOTP(c *gin.Context, status int, state otpPageState, errs validation.FieldErrors) {
	resendPath := ""
	crumbs := []breadcrumb{loginCrumb}
	switch state.MethodName {
	case constants.MethodEmail:
		crumbs = append(crumbs, emailLoginCrumb)
	case constants.MethodSMS:
		crumbs = append(crumbs, smsLoginCrumb)
	}
	if len(crumbs) > 1 {
		resendPath = apipaths.LoginMethod(state.MethodName)
	}
	crumbs = append(crumbs, breadcrumb{Label: "Verify"})

	c.HTML(status, "login_otp.html", page("Verify OTP", trail(crumbs...), gin.H{
		"MethodName":         state.MethodName,
		"MethodID":           state.MethodID,
		"UserCreated":        state.UserCreated,
		"VerificationTarget": state.VerificationTarget,
		"ResendPath":         resendPath,
		"Errors":             errs,
	}))
}

// otpPage renders the code entry form for the flow state in the query string
func (s *Server) otpPage(c *gin.Context) {
	state, err := httputil.ParseFlowState(c, s.validator)
	if err != nil {
		s.logger.WarnContext(c.Request.Context(), "Invalid OTP flow state", "query", c.Request.URL.RawQuery, "error", err)
		s.writeError(c, err)
		return
	}

	s.renderOTP(c, http.StatusOK, otpPageState{
		MethodName:         state.MethodName,
		MethodID:           state.MethodID,
		UserCreated:        state.UserCreated,
		VerificationTarget: state.VerificationTarget,
	}, nil)
}

// submitOTP verifies the code and starts a session on success
func (s *Server) submitOTP(c *gin.Context) {
	var req domain.VerifyOTPRequest
	if err := c.ShouldBind(&req); err != nil {
		s.writeError(c, domain.WrapValidationError("otp form", err))
		return
	}

	result, err := s.loginService.VerifyOTP(c.Request.Context(), req)
	if err != nil {
		if errs, ok := fieldErrors(err); ok {
			s.renderOTP(c, http.StatusOK, otpPageState{
				MethodName:         req.MethodName,
				MethodID:           req.MethodID,
				UserCreated:        req.UserCreated,
				VerificationTarget: req.VerificationTarget,
			}, errs)
			return
		}
		s.writeError(c, err)
		return
	}

	cookie, err := s.sessions.Create(result.UserID, result.StytchUserID)
	if err != nil {
		s.writeError(c, domain.NewDomainError(domain.ErrSessionInvalid.Code, "failed to create session", err))
		return
	}
	http.SetCookie(c.Writer, cookie)

	s.logger.InfoContext(c.Request.Context(), "User logged in",
		"user_id", result.UserID, "user_created", result.UserCreated)
	c.Redirect(http.StatusFound, apipaths.ProfileWelcome(result.UserCreated))
}
