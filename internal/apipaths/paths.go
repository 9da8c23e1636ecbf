package apipaths

import (
	"net/url"
	"strings"

	"github.com/otplogin/internal/constants"
)

// Page paths served by the login web app.

const (
	Home       = "/"
	Health     = "/healthz"
	Login      = "/login"
	LoginEmail = "/login/email"
	LoginSMS   = "/login/sms"
	LoginOTP   = "/login/otp"
	Profile    = "/profile"
	Logout     = "/logout"
)

// LoginMethod returns the form page for an OTP delivery method ("email" or "sms").
func LoginMethod(methodName string) string { return Login + "/" + methodName }

// OTPVerify builds the verification page URL carrying the login flow state.
// Parameters keep a fixed order: methodName, methodId, userCreated, verificationTarget.
func OTPVerify(methodName, methodID string, userCreated bool, verificationTarget string) string {
	return LoginOTP + "?" + encodeOrdered([][2]string{
		{"methodName", methodName},
		{"methodId", methodID},
		{"userCreated", boolFlag(userCreated)},
		{"verificationTarget", verificationTarget},
	})
}

// ProfileWelcome builds the profile URL reached right after a successful login.
func ProfileWelcome(userCreated bool) string {
	return Profile + "?" + encodeOrdered([][2]string{{"userCreated", boolFlag(userCreated)}})
}

func boolFlag(b bool) string {
	if b {
		return constants.UserCreatedYes
	}
	return constants.UserCreatedNo
}

// encodeOrdered is url.Values.Encode without the key sort.
func encodeOrdered(pairs [][2]string) string {
	var sb strings.Builder
	for i, p := range pairs {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p[0]))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p[1]))
	}
	return sb.String()
}
