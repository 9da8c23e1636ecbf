package apipaths

import "testing"

func TestOTPVerify(t *testing.T) {
	tests := []struct {
		name        string
		methodName  string
		methodID    string
		userCreated bool
		target      string
		want        string
	}{
		{
			name:        "email",
			methodName:  "email",
			methodID:    "e1",
			userCreated: true,
			target:      "foo@bar.com",
			want:        "/login/otp?methodName=email&methodId=e1&userCreated=1&verificationTarget=foo%40bar.com",
		},
		{
			name:       "sms",
			methodName: "sms",
			methodID:   "phone-number-test-d5a3b680",
			target:     "+16502530000",
			want:       "/login/otp?methodName=sms&methodId=phone-number-test-d5a3b680&userCreated=0&verificationTarget=%2B16502530000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OTPVerify(tt.methodName, tt.methodID, tt.userCreated, tt.target); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestProfileWelcome(t *testing.T) {
	if got := ProfileWelcome(true); got != "/profile?userCreated=1" {
		t.Errorf("unexpected %s", got)
	}
	if got := ProfileWelcome(false); got != "/profile?userCreated=0" {
		t.Errorf("unexpected %s", got)
	}
}

func TestLoginMethod(t *testing.T) {
	if got := LoginMethod("sms"); got != "/login/sms" {
		t.Errorf("expected /login/sms, got %s", got)
	}
}
