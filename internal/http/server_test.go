package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/otplogin/internal/config"
	"github.com/otplogin/internal/db"
	"github.com/otplogin/internal/domain"
	"github.com/otplogin/internal/stytch"
)

const validCode = "123456"

// fakeStytch serves the subset of the Stytch API the login flow calls
type fakeStytch struct {
	loginCalls atomic.Int32
	// omitIDs makes login_or_create succeed without user or method ids
	omitIDs atomic.Bool
}

func (f *fakeStytch) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /otps/email/login_or_create", func(w http.ResponseWriter, r *http.Request) {
		f.loginCalls.Add(1)
		if f.omitIDs.Load() {
			writeJSON(w, http.StatusOK, map[string]any{"request_id": "r"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"request_id": "req-email", "user_id": "u1", "email_id": "e1", "user_created": true,
		})
	})

	mux.HandleFunc("POST /otps/sms/login_or_create", func(w http.ResponseWriter, r *http.Request) {
		f.loginCalls.Add(1)
		var body struct {
			PhoneNumber string `json:"phone_number"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.PhoneNumber != "+16502530000" {
			t.Errorf("expected E.164 phone number, got %q", body.PhoneNumber)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"request_id": "req-sms", "user_id": "u2", "phone_id": "p1", "user_created": false,
		})
	})

	mux.HandleFunc("POST /otps/authenticate", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Code     string `json:"code"`
			MethodID string `json:"method_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Code != validCode {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"status_code":   400,
				"request_id":    "req-auth",
				"error_type":    "otp_code_not_found",
				"error_message": "The OTP code could not be found.",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"request_id": "req-auth", "user_id": "u1", "method_id": body.MethodID})
	})

	mux.HandleFunc("GET /users/u1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id": "u1",
			"status":  "active",
			"emails": []map[string]any{
				{"email_id": "e1", "email": "foo@bar.com", "verified": true},
			},
		})
	})

	// The SDK fetches the project JWKS when it is constructed
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/sessions/jwks/") {
			writeJSON(w, http.StatusOK, map[string]any{"keys": []any{}})
			return
		}
		r = r.Clone(r.Context())
		r.URL.Path = strings.TrimPrefix(r.URL.Path, "/v1")
		r.URL.RawPath = ""
		mux.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func setupTestServer(t *testing.T) (*Server, *db.DB, *fakeStytch) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fake := &fakeStytch{}
	stytchServer := httptest.NewServer(fake.handler(t))
	t.Cleanup(stytchServer.Close)

	database, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to init database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	cfg := &config.Config{
		Environment: "development",
		Session:     config.SessionConfig{Secret: "test-secret"},
		SMS:         config.SMSConfig{SupportedCountries: []string{"US", "CA"}},
	}
	provider, err := stytch.NewClient("project-test", "secret-test", "test", stytch.WithBaseURL(stytchServer.URL))
	if err != nil {
		t.Fatalf("failed to create stytch client: %v", err)
	}

	return NewServer(cfg, database, provider, nil), database, fake
}

func get(s *Server, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func postForm(s *Server, target string, form url.Values, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, s *Server, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == s.sessions.CookieName() {
			return c
		}
	}
	return nil
}

// login runs the email flow through to a verified session
func login(t *testing.T, s *Server) *http.Cookie {
	t.Helper()

	w := postForm(s, "/login/email", url.Values{"email": {"foo@bar.com"}})
	if w.Code != http.StatusFound {
		t.Fatalf("email login: expected 302, got %d: %s", w.Code, w.Body.String())
	}
	w = postForm(s, "/login/otp", url.Values{"code": {validCode}, "methodId": {"e1"}, "userCreated": {"1"}})
	if w.Code != http.StatusFound {
		t.Fatalf("otp verify: expected 302, got %d: %s", w.Code, w.Body.String())
	}
	cookie := sessionCookie(t, s, w)
	if cookie == nil {
		t.Fatal("expected a session cookie")
	}
	return cookie
}

func TestHealthCheck(t *testing.T) {
	s, database, _ := setupTestServer(t)

	w := get(s, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid health response: %v", err)
	}
	if body["status"] != "healthy" || body["service"] != "otplogin" {
		t.Errorf("unexpected health body %v", body)
	}

	_ = database.Close()
	if w := get(s, "/healthz"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 with closed database, got %d", w.Code)
	}
}

func TestPages_Render(t *testing.T) {
	s, _, _ := setupTestServer(t)

	tests := []struct {
		path string
		want string
	}{
		{"/", `href="/login"`},
		{"/login", `href="/login/sms"`},
		{"/login/email", `name="email"`},
		{"/login/sms", `<option selected>US</option>`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := get(s, tt.path)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("expected body to contain %q", tt.want)
			}
		})
	}
}

func TestSecurityAndCacheHeaders(t *testing.T) {
	s, _, _ := setupTestServer(t)

	w := get(s, "/login")
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := w.Header().Get("Cache-Control"); !strings.Contains(got, "no-store") {
		t.Errorf("expected no-store on login page, got %q", got)
	}

	if got := get(s, "/").Header().Get("Cache-Control"); got != "" {
		t.Errorf("expected no cache header on home page, got %q", got)
	}
}

func TestSubmitEmailLogin(t *testing.T) {
	s, database, _ := setupTestServer(t)

	w := postForm(s, "/login/email", url.Values{"email": {"foo@bar.com"}})
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", w.Code, w.Body.String())
	}

	want := "/login/otp?methodName=email&methodId=e1&userCreated=1&verificationTarget=foo%40bar.com"
	if got := w.Header().Get("Location"); got != want {
		t.Errorf("expected redirect to %s, got %s", want, got)
	}

	count, err := database.CountUsers(context.Background())
	if err != nil {
		t.Fatalf("CountUsers failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 local user, got %d", count)
	}
}

func TestSubmitEmailLogin_ReplyWithoutIDs(t *testing.T) {
	s, database, fake := setupTestServer(t)
	fake.omitIDs.Store(true)

	w := postForm(s, "/login/email", url.Values{"email": {"foo@bar.com"}})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "" {
		t.Errorf("expected no redirect, got %s", loc)
	}

	count, err := database.CountUsers(context.Background())
	if err != nil {
		t.Fatalf("CountUsers failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no local users, got %d", count)
	}
}

func TestSubmitEmailLogin_InvalidEmail(t *testing.T) {
	s, database, fake := setupTestServer(t)

	w := postForm(s, "/login/email", url.Values{"email": {"not-an-email"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected form re-render with 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Invalid email address") {
		t.Error("expected field error message")
	}
	if !strings.Contains(body, `value="not-an-email"`) {
		t.Error("expected submitted value to be kept")
	}

	if calls := fake.loginCalls.Load(); calls != 0 {
		t.Errorf("expected no Stytch calls, got %d", calls)
	}
	if count, _ := database.CountUsers(context.Background()); count != 0 {
		t.Errorf("expected no local users, got %d", count)
	}
}

func TestSubmitSMSLogin(t *testing.T) {
	s, _, _ := setupTestServer(t)

	w := postForm(s, "/login/sms", url.Values{"country": {"US"}, "phone": {"(650) 253-0000"}})
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", w.Code, w.Body.String())
	}

	want := "/login/otp?methodName=sms&methodId=p1&userCreated=0&verificationTarget=%2B16502530000"
	if got := w.Header().Get("Location"); got != want {
		t.Errorf("expected redirect to %s, got %s", want, got)
	}
}

func TestSubmitSMSLogin_Rejected(t *testing.T) {
	s, _, fake := setupTestServer(t)

	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
		wantBody   string
	}{
		{
			name:       "missing phone",
			form:       url.Values{"country": {"US"}},
			wantStatus: http.StatusOK,
			wantBody:   "Phone number is required",
		},
		{
			name:       "country mismatch",
			form:       url.Values{"country": {"US"}, "phone": {"+44 20 7946 0958"}},
			wantStatus: http.StatusBadRequest,
			wantBody:   domain.ErrPhoneCountryMismatch.Message,
		},
		{
			name:       "unsupported country",
			form:       url.Values{"country": {"GB"}, "phone": {"020 7946 0958"}},
			wantStatus: http.StatusBadRequest,
			wantBody:   "support sms login for your country",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postForm(s, "/login/sms", tt.form)
			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("expected body to contain %q, got %s", tt.wantBody, w.Body.String())
			}
		})
	}

	if calls := fake.loginCalls.Load(); calls != 0 {
		t.Errorf("expected no Stytch calls, got %d", calls)
	}
}

func TestOTPPage(t *testing.T) {
	s, _, _ := setupTestServer(t)

	w := get(s, "/login/otp?methodName=email&methodId=e1&userCreated=1&verificationTarget=foo%40bar.com")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"foo@bar.com", `href="/login/email"`, `name="methodId" value="e1"`} {
		if !strings.Contains(body, want) {
			t.Errorf("expected body to contain %q", want)
		}
	}
}

func TestOTPPage_InvalidFlowState(t *testing.T) {
	s, _, _ := setupTestServer(t)

	tests := []string{
		"/login/otp",
		"/login/otp?methodName=email",
		"/login/otp?methodName=fax&methodId=e1&userCreated=1&verificationTarget=x",
		"/login/otp?methodName=email&methodId=e1&userCreated=yes&verificationTarget=x",
	}

	for _, target := range tests {
		t.Run(target, func(t *testing.T) {
			if w := get(s, target); w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestSubmitOTP_Success(t *testing.T) {
	s, database, _ := setupTestServer(t)

	if w := postForm(s, "/login/email", url.Values{"email": {"foo@bar.com"}}); w.Code != http.StatusFound {
		t.Fatalf("email login: expected 302, got %d", w.Code)
	}

	w := postForm(s, "/login/otp", url.Values{"code": {validCode}, "methodId": {"e1"}, "userCreated": {"1"}})
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Location"); got != "/profile?userCreated=1" {
		t.Errorf("expected redirect to /profile?userCreated=1, got %s", got)
	}

	cookie := sessionCookie(t, s, w)
	if cookie == nil {
		t.Fatal("expected a session cookie")
	}
	sess, err := s.sessions.Decode(cookie.Value)
	if err != nil {
		t.Fatalf("session cookie does not decode: %v", err)
	}

	user, err := database.GetUserByStytchUserID(context.Background(), "u1")
	if err != nil || user == nil {
		t.Fatalf("expected local user for u1, got %v, %v", user, err)
	}
	if sess.UserID != user.ID || sess.StytchUserID != "u1" {
		t.Errorf("expected session {%s u1}, got %+v", user.ID, sess)
	}
}

func TestSubmitOTP_Rejected(t *testing.T) {
	s, _, _ := setupTestServer(t)
	postForm(s, "/login/email", url.Values{"email": {"foo@bar.com"}})

	w := postForm(s, "/login/otp", url.Values{"code": {"000000"}, "methodId": {"e1"}, "userCreated": {"1"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "The OTP code could not be found.") {
		t.Errorf("expected provider message in body, got %s", w.Body.String())
	}
	if sessionCookie(t, s, w) != nil {
		t.Error("expected no session cookie on rejected code")
	}
}

func TestSubmitOTP_JSONError(t *testing.T) {
	s, _, _ := setupTestServer(t)

	w := postForm(s, "/login/otp",
		url.Values{"code": {"000000"}, "methodId": {"e1"}, "userCreated": {"1"}},
		"Accept", "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("expected JSON error body: %v", err)
	}
	want := "We were not able to verify the provided code: The OTP code could not be found."
	if resp.Error != want {
		t.Errorf("expected %q, got %q", want, resp.Error)
	}
}

func TestSubmitOTP_InvalidCode(t *testing.T) {
	s, _, _ := setupTestServer(t)

	w := postForm(s, "/login/otp", url.Values{"code": {"12"}, "methodId": {"e1"}, "userCreated": {"1"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected form re-render with 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "OTP must be 6 digits") {
		t.Error("expected code field error")
	}
	if sessionCookie(t, s, w) != nil {
		t.Error("expected no session cookie")
	}
}

func TestSubmitOTP_UnknownLocalUser(t *testing.T) {
	s, _, _ := setupTestServer(t)

	// Stytch accepts the code but no local user was ever created for u1
	w := postForm(s, "/login/otp", url.Values{"code": {validCode}, "methodId": {"e1"}, "userCreated": {"0"}})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if sessionCookie(t, s, w) != nil {
		t.Error("expected no session cookie")
	}
}

func TestProfile_RequiresSession(t *testing.T) {
	s, _, _ := setupTestServer(t)

	w := get(s, "/profile")
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %s", w.Code, w.Header().Get("Location"))
	}

	w = get(s, "/profile", &http.Cookie{Name: "__session", Value: "forged"})
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login for forged cookie, got %d", w.Code)
	}
	if c := sessionCookie(t, s, w); c == nil || c.MaxAge >= 0 {
		t.Error("expected forged cookie to be cleared")
	}
}

func TestProfile_WithSession(t *testing.T) {
	s, _, _ := setupTestServer(t)
	cookie := login(t, s)

	w := get(s, "/profile?userCreated=1", cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	for _, want := range []string{"Welcome", "foo@bar.com", `href="/logout"`} {
		if !strings.Contains(body, want) {
			t.Errorf("expected body to contain %q", want)
		}
	}

	if w := get(s, "/profile", cookie); strings.Contains(w.Body.String(), "Welcome!") {
		t.Error("expected no welcome banner without userCreated=1")
	}
}

func TestProfile_JSON(t *testing.T) {
	s, _, _ := setupTestServer(t)
	cookie := login(t, s)

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("Accept", "application/json")
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var profile domain.Profile
	if err := json.Unmarshal(w.Body.Bytes(), &profile); err != nil {
		t.Fatalf("invalid profile JSON: %v", err)
	}
	if profile.StytchUserID != "u1" || profile.Status != "active" {
		t.Errorf("unexpected profile %+v", profile)
	}
	if len(profile.Emails) != 1 || profile.Emails[0].Email != "foo@bar.com" {
		t.Errorf("unexpected emails %+v", profile.Emails)
	}
	if profile.PhoneNumbers == nil {
		t.Error("expected empty phone number list, got nil")
	}
}

func TestLogin_RedirectsAuthenticatedUser(t *testing.T) {
	s, _, _ := setupTestServer(t)
	cookie := login(t, s)

	for _, path := range []string{"/login", "/login/email", "/login/sms"} {
		w := get(s, path, cookie)
		if w.Code != http.StatusFound || w.Header().Get("Location") != "/profile" {
			t.Errorf("%s: expected redirect to /profile, got %d %s", path, w.Code, w.Header().Get("Location"))
		}
	}
}

func TestLogout(t *testing.T) {
	s, _, _ := setupTestServer(t)
	cookie := login(t, s)

	w := get(s, "/logout", cookie)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %s", w.Code, w.Header().Get("Location"))
	}
	cleared := sessionCookie(t, s, w)
	if cleared == nil || cleared.MaxAge >= 0 {
		t.Errorf("expected cleared session cookie, got %+v", cleared)
	}

	for _, method := range []string{http.MethodHead, http.MethodPost, http.MethodPut, http.MethodDelete} {
		req := httptest.NewRequest(method, "/logout", nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s /logout: expected 405, got %d", method, rec.Code)
		}
		if allow := rec.Header().Get("Allow"); allow != http.MethodGet {
			t.Errorf("%s /logout: expected Allow: GET, got %q", method, allow)
		}
		if c := sessionCookie(t, s, rec); c != nil {
			t.Errorf("%s /logout: session cookie must not be touched, got %+v", method, c)
		}
	}
}

func TestNotFound(t *testing.T) {
	s, _, _ := setupTestServer(t)

	if w := get(s, "/nope"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
