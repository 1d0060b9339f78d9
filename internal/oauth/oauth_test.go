package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestNewPendingAuthorization(t *testing.T) {
	p, err := NewPendingAuthorization()
	if err != nil {
		t.Fatalf("NewPendingAuthorization: %v", err)
	}
	if len(p.State) != 36 {
		t.Errorf("State = %q, want a UUID", p.State)
	}
	if len(p.CodeVerifier) < 43 {
		t.Errorf("CodeVerifier length = %d, want >= 43", len(p.CodeVerifier))
	}

	sum := sha256.Sum256([]byte(p.CodeVerifier))
	if got, want := p.CodeChallenge(), base64.RawURLEncoding.EncodeToString(sum[:]); got != want {
		t.Errorf("CodeChallenge = %q, want %q", got, want)
	}

	q, err := NewPendingAuthorization()
	if err != nil {
		t.Fatal(err)
	}
	if p.State == q.State || p.CodeVerifier == q.CodeVerifier {
		t.Error("two pending authorizations share a value")
	}
}

func TestCallbackParamsValidate(t *testing.T) {
	valid := CallbackParams{Code: "c", State: "s", StoredState: "s", CodeVerifier: "v"}
	tests := []struct {
		name    string
		mutate  func(*CallbackParams)
		kind    error
		message string
	}{
		{"valid", func(*CallbackParams) {}, nil, ""},
		{"missing code", func(p *CallbackParams) { p.Code = "" }, ErrMissingParameter, "Missing code parameter"},
		{"missing state", func(p *CallbackParams) { p.State = "" }, ErrMissingParameter, "Missing state parameter"},
		{"missing stored state", func(p *CallbackParams) { p.StoredState = "" }, ErrMissingParameter, "Missing stored state"},
		{"mismatch", func(p *CallbackParams) { p.StoredState = "other" }, ErrStateMismatch, "Invalid state parameter"},
		{"missing verifier", func(p *CallbackParams) { p.CodeVerifier = "" }, ErrMissingParameter, "Missing code verifier"},
		{"code checked first", func(p *CallbackParams) { *p = CallbackParams{} }, ErrMissingParameter, "Missing code parameter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			if tt.kind == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var oe *Error
			if !errors.As(err, &oe) {
				t.Fatalf("Validate() = %v, want *Error", err)
			}
			if !errors.Is(err, tt.kind) {
				t.Errorf("kind = %v, want %v", oe.Kind, tt.kind)
			}
			if oe.Status != http.StatusBadRequest || oe.Message != tt.message {
				t.Errorf("got %d %q, want 400 %q", oe.Status, oe.Message, tt.message)
			}
		})
	}
}

func TestCheckServerConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClientConfig
		message string
	}{
		{"ok", ClientConfig{ClientID: "id", ClientSecret: "secret"}, ""},
		{"no id", ClientConfig{ClientSecret: "secret"}, "Missing SUPABASE_CLIENT_ID environment variable"},
		{"no secret", ClientConfig{ClientID: "id"}, "Missing SUPABASE_CLIENT_SECRET environment variable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewFlow(tt.cfg, nil).CheckServerConfig()
			if tt.message == "" {
				if err != nil {
					t.Fatalf("CheckServerConfig() = %v", err)
				}
				return
			}
			var oe *Error
			if !errors.As(err, &oe) || oe.Message != tt.message || oe.Status != http.StatusInternalServerError {
				t.Fatalf("CheckServerConfig() = %v, want 500 %q", err, tt.message)
			}
			if !errors.Is(err, ErrMissingServerConfig) {
				t.Error("error does not match ErrMissingServerConfig")
			}
		})
	}
}

func TestAuthorizeURL(t *testing.T) {
	flow := NewFlow(ClientConfig{
		ClientID: "client-1",
		AuthURL:  "https://api.supabase.com/v1/oauth/authorize",
		Scope:    "supabase",
	}, nil)
	p := PendingAuthorization{State: "state-1", CodeVerifier: strings.Repeat("v", 43)}

	raw := flow.AuthorizeURL(p, "http://localhost:5173/api/supabase/callback")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	if u.Host != "api.supabase.com" || u.Path != "/v1/oauth/authorize" {
		t.Errorf("URL = %s", raw)
	}
	q := u.Query()
	want := map[string]string{
		"client_id":             "client-1",
		"redirect_uri":          "http://localhost:5173/api/supabase/callback",
		"response_type":         "code",
		"scope":                 "supabase",
		"state":                 "state-1",
		"code_challenge":        p.CodeChallenge(),
		"code_challenge_method": "S256",
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestExchange(t *testing.T) {
	var gotForm url.Values
	var gotUser, gotPass string
	status := http.StatusOK
	body := `{"access_token":"at","refresh_token":"rt","token_type":"bearer","expires_in":3600}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	defer srv.Close()

	flow := NewFlow(ClientConfig{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		TokenURL:     srv.URL + "/v1/oauth/token",
	}, srv.Client())

	tok, err := flow.Exchange(context.Background(), "code-1", "verifier-1", "http://localhost/cb")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if tok.AccessToken != "at" || tok.RefreshToken != "rt" {
		t.Errorf("token = %+v", tok)
	}
	if tok.Expiry.Before(time.Now().Add(50 * time.Minute)) {
		t.Errorf("Expiry = %v, want about an hour from now", tok.Expiry)
	}
	if gotUser != "client-1" || gotPass != "secret-1" {
		t.Errorf("basic auth = %q:%q", gotUser, gotPass)
	}
	for k, v := range map[string]string{
		"grant_type":    "authorization_code",
		"code":          "code-1",
		"redirect_uri":  "http://localhost/cb",
		"code_verifier": "verifier-1",
	} {
		if got := gotForm.Get(k); got != v {
			t.Errorf("form %s = %q, want %q", k, got, v)
		}
	}
	if gotForm.Has("client_secret") {
		t.Error("client_secret sent in the form body")
	}

	t.Run("upstream rejection", func(t *testing.T) {
		status = http.StatusUnauthorized
		body = `{"error":"invalid_grant"}`
		_, err := flow.Exchange(context.Background(), "code-1", "verifier-1", "http://localhost/cb")

		var oe *Error
		if !errors.As(err, &oe) || oe.Status != http.StatusBadRequest || oe.Message != "Failed to exchange code for token" {
			t.Fatalf("err = %v, want 400 Failed to exchange code for token", err)
		}
		var ee *ExchangeError
		if !errors.As(oe.Cause, &ee) || ee.StatusCode != http.StatusUnauthorized || !strings.Contains(ee.Body, "invalid_grant") {
			t.Errorf("cause = %v, want ExchangeError 401 with body", oe.Cause)
		}
		if strings.Contains(oe.Message, "invalid_grant") {
			t.Error("upstream body leaked into message")
		}
	})

	t.Run("missing access token", func(t *testing.T) {
		status = http.StatusOK
		body = `{"token_type":"bearer"}`
		_, err := flow.Exchange(context.Background(), "code-1", "verifier-1", "http://localhost/cb")
		var oe *Error
		if !errors.As(err, &oe) || oe.Status != http.StatusInternalServerError || !errors.Is(err, ErrExchange) {
			t.Fatalf("err = %v, want 500 exchange error", err)
		}
	})
}

func TestExchange_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	tokenURL := srv.URL + "/token"
	srv.Close()

	flow := NewFlow(ClientConfig{ClientID: "id", ClientSecret: "s", TokenURL: tokenURL}, nil)
	_, err := flow.Exchange(context.Background(), "c", "v", "http://localhost/cb")
	var oe *Error
	if !errors.As(err, &oe) || oe.Message != "Error exchanging code for token" || oe.Status != http.StatusInternalServerError {
		t.Fatalf("err = %v, want 500 Error exchanging code for token", err)
	}
}

func TestPendingCookies(t *testing.T) {
	p := PendingAuthorization{State: "s1", CodeVerifier: "v1"}

	rec := httptest.NewRecorder()
	SetPendingCookies(rec, httptest.NewRequest(http.MethodGet, "/api/supabase/authorize", nil), p)

	cookies := rec.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("got %d cookies, want 2", len(cookies))
	}
	for _, c := range cookies {
		if !c.HttpOnly || c.SameSite != http.SameSiteLaxMode || c.Path != "/api/supabase" || c.MaxAge != 600 {
			t.Errorf("cookie %s = %+v", c.Name, c)
		}
		if c.Secure {
			t.Errorf("cookie %s is Secure on a plain HTTP request", c.Name)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/supabase/callback", nil)
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	state, verifier := ReadPendingCookies(req)
	if state != "s1" || verifier != "v1" {
		t.Errorf("ReadPendingCookies = %q, %q", state, verifier)
	}

	state, verifier = ReadPendingCookies(httptest.NewRequest(http.MethodGet, "/", nil))
	if state != "" || verifier != "" {
		t.Errorf("ReadPendingCookies without cookies = %q, %q", state, verifier)
	}

	rec = httptest.NewRecorder()
	ClearPendingCookies(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge >= 0 || c.Value != "" {
			t.Errorf("cookie %s not cleared: %+v", c.Name, c)
		}
	}
}

func ExampleFlow_AuthorizeURL() {
	flow := NewFlow(ClientConfig{ClientID: "abc", AuthURL: "https://api.supabase.com/v1/oauth/authorize"}, nil)
	u, _ := url.Parse(flow.AuthorizeURL(PendingAuthorization{State: "xyz", CodeVerifier: "v"}, "http://localhost/cb"))
	fmt.Println(u.Query().Get("code_challenge_method"), u.Query().Get("state"))
	// Output: S256 xyz
}
