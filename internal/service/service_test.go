package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/moasq/supalink/internal/connection"
	"github.com/moasq/supalink/internal/oauth"
	"github.com/moasq/supalink/internal/supabase"
)

type notification struct {
	level Level
	msg   string
}

type harness struct {
	svc   *Service
	store *connection.Store
	calls atomic.Int32

	mu     sync.Mutex
	notes  []notification
	routes map[string]http.HandlerFunc
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{routes: map[string]http.HandlerFunc{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.calls.Add(1)
		h.mu.Lock()
		fn := h.routes[r.URL.Path]
		h.mu.Unlock()
		if fn == nil {
			http.NotFound(w, r)
			return
		}
		fn(w, r)
	}))
	t.Cleanup(srv.Close)

	h.store = connection.NewStore(nil, nil, nil)
	h.svc = NewService(h.store, nil, ServiceOpts{
		APIURL:     srv.URL,
		HTTPClient: srv.Client(),
		Notify: func(level Level, msg string) {
			h.mu.Lock()
			h.notes = append(h.notes, notification{level, msg})
			h.mu.Unlock()
		},
		Now: func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	return h
}

func (h *harness) handle(path string, fn http.HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.routes[path] = fn
}

func (h *harness) route(path string, status int, body string) {
	h.handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	})
}

func (h *harness) notifications() []notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]notification(nil), h.notes...)
}

func (h *harness) connect(t *testing.T, token string) {
	t.Helper()
	if err := h.store.Update(connection.WithCredential(connection.Credential{AccessToken: token})); err != nil {
		t.Fatal(err)
	}
}

const profileBody = `{"gotrue_id":"u-1","primary_email":"dev@example.com","username":"dev"}`

func TestFetchProjects_Success(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "tok-1")

	var (
		seenMu          sync.Mutex
		gotAuth         string
		flagDuringFetch bool
	)
	h.handle("/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		seenMu.Lock()
		gotAuth = r.Header.Get("Authorization")
		flagDuringFetch = h.store.FetchingProjects()
		seenMu.Unlock()
		io.WriteString(w, `{"projects":[{"id":"p1","name":"One"},{"id":"p2","name":"Two"}],"totalProjects":7}`)
	})

	if err := h.svc.FetchProjects(context.Background()); err != nil {
		t.Fatalf("FetchProjects: %v", err)
	}
	seenMu.Lock()
	defer seenMu.Unlock()
	if gotAuth != "Bearer tok-1" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if !flagDuringFetch {
		t.Error("fetching flag not set during the request")
	}
	if h.store.FetchingProjects() {
		t.Error("fetching flag still set")
	}

	conn := h.store.Get()
	if len(conn.Projects) != 2 || conn.Projects[1].Name != "Two" {
		t.Fatalf("Projects = %+v", conn.Projects)
	}
	if conn.Projects[0].URL != "https://p1.supabase.co" {
		t.Errorf("URL = %q", conn.Projects[0].URL)
	}
	if conn.Stats == nil || conn.Stats.TotalProjects != 7 {
		t.Fatalf("Stats = %+v", conn.Stats)
	}
	if !conn.Stats.FetchedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("FetchedAt = %v", conn.Stats.FetchedAt)
	}
	if n := h.notifications(); len(n) != 0 {
		t.Errorf("notifications = %v", n)
	}
}

func TestFetchProjects_ArrayShape(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "tok")
	h.route("/v1/projects", http.StatusOK, `[{"id":"p1","name":"One"}]`)

	if err := h.svc.FetchProjects(context.Background()); err != nil {
		t.Fatalf("FetchProjects: %v", err)
	}
	if conn := h.store.Get(); conn.Stats.TotalProjects != 1 || len(conn.Projects) != 1 {
		t.Errorf("got %+v", conn)
	}
}

func TestFetchProjects_FailureKeepsState(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"message":"bad token"}`,
			check: func(t *testing.T, err error) {
				var fe *supabase.UpstreamFetchError
				if !errors.As(err, &fe) || fe.StatusCode != http.StatusUnauthorized {
					t.Errorf("err = %v, want 401 UpstreamFetchError", err)
				}
			},
		},
		{
			name:   "bad shape",
			status: http.StatusOK,
			body:   `{"items":[]}`,
			check: func(t *testing.T, err error) {
				var se *supabase.UpstreamSchemaError
				if !errors.As(err, &se) {
					t.Errorf("err = %v, want UpstreamSchemaError", err)
				}
			},
		},
		{
			name:   "project without name",
			status: http.StatusOK,
			body:   `[{"id":"p1"}]`,
			check: func(t *testing.T, err error) {
				var se *supabase.UpstreamSchemaError
				if !errors.As(err, &se) {
					t.Errorf("err = %v, want UpstreamSchemaError", err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.connect(t, "tok")
			prior := []supabase.ProjectSummary{{ID: "old", Name: "Old"}}
			priorStats := &connection.Stats{TotalProjects: 1}
			if err := h.store.Update(connection.WithProjects(prior), connection.WithStats(priorStats)); err != nil {
				t.Fatal(err)
			}
			h.route("/v1/projects", tt.status, tt.body)

			err := h.svc.FetchProjects(context.Background())
			if err == nil {
				t.Fatal("FetchProjects succeeded, want error")
			}
			tt.check(t, err)

			conn := h.store.Get()
			if len(conn.Projects) != 1 || conn.Projects[0].ID != "old" || conn.Stats.TotalProjects != 1 {
				t.Errorf("state changed: %+v", conn)
			}
			notes := h.notifications()
			if len(notes) != 1 || notes[0] != (notification{LevelError, "Failed to fetch Supabase projects"}) {
				t.Errorf("notifications = %v, want exactly one fetch failure", notes)
			}
			if h.store.FetchingProjects() {
				t.Error("fetching flag still set")
			}
		})
	}
}

func TestFetchProjects_NotConnected(t *testing.T) {
	h := newHarness(t)
	err := h.svc.FetchProjects(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
	if h.calls.Load() != 0 {
		t.Errorf("API called %d times", h.calls.Load())
	}
}

func TestFetchProjects_NoSingleFlight(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "tok")

	var arrived sync.WaitGroup
	arrived.Add(2)
	release := make(chan struct{})
	h.handle("/v1/projects", func(w http.ResponseWriter, r *http.Request) {
		arrived.Done()
		<-release
		io.WriteString(w, `[]`)
	})

	errs := make(chan error, 2)
	for range 2 {
		go func() { errs <- h.svc.FetchProjects(context.Background()) }()
	}

	done := make(chan struct{})
	go func() { arrived.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent fetches were not both sent")
	}
	close(release)
	for range 2 {
		if err := <-errs; err != nil {
			t.Errorf("FetchProjects: %v", err)
		}
	}
}

func TestFetchStats(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "tok")
	h.route("/v1/projects", http.StatusOK, `{"projects":[],"totalProjects":0}`)

	st, err := h.svc.FetchStats(context.Background())
	if err != nil {
		t.Fatalf("FetchStats: %v", err)
	}
	if st == nil || st.TotalProjects != 0 {
		t.Errorf("stats = %+v", st)
	}
	if p := h.store.Get().Projects; p == nil || len(p) != 0 {
		t.Errorf("Projects = %#v, want empty non-nil", p)
	}
}

func TestConnectWithToken_Empty(t *testing.T) {
	for _, token := range []string{"", "   ", "\n\t"} {
		h := newHarness(t)
		err := h.svc.ConnectWithToken(context.Background(), token)
		if !errors.Is(err, ErrEmptyCredential) {
			t.Errorf("ConnectWithToken(%q) = %v, want ErrEmptyCredential", token, err)
		}
		if h.calls.Load() != 0 {
			t.Errorf("ConnectWithToken(%q) made %d requests", token, h.calls.Load())
		}
		if conn := h.store.Get(); !conn.Credential.Empty() || conn.User != nil {
			t.Errorf("state changed: %+v", conn)
		}
	}
}

func TestConnectWithToken(t *testing.T) {
	h := newHarness(t)
	h.route("/v1/profile", http.StatusOK, profileBody)

	if err := h.svc.ConnectWithToken(context.Background(), "  sbp_abc  "); err != nil {
		t.Fatalf("ConnectWithToken: %v", err)
	}
	conn := h.store.Get()
	if conn.Credential.AccessToken != "sbp_abc" {
		t.Errorf("AccessToken = %q, want trimmed token", conn.Credential.AccessToken)
	}
	if conn.User == nil || conn.User.ID != "u-1" || conn.User.Email != "dev@example.com" {
		t.Errorf("User = %+v", conn.User)
	}
	if !conn.Connected() {
		t.Error("Connected() = false")
	}
	if notes := h.notifications(); len(notes) != 1 || notes[0].level != LevelSuccess {
		t.Errorf("notifications = %v", notes)
	}
	if h.store.Connecting() {
		t.Error("connecting flag still set")
	}
}

func TestConnectWithToken_Rejected(t *testing.T) {
	h := newHarness(t)
	h.route("/v1/profile", http.StatusUnauthorized, `{"message":"invalid"}`)

	err := h.svc.ConnectWithToken(context.Background(), "bad")
	var fe *supabase.UpstreamFetchError
	if !errors.As(err, &fe) || !fe.Unauthorized() {
		t.Fatalf("err = %v, want unauthorized", err)
	}
	if conn := h.store.Get(); !conn.Credential.Empty() {
		t.Errorf("credential stored after rejection: %+v", conn.Credential)
	}
	if notes := h.notifications(); len(notes) != 1 || notes[0] != (notification{LevelError, "Failed to connect to Supabase"}) {
		t.Errorf("notifications = %v", notes)
	}
}

func TestValidateCredential(t *testing.T) {
	h := newHarness(t)
	if err := h.svc.ValidateCredential(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}

	h.connect(t, "tok")
	h.route("/v1/profile", http.StatusForbidden, `{}`)
	if err := h.svc.ValidateCredential(context.Background()); err == nil {
		t.Fatal("ValidateCredential succeeded on 403")
	}
	if h.store.Get().User != nil {
		t.Error("User set after failed validation")
	}

	h.route("/v1/profile", http.StatusOK, profileBody)
	if err := h.svc.ValidateCredential(context.Background()); err != nil {
		t.Fatalf("ValidateCredential: %v", err)
	}
	if u := h.store.Get().User; u == nil || u.Name != "dev" {
		t.Errorf("User = %+v", u)
	}
}

func TestHydrate(t *testing.T) {
	h := newHarness(t)
	if err := h.svc.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate without credential: %v", err)
	}
	if h.calls.Load() != 0 {
		t.Errorf("Hydrate without credential made %d requests", h.calls.Load())
	}

	h.connect(t, "tok")
	h.route("/v1/profile", http.StatusOK, profileBody)
	h.route("/v1/projects", http.StatusOK, `[{"id":"p1","name":"One"}]`)
	if err := h.svc.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate: %v", err)
	}
	conn := h.store.Get()
	if conn.User == nil || len(conn.Projects) != 1 {
		t.Errorf("after Hydrate: %+v", conn)
	}
}

func TestCompleteConnect(t *testing.T) {
	h := newHarness(t)
	if err := h.store.Update(
		connection.WithUser(&supabase.UserProfile{ID: "old"}),
		connection.WithProjects([]supabase.ProjectSummary{{ID: "p", Name: "P"}}),
	); err != nil {
		t.Fatal(err)
	}

	expiry := time.Now().Add(time.Hour)
	tok := &oauth2.Token{AccessToken: "at", RefreshToken: "rt", TokenType: "bearer", Expiry: expiry}
	if err := h.svc.CompleteConnect(context.Background(), tok); err != nil {
		t.Fatalf("CompleteConnect: %v", err)
	}
	conn := h.store.Get()
	if conn.Credential.AccessToken != "at" || conn.Credential.RefreshToken != "rt" || !conn.Credential.Expiry.Equal(expiry) {
		t.Errorf("Credential = %+v", conn.Credential)
	}
	if conn.User != nil || conn.Projects != nil || conn.Stats != nil {
		t.Errorf("user/projects not cleared: %+v", conn)
	}

	if err := h.svc.CompleteConnect(context.Background(), &oauth2.Token{}); !errors.Is(err, ErrEmptyCredential) {
		t.Errorf("empty token err = %v", err)
	}
}

func TestDisconnect(t *testing.T) {
	h := newHarness(t)
	if err := h.store.Update(
		connection.WithCredential(connection.Credential{AccessToken: "at", RefreshToken: "rt"}),
		connection.WithUser(&supabase.UserProfile{ID: "u"}),
		connection.WithProjects([]supabase.ProjectSummary{{ID: "p", Name: "P"}}),
		connection.WithStats(&connection.Stats{TotalProjects: 1}),
	); err != nil {
		t.Fatal(err)
	}

	if err := h.svc.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	conn := h.store.Get()
	if conn.User != nil || !conn.Credential.Empty() || conn.Credential.RefreshToken != "" || conn.Projects != nil || conn.Stats != nil {
		t.Errorf("state after Disconnect = %+v", conn)
	}
	if notes := h.notifications(); len(notes) != 1 || notes[0] != (notification{LevelSuccess, "Disconnected from Supabase"}) {
		t.Errorf("notifications = %v", notes)
	}
}

func TestBeginConnect(t *testing.T) {
	store := connection.NewStore(nil, nil, nil)

	svc := NewService(store, oauth.NewFlow(oauth.ClientConfig{AuthURL: "https://api.supabase.com/v1/oauth/authorize"}, nil))
	_, _, err := svc.BeginConnect("http://localhost/cb")
	if !errors.Is(err, oauth.ErrMissingServerConfig) {
		t.Fatalf("err = %v, want ErrMissingServerConfig", err)
	}
	if store.Connecting() {
		t.Error("connecting flag left set after failure")
	}

	svc = NewService(store, oauth.NewFlow(oauth.ClientConfig{
		ClientID: "cid",
		AuthURL:  "https://api.supabase.com/v1/oauth/authorize",
	}, nil))
	p, authURL, err := svc.BeginConnect("http://localhost/cb")
	if err != nil {
		t.Fatalf("BeginConnect: %v", err)
	}
	if !strings.Contains(authURL, "state="+p.State) || !strings.Contains(authURL, "code_challenge="+p.CodeChallenge()) {
		t.Errorf("authorize URL %q does not carry the pending authorization", authURL)
	}
	if store.Connecting() {
		t.Error("connecting flag left set")
	}
}
