package middleware

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/todo-acl/pkg/auth"
	"github.com/platinummonkey/todo-acl/pkg/contextkeys"
	"github.com/platinummonkey/todo-acl/pkg/observability"
)

const testSecret = "pipeline-test-secret"

// memoryUsers is a map-backed auth.UserFinder
type memoryUsers struct {
	users map[string]*auth.User
	err   error
}

func (m *memoryUsers) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[username]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", username, auth.ErrUserNotFound)
	}
	return u, nil
}

type fixture struct {
	users    *memoryUsers
	tokens   *auth.TokenService
	resolver *auth.IdentityResolver
	metrics  *observability.Metrics
	logs     *test.Hook
	pipeline *Pipeline
}

func newFixture(t *testing.T, opts ...PipelineOption) *fixture {
	t.Helper()

	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	users := &memoryUsers{users: make(map[string]*auth.User)}
	for name, role := range map[string]auth.Role{
		"alice": auth.RoleEditor,
		"root":  auth.RoleAdmin,
		"wendy": auth.RoleWriter,
	} {
		hash, err := hasher.Hash("pw123")
		if err != nil {
			t.Fatalf("Hash() error = %v", err)
		}
		users.users[name] = &auth.User{ID: int64(len(users.users) + 1), Username: name, PasswordHash: hash, Role: role}
	}

	tokens, err := auth.NewTokenService(testSecret)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	metrics := observability.NewMetrics(nil)
	resolver := auth.NewIdentityResolver(users, hasher, tokens)

	opts = append([]PipelineOption{WithLogger(logger), WithMetrics(metrics)}, opts...)
	return &fixture{
		users:    users,
		tokens:   tokens,
		resolver: resolver,
		metrics:  metrics,
		logs:     hook,
		pipeline: NewPipeline(resolver, opts...),
	}
}

func basic(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

func (f *fixture) bearer(t *testing.T, username string) string {
	t.Helper()
	token, err := f.tokens.Issue(username)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return "Bearer " + token
}

// recordingHandler remembers whether it ran and which identity it saw
type recordingHandler struct {
	called   bool
	identity *auth.Identity
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.identity, _ = contextkeys.GetIdentity(r.Context())
	w.WriteHeader(http.StatusOK)
}

func serve(h http.Handler, method, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/todos/1", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestPipeline_Authenticate(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name       string
		header     func() string
		wantStatus int
		wantBody   string
		wantScheme auth.Scheme
	}{
		{"basic ok", func() string { return basic("alice", "pw123") }, http.StatusOK, "", auth.SchemeBasic},
		{"bearer ok", func() string { return f.bearer(t, "alice") }, http.StatusOK, "", auth.SchemeBearer},
		{"lowercase scheme", func() string { return "bearer " + f.bearer(t, "alice")[len("Bearer "):] }, http.StatusOK, "", auth.SchemeBearer},
		{"missing header", func() string { return "" }, http.StatusUnauthorized, "authentication required", ""},
		{"unsupported scheme", func() string { return "Digest abc" }, http.StatusUnauthorized, "authentication required", ""},
		{"wrong password", func() string { return basic("alice", "nope") }, http.StatusUnauthorized, "authentication failed", ""},
		{"unknown user", func() string { return basic("mallory", "pw123") }, http.StatusUnauthorized, "authentication failed", ""},
		{"malformed basic", func() string { return "Basic !!!not-base64" }, http.StatusUnauthorized, "authentication failed", ""},
		{"basic without colon", func() string {
			return "Basic " + base64.StdEncoding.EncodeToString([]byte("alice"))
		}, http.StatusUnauthorized, "authentication failed", ""},
		{"garbage token", func() string { return "Bearer not.a.token" }, http.StatusUnauthorized, "authentication failed", ""},
		{"empty token", func() string { return "Bearer " }, http.StatusUnauthorized, "authentication failed", ""},
		{"token for deleted user", func() string { return f.bearer(t, "ghost") }, http.StatusUnauthorized, "authentication failed", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &recordingHandler{}
			rr := serve(f.pipeline.Authenticate(h), http.MethodGet, tt.header())

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				if h.called {
					t.Error("handler should not run on rejection")
				}
				want := `{"error":"` + tt.wantBody + `"}`
				if got := rr.Body.String(); got != want+"\n" {
					t.Errorf("body = %q, want %q", got, want)
				}
				if rr.Header().Get("WWW-Authenticate") == "" {
					t.Error("expected WWW-Authenticate header")
				}
				return
			}
			if h.identity == nil {
				t.Fatal("identity not attached")
			}
			if h.identity.User.Username != "alice" || h.identity.Scheme != tt.wantScheme {
				t.Errorf("identity = %s/%s", h.identity.User.Username, h.identity.Scheme)
			}
			if !h.identity.Can(auth.CapabilityUpdate) || h.identity.Can(auth.CapabilityDelete) {
				t.Errorf("editor capabilities = %v", h.identity.Capabilities)
			}
		})
	}
}

func TestPipeline_FailureBodiesAreIdentical(t *testing.T) {
	f := newFixture(t)
	h := &recordingHandler{}

	wrongPassword := serve(f.pipeline.Authenticate(h), http.MethodGet, basic("alice", "nope"))
	unknownUser := serve(f.pipeline.Authenticate(h), http.MethodGet, basic("mallory", "nope"))
	badToken := serve(f.pipeline.Authenticate(h), http.MethodGet, "Bearer x.y.z")

	if wrongPassword.Body.String() != unknownUser.Body.String() || unknownUser.Body.String() != badToken.Body.String() {
		t.Errorf("bodies differ: %q %q %q", wrongPassword.Body, unknownUser.Body, badToken.Body)
	}
}

func TestPipeline_AuthenticateBasic(t *testing.T) {
	f := newFixture(t)

	h := &recordingHandler{}
	rr := serve(f.pipeline.AuthenticateBasic(h), http.MethodPost, f.bearer(t, "alice"))
	if rr.Code != http.StatusUnauthorized || h.called {
		t.Errorf("bearer on basic-only route: status = %d, called = %v", rr.Code, h.called)
	}

	rr = serve(f.pipeline.AuthenticateBasic(h), http.MethodPost, basic("alice", "pw123"))
	if rr.Code != http.StatusOK || !h.called {
		t.Errorf("basic on basic-only route: status = %d, called = %v", rr.Code, h.called)
	}
}

func TestPipeline_Guard(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name       string
		capability auth.Capability
		header     string
		wantStatus int
	}{
		{"editor may update", auth.CapabilityUpdate, basic("alice", "pw123"), http.StatusOK},
		{"editor may read", auth.CapabilityRead, basic("alice", "pw123"), http.StatusOK},
		{"editor may not delete", auth.CapabilityDelete, basic("alice", "pw123"), http.StatusForbidden},
		{"editor may not create", auth.CapabilityCreate, basic("alice", "pw123"), http.StatusForbidden},
		{"writer may create", auth.CapabilityCreate, basic("wendy", "pw123"), http.StatusOK},
		{"writer may not read", auth.CapabilityRead, basic("wendy", "pw123"), http.StatusForbidden},
		{"admin may delete", auth.CapabilityDelete, basic("root", "pw123"), http.StatusOK},
		{"no credentials", auth.CapabilityRead, "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &recordingHandler{}
			rr := serve(f.pipeline.Guard(tt.capability, h), http.MethodGet, tt.header)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if h.called != (tt.wantStatus == http.StatusOK) {
				t.Errorf("handler called = %v", h.called)
			}
			if tt.wantStatus == http.StatusForbidden && rr.Body.String() != `{"error":"insufficient permissions"}`+"\n" {
				t.Errorf("body = %q", rr.Body.String())
			}
		})
	}
}

func TestPipeline_RequireCapabilityWithoutIdentity(t *testing.T) {
	f := newFixture(t)
	h := &recordingHandler{}

	rr := serve(f.pipeline.RequireCapability(auth.CapabilityRead)(h), http.MethodGet, basic("alice", "pw123"))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
	if h.called {
		t.Error("handler should not run")
	}
}

func TestPipeline_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.users.err = errors.New("connection refused")

	h := &recordingHandler{}
	rr := serve(f.pipeline.Authenticate(h), http.MethodGet, basic("alice", "pw123"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if rr.Body.String() != `{"error":"internal server error"}`+"\n" {
		t.Errorf("body = %q", rr.Body.String())
	}

	entry := f.logs.LastEntry()
	if entry == nil || entry.Level != logrus.ErrorLevel {
		t.Fatalf("expected an error log entry, got %+v", entry)
	}
	if entry.Data["kind"] != auth.KindInternal {
		t.Errorf("kind = %v", entry.Data["kind"])
	}
}

func TestPipeline_RejectionIsAudited(t *testing.T) {
	f := newFixture(t)

	serve(f.pipeline.Authenticate(&recordingHandler{}), http.MethodGet, basic("alice", "nope"))

	entry := f.logs.LastEntry()
	if entry == nil {
		t.Fatal("no log entry")
	}
	if entry.Level != logrus.WarnLevel {
		t.Errorf("level = %v, want warn", entry.Level)
	}
	if entry.Data["kind"] != auth.KindInvalidCredentials {
		t.Errorf("kind = %v", entry.Data["kind"])
	}
	if entry.Data["username"] != "alice" {
		t.Errorf("username = %v", entry.Data["username"])
	}
	if entry.Data["scheme"] != string(auth.SchemeBasic) {
		t.Errorf("scheme = %v", entry.Data["scheme"])
	}
	for _, e := range f.logs.AllEntries() {
		for k, v := range e.Data {
			if s, ok := v.(string); ok && s == "nope" {
				t.Errorf("password leaked in field %q", k)
			}
		}
	}
}

func TestPipeline_Metrics(t *testing.T) {
	f := newFixture(t)
	h := &recordingHandler{}

	serve(f.pipeline.Authenticate(h), http.MethodGet, basic("alice", "pw123"))
	serve(f.pipeline.Authenticate(h), http.MethodGet, basic("alice", "nope"))
	serve(f.pipeline.Authenticate(h), http.MethodGet, "")

	if got := testutil.ToFloat64(f.metrics.AuthAttemptsTotal.WithLabelValues("basic", observability.OutcomeSuccess)); got != 1 {
		t.Errorf("basic success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(f.metrics.AuthAttemptsTotal.WithLabelValues("basic", auth.KindInvalidCredentials)); got != 1 {
		t.Errorf("basic invalid_credentials = %v, want 1", got)
	}
	if got := testutil.ToFloat64(f.metrics.AuthAttemptsTotal.WithLabelValues("none", auth.KindUnauthenticated)); got != 1 {
		t.Errorf("none unauthenticated = %v, want 1", got)
	}
}

func TestPipeline_LoginThrottle(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute})
	f := newFixture(t, WithLimiter(limiter))
	h := &recordingHandler{}

	for i := 0; i < 2; i++ {
		if rr := serve(f.pipeline.Authenticate(h), http.MethodGet, basic("alice", "nope")); rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d, want 401", i, rr.Code)
		}
	}

	rr := serve(f.pipeline.Authenticate(h), http.MethodGet, basic("alice", "pw123"))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if h.called {
		t.Error("handler should not run when throttled")
	}

	// Bearer requests are not throttled
	if rr := serve(f.pipeline.Authenticate(h), http.MethodGet, f.bearer(t, "alice")); rr.Code != http.StatusOK {
		t.Errorf("bearer status = %d, want 200", rr.Code)
	}

	if got := testutil.ToFloat64(f.metrics.RateLimitedTotal.WithLabelValues(ThrottleLogin)); got != 1 {
		t.Errorf("rate limited = %v, want 1", got)
	}
}

func TestPipeline_SuccessfulBasicIsNotCharged(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute})
	f := newFixture(t, WithLimiter(limiter))
	h := &recordingHandler{}

	for i := 0; i < 10; i++ {
		if rr := serve(f.pipeline.Authenticate(h), http.MethodGet, basic("root", "pw123")); rr.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, rr.Code)
		}
	}

	// one failure spends one token, the next success still passes
	if rr := serve(f.pipeline.Authenticate(h), http.MethodGet, basic("root", "wrong")); rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d, want 401", rr.Code)
	}
	if rr := serve(f.pipeline.Authenticate(h), http.MethodGet, basic("root", "pw123")); rr.Code != http.StatusOK {
		t.Errorf("status after one failure = %d, want 200", rr.Code)
	}
	if d, _ := limiter.Status(context.Background(), ThrottleLogin+":192.0.2.10"); d.Remaining != 1 {
		t.Errorf("remaining = %d, want 1", d.Remaining)
	}
}

func TestPipeline_SignInChargesEveryAttempt(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute})
	f := newFixture(t, WithLimiter(limiter))
	h := &recordingHandler{}

	for i := 0; i < 2; i++ {
		if rr := serve(f.pipeline.AuthenticateBasic(h), http.MethodPost, basic("alice", "pw123")); rr.Code != http.StatusOK {
			t.Fatalf("sign-in %d status = %d, want 200", i, rr.Code)
		}
	}
	if rr := serve(f.pipeline.AuthenticateBasic(h), http.MethodPost, basic("alice", "pw123")); rr.Code != http.StatusTooManyRequests {
		t.Errorf("third sign-in status = %d, want 429", rr.Code)
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	return Decision{Allowed: true}, errors.New("redis down")
}

func (failingLimiter) Status(ctx context.Context, key string) (Decision, error) {
	return Decision{Allowed: true}, errors.New("redis down")
}

func TestPipeline_LimiterFailsOpen(t *testing.T) {
	f := newFixture(t, WithLimiter(failingLimiter{}))
	h := &recordingHandler{}

	rr := serve(f.pipeline.Authenticate(h), http.MethodGet, basic("alice", "pw123"))
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}

	found := false
	for _, e := range f.logs.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "rate limiter unavailable, allowing request" {
			found = true
		}
	}
	if !found {
		t.Error("expected a warning about the limiter")
	}
}

func TestPipeline_Throttle(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute})
	f := newFixture(t, WithLimiter(limiter))
	h := &recordingHandler{}
	throttled := f.pipeline.Throttle(ThrottleSignup)(h)

	if rr := serve(throttled, http.MethodPost, ""); rr.Code != http.StatusOK {
		t.Fatalf("first status = %d", rr.Code)
	}
	if rr := serve(throttled, http.MethodPost, ""); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rr.Code)
	}
}

func TestPipeline_ThrottleKey(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute})

	tests := []struct {
		name       string
		trust      bool
		wantStatus int
	}{
		// Spoofed forwarding headers share the socket address bucket
		{"proxy headers ignored", false, http.StatusTooManyRequests},
		{"proxy headers trusted", true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, WithLimiter(limiter), WithTrustedProxyHeaders(tt.trust))
			throttled := f.pipeline.Throttle(tt.name)(&recordingHandler{})

			for i, forwarded := range []string{"203.0.113.1", "203.0.113.2"} {
				req := httptest.NewRequest(http.MethodPost, "/signup", nil)
				req.RemoteAddr = "192.0.2.10:5555"
				req.Header.Set("X-Forwarded-For", forwarded)
				rr := httptest.NewRecorder()
				throttled.ServeHTTP(rr, req)

				if i == 1 && rr.Code != tt.wantStatus {
					t.Errorf("second request status = %d, want %d", rr.Code, tt.wantStatus)
				}
			}
		})
	}
}

func TestPipeline_RequestLoggerCarriesUsername(t *testing.T) {
	f := newFixture(t)

	var fields logrus.Fields
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if entry, ok := contextkeys.GetLogger(r.Context()).(*logrus.Entry); ok {
			fields = entry.Data
		}
	})

	serve(f.pipeline.Authenticate(h), http.MethodGet, basic("alice", "pw123"))
	if fields["username"] != "alice" {
		t.Errorf("request logger fields = %v", fields)
	}
}
