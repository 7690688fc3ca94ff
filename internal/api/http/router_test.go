package http

import (
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/portfolio-admin/internal/api/http/handlers"
	"github.com/spec-kit/portfolio-admin/internal/auth"
	"github.com/spec-kit/portfolio-admin/internal/backend"
	"github.com/spec-kit/portfolio-admin/internal/config"
	"github.com/spec-kit/portfolio-admin/internal/domain"
	"github.com/spec-kit/portfolio-admin/internal/events"
	"github.com/spec-kit/portfolio-admin/internal/observability"
	"github.com/spec-kit/portfolio-admin/internal/repository"
	"github.com/spec-kit/portfolio-admin/internal/service"
	"github.com/spec-kit/portfolio-admin/internal/session"
)

const (
	testEmail    = "admin@example.com"
	testPassword = "secret"
	testToken    = "tok-1"
	cookieName   = "admin_scope"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakePortfolio plays the portfolio REST backend.
type fakePortfolio struct {
	mu          sync.Mutex
	revoked     bool
	logins      int
	logouts     int
	authHeaders []string
}

func (f *fakePortfolio) ServeHTTP(w nethttp.ResponseWriter, r *nethttp.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/api/login":
		f.logins++
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != testEmail || body["password"] != testPassword {
			w.WriteHeader(nethttp.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"success":false,"message":"Invalid credentials"}`)
			return
		}
		_, _ = io.WriteString(w, `{"success":true,"access_token":"`+testToken+`","token_type":"Bearer","expires_in":3600,"message":"ok"}`)
	case "/api/logout":
		f.logouts++
		_, _ = io.WriteString(w, `{"success":true}`)
	default:
		f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
		if f.revoked || r.Header.Get("Authorization") != "Bearer "+testToken {
			w.WriteHeader(nethttp.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"Not authenticated"}`)
			return
		}
		_, _ = io.WriteString(w, `[{"id":1,"title":"Portfolio"}]`)
	}
}

func (f *fakePortfolio) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func (f *fakePortfolio) lastAuthHeader() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.authHeaders) == 0 {
		return ""
	}
	return f.authHeaders[len(f.authHeaders)-1]
}

type harness struct {
	app     *fiber.App
	clock   *testClock
	backend *fakePortfolio
	client  *backend.Client
	eval    *session.Evaluator
	metrics *observability.Metrics
	mu      sync.Mutex
	cleared []domain.ClearReason
}

func newHarness(t *testing.T, loginGatePolicy session.Policy) *harness {
	t.Helper()

	fake := &fakePortfolio{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	h := &harness{
		clock:   &testClock{now: time.UnixMilli(1_700_000_000_000)},
		backend: fake,
		metrics: observability.NewMetrics(),
	}
	logger := zap.NewNop()

	h.client = backend.NewClient(config.BackendConfig{
		BaseURL:        srv.URL + "/api",
		LoginPath:      "/login",
		LogoutPath:     "/logout",
		TimeoutSeconds: 5,
	}, "portfolio-admin-test", backend.WithClock(h.clock.Now))

	sealer, err := session.NewAEADSealer("seal-secret")
	require.NoError(t, err)
	dispatcher := events.NewInMemoryDispatcher(logger)
	dispatcher.Subscribe(events.EventSessionCleared, func(_ context.Context, e events.Event) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.cleared = append(h.cleared, e.Payload.(events.SessionClearedPayload).Reason)
		return nil
	})

	store := session.NewTokenStore(repository.NewMemoryCredentialRepository(h.clock.Now), sealer, h.client, logger)
	h.eval = session.NewEvaluator(store, h.clock.Now, dispatcher, logger)

	gate := auth.NewSessionGate(auth.GateConfig{
		Evaluator:       h.eval,
		Scopes:          auth.NewScopeSigner("scope-secret", 0, h.clock.Now),
		CookieName:      cookieName,
		LoginPath:       "/login",
		DashboardPath:   "/dashboard",
		LoginGatePolicy: loginGatePolicy,
		Metrics:         h.metrics,
		Logger:          logger,
	})

	views, err := handlers.NewViews()
	require.NoError(t, err)

	h.app = fiber.New()
	RegisterMiddlewares(h.app, logger, h.metrics, 0)
	RegisterRoutes(h.app, RouteConfig{
		Health: handlers.NewHealthHandler("portfolio-admin", "test", config.StoreMemory, nil, h.metrics),
		Session: handlers.NewSessionHandler(handlers.SessionHandlerDeps{
			Auth:         service.NewAuthService(service.AuthDependencies{Backend: h.client, Evaluator: h.eval, Logger: logger}),
			Gate:         gate,
			Evaluator:    h.eval,
			StatusPolicy: session.EarlyRefreshPolicy(session.DefaultEarlyRefreshWindow),
			Views:        views,
		}),
		Resources: handlers.NewResourcesHandler(h.client, gate, h.eval, logger),
		Gate:      gate,
	})
	return h
}

func (h *harness) do(t *testing.T, req *nethttp.Request, cookie *nethttp.Cookie) *nethttp.Response {
	t.Helper()
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (h *harness) get(t *testing.T, target string, cookie *nethttp.Cookie) *nethttp.Response {
	t.Helper()
	return h.do(t, httptest.NewRequest(nethttp.MethodGet, target, nil), cookie)
}

// login submits the login form and returns the scope cookie.
func (h *harness) login(t *testing.T) *nethttp.Cookie {
	t.Helper()
	form := url.Values{"email": {testEmail}, "password": {testPassword}}
	req := httptest.NewRequest(nethttp.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", fiber.MIMEApplicationForm)

	resp := h.do(t, req, nil)
	require.Equal(t, nethttp.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/dashboard", resp.Header.Get("Location"))
	return scopeCookie(t, resp)
}

func (h *harness) storedBundle(t *testing.T, cookie *nethttp.Cookie) *domain.Bundle {
	t.Helper()
	scope, err := auth.NewScopeSigner("scope-secret", 0, h.clock.Now).Parse(cookie.Value)
	require.NoError(t, err)
	b, err := h.eval.Store().Read(context.Background(), scope)
	require.NoError(t, err)
	return b
}

func (h *harness) clearReasons() []domain.ClearReason {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.ClearReason(nil), h.cleared...)
}

func scopeCookie(t *testing.T, resp *nethttp.Response) *nethttp.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == cookieName {
			assert.True(t, c.HttpOnly)
			return c
		}
	}
	t.Fatalf("response carried no %s cookie", cookieName)
	return nil
}

func readBody(t *testing.T, resp *nethttp.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func decodeJSON(t *testing.T, resp *nethttp.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}
