package http

import (
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/portfolio-admin/internal/domain"
	"github.com/spec-kit/portfolio-admin/internal/session"
)

func TestColdStartRedirectsToLogin(t *testing.T) {
	h := newHarness(t, session.StrictPolicy)

	resp := h.get(t, "/dashboard", nil)

	assert.Equal(t, nethttp.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?redirect_uri=%2Fdashboard", resp.Header.Get("Location"))
}

func TestLoginViewWithoutSession(t *testing.T) {
	h := newHarness(t, session.StrictPolicy)

	resp := h.get(t, "/login?redirect_uri=%2Fdashboard%2Fskills", nil)

	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, `name="email"`)
	assert.Contains(t, body, `value="/dashboard/skills"`)
	assert.Empty(t, h.clearReasons())
}

func TestValidSessionRendersDashboard(t *testing.T) {
	h := newHarness(t, session.StrictPolicy)
	cookie := h.login(t)

	b := h.storedBundle(t, cookie)
	require.NotNil(t, b)
	assert.Equal(t, h.clock.Now().UnixMilli()+3_600_000, b.ExpiresAtMillis)

	h.clock.Advance(30 * time.Minute)
	resp := h.get(t, "/dashboard", cookie)

	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, testEmail)
	assert.Contains(t, body, "/dashboard/soft-skills")
}

func TestExpiredSessionIsClearedAndRedirected(t *testing.T) {
	h := newHarness(t, session.StrictPolicy)
	cookie := h.login(t)

	h.clock.Advance(time.Hour + time.Second)
	resp := h.get(t, "/dashboard/projects", cookie)

	assert.Equal(t, nethttp.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?redirect_uri=%2Fdashboard%2Fprojects", resp.Header.Get("Location"))
	assert.Nil(t, h.storedBundle(t, cookie))
	assert.Equal(t, []domain.ClearReason{domain.ClearExpired}, h.clearReasons())

	resp = h.get(t, "/api/projects", cookie)
	assert.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
}

func TestRouteGateIsStrictInsideGraceWindow(t *testing.T) {
	h := newHarness(t, session.StrictPolicy)
	cookie := h.login(t)

	h.clock.Advance(time.Hour - time.Minute)

	resp := h.get(t, "/dashboard", cookie)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.NotNil(t, h.storedBundle(t, cookie))
}

func TestSessionStatusUsesEarlyRefresh(t *testing.T) {
	h := newHarness(t, session.StrictPolicy)
	cookie := h.login(t)

	resp := h.get(t, "/session/status", cookie)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	data := decodeJSON(t, resp)["data"].(map[string]any)
	assert.Equal(t, "VALID", data["status"])
	assert.Equal(t, "early_refresh", data["policy"])
	assert.Equal(t, testEmail, data["owner"])
	assert.Equal(t, float64(3600), data["seconds_remaining"])

	h.clock.Advance(time.Hour - time.Minute)
	resp = h.get(t, "/session/status", cookie)
	data = decodeJSON(t, resp)["data"].(map[string]any)
	assert.Equal(t, "EXPIRED", data["status"])
	assert.NotContains(t, data, "owner")
	assert.Nil(t, h.storedBundle(t, cookie), "early refresh clears inside the window")

	resp = h.get(t, "/dashboard", cookie)
	assert.Equal(t, nethttp.StatusSeeOther, resp.StatusCode)
}

func TestSessionStatusWithoutCookie(t *testing.T) {
	h := newHarness(t, session.StrictPolicy)

	resp := h.get(t, "/session/status", nil)

	data := decodeJSON(t, resp)["data"].(map[string]any)
	assert.Equal(t, "ABSENT", data["status"])
	assert.Equal(t, float64(0), data["seconds_remaining"])
}

func TestLoginGateRedirectsValidSessionToDashboard(t *testing.T) {
	h := newHarness(t, session.StrictPolicy)
	cookie := h.login(t)

	resp := h.get(t, "/login", cookie)

	assert.Equal(t, nethttp.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
}

func TestLoginGateAnswersJSONLoginWithRedirect(t *testing.T) {
	h := newHarness(t, session.StrictPolicy)
	cookie := h.login(t)

	req := httptest.NewRequest(nethttp.MethodPost, "/login", strings.NewReader(`{"email":"a@b.com","password":"secret"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp := h.do(t, req, cookie)

	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Location"))
	data := decodeJSON(t, resp)["data"].(map[string]any)
	assert.Equal(t, "/dashboard", data["redirect"])
	assert.Equal(t, "VALID", data["session"].(map[string]any)["status"])
	assert.Equal(t, 1, h.backend.loginCount(), "the backend is not asked again")
}

func TestSessionPastRetentionReadsAsAbsent(t *testing.T) {
	h := newHarness(t, session.StrictPolicy)
	cookie := h.login(t)

	h.clock.Advance(time.Hour + session.ExpiredRetention)
	resp := h.get(t, "/login", cookie)

	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Nil(t, h.storedBundle(t, cookie))
	assert.Empty(t, h.clearReasons(), "nothing left to clear")
}

func TestLoginGateClearsExpiredSessionAndShowsForm(t *testing.T) {
	for _, policy := range []session.Policy{session.StrictPolicy, session.EarlyRefreshPolicy(session.DefaultEarlyRefreshWindow)} {
		t.Run(policy.Name, func(t *testing.T) {
			h := newHarness(t, policy)
			cookie := h.login(t)

			h.clock.Advance(time.Hour + time.Minute)
			resp := h.get(t, "/login", cookie)

			require.Equal(t, nethttp.StatusOK, resp.StatusCode)
			assert.Contains(t, readBody(t, resp), `name="password"`)
			assert.Nil(t, h.storedBundle(t, cookie))
			assert.Equal(t, []domain.ClearReason{domain.ClearLoginReentry}, h.clearReasons())
		})
	}
}

func TestLoginGateInsideGraceWindowFollowsPolicy(t *testing.T) {
	t.Run("strict keeps the session", func(t *testing.T) {
		h := newHarness(t, session.StrictPolicy)
		cookie := h.login(t)
		h.clock.Advance(time.Hour - time.Minute)

		resp := h.get(t, "/login", cookie)

		assert.Equal(t, nethttp.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
		assert.NotNil(t, h.storedBundle(t, cookie))
	})

	t.Run("early refresh clears the session", func(t *testing.T) {
		h := newHarness(t, session.EarlyRefreshPolicy(session.DefaultEarlyRefreshWindow))
		cookie := h.login(t)
		h.clock.Advance(time.Hour - time.Minute)

		resp := h.get(t, "/login", cookie)

		assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
		assert.Nil(t, h.storedBundle(t, cookie))
	})
}

func TestLoginRedirectsBackToRequestedPage(t *testing.T) {
	h := newHarness(t, session.StrictPolicy)

	for _, tc := range []struct{ redirect, want string }{
		{"/dashboard/projects", "/dashboard/projects"},
		{"//evil.example.com", "/dashboard"},
		{"https://evil.example.com/x", "/dashboard"},
	} {
		form := url.Values{"email": {testEmail}, "password": {testPassword}, "redirect_uri": {tc.redirect}}
		req := httptest.NewRequest(nethttp.MethodPost, "/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", fiber.MIMEApplicationForm)

		resp := h.do(t, req, nil)

		assert.Equal(t, nethttp.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, tc.want, resp.Header.Get("Location"), tc.redirect)
	}
}

func TestFormLoginFailureReturnsToLoginView(t *testing.T) {
	h := newHarness(t, session.StrictPolicy)
	form := url.Values{"email": {testEmail}, "password": {"wrong"}, "redirect_uri": {"/dashboard/skills"}}
	req := httptest.NewRequest(nethttp.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", fiber.MIMEApplicationForm)

	resp := h.do(t, req, nil)

	require.Equal(t, nethttp.StatusSeeOther, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/login", loc.Path)
	assert.Equal(t, "UNAUTHORIZED", loc.Query().Get("error"))
	assert.Equal(t, "/dashboard/skills", loc.Query().Get("redirect_uri"))

	resp = h.get(t, loc.String(), scopeCookie(t, resp))
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "Invalid email or password.")
	assert.Contains(t, body, `value="/dashboard/skills"`)
}

func TestJSONLogin(t *testing.T) {
	h := newHarness(t, session.StrictPolicy)

	req := httptest.NewRequest(nethttp.MethodPost, "/login",
		strings.NewReader(`{"email":"`+testEmail+`","password":"`+testPassword+`"}`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	resp := h.do(t, req, nil)

	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	data := decodeJSON(t, resp)["data"].(map[string]any)
	assert.Equal(t, "/dashboard", data["redirect"])
	sess := data["session"].(map[string]any)
	assert.Equal(t, "VALID", sess["status"])
	assert.Equal(t, "Bearer", sess["token_kind"])
	assert.NotContains(t, sess, "token")

	req = httptest.NewRequest(nethttp.MethodPost, "/login",
		strings.NewReader(`{"email":"`+testEmail+`","password":"nope"}`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	resp = h.do(t, req, nil)

	assert.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
	errBody := decodeJSON(t, resp)["error"].(map[string]any)
	assert.Equal(t, "UNAUTHORIZED", errBody["code"])
	assert.Equal(t, "Invalid credentials", errBody["message"])
}

func TestAPIDenialIsJSON(t *testing.T) {
	h := newHarness(t, session.StrictPolicy)

	resp := h.get(t, "/api/projects?page=2", nil)

	require.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "/login?redirect_uri=%2Fapi%2Fprojects%3Fpage%3D2", resp.Header.Get("Location"))
	errBody := decodeJSON(t, resp)["error"].(map[string]any)
	assert.Equal(t, "SESSION_REQUIRED", errBody["code"])
}

func TestHTMXDenialUsesHXRedirect(t *testing.T) {
	h := newHarness(t, session.StrictPolicy)

	req := httptest.NewRequest(nethttp.MethodGet, "/dashboard/skills", nil)
	req.Header.Set("HX-Request", "true")
	req.Header.Set("HX-Current-URL", "http://admin.example.com/dashboard/education")
	resp := h.do(t, req, nil)

	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, "/login?redirect_uri=%2Fdashboard%2Feducation", resp.Header.Get("HX-Redirect"))
}

func TestForgedScopeCookieReadsAsAbsent(t *testing.T) {
	h := newHarness(t, session.StrictPolicy)
	h.login(t)

	resp := h.get(t, "/dashboard", &nethttp.Cookie{Name: cookieName, Value: "not-a-token"})

	assert.Equal(t, nethttp.StatusSeeOther, resp.StatusCode)
}

func TestScopesAreIsolated(t *testing.T) {
	h := newHarness(t, session.StrictPolicy)
	first := h.login(t)
	second := h.login(t)
	require.NotEqual(t, first.Value, second.Value)

	resp := h.do(t, httptest.NewRequest(nethttp.MethodPost, "/logout", nil), first)
	assert.Equal(t, nethttp.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	assert.Nil(t, h.storedBundle(t, first))
	assert.NotNil(t, h.storedBundle(t, second))
	assert.Equal(t, nethttp.StatusOK, h.get(t, "/dashboard", second).StatusCode)
}

func TestDashboardUnknownSection(t *testing.T) {
	h := newHarness(t, session.StrictPolicy)
	cookie := h.login(t)

	resp := h.get(t, "/dashboard/invoices", cookie)

	assert.Equal(t, nethttp.StatusNotFound, resp.StatusCode)
}

func TestMetricsCountGateDecisions(t *testing.T) {
	h := newHarness(t, session.StrictPolicy)
	h.get(t, "/dashboard", nil)

	resp := h.get(t, "/health/metrics", nil)

	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	snap := h.metrics.Snapshot()
	assert.Equal(t, int64(1), snap.GateDecisions["route|DENY|ABSENT"])
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t, session.StrictPolicy)

	resp := h.get(t, "/health/live", nil)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)

	resp = h.get(t, "/health/ready", nil)
	require.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", decodeJSON(t, resp)["status"])
}

func TestRootRedirectsToDashboard(t *testing.T) {
	h := newHarness(t, session.StrictPolicy)

	resp := h.get(t, "/", nil)

	assert.Equal(t, nethttp.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
}
