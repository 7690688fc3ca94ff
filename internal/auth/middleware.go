package auth

import (
	"net/url"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/portfolio-admin/internal/api/dto"
	"github.com/spec-kit/portfolio-admin/internal/domain"
	"github.com/spec-kit/portfolio-admin/internal/observability"
	"github.com/spec-kit/portfolio-admin/internal/session"
	apperrors "github.com/spec-kit/portfolio-admin/pkg/util"
)

const (
	scopeKey    = "session_scope"
	bundleKey   = "session_bundle"
	decisionKey = "gate_decision"
)

// GateConfig bundles what both gates need.
type GateConfig struct {
	Evaluator       *session.Evaluator
	Scopes          *ScopeSigner
	CookieName      string
	CookieSecure    bool
	LoginPath       string
	DashboardPath   string
	LoginGatePolicy session.Policy
	Metrics         *observability.Metrics
	Logger          *zap.Logger
}

// SessionGate implements the route gate and the login gate over one evaluator.
type SessionGate struct {
	eval          *session.Evaluator
	scopes        *ScopeSigner
	cookieName    string
	cookieSecure  bool
	loginPath     string
	dashboardPath string
	loginPolicy   session.Policy
	metrics       *observability.Metrics
	logger        *zap.Logger
}

// NewSessionGate constructs the gates.
func NewSessionGate(cfg GateConfig) *SessionGate {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := cfg.LoginGatePolicy
	if policy.Name == "" {
		policy = session.StrictPolicy
	}
	return &SessionGate{
		eval:          cfg.Evaluator,
		scopes:        cfg.Scopes,
		cookieName:    cfg.CookieName,
		cookieSecure:  cfg.CookieSecure,
		loginPath:     cfg.LoginPath,
		dashboardPath: cfg.DashboardPath,
		loginPolicy:   policy,
		metrics:       cfg.Metrics,
		logger:        logger,
	}
}

// RequireSession guards protected routes. It evaluates the strict policy once
// per request and either hands the bundle to the next handler or redirects.
// Nothing of the protected handler runs before the decision is ALLOW.
func (g *SessionGate) RequireSession(c *fiber.Ctx) error {
	c.Locals(decisionKey, DecisionPending)

	status := domain.SessionAbsent
	var res session.Result
	scope, ok := g.ScopeFromRequest(c)
	if ok {
		res = g.eval.Resolve(c.UserContext(), scope, session.StrictPolicy)
		status = res.Status
	}

	decision := RouteDecision(status)
	c.Locals(decisionKey, decision)
	g.metrics.RecordGateDecision("route", string(decision), string(status))

	if decision != DecisionAllow {
		g.logger.Debug("route gate denied", zap.String("path", c.Path()), zap.String("status", string(status)))
		return g.DenyToLogin(c)
	}

	g.eval.Store().Restore(scope, *res.Bundle)
	c.Locals(scopeKey, scope)
	c.Locals(bundleKey, res.Bundle)
	return c.Next()
}

// RedirectIfAuthenticated guards the login view. A valid session is sent to
// the dashboard; an expired one is cleared and the login view is shown.
// JSON callers with a valid session get the redirect target in the body.
func (g *SessionGate) RedirectIfAuthenticated(c *fiber.Ctx) error {
	status := domain.SessionAbsent
	scope, ok := g.ScopeFromRequest(c)
	if ok {
		res := g.eval.Inspect(c.UserContext(), scope, g.loginPolicy)
		if res.Status == domain.SessionExpired && !g.eval.Evict(c.UserContext(), scope, res.Bundle, domain.ClearLoginReentry) {
			res = g.eval.Inspect(c.UserContext(), scope, g.loginPolicy)
		}
		status = res.Status
	}

	decision := LoginDecision(status)
	c.Locals(decisionKey, decision)
	g.metrics.RecordGateDecision("login", string(decision), string(status))

	if decision != DecisionAllow {
		if WantsJSON(c) {
			return c.JSON(fiber.Map{"data": dto.LoginResponse{
				Session:  dto.SessionResponse{Status: string(status), Policy: g.loginPolicy.Name},
				Redirect: g.dashboardPath,
			}})
		}
		return Redirect(c, g.dashboardPath)
	}
	if ok {
		c.Locals(scopeKey, scope)
	}
	return c.Next()
}

// DenyToLogin answers a request that may not proceed. API callers get a 401
// envelope pointing at the login path; browsers are redirected there.
func (g *SessionGate) DenyToLogin(c *fiber.Ctx) error {
	target := g.loginPath + "?redirect_uri=" + url.QueryEscape(requestRedirectPath(c))
	if IsAPIRequest(c) {
		c.Set(fiber.HeaderLocation, target)
		return apperrors.NewSessionRequired(g.loginPath)
	}
	return Redirect(c, target)
}

// ScopeFromRequest returns the verified scope of the request cookie.
func (g *SessionGate) ScopeFromRequest(c *fiber.Ctx) (string, bool) {
	if scope, ok := c.Locals(scopeKey).(string); ok && scope != "" {
		return scope, true
	}
	raw := c.Cookies(g.cookieName)
	if raw == "" {
		return "", false
	}
	scope, err := g.scopes.Parse(raw)
	if err != nil {
		g.logger.Debug("ignoring invalid scope cookie", zap.Error(err))
		return "", false
	}
	return scope, true
}

// EnsureScope returns the request scope, issuing a new cookie when the
// request carries none.
func (g *SessionGate) EnsureScope(c *fiber.Ctx) (string, error) {
	if scope, ok := g.ScopeFromRequest(c); ok {
		return scope, nil
	}
	scope, token, expiresAt, err := g.scopes.Issue()
	if err != nil {
		return "", err
	}
	c.Cookie(&fiber.Cookie{
		Name:     g.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		Secure:   g.cookieSecure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	c.Locals(scopeKey, scope)
	return scope, nil
}

// LoginPath is the configured login entry point.
func (g *SessionGate) LoginPath() string { return g.loginPath }

// DashboardPath is the configured dashboard entry point.
func (g *SessionGate) DashboardPath() string { return g.dashboardPath }

// ScopeFromContext returns the scope stored by a gate.
func ScopeFromContext(c *fiber.Ctx) (string, bool) {
	scope, ok := c.Locals(scopeKey).(string)
	return scope, ok && scope != ""
}

// BundleFromContext returns the bundle admitted by RequireSession.
func BundleFromContext(c *fiber.Ctx) (*domain.Bundle, bool) {
	b, ok := c.Locals(bundleKey).(*domain.Bundle)
	return b, ok && b != nil
}

// DecisionFromContext returns the last gate decision of the request.
func DecisionFromContext(c *fiber.Ctx) Decision {
	d, ok := c.Locals(decisionKey).(Decision)
	if !ok {
		return DecisionPending
	}
	return d
}
