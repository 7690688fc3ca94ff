package handlers

import (
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/portfolio-admin/internal/api/dto"
	"github.com/spec-kit/portfolio-admin/internal/auth"
	"github.com/spec-kit/portfolio-admin/internal/domain"
	"github.com/spec-kit/portfolio-admin/internal/service"
	"github.com/spec-kit/portfolio-admin/internal/session"
	apperrors "github.com/spec-kit/portfolio-admin/pkg/util"
)

const (
	// StatusPath serves the session indicator polled by the dashboard.
	StatusPath = "/session/status"
	LogoutPath = "/logout"
)

// SessionHandler exposes login, logout and session status endpoints.
type SessionHandler struct {
	auth         *service.AuthService
	gate         *auth.SessionGate
	eval         *session.Evaluator
	statusPolicy session.Policy
	views        *Views
}

// SessionHandlerDeps encapsulates what the session handler needs.
type SessionHandlerDeps struct {
	Auth         *service.AuthService
	Gate         *auth.SessionGate
	Evaluator    *session.Evaluator
	StatusPolicy session.Policy
	Views        *Views
}

// NewSessionHandler constructs handler.
func NewSessionHandler(deps SessionHandlerDeps) *SessionHandler {
	return &SessionHandler{
		auth:         deps.Auth,
		gate:         deps.Gate,
		eval:         deps.Evaluator,
		statusPolicy: deps.StatusPolicy,
		views:        deps.Views,
	}
}

// LoginView handles GET /login. The login gate has already turned valid
// sessions away.
func (h *SessionHandler) LoginView(c *fiber.Ctx) error {
	return h.views.render(c, "login", loginPage{
		Title:       "Sign in",
		Error:       loginErrorMessage(c.Query("error")),
		LoginPath:   h.gate.LoginPath(),
		RedirectURI: auth.SafeRedirectPath(c.Query("redirect_uri")),
	})
}

// Login handles POST /login as a form post or a JSON call.
func (h *SessionHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	scope, err := h.gate.EnsureScope(c)
	if err != nil {
		return apperrors.NewInternalError(err)
	}

	target := auth.SafeRedirectPath(req.RedirectURI)
	if target == "" {
		target = h.gate.DashboardPath()
	}

	bundle, err := h.auth.Login(c.UserContext(), scope, req.Email, req.Password)
	if auth.WantsJSON(c) {
		if err != nil {
			return err
		}
		res := session.Result{Status: domain.SessionValid, Bundle: &bundle, At: h.eval.Now()}
		return c.JSON(fiber.Map{"data": dto.LoginResponse{
			Session:  sessionResponse(res, session.StrictPolicy.Name),
			Redirect: target,
		}})
	}

	if err != nil {
		q := url.Values{}
		q.Set("error", apperrors.ToDomainError(err).Code)
		if back := auth.SafeRedirectPath(req.RedirectURI); back != "" {
			q.Set("redirect_uri", back)
		}
		return auth.Redirect(c, h.gate.LoginPath()+"?"+q.Encode())
	}
	return auth.Redirect(c, target)
}

// Logout handles POST /logout. It sits behind the route gate, so the scope is
// already admitted.
func (h *SessionHandler) Logout(c *fiber.Ctx) error {
	scope, _ := auth.ScopeFromContext(c)
	if err := h.auth.Logout(c.UserContext(), scope); err != nil {
		return err
	}
	if auth.WantsJSON(c) {
		return c.JSON(fiber.Map{"data": dto.SessionResponse{Status: string(domain.SessionAbsent)}})
	}
	return auth.Redirect(c, h.gate.LoginPath())
}

// Status handles GET /session/status. It uses the early-refresh policy, so a
// bundle inside the grace window is cleared and reported as EXPIRED.
func (h *SessionHandler) Status(c *fiber.Ctx) error {
	res := session.Result{Status: domain.SessionAbsent, At: h.eval.Now()}
	if scope, ok := h.gate.ScopeFromRequest(c); ok {
		res = h.eval.Resolve(c.UserContext(), scope, h.statusPolicy)
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(fiber.Map{"data": sessionResponse(res, h.statusPolicy.Name)})
}

// Dashboard handles GET /dashboard and GET /dashboard/<resource>.
func (h *SessionHandler) Dashboard(c *fiber.Ctx) error {
	bundle, ok := auth.BundleFromContext(c)
	if !ok {
		return h.gate.DenyToLogin(c)
	}

	section := c.Params("*")
	if section != "" {
		if _, known := domain.ParseResource(section); !known {
			return apperrors.NewNotFound("section", map[string]any{"section": section})
		}
	}

	return h.views.render(c, "dashboard", dashboardPage{
		Title:         "Dashboard",
		Owner:         bundle.OwnerIdentity,
		ExpiresAt:     bundle.ExpiresAt().UTC(),
		Section:       section,
		Resources:     domain.Resources,
		DashboardPath: h.gate.DashboardPath(),
		LogoutPath:    LogoutPath,
		StatusPath:    StatusPath,
	})
}

func sessionResponse(res session.Result, policy string) dto.SessionResponse {
	out := dto.SessionResponse{Status: string(res.Status), Policy: policy}
	if res.Status != domain.SessionValid || res.Bundle == nil {
		return out
	}
	exp := res.Bundle.ExpiresAt().UTC()
	out.Owner = res.Bundle.OwnerIdentity
	out.TokenKind = res.Bundle.TokenKind
	out.ExpiresAt = &exp
	out.SecondsRemaining = int64(res.Remaining() / time.Second)
	return out
}

func loginErrorMessage(code string) string {
	switch code {
	case "":
		return ""
	case apperrors.CodeValidation:
		return "Enter a valid email address and password."
	case apperrors.CodeUnauthorized:
		return "Invalid email or password."
	case apperrors.CodeBadGateway:
		return "The portfolio service is unavailable. Try again shortly."
	default:
		return "Sign in failed."
	}
}
