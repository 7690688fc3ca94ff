package handlers

import (
	"context"
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/portfolio-admin/internal/auth"
	"github.com/spec-kit/portfolio-admin/internal/backend"
	"github.com/spec-kit/portfolio-admin/internal/domain"
	"github.com/spec-kit/portfolio-admin/internal/session"
	apperrors "github.com/spec-kit/portfolio-admin/pkg/util"
)

// Forwarder relays admitted requests to the portfolio backend.
type Forwarder interface {
	Forward(ctx context.Context, scope string, req backend.ProxyRequest) (backend.ProxyResponse, error)
}

// ResourcesHandler proxies dashboard CRUD calls for the portfolio collections.
type ResourcesHandler struct {
	backend Forwarder
	gate    *auth.SessionGate
	eval    *session.Evaluator
	logger  *zap.Logger
}

// NewResourcesHandler constructs handler.
func NewResourcesHandler(fwd Forwarder, gate *auth.SessionGate, eval *session.Evaluator, logger *zap.Logger) *ResourcesHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResourcesHandler{backend: fwd, gate: gate, eval: eval, logger: logger}
}

// Proxy handles /api/:resource and /api/:resource/:id for every method.
func (h *ResourcesHandler) Proxy(c *fiber.Ctx) error {
	resource, ok := domain.ParseResource(c.Params("resource"))
	if !ok {
		return apperrors.NewNotFound("resource", map[string]any{"resource": c.Params("resource")})
	}

	path := "/" + string(resource)
	if id := c.Params("id"); id != "" {
		path += "/" + url.PathEscape(id)
	}

	scope, _ := auth.ScopeFromContext(c)
	resp, err := h.backend.Forward(c.UserContext(), scope, backend.ProxyRequest{
		Method:      c.Method(),
		Path:        path,
		Query:       string(c.Request().URI().QueryString()),
		ContentType: c.Get(fiber.HeaderContentType),
		Accept:      c.Get(fiber.HeaderAccept),
		Body:        c.Body(),
	})
	if err != nil {
		if errors.Is(err, backend.ErrUnavailable) {
			return apperrors.NewBadGateway(err)
		}
		return apperrors.NewInternalError(err)
	}

	// The backend has revoked or expired the token before our clock did.
	if resp.Status == fiber.StatusUnauthorized {
		bundle, _ := auth.BundleFromContext(c)
		h.logger.Info("backend rejected token", zap.String("scope", scope), zap.String("resource", string(resource)))
		h.eval.Evict(c.UserContext(), scope, bundle, domain.ClearUnauthorized)
		return h.gate.DenyToLogin(c)
	}

	if resp.ContentType != "" {
		c.Set(fiber.HeaderContentType, resp.ContentType)
	}
	return c.Status(resp.Status).Send(resp.Body)
}
