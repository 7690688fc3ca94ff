package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/portfolio-admin/internal/api/http/handlers"
	"github.com/spec-kit/portfolio-admin/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health    *handlers.HealthHandler
	Session   *handlers.SessionHandler
	Resources *handlers.ResourcesHandler
	Gate      *auth.SessionGate
}

var proxyMethods = []string{
	fiber.MethodGet,
	fiber.MethodPost,
	fiber.MethodPut,
	fiber.MethodPatch,
	fiber.MethodDelete,
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	loginPath := cfg.Gate.LoginPath()
	app.Get(loginPath, cfg.Gate.RedirectIfAuthenticated, cfg.Session.LoginView)
	app.Post(loginPath, cfg.Gate.RedirectIfAuthenticated, cfg.Session.Login)
	app.Get(handlers.StatusPath, cfg.Session.Status)

	app.Post(handlers.LogoutPath, cfg.Gate.RequireSession, cfg.Session.Logout)

	dashboardPath := cfg.Gate.DashboardPath()
	app.Get(dashboardPath, cfg.Gate.RequireSession, cfg.Session.Dashboard)
	app.Get(dashboardPath+"/*", cfg.Gate.RequireSession, cfg.Session.Dashboard)

	api := app.Group("/api", cfg.Gate.RequireSession)
	for _, method := range proxyMethods {
		api.Add(method, "/:resource", cfg.Resources.Proxy)
		api.Add(method, "/:resource/:id", cfg.Resources.Proxy)
	}

	app.Get("/", func(c *fiber.Ctx) error {
		return auth.Redirect(c, dashboardPath)
	})
}
