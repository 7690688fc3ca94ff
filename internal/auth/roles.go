package auth

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/portfolio-admin/internal/domain"
)

// Decision is the state of a gate for one request.
type Decision string

const (
	DecisionPending Decision = "PENDING"
	DecisionAllow   Decision = "ALLOW"
	DecisionDeny    Decision = "DENY"
)

// RouteDecision admits only VALID sessions.
func RouteDecision(status domain.SessionStatus) Decision {
	if status == domain.SessionValid {
		return DecisionAllow
	}
	return DecisionDeny
}

// LoginDecision is the inverse: the login view is denied to VALID sessions.
func LoginDecision(status domain.SessionStatus) Decision {
	if status == domain.SessionValid {
		return DecisionDeny
	}
	return DecisionAllow
}

// IsHTMX reports whether the request was issued by htmx.
func IsHTMX(c *fiber.Ctx) bool {
	return c.Get("HX-Request") == "true"
}

// IsAPIRequest reports whether the caller expects JSON rather than a page.
func IsAPIRequest(c *fiber.Ctx) bool {
	if strings.HasPrefix(c.Path(), "/api/") {
		return true
	}
	if IsHTMX(c) {
		return false
	}
	if strings.EqualFold(c.Get(fiber.HeaderXRequestedWith), "XMLHttpRequest") {
		return true
	}
	accept := c.Get(fiber.HeaderAccept)
	return strings.Contains(accept, fiber.MIMEApplicationJSON) && !strings.Contains(accept, fiber.MIMETextHTML)
}

// WantsJSON reports whether the response should be the JSON envelope: API
// requests and JSON request bodies.
func WantsJSON(c *fiber.Ctx) bool {
	return IsAPIRequest(c) || c.Is("json")
}

// Redirect sends the browser to target, through HX-Redirect for htmx requests.
func Redirect(c *fiber.Ctx, target string) error {
	if IsHTMX(c) {
		c.Set("HX-Redirect", target)
		return c.SendStatus(fiber.StatusOK)
	}
	return c.Redirect(target, fiber.StatusSeeOther)
}

// requestRedirectPath picks the page to come back to after login.
func requestRedirectPath(c *fiber.Ctx) string {
	if IsHTMX(c) {
		if current := SafeRedirectFromURL(c.Get("HX-Current-URL")); current != "" {
			return current
		}
	}
	if p := SafeRedirectPath(c.OriginalURL()); p != "" {
		return p
	}
	return "/"
}

// SafeRedirectPath accepts only same-origin absolute paths.
func SafeRedirectPath(p string) string {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.ContainsAny(p, "\\\r\n") {
		return ""
	}
	return p
}

// SafeRedirectFromURL reduces a full URL to its path and query.
func SafeRedirectFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		return SafeRedirectPath(u.RequestURI())
	}
	if u.Host != "" {
		return ""
	}
	return SafeRedirectPath(raw)
}
