package handlers

import (
	"bytes"
	"embed"
	"html/template"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/portfolio-admin/internal/domain"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Views renders the login and dashboard pages.
type Views struct {
	t *template.Template
}

// NewViews parses the embedded templates.
func NewViews() (*Views, error) {
	t, err := template.New("root").ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, err
	}
	return &Views{t: t}, nil
}

type loginPage struct {
	Title       string
	Error       string
	LoginPath   string
	RedirectURI string
}

type dashboardPage struct {
	Title         string
	Owner         string
	ExpiresAt     time.Time
	Section       string
	Resources     []domain.Resource
	DashboardPath string
	LogoutPath    string
	StatusPath    string
}

func (v *Views) render(c *fiber.Ctx, name string, data any) error {
	var buf bytes.Buffer
	if err := v.t.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}
