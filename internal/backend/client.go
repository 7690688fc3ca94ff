// Package backend talks to the portfolio REST backend on behalf of a scope.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/portfolio-admin/internal/config"
)

var (
	// ErrInvalidCredentials is returned when the backend refuses a login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnavailable wraps transport failures and unexpected responses.
	ErrUnavailable = errors.New("portfolio backend unavailable")
)

// LoginResponse mirrors the backend login payload.
type LoginResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Message     string `json:"message"`
}

// ProxyRequest describes a dashboard call forwarded to the backend.
type ProxyRequest struct {
	Method      string
	Path        string
	Query       string
	ContentType string
	Accept      string
	Body        []byte
}

// ProxyResponse is the backend answer passed back unchanged.
type ProxyResponse struct {
	Status      int
	ContentType string
	Body        []byte
}

// headerSweepInterval limits how often Attach walks the header map.
const headerSweepInterval = time.Minute

type scopeHeader struct {
	value string
	until time.Time
}

// Client is the shared outbound client. It keeps the default Authorization
// header per scope and attaches it to every request of that scope. Headers
// past their bundle expiry are ignored and pruned on later attaches.
type Client struct {
	baseURL    string
	loginPath  string
	logoutPath string
	timeout    time.Duration
	userAgent  string
	now        func() time.Time

	mu        sync.RWMutex
	headers   map[string]scopeHeader
	lastSweep time.Time
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithClock replaces time.Now when judging header expiry.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient builds a client from configuration.
func NewClient(cfg config.BackendConfig, userAgent string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		loginPath:  cfg.LoginPath,
		logoutPath: cfg.LogoutPath,
		timeout:    cfg.Timeout(),
		userAgent:  userAgent,
		now:        time.Now,
		headers:    make(map[string]scopeHeader),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach sets the default Authorization header of scope until the given time.
func (c *Client) Attach(scope, header string, until time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastSweep) >= headerSweepInterval {
		c.lastSweep = now
		for s, h := range c.headers {
			if !now.Before(h.until) {
				delete(c.headers, s)
			}
		}
	}
	c.headers[scope] = scopeHeader{value: header, until: until}
}

// Detach removes the default Authorization header of scope.
func (c *Client) Detach(scope string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.headers, scope)
}

// Authorization returns the default header of scope, if any is still live.
func (c *Client) Authorization(scope string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.headers[scope]
	if !ok || !c.now().Before(h.until) {
		return "", false
	}
	return h.value, true
}

// Login exchanges credentials for an access token. A refused login returns
// ErrInvalidCredentials wrapped with the backend message.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return LoginResponse{}, err
	}

	resp, err := c.do(ctx, "", ProxyRequest{
		Method:      fiber.MethodPost,
		Path:        c.loginPath,
		ContentType: fiber.MIMEApplicationJSON,
		Accept:      fiber.MIMEApplicationJSON,
		Body:        payload,
	})
	if err != nil {
		return LoginResponse{}, err
	}

	var out LoginResponse
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &out); err != nil {
			if resp.Status >= http.StatusInternalServerError {
				return LoginResponse{}, fmt.Errorf("%w: login status %d", ErrUnavailable, resp.Status)
			}
			return LoginResponse{}, fmt.Errorf("%w: decode login response: %v", ErrUnavailable, err)
		}
	}

	switch {
	case resp.Status >= http.StatusInternalServerError:
		return out, fmt.Errorf("%w: login status %d", ErrUnavailable, resp.Status)
	case resp.Status >= http.StatusBadRequest || !out.Success:
		msg := out.Message
		if msg == "" {
			msg = "login rejected"
		}
		return out, fmt.Errorf("%w: %s", ErrInvalidCredentials, msg)
	case out.AccessToken == "" || out.ExpiresIn <= 0:
		return out, fmt.Errorf("%w: login response without token or expiry", ErrUnavailable)
	}
	return out, nil
}

// Logout tells the backend to revoke the scope's token.
func (c *Client) Logout(ctx context.Context, scope string) error {
	if _, ok := c.Authorization(scope); !ok {
		return nil
	}
	resp, err := c.do(ctx, scope, ProxyRequest{
		Method: fiber.MethodPost,
		Path:   c.logoutPath,
		Accept: fiber.MIMEApplicationJSON,
	})
	if err != nil {
		return err
	}
	if resp.Status >= http.StatusBadRequest && resp.Status != http.StatusUnauthorized {
		return fmt.Errorf("%w: logout status %d", ErrUnavailable, resp.Status)
	}
	return nil
}

// Forward sends req with the scope's default header and returns the answer
// whatever its status.
func (c *Client) Forward(ctx context.Context, scope string, req ProxyRequest) (ProxyResponse, error) {
	return c.do(ctx, scope, req)
}

func (c *Client) do(ctx context.Context, scope string, req ProxyRequest) (ProxyResponse, error) {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ProxyResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, context.DeadlineExceeded)
		}
		if timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}

	url := c.baseURL + req.Path
	if req.Query != "" {
		url += "?" + req.Query
	}

	agent := fiber.AcquireAgent()
	agent.Name = c.userAgent
	r := agent.Request()
	r.Header.SetMethod(req.Method)
	r.SetRequestURI(url)
	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return ProxyResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if scope != "" {
		if header, ok := c.Authorization(scope); ok {
			agent.Set(fiber.HeaderAuthorization, header)
		}
	}
	if req.Accept != "" {
		agent.Set(fiber.HeaderAccept, req.Accept)
	}
	if len(req.Body) > 0 {
		agent.Body(req.Body)
		if req.ContentType != "" {
			agent.ContentType(req.ContentType)
		}
	}
	if timeout > 0 {
		agent.Timeout(timeout)
	}

	resp := fiber.AcquireResponse()
	defer fiber.ReleaseResponse(resp)
	agent.SetResponse(resp)

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return ProxyResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, errors.Join(errs...))
	}

	return ProxyResponse{
		Status:      status,
		ContentType: string(resp.Header.ContentType()),
		Body:        body,
	}, nil
}
