package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/portfolio-admin/internal/backend"
	"github.com/spec-kit/portfolio-admin/internal/domain"
	"github.com/spec-kit/portfolio-admin/internal/session"
	apperrors "github.com/spec-kit/portfolio-admin/pkg/util"
)

// LoginBackend is the part of the backend client the auth flows use.
type LoginBackend interface {
	Login(ctx context.Context, email, password string) (backend.LoginResponse, error)
	Logout(ctx context.Context, scope string) error
}

// AuthService coordinates login and logout against the portfolio backend and
// the credential store.
type AuthService struct {
	backend LoginBackend
	eval    *session.Evaluator
	logger  *zap.Logger
}

// AuthDependencies encapsulates what the auth service needs.
type AuthDependencies struct {
	Backend   LoginBackend
	Evaluator *session.Evaluator
	Logger    *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{backend: deps.Backend, eval: deps.Evaluator, logger: logger}
}

// Login authenticates against the backend and persists the resulting bundle
// for scope. The expiry is fixed here as now + expires_in and never revised.
func (s *AuthService) Login(ctx context.Context, scope, email, password string) (domain.Bundle, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return domain.Bundle{}, apperrors.NewValidationError("email and password required", nil)
	}
	// A bare address only: display names and angle brackets would otherwise
	// reach the backend and the stored owner identity verbatim.
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return domain.Bundle{}, apperrors.NewValidationError("invalid email", map[string]any{"email": email})
	}

	resp, err := s.backend.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, backend.ErrInvalidCredentials) {
			return domain.Bundle{}, apperrors.NewUnauthorized(loginMessage(resp.Message))
		}
		s.logger.Error("login request failed", zap.Error(err))
		return domain.Bundle{}, apperrors.NewBadGateway(err)
	}

	bundle := domain.NewBundle(resp.AccessToken, email, resp.TokenType, s.eval.Now(), resp.ExpiresIn)
	if err := s.eval.Store().Save(ctx, scope, bundle); err != nil {
		return domain.Bundle{}, apperrors.NewInternalError(err)
	}
	s.eval.Established(ctx, scope, bundle)

	s.logger.Info("session established",
		zap.String("scope", scope),
		zap.String("owner", bundle.MaskedOwner()),
		zap.Time("expires_at", bundle.ExpiresAt()))
	return bundle, nil
}

// Logout revokes the token upstream on a best-effort basis and always clears
// the local bundle.
func (s *AuthService) Logout(ctx context.Context, scope string) error {
	bundle, err := s.eval.Store().Read(ctx, scope)
	if err != nil {
		s.logger.Warn("reading bundle before logout failed", zap.String("scope", scope), zap.Error(err))
	}
	if err := s.backend.Logout(ctx, scope); err != nil {
		s.logger.Warn("backend logout failed", zap.String("scope", scope), zap.Error(err))
	}
	s.eval.Discard(ctx, scope, bundle, domain.ClearLogout)
	return nil
}

func loginMessage(msg string) string {
	if msg == "" {
		return "invalid credentials"
	}
	return msg
}
