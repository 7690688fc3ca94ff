package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/portfolio-admin/internal/events"
)

// SessionAuditService writes one structured log line per session lifecycle event.
type SessionAuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewSessionAuditService creates the service.
func NewSessionAuditService(dispatcher events.Dispatcher, logger *zap.Logger) *SessionAuditService {
	return &SessionAuditService{dispatcher: dispatcher, logger: logger.Named("session_audit")}
}

// RegisterHandlers subscribes to events.
func (s *SessionAuditService) RegisterHandlers() {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Subscribe(events.EventSessionCreated, s.handleSessionCreated)
	s.dispatcher.Subscribe(events.EventSessionCleared, s.handleSessionCleared)
}

func (s *SessionAuditService) handleSessionCreated(_ context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.SessionCreatedPayload)
	s.logger.Info("SessionCreated",
		zap.String("event_id", event.ID),
		zap.String("scope", event.Scope),
		zap.String("owner", payload.Owner),
		zap.String("token_kind", payload.TokenKind),
		zap.Time("expires_at", payload.ExpiresAt))
	return nil
}

func (s *SessionAuditService) handleSessionCleared(_ context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.SessionClearedPayload)
	s.logger.Info("SessionCleared",
		zap.String("event_id", event.ID),
		zap.String("scope", event.Scope),
		zap.String("owner", payload.Owner),
		zap.String("reason", string(payload.Reason)))
	return nil
}
