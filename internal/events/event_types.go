package events

import (
	"time"

	"github.com/spec-kit/portfolio-admin/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSessionCreated EventType = "session.created"
	EventSessionCleared EventType = "session.cleared"
)

// Event represents a session lifecycle change. Payload never carries the token.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Scope     string    `json:"scope"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// SessionCreatedPayload is published after a successful login.
type SessionCreatedPayload struct {
	Owner     string    `json:"owner"`
	TokenKind string    `json:"token_kind"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionClearedPayload is published whenever a bundle is removed.
type SessionClearedPayload struct {
	Reason domain.ClearReason `json:"reason"`
	Owner  string             `json:"owner,omitempty"`
}
