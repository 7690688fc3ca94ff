package dto

import "time"

// LoginRequest is accepted as JSON or as a form post.
type LoginRequest struct {
	Email       string `json:"email" form:"email"`
	Password    string `json:"password" form:"password"`
	RedirectURI string `json:"redirect_uri" form:"redirect_uri"`
}

// SessionResponse describes the caller's session without exposing the token.
type SessionResponse struct {
	Status           string     `json:"status"`
	Policy           string     `json:"policy,omitempty"`
	Owner            string     `json:"owner,omitempty"`
	TokenKind        string     `json:"token_kind,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	SecondsRemaining int64      `json:"seconds_remaining"`
}

// LoginResponse is returned to API callers after a successful login.
type LoginResponse struct {
	Session  SessionResponse `json:"session"`
	Redirect string          `json:"redirect"`
}
