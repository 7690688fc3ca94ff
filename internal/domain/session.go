package domain

// SessionStatus is the outcome of evaluating a bundle at an instant.
type SessionStatus string

const (
	SessionAbsent  SessionStatus = "ABSENT"
	SessionExpired SessionStatus = "EXPIRED"
	SessionValid   SessionStatus = "VALID"
)

// ClearReason records why a bundle was removed.
type ClearReason string

const (
	ClearLogout       ClearReason = "logout"
	ClearExpired      ClearReason = "expired"
	ClearLoginReentry ClearReason = "login_reentry"
	ClearUnauthorized ClearReason = "unauthorized"
)
