package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/portfolio-admin/internal/domain"
	"github.com/spec-kit/portfolio-admin/internal/events"
)

// DefaultEarlyRefreshWindow is how long before the real expiry the
// early-refresh policy already reports EXPIRED.
const DefaultEarlyRefreshWindow = 5 * time.Minute

// Policy controls where the expiry deadline sits.
//
// A bundle is expired once now passes ExpiresAt-Grace. With ExpireAtDeadline
// set, reaching the deadline exactly also counts as expired.
type Policy struct {
	Name             string
	Grace            time.Duration
	ExpireAtDeadline bool
}

// StrictPolicy expires when now >= expiresAt. It governs route access.
var StrictPolicy = Policy{Name: "strict", ExpireAtDeadline: true}

// EarlyRefreshPolicy expires when now > expiresAt-grace. It drives the
// session status indicator so the UI reacts before the backend rejects the token.
func EarlyRefreshPolicy(grace time.Duration) Policy {
	return Policy{Name: "early_refresh", Grace: grace}
}

// PolicyByName resolves a configured policy name.
func PolicyByName(name string, grace time.Duration) (Policy, error) {
	switch name {
	case StrictPolicy.Name:
		return StrictPolicy, nil
	case "early_refresh":
		return EarlyRefreshPolicy(grace), nil
	default:
		return Policy{}, fmt.Errorf("unknown session policy %q", name)
	}
}

// Evaluate maps a bundle and an instant to a status. It has no side effects.
func Evaluate(b *domain.Bundle, now time.Time, p Policy) domain.SessionStatus {
	if b == nil || !b.Complete() {
		return domain.SessionAbsent
	}
	deadline := b.ExpiresAtMillis - p.Grace.Milliseconds()
	nowMillis := now.UnixMilli()
	if nowMillis > deadline || (p.ExpireAtDeadline && nowMillis == deadline) {
		return domain.SessionExpired
	}
	return domain.SessionValid
}

// Result is the outcome of one evaluation pass.
type Result struct {
	Status domain.SessionStatus
	Bundle *domain.Bundle
	At     time.Time
}

// Remaining is the time left before the real expiry, zero unless valid.
func (r Result) Remaining() time.Duration {
	if r.Status != domain.SessionValid || r.Bundle == nil {
		return 0
	}
	return r.Bundle.ExpiresAt().Sub(r.At)
}

// Evaluator reads bundles from a TokenStore and evaluates them.
type Evaluator struct {
	store      *TokenStore
	now        func() time.Time
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewEvaluator builds an evaluator. A nil clock uses time.Now.
func NewEvaluator(store *TokenStore, now func() time.Time, dispatcher events.Dispatcher, logger *zap.Logger) *Evaluator {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{store: store, now: now, dispatcher: dispatcher, logger: logger}
}

// Now returns the evaluator's clock reading.
func (e *Evaluator) Now() time.Time {
	return e.now()
}

// Store exposes the underlying token store.
func (e *Evaluator) Store() *TokenStore {
	return e.store
}

// Inspect reads and evaluates without mutating anything. Repository failures
// are logged and reported as ABSENT.
func (e *Evaluator) Inspect(ctx context.Context, scope string, p Policy) Result {
	now := e.now()
	b, err := e.store.Read(ctx, scope)
	if err != nil {
		e.logger.Error("credential bundle read failed", zap.String("scope", scope), zap.Error(err))
		return Result{Status: domain.SessionAbsent, At: now}
	}
	return Result{Status: Evaluate(b, now, p), Bundle: b, At: now}
}

// Resolve is Inspect plus lazy cleanup: an EXPIRED bundle is cleared before
// the result is returned. When a login replaced the bundle in between, the
// new bundle is kept and evaluated instead.
func (e *Evaluator) Resolve(ctx context.Context, scope string, p Policy) Result {
	res := e.Inspect(ctx, scope, p)
	if res.Status != domain.SessionExpired {
		return res
	}
	if !e.Evict(ctx, scope, res.Bundle, domain.ClearExpired) {
		return e.Inspect(ctx, scope, p)
	}
	return res
}

// Discard clears the bundle of scope unconditionally and publishes a
// session.cleared event. Clear failures are logged; the caller proceeds as if
// the bundle were gone.
func (e *Evaluator) Discard(ctx context.Context, scope string, b *domain.Bundle, reason domain.ClearReason) {
	if err := e.store.Clear(ctx, scope); err != nil {
		e.logClearFailure(scope, reason, err)
	}
	e.cleared(ctx, scope, b, reason)
}

// Evict clears scope only while it still holds the bundle seen by the caller
// and reports whether it did. A nil bundle behaves like Discard.
func (e *Evaluator) Evict(ctx context.Context, scope string, seen *domain.Bundle, reason domain.ClearReason) bool {
	if seen == nil {
		e.Discard(ctx, scope, nil, reason)
		return true
	}
	ok, err := e.store.ClearIfUnchanged(ctx, scope, *seen)
	if err != nil {
		e.logClearFailure(scope, reason, err)
		ok = true
	}
	if !ok {
		e.logger.Debug("credential bundle replaced before clear",
			zap.String("scope", scope),
			zap.String("reason", string(reason)))
		return false
	}
	e.cleared(ctx, scope, seen, reason)
	return true
}

func (e *Evaluator) logClearFailure(scope string, reason domain.ClearReason, err error) {
	e.logger.Error("credential bundle clear failed",
		zap.String("scope", scope),
		zap.String("reason", string(reason)),
		zap.Error(err))
}

func (e *Evaluator) cleared(ctx context.Context, scope string, b *domain.Bundle, reason domain.ClearReason) {
	payload := events.SessionClearedPayload{Reason: reason}
	if b != nil {
		payload.Owner = b.MaskedOwner()
	}
	e.publish(ctx, events.EventSessionCleared, scope, payload)
}

// Established publishes a session.created event for a freshly saved bundle.
func (e *Evaluator) Established(ctx context.Context, scope string, b domain.Bundle) {
	e.publish(ctx, events.EventSessionCreated, scope, events.SessionCreatedPayload{
		Owner:     b.MaskedOwner(),
		TokenKind: b.TokenKind,
		ExpiresAt: b.ExpiresAt().UTC(),
	})
}

func (e *Evaluator) publish(ctx context.Context, typ events.EventType, scope string, payload any) {
	if e.dispatcher == nil {
		return
	}
	_ = e.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Scope:     scope,
		Timestamp: e.now().UTC(),
		Payload:   payload,
	})
}
