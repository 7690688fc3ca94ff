// Package session owns the credential bundle lifecycle: persistence per scope
// and evaluation of its status at an instant.
package session

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/portfolio-admin/internal/domain"
	"github.com/spec-kit/portfolio-admin/internal/repository"
)

var (
	// ErrNoScope is returned when a write is attempted without a scope.
	ErrNoScope = errors.New("session scope is empty")
	// ErrIncompleteBundle rejects bundles missing any of the four fields.
	ErrIncompleteBundle = errors.New("credential bundle is incomplete")
)

// ExpiredRetention is how long a bundle stays readable after its expiry, so
// a late request still sees EXPIRED and clears it with a reason. Past that
// the repository is free to drop the scope.
const ExpiredRetention = time.Hour

// Authorizer receives the default Authorization header of a scope. The
// outbound backend client implements it. A header is useless past until.
type Authorizer interface {
	Attach(scope, header string, until time.Time)
	Detach(scope string)
}

type nopAuthorizer struct{}

func (nopAuthorizer) Attach(string, string, time.Time) {}
func (nopAuthorizer) Detach(string)                    {}

const scopeLockStripes = 64

// AuthorizationHeader formats the header value attached for a bundle.
func AuthorizationHeader(b domain.Bundle) string {
	return "Bearer " + b.Token
}

// TokenStore persists credential bundles per scope.
type TokenStore struct {
	repo   repository.CredentialRepository
	sealer Sealer
	authz  Authorizer
	logger *zap.Logger

	// locks serialize writes to one scope within this process.
	locks [scopeLockStripes]sync.Mutex
}

// NewTokenStore builds a store. A nil authorizer disables header management.
func NewTokenStore(repo repository.CredentialRepository, sealer Sealer, authz Authorizer, logger *zap.Logger) *TokenStore {
	if authz == nil {
		authz = nopAuthorizer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenStore{repo: repo, sealer: sealer, authz: authz, logger: logger}
}

func (s *TokenStore) lock(scope string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(scope))
	mu := &s.locks[h.Sum32()%scopeLockStripes]
	mu.Lock()
	return mu.Unlock
}

// Save writes all four entries in one repository call, then attaches the
// default header for the scope.
func (s *TokenStore) Save(ctx context.Context, scope string, b domain.Bundle) error {
	if scope == "" {
		return ErrNoScope
	}
	if !b.Complete() {
		return ErrIncompleteBundle
	}

	sealed, err := s.sealer.Seal(scope, b.Token)
	if err != nil {
		return err
	}
	entries := b.Entries()
	entries[domain.KeyToken] = sealed

	defer s.lock(scope)()
	if err := s.repo.Put(ctx, scope, entries, b.ExpiresAt().Add(ExpiredRetention)); err != nil {
		return fmt.Errorf("save credential bundle: %w", err)
	}
	s.authz.Attach(scope, AuthorizationHeader(b), b.ExpiresAt())
	return nil
}

// Read returns the bundle of scope, or nil when any entry is missing or
// malformed. It does not look at expiry. Errors are repository failures only.
func (s *TokenStore) Read(ctx context.Context, scope string) (*domain.Bundle, error) {
	if scope == "" {
		return nil, nil
	}

	entries, err := s.repo.Get(ctx, scope, domain.BundleKeys...)
	if err != nil {
		return nil, fmt.Errorf("read credential bundle: %w", err)
	}
	b, ok := domain.BundleFromEntries(entries)
	if !ok {
		return nil, nil
	}

	token, err := s.sealer.Open(scope, b.Token)
	if err != nil {
		s.logger.Warn("discarding unreadable token entry", zap.String("scope", scope), zap.Error(err))
		return nil, nil
	}
	b.Token = token
	return &b, nil
}

// Clear removes every entry of scope and detaches its default header. It is
// safe to call on an empty scope.
func (s *TokenStore) Clear(ctx context.Context, scope string) error {
	s.authz.Detach(scope)
	if scope == "" {
		return nil
	}
	defer s.lock(scope)()
	return s.delete(ctx, scope)
}

// ClearIfUnchanged clears scope only while it still holds seen. It reports
// false, leaving the scope alone, when another writer replaced the bundle
// since seen was read. Writers in other processes are not serialized.
func (s *TokenStore) ClearIfUnchanged(ctx context.Context, scope string, seen domain.Bundle) (bool, error) {
	if scope == "" {
		return false, nil
	}
	defer s.lock(scope)()

	current, err := s.Read(ctx, scope)
	if err != nil {
		return false, err
	}
	if current != nil && *current != seen {
		return false, nil
	}
	s.authz.Detach(scope)
	return true, s.delete(ctx, scope)
}

func (s *TokenStore) delete(ctx context.Context, scope string) error {
	if err := s.repo.Delete(ctx, scope, domain.BundleKeys...); err != nil {
		return fmt.Errorf("clear credential bundle: %w", err)
	}
	return nil
}

// Restore re-attaches the default header for a bundle already persisted,
// e.g. after a restart emptied the client's header map.
func (s *TokenStore) Restore(scope string, b domain.Bundle) {
	if scope == "" || !b.Complete() {
		return
	}
	s.authz.Attach(scope, AuthorizationHeader(b), b.ExpiresAt())
}
