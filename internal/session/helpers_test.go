package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/portfolio-admin/internal/domain"
	"github.com/spec-kit/portfolio-admin/internal/repository"
)

type recordingAuthorizer struct {
	mu      sync.Mutex
	headers map[string]string
}

func newRecordingAuthorizer() *recordingAuthorizer {
	return &recordingAuthorizer{headers: map[string]string{}}
}

func (a *recordingAuthorizer) Attach(scope, header string, _ time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.headers[scope] = header
}

func (a *recordingAuthorizer) Detach(scope string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.headers, scope)
}

func (a *recordingAuthorizer) header(scope string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.headers[scope]
	return h, ok
}

type failingRepository struct{}

var errRepoDown = errors.New("repository down")

func (failingRepository) Get(context.Context, string, ...string) (map[string]string, error) {
	return nil, errRepoDown
}

func (failingRepository) Put(context.Context, string, map[string]string, time.Time) error {
	return errRepoDown
}

func (failingRepository) Delete(context.Context, string, ...string) error {
	return errRepoDown
}

// hookedRepository runs afterGet once, right after the next read returns.
type hookedRepository struct {
	repository.CredentialRepository
	afterGet func()
}

func (r *hookedRepository) Get(ctx context.Context, scope string, keys ...string) (map[string]string, error) {
	out, err := r.CredentialRepository.Get(ctx, scope, keys...)
	if f := r.afterGet; f != nil {
		r.afterGet = nil
		f()
	}
	return out, err
}

func newTestStore(t *testing.T, repo repository.CredentialRepository) (*TokenStore, *recordingAuthorizer) {
	t.Helper()
	sealer, err := NewAEADSealer("test-secret")
	require.NoError(t, err)
	authz := newRecordingAuthorizer()
	return NewTokenStore(repo, sealer, authz, nil), authz
}

func bundleExpiringAt(at time.Time) domain.Bundle {
	return domain.Bundle{
		Token:           "t1",
		OwnerIdentity:   "a@b.com",
		TokenKind:       "Bearer",
		ExpiresAtMillis: at.UnixMilli(),
	}
}
