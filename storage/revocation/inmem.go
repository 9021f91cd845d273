package revocation

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/wazazi/core/user"
)

type memRevoker struct {
	mu      sync.Mutex
	tokens  map[string]time.Time // {token id: expiry}
	nowFunc func() time.Time
}

var _ user.Revoker = (*memRevoker)(nil) // interface compliance check

func NewMemRevoker() user.Revoker {
	return &memRevoker{tokens: make(map[string]time.Time), nowFunc: time.Now}
}

func (r *memRevoker) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	for id, exp := range r.tokens {
		if !exp.After(now) {
			delete(r.tokens, id)
		}
	}
	if expiresAt.After(now) {
		r.tokens[tokenID] = expiresAt
	}
	return nil
}

func (r *memRevoker) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	exp, ok := r.tokens[tokenID]
	return ok && exp.After(r.nowFunc()), nil
}
