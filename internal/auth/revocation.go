package auth

import (
	"context"

	"trustgate/internal/kv"
)

const blacklistKeyPrefix = "token:blacklist:"

const revokedValue = "REVOKED"

// RevocationRegistry records tokens that must no longer authenticate, even
// though their signature and expiry still check out. Entries carry the
// token's own remaining validity as TTL, so the registry never outgrows the
// set of tokens that could still be replayed.
type RevocationRegistry struct {
	store  kv.Store
	tokens *TokenAuthority
}

func NewRevocationRegistry(store kv.Store, tokens *TokenAuthority) *RevocationRegistry {
	return &RevocationRegistry{store: store, tokens: tokens}
}

// Revoke blacklists the exact token string for as long as it would otherwise
// stay valid. Revoking an expired or already-revoked token is a no-op.
func (r *RevocationRegistry) Revoke(ctx context.Context, token string) error {
	remaining := r.tokens.RemainingTTL(token)
	if remaining <= 0 {
		return nil
	}
	return r.store.SetWithTTL(ctx, blacklistKeyPrefix+token, revokedValue, remaining)
}

// IsRevoked reports whether the token has been blacklisted. Store errors
// propagate; the caller treats an unanswerable check as revoked.
func (r *RevocationRegistry) IsRevoked(ctx context.Context, token string) (bool, error) {
	_, found, err := r.store.Get(ctx, blacklistKeyPrefix+token)
	if err != nil {
		return false, err
	}
	return found, nil
}
