package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustgate/internal/kv"
)

func TestRevocationRegistry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	store := kv.NewMemoryStore().WithClock(clock)
	tokens := NewTokenAuthority(testSecret, 10*time.Minute).WithClock(clock)
	registry := NewRevocationRegistry(store, tokens)
	ctx := context.Background()

	token, err := tokens.Issue("user@example.com", nil, 1)
	require.NoError(t, err)

	revoked, err := registry.IsRevoked(ctx, token)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, registry.Revoke(ctx, token))

	revoked, err = registry.IsRevoked(ctx, token)
	require.NoError(t, err)
	assert.True(t, revoked)

	// Revoking again changes nothing.
	require.NoError(t, registry.Revoke(ctx, token))
	revoked, err = registry.IsRevoked(ctx, token)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRevocationEntryExpiresWithToken(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	store := kv.NewMemoryStore().WithClock(clock)
	tokens := NewTokenAuthority(testSecret, 10*time.Minute).WithClock(clock)
	registry := NewRevocationRegistry(store, tokens)
	ctx := context.Background()

	token, err := tokens.Issue("user@example.com", nil, 1)
	require.NoError(t, err)
	require.NoError(t, registry.Revoke(ctx, token))

	// Once the token itself is expired the registry entry is gone too; the
	// expiry check rejects the token before revocation ever matters.
	now = now.Add(11 * time.Minute)
	revoked, err := registry.IsRevoked(ctx, token)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevokeExpiredTokenIsNoOp(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	store := kv.NewMemoryStore().WithClock(clock)
	tokens := NewTokenAuthority(testSecret, 10*time.Minute).WithClock(clock)
	registry := NewRevocationRegistry(store, tokens)
	ctx := context.Background()

	token, err := tokens.Issue("user@example.com", nil, 1)
	require.NoError(t, err)

	now = now.Add(11 * time.Minute)
	require.NoError(t, registry.Revoke(ctx, token))

	revoked, err := registry.IsRevoked(ctx, token)
	require.NoError(t, err)
	assert.False(t, revoked, "expired tokens are never written to the registry")
}

func TestIsRevokedPropagatesStoreErrors(t *testing.T) {
	tokens := NewTokenAuthority(testSecret, 10*time.Minute)
	registry := NewRevocationRegistry(&failingStore{}, tokens)

	_, err := registry.IsRevoked(context.Background(), "any")
	assert.Error(t, err)
}
