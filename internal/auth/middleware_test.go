package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareAllowsValidToken(t *testing.T) {
	f := newServiceFixture(t)
	f.addMember(t, "user@example.com", "Abc@1357")

	token, err := f.service.Login(context.Background(), "user@example.com", "Abc@1357")
	require.NoError(t, err)

	var gotClaims *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		gotClaims = claims
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	Middleware(f.service, next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, gotClaims)
	assert.Equal(t, "user@example.com", gotClaims.Subject)
	assert.Equal(t, int64(1), gotClaims.MemberID)
}

func TestMiddlewareRejectsMissingAndInvalidTokens(t *testing.T) {
	f := newServiceFixture(t)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run without authentication")
	})
	guarded := Middleware(f.service, next)

	req := httptest.NewRequest(http.MethodPost, "/protected", nil)
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/protected", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareRejectsRevokedToken(t *testing.T) {
	f := newServiceFixture(t)
	f.addMember(t, "user@example.com", "Abc@1357")

	token, err := f.service.Login(context.Background(), "user@example.com", "Abc@1357")
	require.NoError(t, err)
	require.NoError(t, f.service.Logout(context.Background(), token))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("revoked token must not reach the handler")
	})

	req := httptest.NewRequest(http.MethodPost, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	Middleware(f.service, next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareDeniesWhenStoreUnavailable(t *testing.T) {
	tokens := NewTokenAuthority(testSecret, defaultTokenTTL)
	guard := NewAttemptGuard(&failingStore{}, defaultFailureTTL, defaultLockTTL)
	revocations := NewRevocationRegistry(&failingStore{}, tokens)
	service := NewService(newFakeMembers(), guard, tokens, revocations)

	token, err := tokens.Issue("user@example.com", nil, 1)
	require.NoError(t, err)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("nothing authenticates while the store is down")
	})

	req := httptest.NewRequest(http.MethodPost, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	Middleware(service, next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestClaimsFromContextMissing(t *testing.T) {
	t.Parallel()

	_, ok := ClaimsFromContext(context.Background())
	assert.False(t, ok)
}
