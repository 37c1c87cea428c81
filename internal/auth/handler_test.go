package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHandlerFixture(t *testing.T) (*Handler, *serviceFixture) {
	t.Helper()

	f := newServiceFixture(t)
	return NewHandler(f.service, false), f
}

func postJSON(t *testing.T, handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()

	var envelope Envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	return envelope
}

func authCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == AuthorizationCookie {
			return cookie
		}
	}
	return nil
}

func TestHandlerLoginSuccess(t *testing.T) {
	handler, f := newHandlerFixture(t)
	f.addMember(t, "user@example.com", "Abc@1357")

	rec := postJSON(t, handler.Login, "/auth/login", `{"email":"user@example.com","password":"Abc@1357"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, StatusSuccess, envelope.Status)

	cookie := authCookie(rec)
	require.NotNil(t, cookie, "login must set the session cookie")
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, 600, cookie.MaxAge)
	assert.NotEmpty(t, cookie.Value)

	header := rec.Header().Get("Authorization")
	assert.True(t, strings.HasPrefix(header, "Bearer "))
	assert.Equal(t, cookie.Value, strings.TrimPrefix(header, "Bearer "))
}

func TestHandlerLoginRejectsBadRequests(t *testing.T) {
	handler, _ := newHandlerFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{`},
		{name: "unknown field", body: `{"email":"a@b.com","password":"x","extra":true}`},
		{name: "bad email format", body: `{"email":"not-an-email","password":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, handler.Login, "/auth/login", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, StatusFailure, decodeEnvelope(t, rec).Status)
		})
	}
}

func TestHandlerLoginWrongPassword(t *testing.T) {
	handler, f := newHandlerFixture(t)
	f.addMember(t, "user@example.com", "Abc@1357")

	rec := postJSON(t, handler.Login, "/auth/login", `{"email":"user@example.com","password":"nope"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, StatusUnauthorized, envelope.Status)
	assert.Nil(t, authCookie(rec))
}

func TestHandlerLoginLockedAccount(t *testing.T) {
	handler, f := newHandlerFixture(t)
	f.addMember(t, "user@example.com", "Abc@1357")

	for i := 0; i < 5; i++ {
		postJSON(t, handler.Login, "/auth/login", `{"email":"user@example.com","password":"nope"}`)
	}

	rec := postJSON(t, handler.Login, "/auth/login", `{"email":"user@example.com","password":"Abc@1357"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, StatusFailure, decodeEnvelope(t, rec).Status)
}

func TestHandlerLogout(t *testing.T) {
	handler, f := newHandlerFixture(t)
	f.addMember(t, "user@example.com", "Abc@1357")

	token, err := f.service.Login(context.Background(), "user@example.com", "Abc@1357")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: AuthorizationCookie, Value: token})
	rec := httptest.NewRecorder()
	handler.Logout(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusSuccess, decodeEnvelope(t, rec).Status)

	cookie := authCookie(rec)
	require.NotNil(t, cookie)
	assert.Less(t, cookie.MaxAge, 0, "logout must expire the session cookie")

	_, err = f.service.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestHandlerLogoutWithoutSession(t *testing.T) {
	handler, _ := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	rec := httptest.NewRecorder()
	handler.Logout(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "logging out of nothing still succeeds")
}

func TestHandlerExtendSession(t *testing.T) {
	handler, f := newHandlerFixture(t)
	f.addMember(t, "user@example.com", "Abc@1357")

	token, err := f.service.Login(context.Background(), "user@example.com", "Abc@1357")
	require.NoError(t, err)
	f.advance(time.Minute)

	req := httptest.NewRequest(http.MethodPost, "/auth/extend-session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ExtendSession(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	cookie := authCookie(rec)
	require.NotNil(t, cookie)
	assert.NotEqual(t, token, cookie.Value, "extension must rotate the token")

	_, err = f.service.Authenticate(context.Background(), cookie.Value)
	assert.NoError(t, err)
}

func TestHandlerExtendSessionUnauthenticated(t *testing.T) {
	handler, _ := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/extend-session", nil)
	rec := httptest.NewRecorder()
	handler.ExtendSession(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, StatusUnauthorized, decodeEnvelope(t, rec).Status)

	req = httptest.NewRequest(http.MethodPost, "/auth/extend-session", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	handler.ExtendSession(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerRegister(t *testing.T) {
	handler, f := newHandlerFixture(t)

	rec := postJSON(t, handler.Register, "/auth/members",
		`{"email":"new@example.com","name":"Kim","birth":"970418","password":"Abc@1357","tel":"010-9876-5432"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusSuccess, decodeEnvelope(t, rec).Status)
	assert.Len(t, f.members.created, 1)
}

func TestHandlerRegisterWeakPassword(t *testing.T) {
	handler, _ := newHandlerFixture(t)

	rec := postJSON(t, handler.Register, "/auth/members",
		`{"email":"new@example.com","name":"Kim","birth":"970418","password":"a970418@","tel":"010-9876-5432"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, StatusFailure, envelope.Status)
	assert.Contains(t, envelope.Message, "birth date or phone number")
}

func TestHandlerRegisterDuplicateEmail(t *testing.T) {
	handler, f := newHandlerFixture(t)
	f.addMember(t, "user@example.com", "Abc@1357")

	rec := postJSON(t, handler.Register, "/auth/members",
		`{"email":"user@example.com","name":"Kim","birth":"970418","password":"Xyz@2468","tel":"010-9876-5432"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, StatusFailure, decodeEnvelope(t, rec).Status)
}

func TestHandlerRegisterMissingFields(t *testing.T) {
	handler, _ := newHandlerFixture(t)

	rec := postJSON(t, handler.Register, "/auth/members",
		`{"email":"new@example.com","name":"","birth":"970418","password":"Abc@1357","tel":"010-9876-5432"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerCheckDuplicateEmail(t *testing.T) {
	handler, f := newHandlerFixture(t)
	f.addMember(t, "user@example.com", "Abc@1357")

	rec := postJSON(t, handler.CheckDuplicateEmail, "/auth/email", `{"email":"free@example.com"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusSuccess, decodeEnvelope(t, rec).Status)

	rec = postJSON(t, handler.CheckDuplicateEmail, "/auth/email", `{"email":"user@example.com"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, StatusFailure, decodeEnvelope(t, rec).Status)
}

func TestTokenFromRequest(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, TokenFromRequest(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "header-token", TokenFromRequest(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AuthorizationCookie, Value: "cookie-token"})
	req.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "cookie-token", TokenFromRequest(req), "cookie wins over header")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcg==")
	assert.Empty(t, TokenFromRequest(req))
}
