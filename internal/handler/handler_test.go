package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatedesk/internal/auth"
	"github.com/estatedesk/internal/chat"
	"github.com/estatedesk/internal/identity"
	"github.com/estatedesk/internal/middleware"
	"github.com/estatedesk/internal/repository"
	"github.com/estatedesk/internal/storage/memory"
)

const testPassword = "owner-password-123"

func newAuthStack(t *testing.T) (*auth.Service, *memory.Client) {
	t.Helper()
	store := memory.New()
	hash, err := auth.HashPassword(testPassword)
	require.NoError(t, err)
	sessions := auth.NewService(auth.Config{
		OwnerEmail:        "owner@example.com",
		OwnerPasswordHash: hash,
		JWTSecret:         []byte("test-secret"),
		SessionTTL:        time.Hour,
	}, store)
	return sessions, store
}

func TestLoginSetsCookie(t *testing.T) {
	sessions, _ := newAuthStack(t)
	h := NewAuthHandler(sessions, time.Hour, false)

	body := strings.NewReader(`{"email":"owner@example.com","password":"` + testPassword + `"}`)
	req := httptest.NewRequest("POST", "/api/auth/login", body)
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.Token)
	assert.NoError(t, sessions.Verify(req.Context(), resp.Token))

	var found bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == identity.OwnerTokenCookie {
			found = true
			assert.Equal(t, resp.Token, c.Value)
			assert.True(t, c.HttpOnly)
		}
	}
	assert.True(t, found, "expected the owner token cookie to be set")
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	sessions, _ := newAuthStack(t)
	h := NewAuthHandler(sessions, time.Hour, false)

	req := httptest.NewRequest("POST", "/api/auth/login",
		strings.NewReader(`{"email":"owner@example.com","password":"wrong"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest("POST", "/api/auth/login", strings.NewReader("not json"))
	rec = httptest.NewRecorder()
	h.Login(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogoutRevokesSession(t *testing.T) {
	sessions, _ := newAuthStack(t)
	h := NewAuthHandler(sessions, time.Hour, false)
	ctx := httptest.NewRequest("GET", "/", nil).Context()

	token, err := sessions.Login(ctx, "owner@example.com", testPassword)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: identity.OwnerTokenCookie, Value: token})
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, errors.Is(sessions.Verify(ctx, token), auth.ErrInvalidSession))
}

func TestMeReportsActor(t *testing.T) {
	sessions, _ := newAuthStack(t)
	h := NewAuthHandler(sessions, time.Hour, false)

	req := httptest.NewRequest("GET", "/api/auth/me", nil)
	req = req.WithContext(middleware.WithActor(req.Context(), &identity.Actor{}))
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "anonymous", resp["role"])
}

func TestVisitorEndpointsRequireIdentity(t *testing.T) {
	h := NewChatHandler(nil, nil, false)

	for _, tc := range []struct {
		method string
		path   string
		call   http.HandlerFunc
	}{
		{"GET", "/api/chat/conversation", h.GetConversation},
		{"POST", "/api/chat/messages", h.SendMessage},
		{"POST", "/api/chat/read", h.MarkRead},
		{"DELETE", "/api/chat/conversation", h.DeleteConversation},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		req = req.WithContext(middleware.WithActor(req.Context(), &identity.Actor{}))
		rec := httptest.NewRecorder()
		tc.call(rec, req)
		assert.Equalf(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestWriteServiceErrorMapping(t *testing.T) {
	for _, tc := range []struct {
		err  error
		code int
	}{
		{&chat.ValidationError{Field: "text", Reason: "must not be empty"}, http.StatusBadRequest},
		{fmt.Errorf("load: %w", repository.ErrNotFound), http.StatusNotFound},
		{chat.ErrForbidden, http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
	} {
		rec := httptest.NewRecorder()
		writeServiceError(rec, tc.err)
		assert.Equalf(t, tc.code, rec.Code, "error %v", tc.err)

		var resp errorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.NotEmpty(t, resp.Error)
	}
}

func TestConfigPush(t *testing.T) {
	rec := httptest.NewRecorder()
	NewConfigHandler("").Push(rec, httptest.NewRequest("GET", "/api/config/push", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	NewConfigHandler("pub-key").Push(rec, httptest.NewRequest("GET", "/api/config/push", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "pub-key", resp["vapid_public_key"])
}
