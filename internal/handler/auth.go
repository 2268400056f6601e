package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/estatedesk/internal/auth"
	"github.com/estatedesk/internal/identity"
	"github.com/estatedesk/internal/logger"
	"github.com/estatedesk/internal/middleware"
)

// AuthHandler serves owner login and logout.
type AuthHandler struct {
	sessions   *auth.Service
	sessionTTL time.Duration
	secure     bool
}

func NewAuthHandler(sessions *auth.Service, sessionTTL time.Duration, secureCookies bool) *AuthHandler {
	return &AuthHandler{sessions: sessions, sessionTTL: sessionTTL, secure: secureCookies}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	token, err := h.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		logger.Errorf("login: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     identity.OwnerTokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, LoginResponse{Token: token})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(identity.OwnerTokenCookie); err == nil && c.Value != "" {
		if err := h.sessions.Logout(r.Context(), c.Value); err != nil {
			logger.Errorf("logout: %v", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     identity.OwnerTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me reports who the current request resolves to.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r.Context())
	resp := map[string]any{"role": string(actor.Role)}
	if actor.IsVisitor() {
		resp["visitor"] = actor.Identity
	}
	if actor.Anonymous() {
		resp["role"] = "anonymous"
	}
	writeJSON(w, http.StatusOK, resp)
}
