// Package auth handles the single owner account: password login, signed
// session tokens, and revocation. Session ids live in the storage layer, so
// logout takes effect immediately even while a token is still unexpired.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/estatedesk/internal/storage"
)

// ErrInvalidCredentials is returned for any login failure. The reason
// (wrong email vs wrong password) is deliberately not distinguished.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidSession is returned when a presented token is malformed,
// expired, or its session has been revoked.
var ErrInvalidSession = errors.New("invalid session")

type Config struct {
	// OwnerEmail and OwnerPasswordHash (bcrypt) identify the one owner
	// account; there is no user table.
	OwnerEmail        string
	OwnerPasswordHash string
	JWTSecret         []byte
	SessionTTL        time.Duration
}

type Service struct {
	cfg   Config
	store storage.Store
}

func NewService(cfg Config, store storage.Store) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * 24 * time.Hour
	}
	return &Service{cfg: cfg, store: store}
}

// Login checks the credentials against the configured owner account and,
// on success, records a session and returns a signed token carrying its id.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if s.cfg.OwnerEmail == "" || email != strings.ToLower(s.cfg.OwnerEmail) {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.OwnerPasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	sessionID := uuid.New().String()
	if err := s.store.SetOwnerSession(ctx, sessionID); err != nil {
		return "", fmt.Errorf("auth: save session: %w", err)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   "owner",
		ID:        sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.SessionTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.JWTSecret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return token, nil
}

// Verify parses the token and checks the session has not been revoked.
func (s *Service) Verify(ctx context.Context, token string) error {
	sessionID, err := s.sessionID(token)
	if err != nil {
		return err
	}
	ok, err := s.store.HasOwnerSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("auth: check session: %w", err)
	}
	if !ok {
		return ErrInvalidSession
	}
	return nil
}

// Logout revokes the session behind the token. Revoking an already-revoked
// session is not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	sessionID, err := s.sessionID(token)
	if err != nil {
		return err
	}
	return s.store.DeleteOwnerSession(ctx, sessionID)
}

func (s *Service) sessionID(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.cfg.JWTSecret, nil
	})
	if err != nil || !parsed.Valid || claims.ID == "" {
		return "", ErrInvalidSession
	}
	return claims.ID, nil
}

// HashPassword produces a bcrypt hash for OWNER_PASSWORD_HASH generation
// (services/api -hash-password).
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
