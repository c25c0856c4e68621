package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"characterlab/internal/store"
)

// Service issues, validates, and revokes bearer tokens for the local
// session. Tokens live in the shared key-value store so every backend works
// the same way. There is no password check anywhere; login is simulated.
type Service struct {
	store      store.Store
	tokenTTL   time.Duration
	cookieName string
	headerName string
}

type tokenRecord struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewService constructs an auth service with the supplied token lifetime.
func NewService(s store.Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		store:      s,
		tokenTTL:   ttl,
		cookieName: "auth_token",
		headerName: "Authorization",
	}
}

// IssueToken mints a new random token for the user and persists it.
func (s *Service) IssueToken(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", errors.New("invalid user id")
	}
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	record := tokenRecord{UserID: userID, CreatedAt: now, ExpiresAt: now.Add(s.tokenTTL)}
	raw, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encode token record: %w", err)
	}
	if err := s.store.Set(ctx, store.TokenKey(token), string(raw)); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return token, nil
}

// ValidateToken verifies the token exists, has not expired, and still belongs
// to the current session's user, returning the user id.
func (s *Service) ValidateToken(ctx context.Context, authToken string) (string, error) {
	if authToken == "" {
		return "", errors.New("token required")
	}
	raw, err := s.store.Get(ctx, store.TokenKey(authToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", errors.New("invalid token")
		}
		return "", fmt.Errorf("lookup token: %w", err)
	}
	var record tokenRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return "", errors.New("invalid token")
	}
	if time.Now().UTC().After(record.ExpiresAt) {
		_ = s.store.Delete(ctx, store.TokenKey(authToken))
		return "", errors.New("token expired")
	}
	// A login under a different identity replaces the user record; tokens
	// minted for the previous user stop working at that point.
	if currentID, ok := s.currentUserID(ctx); ok && currentID != record.UserID {
		_ = s.store.Delete(ctx, store.TokenKey(authToken))
		return "", errors.New("token superseded by a new login")
	}
	return record.UserID, nil
}

func (s *Service) currentUserID(ctx context.Context) (string, bool) {
	raw, err := s.store.Get(ctx, store.KeyUser)
	if err != nil {
		return "", false
	}
	var user struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(raw), &user); err != nil || user.ID == "" {
		return "", false
	}
	return user.ID, true
}

// RevokeToken deletes a single token.
func (s *Service) RevokeToken(ctx context.Context, authToken string) error {
	if authToken == "" {
		return nil
	}
	if err := s.store.Delete(ctx, store.TokenKey(authToken)); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AuthCookieName returns the cookie name storing auth tokens.
func (s *Service) AuthCookieName() string {
	return s.cookieName
}

// TokenTTL reports the configured token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}
