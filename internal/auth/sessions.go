package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"

	"roomchat-service/internal/models"
	"roomchat-service/internal/repositories"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionCookieName is the cookie the login flow sets and the gate reads.
const SessionCookieName = "session_id"

const (
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	tokenLength   = 16
)

// SessionStore mints and resolves opaque session tokens.
type SessionStore struct {
	sessions repositories.SessionRepository
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(sessions repositories.SessionRepository) *SessionStore {
	return &SessionStore{sessions: sessions}
}

// Issue mints a fresh token for the user and persists it. Existing tokens
// for the same user stay valid.
func (s *SessionStore) Issue(ctx context.Context, user models.User) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", err
	}
	if err := s.sessions.CreateSession(ctx, token, user.ID); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve returns the user owning the token, or ErrSessionNotFound.
func (s *SessionStore) Resolve(ctx context.Context, token string) (models.User, error) {
	if token == "" {
		return models.User{}, ErrSessionNotFound
	}
	user, err := s.sessions.GetUserByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return models.User{}, ErrSessionNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func randomToken() (string, error) {
	out := make([]byte, tokenLength)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = tokenAlphabet[n.Int64()]
	}
	return string(out), nil
}
