package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"roomchat-service/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRepository abstracts session persistence.
type SessionRepository interface {
	CreateSession(ctx context.Context, token string, userID int64) error
	GetUserByToken(ctx context.Context, token string) (models.User, error)
	DeleteSession(ctx context.Context, token string) error
}

// SessionRepo is a sqlx implementation of SessionRepository.
type SessionRepo struct {
	db *sqlx.DB
}

// NewSessionRepo constructs a SessionRepo.
func NewSessionRepo(db *sqlx.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// CreateSession persists a token for a user. A user may hold any number of
// concurrent sessions.
func (r *SessionRepo) CreateSession(ctx context.Context, token string, userID int64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO sessions (token, user_id) VALUES ($1, $2)`, token, userID)
	return err
}

// GetUserByToken resolves a token to its owning user.
func (r *SessionRepo) GetUserByToken(ctx context.Context, token string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user,
		`SELECT u.id, u.email, u.password_hash FROM users u
         INNER JOIN sessions s ON s.user_id = u.id
         WHERE s.token=$1`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrSessionNotFound
	}
	return user, err
}

// DeleteSession invalidates a single token.
func (r *SessionRepo) DeleteSession(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token=$1`, token)
	return err
}
