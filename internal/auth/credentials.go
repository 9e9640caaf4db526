package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"roomchat-service/internal/models"
	"roomchat-service/internal/repositories"
)

var (
	ErrEmailTaken                    = errors.New("email already taken")
	ErrPasswordMismatch              = errors.New("passwords do not match")
	ErrEmailTakenAndPasswordMismatch = errors.New("email already taken and passwords do not match")
	ErrWrongPassword                 = errors.New("wrong password")
	ErrUserNotFound                  = errors.New("user not found")
)

// CredentialStore verifies and registers email/password accounts.
type CredentialStore struct {
	users repositories.UserRepository
}

// NewCredentialStore constructs a CredentialStore.
func NewCredentialStore(users repositories.UserRepository) *CredentialStore {
	return &CredentialStore{users: users}
}

// Register validates email uniqueness and password confirmation
// independently, so that both failures can be reported at once.
func (s *CredentialStore) Register(ctx context.Context, email, password, confirmPassword string) error {
	taken, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return err
	}
	mismatch := password != confirmPassword

	switch {
	case taken && mismatch:
		return ErrEmailTakenAndPasswordMismatch
	case taken:
		return ErrEmailTaken
	case mismatch:
		return ErrPasswordMismatch
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.users.CreateUser(ctx, email, string(hash))
	return err
}

// Authenticate resolves an email/password pair to a user.
func (s *CredentialStore) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return models.User{}, ErrWrongPassword
	}
	return user, nil
}
