package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"roomchat-service/internal/mocks"
	"roomchat-service/internal/models"
	"roomchat-service/internal/repositories"
)

func TestRegisterReportsCombinedFailure(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	store := NewCredentialStore(users)

	users.On("EmailExists", mock.Anything, "dup@x.com").Return(true, nil).Once()

	err := store.Register(context.Background(), "dup@x.com", "pw1", "pw2")
	require.ErrorIs(t, err, ErrEmailTakenAndPasswordMismatch)
	users.AssertExpectations(t)
}

func TestRegisterEmailTakenWithMatchingPasswords(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	store := NewCredentialStore(users)

	users.On("EmailExists", mock.Anything, "dup@x.com").Return(true, nil).Once()

	err := store.Register(context.Background(), "dup@x.com", "pw1", "pw1")
	require.ErrorIs(t, err, ErrEmailTaken)
	require.NotErrorIs(t, err, ErrEmailTakenAndPasswordMismatch)
	users.AssertExpectations(t)
}

func TestRegisterPasswordMismatchOnly(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	store := NewCredentialStore(users)

	users.On("EmailExists", mock.Anything, "new@x.com").Return(false, nil).Once()

	err := store.Register(context.Background(), "new@x.com", "pw1", "pw2")
	require.ErrorIs(t, err, ErrPasswordMismatch)
	users.AssertExpectations(t)
}

func TestRegisterPersistsHashedPassword(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	store := NewCredentialStore(users)

	users.On("EmailExists", mock.Anything, "a@x.com").Return(false, nil).Once()
	users.On("CreateUser", mock.Anything, "a@x.com", mock.MatchedBy(func(hash string) bool {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte("pw1")) == nil
	})).Return(models.User{ID: 1, Email: "a@x.com"}, nil).Once()

	require.NoError(t, store.Register(context.Background(), "a@x.com", "pw1", "pw1"))
	users.AssertExpectations(t)
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	store := NewCredentialStore(users)

	users.On("GetUserByEmail", mock.Anything, "ghost@x.com").
		Return(models.User{}, repositories.ErrUserNotFound).Once()

	_, err := store.Authenticate(context.Background(), "ghost@x.com", "pw")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	store := NewCredentialStore(users)

	hash, err := bcrypt.GenerateFromPassword([]byte("right"), bcrypt.MinCost)
	require.NoError(t, err)
	users.On("GetUserByEmail", mock.Anything, "a@x.com").
		Return(models.User{ID: 1, Email: "a@x.com", PasswordHash: string(hash)}, nil).Once()

	_, err = store.Authenticate(context.Background(), "a@x.com", "wrong")
	require.ErrorIs(t, err, ErrWrongPassword)
}

func TestAuthenticateSuccess(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	store := NewCredentialStore(users)

	hash, err := bcrypt.GenerateFromPassword([]byte("pw1"), bcrypt.MinCost)
	require.NoError(t, err)
	users.On("GetUserByEmail", mock.Anything, "a@x.com").
		Return(models.User{ID: 42, Email: "a@x.com", PasswordHash: string(hash)}, nil).Once()

	user, err := store.Authenticate(context.Background(), "a@x.com", "pw1")
	require.NoError(t, err)
	require.Equal(t, int64(42), user.ID)
}
