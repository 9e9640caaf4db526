package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"roomchat-service/internal/auth"
	"roomchat-service/internal/mocks"
	"roomchat-service/internal/models"
)

func setupAuthRouter(users *mocks.UserRepositoryMock, sessions *mocks.SessionRepositoryMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(auth.NewCredentialStore(users), auth.NewSessionStore(sessions), nil)
	r := gin.New()
	r.POST("/register", handler.Register)
	r.POST("/login", handler.Login)
	return r
}

func postForm(router *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterCombinedFailureReportsBothFlags(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router := setupAuthRouter(users, new(mocks.SessionRepositoryMock))

	users.On("EmailExists", mock.Anything, "dup@x.com").Return(true, nil).Once()

	rec := postForm(router, "/register", url.Values{
		"email":            {"dup@x.com"},
		"password":         {"pw1"},
		"confirm_password": {"pw2"},
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.JSONEq(t, `{"email_taken":true,"password_mismatch":true}`, rec.Body.String())
	users.AssertExpectations(t)
}

func TestRegisterDuplicateWithMatchingPasswords(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router := setupAuthRouter(users, new(mocks.SessionRepositoryMock))

	users.On("EmailExists", mock.Anything, "dup@x.com").Return(true, nil).Once()

	rec := postForm(router, "/register", url.Values{
		"email":            {"dup@x.com"},
		"password":         {"pw1"},
		"confirm_password": {"pw1"},
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.JSONEq(t, `{"email_taken":true,"password_mismatch":false}`, rec.Body.String())
}

func TestRegisterSuccess(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router := setupAuthRouter(users, new(mocks.SessionRepositoryMock))

	users.On("EmailExists", mock.Anything, "a@x.com").Return(false, nil).Once()
	users.On("CreateUser", mock.Anything, "a@x.com", mock.Anything).
		Return(models.User{ID: 1, Email: "a@x.com"}, nil).Once()

	rec := postForm(router, "/register", url.Values{
		"email":            {"a@x.com"},
		"password":         {"pw1"},
		"confirm_password": {"pw1"},
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	users.AssertExpectations(t)
}

func TestRegisterStorageFailureIsGeneric(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router := setupAuthRouter(users, new(mocks.SessionRepositoryMock))

	users.On("EmailExists", mock.Anything, "a@x.com").Return(false, assert.AnError).Once()

	rec := postForm(router, "/register", url.Values{
		"email":            {"a@x.com"},
		"password":         {"pw1"},
		"confirm_password": {"pw1"},
	})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestLoginSetsSessionCookieAndRedirects(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	sessions := new(mocks.SessionRepositoryMock)
	router := setupAuthRouter(users, sessions)

	hash, err := bcrypt.GenerateFromPassword([]byte("pw1"), bcrypt.MinCost)
	require.NoError(t, err)
	users.On("GetUserByEmail", mock.Anything, "a@x.com").
		Return(models.User{ID: 1, Email: "a@x.com", PasswordHash: string(hash)}, nil).Once()
	sessions.On("CreateSession", mock.Anything, mock.Anything, int64(1)).Return(nil).Once()

	rec := postForm(router, "/login", url.Values{
		"email":    {"a@x.com"},
		"password": {"pw1"},
	})

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))

	var sessionCookie *http.Cookie
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == auth.SessionCookieName {
			sessionCookie = cookie
		}
	}
	require.NotNil(t, sessionCookie)
	require.NotEmpty(t, sessionCookie.Value)
	sessions.AssertExpectations(t)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router := setupAuthRouter(users, new(mocks.SessionRepositoryMock))

	hash, err := bcrypt.GenerateFromPassword([]byte("right"), bcrypt.MinCost)
	require.NoError(t, err)
	users.On("GetUserByEmail", mock.Anything, "a@x.com").
		Return(models.User{ID: 1, Email: "a@x.com", PasswordHash: string(hash)}, nil).Once()

	rec := postForm(router, "/login", url.Values{
		"email":    {"a@x.com"},
		"password": {"wrong"},
	})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
