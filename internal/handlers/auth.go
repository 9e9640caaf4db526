package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"roomchat-service/internal/auth"
	"roomchat-service/internal/telemetry"
)

// AuthHandler serves the unauthenticated registration and login endpoints.
type AuthHandler struct {
	credentials *auth.CredentialStore
	sessions    *auth.SessionStore
	audit       *telemetry.AuditEmitter
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(credentials *auth.CredentialStore, sessions *auth.SessionStore, audit *telemetry.AuditEmitter) *AuthHandler {
	return &AuthHandler{credentials: credentials, sessions: sessions, audit: audit}
}

// Register handles POST /register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email           string `form:"email" json:"email" binding:"required"`
		Password        string `form:"password" json:"password" binding:"required"`
		ConfirmPassword string `form:"confirm_password" json:"confirm_password" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.credentials.Register(c.Request.Context(), req.Email, req.Password, req.ConfirmPassword)
	switch {
	case err == nil:
		h.audit.Emit(c.Request.Context(), "INFO", "user registered", requestIDFromContext(c), nil)
		c.JSON(http.StatusCreated, gin.H{"status": "registered"})
	case errors.Is(err, auth.ErrEmailTakenAndPasswordMismatch):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"email_taken": true, "password_mismatch": true})
	case errors.Is(err, auth.ErrEmailTaken):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"email_taken": true, "password_mismatch": false})
	case errors.Is(err, auth.ErrPasswordMismatch):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"email_taken": false, "password_mismatch": true})
	default:
		h.audit.Emit(c.Request.Context(), "ERROR", "registration storage failure", requestIDFromContext(c), nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
	}
}

// Login handles POST /login. On success it sets the session cookie and sends
// the browser back to the room list.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `form:"email" json:"email" binding:"required"`
		Password string `form:"password" json:"password" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.credentials.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) || errors.Is(err, auth.ErrWrongPassword) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	token, err := h.sessions.Issue(c.Request.Context(), user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "user logged in", requestIDFromContext(c), &user.ID)
	c.SetCookie(auth.SessionCookieName, token, 0, "/", "", false, true)
	c.Redirect(http.StatusSeeOther, "/")
}
