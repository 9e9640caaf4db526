package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"roomchat-service/internal/auth"
	"roomchat-service/internal/models"
)

// UserContextKey is where the gate stores the resolved user in the gin
// context; UserIDContextKey carries just the id for handlers that only need
// it.
const (
	UserContextKey   = "user"
	UserIDContextKey = "userID"
)

// SessionResolver resolves a session token to its user.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (models.User, error)
}

// SessionGate authenticates every request behind it by resolving the session
// cookie. A missing or unknown cookie redirects to the login page; the gate
// never does room-level authorization.
func SessionGate(sessions SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(auth.SessionCookieName)
		if err != nil || token == "" {
			c.Redirect(http.StatusSeeOther, "/login")
			c.Abort()
			return
		}

		user, err := sessions.Resolve(c.Request.Context(), token)
		if err != nil {
			c.Redirect(http.StatusSeeOther, "/login")
			c.Abort()
			return
		}

		c.Set(UserContextKey, user)
		c.Set(UserIDContextKey, user.ID)
		c.Next()
	}
}

// UserFromContext retrieves the gate-attached user.
func UserFromContext(c *gin.Context) (models.User, bool) {
	val, ok := c.Get(UserContextKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := val.(models.User)
	return user, ok
}
