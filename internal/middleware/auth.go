package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"course-chat/internal/auth"
)

const (
	UserIDKey   = "userID"
	UserNameKey = "userName"
)

// TokenValidator resolves a bearer token to an identity.
type TokenValidator interface {
	Validate(token string) (auth.Identity, error)
}

// AuthMiddleware validates the Authorization header and stores the caller's
// identity on the context.
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		token, ok := BearerToken(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		id, err := validator.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(UserIDKey, id.UserID)
		c.Set(UserNameKey, id.DisplayName)
		c.Next()
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
