package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"realtime-chat/internal/identity"
)

// AuthMiddleware resolves the caller through resolver and stores its id and
// username on the gin context under "userID" and "username".
func AuthMiddleware(resolver identity.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := resolver.Resolve(c.Request.Context(), c.Request)
		if errors.Is(err, identity.ErrMissingToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userID", id.UserID)
		c.Set("username", id.Username)
		c.Next()
	}
}
