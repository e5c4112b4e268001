package handlers

import (
	"net/http"
	"orion/internal/services"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware resolves the caller's access token to a user id.
// Token issuance belongs to the external account service; this side
// only validates.
func AuthMiddleware(tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			if cookie, err := c.Request.Cookie("token"); err == nil {
				token = cookie.Value
			}
		}

		userID, err := tokens.ValidateToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}
