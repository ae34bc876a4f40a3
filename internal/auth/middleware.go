package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ms-blindbox/internal/utils"
)

// Middleware guards the admin surface with a bearer token.
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "missing Authorization header"))
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "invalid Authorization header format"))
			return
		}

		if err := VerifyAdminToken(secret, parts[1]); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "invalid token"))
			return
		}

		c.Next()
	}
}
