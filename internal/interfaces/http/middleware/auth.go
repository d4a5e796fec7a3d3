// internal/interfaces/http/middleware/auth.go
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/vineyard-shop/internal/config"
	"github.com/your-org/vineyard-shop/internal/pkg/auth"
)

const (
	userIDKey    = "user_id"
	userEmailKey = "user_email"
)

// AuthMiddleware requires a valid access token
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	jwtManager := auth.NewJWTManager(cfg)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			c.Abort()
			return
		}

		if !authenticate(c, jwtManager, authHeader) {
			return
		}
		c.Next()
	}
}

// OptionalAuthMiddleware authenticates the request when a token is present.
// Requests without a token continue as guests; a token that does not
// validate is rejected.
func OptionalAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	jwtManager := auth.NewJWTManager(cfg)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		if !authenticate(c, jwtManager, authHeader) {
			return
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, jwtManager *auth.JWTManager, authHeader string) bool {
	tokenString := auth.ExtractTokenFromHeader(authHeader)
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid authorization header format",
		})
		c.Abort()
		return false
	}

	claims, err := jwtManager.ValidateAccessToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid or expired token",
		})
		c.Abort()
		return false
	}

	c.Set(userIDKey, claims.UserID)
	c.Set(userEmailKey, claims.Email)
	return true
}

// GetUserIDFromContext extracts user ID from gin context
func GetUserIDFromContext(c *gin.Context) (uint, bool) {
	userID, exists := c.Get(userIDKey)
	if !exists {
		return 0, false
	}
	id, ok := userID.(uint)
	return id, ok
}
