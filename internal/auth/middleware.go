package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Olowonjaye/MediSecure-Chain/pkg/types"
)

const contextUserKey = "current_user"

// Middleware authenticates requests with a Bearer token and stores the
// verified claims on the request context.
func Middleware(tm *TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   types.ErrCodeUnauthorized,
				"message": "Authorization header is required",
			})
			return
		}

		claims, err := tm.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   types.ErrCodeUnauthorized,
				"message": "Invalid or expired token",
			})
			return
		}

		c.Set(contextUserKey, claims)
		c.Next()
	}
}

// RequireRoles rejects requests whose authenticated role is outside the set.
func RequireRoles(roles ...types.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   types.ErrCodeUnauthorized,
				"message": "Authentication required",
			})
			return
		}

		if !types.RoleIn(claims.Role, roles) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   types.ErrCodeForbidden,
				"message": "Insufficient role",
			})
			return
		}

		c.Next()
	}
}

// CurrentUser returns the authenticated claims set by Middleware.
func CurrentUser(c *gin.Context) (*types.UserClaims, bool) {
	value, exists := c.Get(contextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*types.UserClaims)
	return claims, ok
}
