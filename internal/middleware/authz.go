package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"settlementsam/internal/apperr"
	"settlementsam/internal/authz"
)

func RequireRoles(allowed ...string) gin.HandlerFunc {
	allowedSet := map[string]struct{}{}
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}
	return func(c *gin.Context) {
		role := Role(c)
		if role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperr.Unauthorized, "message": "no role in context"})
			return
		}
		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": apperr.Forbidden, "message": "forbidden"})
			return
		}
		c.Next()
	}
}

// ReadOnlyGuard lets read-only roles through on safe methods only.
func ReadOnlyGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if authz.IsReadOnly(Role(c)) {
			switch c.Request.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
			default:
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": apperr.Forbidden, "message": "read-only role"})
				return
			}
		}
		c.Next()
	}
}
