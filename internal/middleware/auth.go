package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"settlementsam/internal/apperr"
	"settlementsam/internal/authz"
)

// Context keys set by the auth middlewares.
const (
	CtxUsername = "username"
	CtxRole     = "role"
	CtxPhone    = "verified_phone"
)

type TokenParser interface {
	Parse(tokenStr string, kind authz.TokenKind) (*authz.Claims, error)
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperr.Unauthorized, "message": msg})
}

// bearerToken reads "Authorization: Bearer <t>". Websocket upgrades cannot
// set headers from a browser, so access_token in the query is accepted there.
func bearerToken(c *gin.Context) string {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return strings.TrimSpace(c.Query("access_token"))
	}
	return ""
}

// AuthMiddleware requires an admin access token and puts username and role
// into the context.
func AuthMiddleware(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			abortUnauthorized(c, "missing or invalid Authorization header")
			return
		}
		claims, err := tokens.Parse(tokenStr, authz.KindAdmin)
		if err != nil {
			abortUnauthorized(c, "invalid or expired token")
			return
		}
		c.Set(CtxUsername, claims.Subject)
		c.Set(CtxRole, claims.Role)
		c.Next()
	}
}

// SessionMiddleware requires the short-lived token issued after OTP
// verification and exposes the verified phone.
func SessionMiddleware(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			abortUnauthorized(c, "verify your phone first")
			return
		}
		claims, err := tokens.Parse(tokenStr, authz.KindSession)
		if err != nil || claims.Phone == "" {
			abortUnauthorized(c, "verification expired, request a new code")
			return
		}
		c.Set(CtxPhone, claims.Phone)
		c.Next()
	}
}

func Role(c *gin.Context) string {
	v, _ := c.Get(CtxRole)
	s, _ := v.(string)
	return s
}

func Username(c *gin.Context) string {
	v, _ := c.Get(CtxUsername)
	s, _ := v.(string)
	return s
}

func VerifiedPhone(c *gin.Context) string {
	v, _ := c.Get(CtxPhone)
	s, _ := v.(string)
	return s
}
