package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opencoder/opencoder/backend/go-services/internal/sessions"
)

// Principal is the authenticated caller as seen by the API handlers. The
// Google access token comes from the caller's server-side session and is
// needed for classroom and drive calls made on the caller's behalf.
type Principal struct {
	UserID      string
	Name        string
	Email       string
	GoogleToken string
}

// Authenticator resolves a verified bearer token to the caller it belongs to.
type Authenticator func(c *gin.Context, raw string) (Principal, error)

const principalKey = "principal"

// AuthMiddleware returns a Gin middleware that parses the Authorization
// header, rejects blacklisted tokens and stores the resolved Principal in the
// request context for downstream handlers.
func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}
		// Expect 'Bearer <token>'
		var raw string
		if n, _ := fmt.Sscanf(header, "Bearer %s", &raw); n != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			return
		}

		if bl, err := sessions.IsAccessTokenBlacklisted(c.Request.Context(), raw); err == nil && bl {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
			return
		}

		p, err := auth(c, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "details": err.Error()})
			return
		}

		c.Set(principalKey, p)
		c.Next()
	}
}

// PrincipalFrom returns the Principal stored by AuthMiddleware, if any.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
