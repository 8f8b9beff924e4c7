package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Context keys set by KioskAuth.
const (
	ClaimsKey  = "claims"
	KioskIDKey = "kiosk_id"
)

// KioskAuth enforces bearer access tokens issued by iss.
func KioskAuth(iss *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := iss.Parse(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ClaimsKey, claims)
		c.Set(KioskIDKey, claims.KioskID)
		c.Next()
	}
}

// KioskID returns the authenticated kiosk, if any.
func KioskID(c *gin.Context) string {
	return c.GetString(KioskIDKey)
}
