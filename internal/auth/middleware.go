package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyPrincipal is the gin context key holding the caller's Principal.
	ContextKeyPrincipal = "authPrincipal"
	// HeaderAdminSecret carries the bootstrap super-admin secret.
	HeaderAdminSecret = "X-Admin-Secret"
)

// Middleware resolves the caller into a Principal. The admin secret header
// wins over an API key; requests without valid credentials continue
// unauthenticated and are rejected by RequireAuth where needed.
func Middleware(m *Manager, adminSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminSecret != "" {
			if given := c.GetHeader(HeaderAdminSecret); given != "" &&
				subtle.ConstantTimeCompare([]byte(given), []byte(adminSecret)) == 1 {
				c.Set(ContextKeyPrincipal, SuperAdmin("admin-secret"))
				c.Next()
				return
			}
		}

		apiKey := c.GetHeader("Authorization")
		if apiKey == "" {
			apiKey = c.GetHeader("X-API-Key")
		}
		if apiKey != "" {
			if key, err := m.ValidateKey(c.Request.Context(), apiKey); err == nil {
				c.Set(ContextKeyPrincipal, key.Principal())
			}
		}

		c.Next()
	}
}

// RequireAuth rejects requests without a resolved Principal.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := PrincipalFrom(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "API key required. Include 'Authorization: Bearer fw_...' header.",
			})
			return
		}
		c.Next()
	}
}

// RequireSuperAdmin rejects requests whose Principal is not a super admin.
func RequireSuperAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "admin credentials required",
			})
			return
		}
		if !p.IsSuperAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "super admin role required",
			})
			return
		}
		c.Next()
	}
}

// RequireTenantAccess rejects callers that cannot access the tenant named by
// the given URL parameter.
func RequireTenantAccess(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "API key required",
			})
			return
		}
		if !p.CanAccessTenant(c.Param(param)) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "not your tenant",
			})
			return
		}
		c.Next()
	}
}

// PrincipalFrom returns the caller's Principal, if authenticated.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, exists := c.Get(ContextKeyPrincipal)
	if !exists {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
