package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"github.com/medicore/hospital-api/internal/model"
	"github.com/medicore/hospital-api/pkg/auth"
)

const principalKey = "principal"

// AuthMiddleware authenticates bearer tokens and enforces role
// allow-lists on route groups. Validated claims are cached so repeated
// requests with the same token skip signature verification.
type AuthMiddleware struct {
	tokens *auth.TokenService
	cache  *cache.Cache
}

func NewAuthMiddleware(tokens *auth.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
		cache:  cache.New(5*time.Minute, 10*time.Minute),
	}
}

func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing authorization header"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid authorization format"})
			c.Abort()
			return
		}
		tokenString := parts[1]

		if cached, ok := m.cache.Get(tokenString); ok {
			c.Set(principalKey, cached.(model.Principal))
			c.Next()
			return
		}

		claims, err := m.tokens.Validate(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid token"})
			c.Abort()
			return
		}

		principal, err := claims.Principal()
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid token claims"})
			c.Abort()
			return
		}

		if ttl := time.Until(claims.ExpiresAt.Time); ttl > 0 {
			m.cache.Set(tokenString, principal, ttl)
		}
		c.Set(principalKey, principal)
		c.Next()
	}
}

// RequireRoles rejects authenticated callers whose role is not in the
// allow-list.
func (m *AuthMiddleware) RequireRoles(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "authentication required"})
			c.Abort()
			return
		}
		for _, role := range roles {
			if principal.Role == role {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "insufficient permissions"})
		c.Abort()
	}
}

// PrincipalFrom returns the authenticated caller set by Authenticate.
func PrincipalFrom(c *gin.Context) (model.Principal, bool) {
	value, exists := c.Get(principalKey)
	if !exists {
		return model.Principal{}, false
	}
	principal, ok := value.(model.Principal)
	return principal, ok
}
