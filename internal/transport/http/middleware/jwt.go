package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"orgrag/internal/pkg/jwtutil"
	"orgrag/internal/transport/http/response"
)

const (
	ContextUserIDKey         = "user_id"
	ContextOrganizationIDKey = "organization_id"
	ContextUsernameKey       = "username"
	ContextRoleKey           = "role"
)

// Identity is the caller as described by a verified token.
type Identity struct {
	UserID         uint
	OrganizationID uint
	Username       string
	Role           string
}

func AuthJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing authorization header")
			c.Abort()
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid authorization scheme")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		claims, err := jwtutil.ParseToken(secret, token)
		if err != nil || claims.UserID == 0 || claims.OrganizationID == 0 {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextOrganizationIDKey, claims.OrganizationID)
		c.Set(ContextUsernameKey, claims.Username)
		c.Set(ContextRoleKey, claims.Role)
		c.Next()
	}
}

// RequireRole lets the request through only when the token's role is one of
// roles. It must run after AuthJWT.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRoleKey)
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		response.Error(c, http.StatusForbidden, response.CodeForbidden, "insufficient role")
		c.Abort()
	}
}

// CurrentIdentity reads what AuthJWT stored. ok is false when the request was
// not authenticated.
func CurrentIdentity(c *gin.Context) (Identity, bool) {
	userID, ok := c.Get(ContextUserIDKey)
	if !ok {
		return Identity{}, false
	}
	orgID, ok := c.Get(ContextOrganizationIDKey)
	if !ok {
		return Identity{}, false
	}
	id := Identity{Username: c.GetString(ContextUsernameKey), Role: c.GetString(ContextRoleKey)}
	id.UserID, ok = userID.(uint)
	if !ok {
		return Identity{}, false
	}
	id.OrganizationID, ok = orgID.(uint)
	if !ok {
		return Identity{}, false
	}
	return id, true
}
