package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/linguaclip/backend/internal/models"
	"github.com/linguaclip/backend/pkg/response"
)

// RequireRole returns a middleware that allows only the listed roles.
// It must run after JWT so the role is present in the context.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		roleVal, ok := c.Get(ContextUserRole)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		role, _ := roleVal.(string)
		for _, r := range roles {
			if role == string(r) {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "insufficient permissions")
		c.Abort()
	}
}
