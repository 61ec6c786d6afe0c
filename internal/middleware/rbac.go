package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-exam-api/internal/models"
	appErrors "github.com/noah-isme/sma-exam-api/pkg/errors"
	"github.com/noah-isme/sma-exam-api/pkg/response"
)

// RequireRoles enforces role-based access control for routes. "SELF" allows a
// caller whose user id matches the :studentId route parameter.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowSelf := false
	allowedRoles := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		if role == "SELF" {
			allowSelf = true
			continue
		}
		allowedRoles[role] = struct{}{}
	}

	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := claimsValue.(*models.JWTClaims)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, allowed := allowedRoles[claims.Role]; allowed {
			c.Next()
			return
		}

		if allowSelf {
			if target := c.Param("studentId"); target != "" && target == claims.UserID {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
