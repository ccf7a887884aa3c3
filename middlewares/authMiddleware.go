package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bitbucket.org/mmdatafocus/conformity_backend/utils"
)

// AuthMiddleware parses the Bearer token issued by the identity service and
// stamps tenant and actor onto the request context. Requests without a token
// pass through; handlers that need an identity fail on the missing business
// id instead.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		if auth == "" {
			c.Next()
			return
		}

		const bearer = "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		validate, err := utils.JwtValidate(auth[len(bearer):])
		if err != nil || !validate.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		claim, ok := validate.Claims.(*utils.JwtCustomClaim)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), claim.BusinessId)
		ctx = utils.SetUserIdInContext(ctx, claim.ID)
		// Auditors get full read access and no writes.
		ctx = utils.SetIsAuditorInContext(ctx, strings.EqualFold(claim.Role, "auditor"))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
