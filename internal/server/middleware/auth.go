package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tokengate/tokengate/internal/conf"
	"github.com/tokengate/tokengate/internal/op"
	"github.com/tokengate/tokengate/internal/server/auth"
	"github.com/tokengate/tokengate/internal/server/resp"
)

// Auth guards the operator API with the admin JWT.
func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			resp.Error(c, http.StatusBadRequest, resp.ErrBadRequest)
			c.Abort()
			return
		}
		if !auth.VerifyJWTToken(strings.TrimPrefix(token, "Bearer ")) {
			resp.Error(c, http.StatusUnauthorized, resp.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}

// AllocationAuth guards the metered proxy surface with an allocation key.
// It only establishes identity; quota checks happen in the metering flow so
// denials come back as 403 with a reason, not 401.
func AllocationAuth() gin.HandlerFunc {
	keyPrefix := "sk-" + conf.APP_NAME + "-"
	return func(c *gin.Context) {
		apiKey := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if apiKey == "" || !strings.HasPrefix(apiKey, keyPrefix) {
			resp.Error(c, http.StatusUnauthorized, resp.ErrUnauthorized)
			c.Abort()
			return
		}
		allocation, err := op.AllocationGetByKey(apiKey, c.Request.Context())
		if err != nil {
			resp.Error(c, http.StatusUnauthorized, resp.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Set("api_key", apiKey)
		c.Set("allocation_id", allocation.ID)
		c.Set("user_id", allocation.UserID)
		c.Next()
	}
}
