package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"traingrid/pkg/config"
	"traingrid/pkg/logger"
)

// AuthMiddleware simple bearer token authentication
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		expectedAPIKey := config.GlobalConfig.Server.APIKey

		// No key configured means the deployment runs open
		if expectedAPIKey == "" {
			c.Next()
			return
		}

		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token != expectedAPIKey {
			logger.WarnCtx(c.Request.Context(), "unauthorized request, path: %s, client: %s",
				c.Request.URL.Path, c.ClientIP())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		c.Next()
	}
}
