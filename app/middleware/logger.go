package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tidwall/pretty"

	"traingrid/pkg/logger"
)

const maxLoggedBody = 1000

// RequestLogger tags every request with a request ID and logs method,
// status, latency and a compacted body for mutating requests.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)

		var bodyStr string
		if c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPut {
			bodyStr = readBody(c)
		}

		startTime := time.Now()
		c.Next()

		// Heartbeats arrive every few seconds per worker, keep them out
		// of the access log.
		if c.FullPath() == "/v2/ping/:worker_id" {
			return
		}
		if c.Writer.Status() == http.StatusNotFound {
			return
		}

		if bodyStr != "" {
			logger.InfoCtx(ctx, "%3d | %13v | %15s | %s %s | %s",
				c.Writer.Status(), time.Since(startTime), c.ClientIP(),
				c.Request.Method, c.Request.RequestURI, bodyStr)
		} else {
			logger.InfoCtx(ctx, "%3d | %13v | %15s | %s %s",
				c.Writer.Status(), time.Since(startTime), c.ClientIP(),
				c.Request.Method, c.Request.RequestURI)
		}
	}
}

// readBody returns the request body compacted to one line, restoring the
// body stream for the handler.
func readBody(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	bodyBytes, _ := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	if len(bodyBytes) == 0 {
		return ""
	}
	compacted := pretty.Ugly(bodyBytes)
	if len(compacted) > maxLoggedBody {
		return string(compacted[:maxLoggedBody]) + "..."
	}
	return string(compacted)
}
