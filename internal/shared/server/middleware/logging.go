package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"visibility-backend/internal/shared/telemetry"
)

// Context keys handlers set to enrich the request log.
const (
	RunIDKey      = "runId"
	AnalysisIDKey = "analysisId"
)

// Logging emits a structured log per request. Streaming requests are logged when the
// stream ends.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		userID, _ := c.Get(userIDKey)
		isGuest, _ := c.Get(isGuestKey)
		runID, _ := c.Get(RunIDKey)
		analysisID, _ := c.Get(AnalysisIDKey)

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      status,
			"bytes":       c.Writer.Size(),
			"duration_ms": float64(latency.Microseconds()) / 1000.0,
			"user_id":     userID,
			"is_guest":    isGuest,
			"run_id":      runID,
			"analysis_id": analysisID,
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		if status >= 500 {
			telemetry.Error("request.complete", fields)
			return
		}
		telemetry.Info("request.complete", fields)
	}
}
