package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"visibility-backend/internal/shared/server/respond"
	"visibility-backend/internal/shared/telemetry"
)

// Recovery recovers from panics. Before the response has started it writes the standard
// error envelope; once a stream is underway it only aborts, since headers are gone.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			runID, _ := c.Get(RunIDKey)
			telemetry.Error("panic", map[string]any{
				"request_id": RequestIDFromContext(c),
				"run_id":     runID,
				"error":      rec,
				"stack":      string(debug.Stack()),
				"path":       c.Request.URL.Path,
				"method":     c.Request.Method,
			})
			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
		}()
		c.Next()
	}
}
