package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"clinicrx/internal/shared/telemetry"
)

// Context keys handlers set so the request log line can carry them.
const (
	PrescriptionIDKey = "prescriptionId"
	FormatKey         = "documentFormat"
)

// Logging emits a structured log per request.
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

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      status,
			"duration_ms": float64(latency.Microseconds()) / 1000.0,
			"user_id":     UserIDFromContext(c),
			"role":        string(RoleFromContext(c)),
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		if id := c.GetString(PrescriptionIDKey); id != "" {
			fields["prescription_id"] = id
		}
		if format := c.GetString(FormatKey); format != "" {
			fields["format"] = format
		}

		if status >= 500 {
			telemetry.Error("request.complete", fields)
			return
		}
		telemetry.Info("request.complete", fields)
	}
}
