package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"clinicrx/internal/shared/server/respond"
	"clinicrx/internal/shared/telemetry"
)

// Recovery turns a handler panic into a 500 error envelope and logs the stack
// with the request and prescription IDs.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				fields := map[string]any{
					"request_id": RequestIDFromContext(c),
					"error":      fmt.Sprint(rec),
					"stack":      string(debug.Stack()),
					"path":       c.Request.URL.Path,
					"method":     c.Request.Method,
				}
				if id := c.GetString(PrescriptionIDKey); id != "" {
					fields["prescription_id"] = id
				}
				telemetry.Error("panic", fields)
				if c.Writer.Written() {
					c.Abort()
					return
				}
				respond.Error(c, http.StatusInternalServerError, "internal_error", "unexpected server error", nil)
			}
		}()
		c.Next()
	}
}
