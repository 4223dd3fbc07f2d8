package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Response headers a browser client reads from prescription endpoints: the
// download name of a rendered document, its page count and record ID, the
// rate limiter's Retry-After and the request ID.
const (
	HeaderPrescriptionID = "X-Prescription-Id"
	HeaderDocumentPages  = "X-Document-Pages"

	corsAllowMethods  = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders  = "Authorization, Content-Type, " + requestIDHeader
	corsExposeHeaders = "Content-Disposition, Retry-After, " + requestIDHeader + ", " + HeaderPrescriptionID + ", " + HeaderDocumentPages
)

// CORS admits the configured clinic front-end origins. Preflight requests are
// answered here; requests from other origins get no CORS headers.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if trimmed := strings.TrimRight(strings.TrimSpace(o), "/"); trimmed != "" {
			origins[trimmed] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		_, allowed := origins[origin]
		if origin != "" && allowed {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
			h.Set("Access-Control-Max-Age", "600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
