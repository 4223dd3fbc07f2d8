package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"clinicrx/internal/prescriptions"
	"clinicrx/internal/services/health"
	"clinicrx/internal/shared/auth"
	"clinicrx/internal/shared/config"
	"clinicrx/internal/shared/metrics"
	"clinicrx/internal/shared/server/middleware"
	"clinicrx/internal/shared/server/respond"
)

const healthPath = "/api/v1/health"

// RouterDeps carries the handlers and services the router mounts.
type RouterDeps struct {
	Config        config.Config
	Tokens        *auth.Tokens
	Health        *health.Service
	Prescriptions *prescriptions.Handler
	Limiter       *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.Use(
		middleware.Auth(deps.Tokens, healthPath),
		middleware.RenderRateLimit(renderLimits(deps)),
	)
	api.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			respond.JSON(c, http.StatusOK, gin.H{"ok": true})
			return
		}
		status := deps.Health.Status(c.Request.Context())
		code := http.StatusOK
		if ok, _ := status["ok"].(bool); !ok {
			code = http.StatusServiceUnavailable
		}
		respond.JSON(c, code, status)
	})
	registerMeRoutes(api)
	if deps.Prescriptions != nil {
		deps.Prescriptions.RegisterRoutes(api)
	}

	return r
}

func renderLimits(deps RouterDeps) middleware.RenderLimits {
	rate := deps.Config.RenderRateLimit
	return middleware.RenderLimits{
		Default: middleware.RateLimitRule{Rate: rate, Burst: deps.Config.RenderBurst},
		Roles: map[auth.Role]middleware.RateLimitRule{
			auth.RolePatient: {Rate: rate, Burst: deps.Config.PatientRenderBurst},
		},
		IsRender: rendersDocument,
		Limiter:  deps.Limiter,
	}
}

// rendersDocument matches the routes that run the render pipeline.
func rendersDocument(c *gin.Context) bool {
	path := c.FullPath()
	for _, suffix := range []string{"/document", "/archive", "/save"} {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
