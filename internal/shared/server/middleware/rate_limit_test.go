package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"clinicrx/internal/shared/auth"
	"clinicrx/internal/shared/metrics"
)

func isDocumentRoute(c *gin.Context) bool {
	return strings.HasSuffix(c.FullPath(), "/document")
}

func renderLimitRouter(limits RenderLimits) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(userIDKey, c.GetHeader("X-Test-User"))
		c.Set(userRoleKey, auth.Role(c.GetHeader("X-Test-Role")))
		c.Next()
	})
	r.Use(RenderRateLimit(limits))
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) }
	r.GET("/api/v1/prescriptions/:id", ok)
	r.GET("/api/v1/prescriptions/:id/document", ok)
	return r
}

func get(r *gin.Engine, path, user string, role auth.Role) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("X-Test-User", user)
	req.Header.Set("X-Test-Role", string(role))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestRenderRateLimitPerRole(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := renderLimitRouter(RenderLimits{
		Default:  RateLimitRule{Rate: 1, Burst: 3},
		Roles:    map[auth.Role]RateLimitRule{auth.RolePatient: {Rate: 1, Burst: 1}},
		IsRender: isDocumentRoute,
		Limiter:  NewRateLimiter(func() time.Time { return now }),
	})

	tests := []struct {
		name    string
		user    string
		role    auth.Role
		allowed int
	}{
		{name: "doctor uses default burst", user: "doc-1", role: auth.RoleDoctor, allowed: 3},
		{name: "patient gets own rule", user: "pat-1", role: auth.RolePatient, allowed: 1},
		{name: "second patient has own bucket", user: "pat-2", role: auth.RolePatient, allowed: 1},
	}
	for _, tt := range tests {
		for i := 0; i < tt.allowed; i++ {
			if resp := get(r, "/api/v1/prescriptions/rx-1/document", tt.user, tt.role); resp.Code != http.StatusOK {
				t.Fatalf("%s: request %d = %d, want 200", tt.name, i+1, resp.Code)
			}
		}
		if resp := get(r, "/api/v1/prescriptions/rx-1/document", tt.user, tt.role); resp.Code != http.StatusTooManyRequests {
			t.Fatalf("%s: request over burst = %d, want 429", tt.name, resp.Code)
		}
	}

	for i := 0; i < 10; i++ {
		if resp := get(r, "/api/v1/prescriptions/rx-1", "pat-1", auth.RolePatient); resp.Code != http.StatusOK {
			t.Fatalf("record read %d throttled: %d", i+1, resp.Code)
		}
	}
}

func TestRenderRateLimitResponse(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := renderLimitRouter(RenderLimits{
		Default:  RateLimitRule{Rate: 0.5, Burst: 1},
		IsRender: isDocumentRoute,
		Limiter:  NewRateLimiter(func() time.Time { return now }),
	})

	get(r, "/api/v1/prescriptions/rx-1/document", "desk-1", auth.RoleReceptionist)
	resp := get(r, "/api/v1/prescriptions/rx-1/document", "desk-1", auth.RoleReceptionist)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") != "2" {
		t.Fatalf("Retry-After = %q, want 2", resp.Header().Get("Retry-After"))
	}

	var payload struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Error.Code != "render_rate_limited" || payload.Error.Details["role"] != "receptionist" {
		t.Fatalf("error = %+v", payload.Error)
	}
	if !strings.Contains(metrics.Render(), `prescription_render_throttled_total{role="receptionist"}`) {
		t.Fatalf("throttle not counted:\n%s", metrics.Render())
	}
}

func TestRenderRateLimitRefills(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(func() time.Time { return now })
	rule := RateLimitRule{Rate: 2, Burst: 1}

	if ok, _ := limiter.Allow("doctor|doc-1", rule); !ok {
		t.Fatalf("first token refused")
	}
	ok, wait := limiter.Allow("doctor|doc-1", rule)
	if ok || wait != 500*time.Millisecond {
		t.Fatalf("allow = %v wait = %v, want refused for 500ms", ok, wait)
	}
	now = now.Add(500 * time.Millisecond)
	if ok, _ := limiter.Allow("doctor|doc-1", rule); !ok {
		t.Fatalf("token not refilled")
	}
}

func TestRenderRateLimitDisabledRule(t *testing.T) {
	r := renderLimitRouter(RenderLimits{
		Roles:    map[auth.Role]RateLimitRule{auth.RoleAdmin: {}},
		Default:  RateLimitRule{Rate: 1, Burst: 1},
		IsRender: isDocumentRoute,
	})
	for i := 0; i < 5; i++ {
		if resp := get(r, "/api/v1/prescriptions/rx-1/document", "root", auth.RoleAdmin); resp.Code != http.StatusOK {
			t.Fatalf("admin request %d = %d", i+1, resp.Code)
		}
	}
}
