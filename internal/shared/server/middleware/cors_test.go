package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func corsRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORS([]string{"http://localhost:5173/", " https://clinic.example "}))
	router.GET("/api/v1/prescriptions/:id/document", func(c *gin.Context) {
		c.Header("Content-Disposition", `attachment; filename="RX_Asha_1.pdf"`)
		c.Header(HeaderPrescriptionID, c.Param("id"))
		c.Data(http.StatusOK, "application/pdf", []byte("%PDF"))
	})
	return router
}

func TestCORSExposesDocumentHeaders(t *testing.T) {
	tests := []struct {
		name   string
		method string
		origin string
		code   int
	}{
		{name: "preflight", method: http.MethodOptions, origin: "http://localhost:5173", code: http.StatusNoContent},
		{name: "download", method: http.MethodGet, origin: "https://clinic.example", code: http.StatusOK},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/prescriptions/rx-1/document", nil)
			req.Header.Set("Origin", tt.origin)
			resp := httptest.NewRecorder()
			corsRouter().ServeHTTP(resp, req)

			if resp.Code != tt.code {
				t.Fatalf("status = %d, want %d", resp.Code, tt.code)
			}
			if got := resp.Header().Get("Access-Control-Allow-Origin"); got != tt.origin {
				t.Fatalf("Allow-Origin = %q", got)
			}
			exposed := resp.Header().Get("Access-Control-Expose-Headers")
			for _, h := range []string{"Content-Disposition", "Retry-After", "X-Request-Id", HeaderPrescriptionID, HeaderDocumentPages} {
				if !strings.Contains(exposed, h) {
					t.Fatalf("Expose-Headers %q missing %s", exposed, h)
				}
			}
			methods := resp.Header().Get("Access-Control-Allow-Methods")
			for _, m := range []string{"PUT", "DELETE"} {
				if !strings.Contains(methods, m) {
					t.Fatalf("Allow-Methods %q missing %s", methods, m)
				}
			}
			if !strings.Contains(resp.Header().Get("Access-Control-Allow-Headers"), "Authorization") {
				t.Fatalf("Allow-Headers missing Authorization")
			}
		})
	}
}

func TestCORSIgnoresUnknownOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/prescriptions/rx-1/document", nil)
	req.Header.Set("Origin", "https://evil.example")
	resp := httptest.NewRecorder()
	corsRouter().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("Allow-Origin = %q for unknown origin", got)
	}
	if resp.Header().Get(HeaderPrescriptionID) != "rx-1" {
		t.Fatalf("handler headers lost")
	}
}
