package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"clinicrx/internal/shared/auth"
	"clinicrx/internal/shared/telemetry"
)

func TestLoggingIncludesRequiredFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := testTokens(t)

	router := gin.New()
	router.Use(RequestID(), Auth(tokens), Logging())
	router.GET("/prescriptions/:id/document", func(c *gin.Context) {
		c.Set(PrescriptionIDKey, c.Param("id"))
		c.Set(FormatKey, "pdf")
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	var buf bytes.Buffer
	telemetry.SetOutput(&buf)
	defer telemetry.SetOutput(os.Stdout)

	token, err := tokens.Sign("doc-7", auth.RoleDoctor, "")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/prescriptions/rx-1/document", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	last := lines[len(lines)-1]
	var payload map[string]any
	if err := json.Unmarshal([]byte(last), &payload); err != nil {
		t.Fatalf("decode log json %q: %v", last, err)
	}

	required := []string{"request_id", "user_id", "role", "prescription_id", "format", "duration_ms", "status", "route"}
	for _, key := range required {
		if _, ok := payload[key]; !ok {
			t.Fatalf("missing log field: %s", key)
		}
	}
	if payload["user_id"] != "doc-7" || payload["role"] != "doctor" {
		t.Fatalf("unexpected identity: %v %v", payload["user_id"], payload["role"])
	}
	if payload["prescription_id"] != "rx-1" || payload["route"] != "/prescriptions/:id/document" {
		t.Fatalf("unexpected prescription fields: %v", payload)
	}
}
