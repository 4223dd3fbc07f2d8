package health

import (
	"context"
	"database/sql"
	"time"
)

const pingTimeout = 2 * time.Second

// Service encapsulates health-related checks.
type Service struct {
	DB *sql.DB
	// Archive names the configured archive backend.
	Archive string
}

// NewService constructs a new health service. db may be nil when the API
// runs on in-memory repositories.
func NewService(db *sql.DB, archive string) *Service {
	return &Service{DB: db, Archive: archive}
}

// Status reports liveness and the state of the backing stores.
func (s *Service) Status(ctx context.Context) map[string]any {
	out := map[string]any{"ok": true, "archive": s.Archive}
	if s.DB == nil {
		out["database"] = "memory"
		return out
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.DB.PingContext(pingCtx); err != nil {
		out["ok"] = false
		out["database"] = "down"
		return out
	}
	out["database"] = "up"
	return out
}
