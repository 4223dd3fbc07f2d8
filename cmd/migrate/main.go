package main

// Run database migrations:
//   go run ./cmd/migrate [up|down|status|version]

import (
	"context"
	"os"

	"clinicrx/internal/bootstrap"
	"clinicrx/internal/shared/config"
	"clinicrx/internal/shared/storage/db"
	"clinicrx/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.SetLevel(cfg.LogLevel)
	ctx := context.Background()

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	sqlDB, err := db.Open(ctx, cfg.DatabaseURL, bootstrap.DBPool(cfg, db.CLIPool()))
	if err != nil {
		telemetry.Error("failed to connect database", map[string]any{"error": err})
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.Migrate(ctx, sqlDB, command); err != nil {
		telemetry.Error("migrate failed", map[string]any{"command": command, "error": err})
		os.Exit(1)
	}
	telemetry.Info("migrate done", map[string]any{"command": command})
}
