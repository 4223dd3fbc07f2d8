package main

import (
	"os"

	"clinicrx/internal/bootstrap"
	"clinicrx/internal/shared/config"
	"clinicrx/internal/shared/server"
	"clinicrx/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.SetLevel(cfg.LogLevel)

	app, err := bootstrap.Build(cfg)
	if err != nil {
		telemetry.Error("bootstrap failed", map[string]any{"error": err})
		os.Exit(1)
	}

	addr := server.Addr(cfg.Port)
	telemetry.Info("starting API server", map[string]any{
		"addr":    addr,
		"env":     cfg.Env,
		"archive": cfg.ArchiveBackend,
	})
	if err := app.Router.Run(addr); err != nil {
		telemetry.Error("server error", map[string]any{"error": err})
		os.Exit(1)
	}
}
