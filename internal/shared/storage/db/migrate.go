package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"

	"clinicrx/internal/shared/telemetry"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationsTable records applied schema versions.
const MigrationsTable = "clinicrx_schema_migrations"

// ErrUnknownCommand is returned by Migrate for commands other than
// up, down, status and version.
var ErrUnknownCommand = errors.New("unknown migrate command")

var (
	gooseOnce sync.Once
	gooseErr  error
)

func setupGoose() error {
	gooseOnce.Do(func() {
		goose.SetBaseFS(migrationFiles)
		goose.SetTableName(MigrationsTable)
		goose.SetLogger(gooseLogger{})
		gooseErr = goose.SetDialect("postgres")
	})
	return gooseErr
}

// Migrate runs one goose command against the embedded prescription schema.
// A nil database is a no-op, which is how in-memory mode skips migrations.
func Migrate(ctx context.Context, database *sql.DB, command string) error {
	command = strings.ToLower(strings.TrimSpace(command))
	switch command {
	case "up", "down", "status", "version":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
	if database == nil {
		return nil
	}
	if err := setupGoose(); err != nil {
		return err
	}

	switch command {
	case "up":
		return goose.UpContext(ctx, database, "migrations")
	case "down":
		return goose.DownContext(ctx, database, "migrations")
	case "status":
		return goose.StatusContext(ctx, database, "migrations")
	default:
		version, err := goose.GetDBVersionContext(ctx, database)
		if err != nil {
			return err
		}
		telemetry.Info("schema version", map[string]any{"version": version, "table": MigrationsTable})
		return nil
	}
}

// RunMigrations applies every pending migration.
func RunMigrations(ctx context.Context, database *sql.DB) error {
	return Migrate(ctx, database, "up")
}

// gooseLogger routes goose output through telemetry.
type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...any) {
	telemetry.Info("migrate", map[string]any{"detail": strings.TrimSpace(fmt.Sprintf(format, v...))})
}

func (gooseLogger) Fatalf(format string, v ...any) {
	telemetry.Error("migrate", map[string]any{"detail": strings.TrimSpace(fmt.Sprintf(format, v...))})
	os.Exit(1)
}
