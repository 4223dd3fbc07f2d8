package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver

	"clinicrx/internal/shared/telemetry"
)

const defaultPingTimeout = 5 * time.Second

// Pool sizes the database/sql connection pool.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
	PingTimeout time.Duration
}

var openDB = sql.Open

// ServerPool sizes the API pool: four connections for CRUD traffic plus one
// per render burst slot, since every archive ends in two writes (archive URL
// and archive history row).
func ServerPool(renderBurst int) Pool {
	if renderBurst < 1 {
		renderBurst = 1
	}
	maxOpen := 4 + renderBurst
	return Pool{
		MaxOpen:     maxOpen,
		MaxIdle:     (maxOpen + 1) / 2,
		MaxLifetime: time.Hour,
		MaxIdleTime: 2 * time.Minute,
		PingTimeout: defaultPingTimeout,
	}
}

// CLIPool is a single connection for cmd/migrate.
func CLIPool() Pool {
	return Pool{MaxOpen: 1, MaxIdle: 1, MaxLifetime: time.Hour, PingTimeout: defaultPingTimeout}
}

// Override returns p with every positive field of o applied.
func (p Pool) Override(o Pool) Pool {
	if o.MaxOpen > 0 {
		p.MaxOpen = o.MaxOpen
	}
	if o.MaxIdle > 0 {
		p.MaxIdle = o.MaxIdle
	}
	if o.MaxLifetime > 0 {
		p.MaxLifetime = o.MaxLifetime
	}
	if o.MaxIdleTime > 0 {
		p.MaxIdleTime = o.MaxIdleTime
	}
	if o.PingTimeout > 0 {
		p.PingTimeout = o.PingTimeout
	}
	if p.MaxIdle > p.MaxOpen && p.MaxOpen > 0 {
		p.MaxIdle = p.MaxOpen
	}
	return p
}

// Open connects to the prescriptions database and verifies it answers a ping.
func Open(ctx context.Context, databaseURL string, pool Pool) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	database, err := openDB("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pool.apply(database)

	timeout := pool.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := database.PingContext(pingCtx); err != nil {
		database.Close()
		return nil, fmt.Errorf("ping database %s: %w", Redact(databaseURL), err)
	}

	telemetry.Info("database ready", map[string]any{
		"target":   Redact(databaseURL),
		"max_open": pool.MaxOpen,
		"max_idle": pool.MaxIdle,
	})
	return database, nil
}

func (p Pool) apply(database *sql.DB) {
	if p.MaxOpen > 0 {
		database.SetMaxOpenConns(p.MaxOpen)
	}
	if p.MaxIdle > 0 {
		database.SetMaxIdleConns(p.MaxIdle)
	}
	if p.MaxLifetime > 0 {
		database.SetConnMaxLifetime(p.MaxLifetime)
	}
	if p.MaxIdleTime > 0 {
		database.SetConnMaxIdleTime(p.MaxIdleTime)
	}
}

// Redact renders a connection URL as host/database, dropping credentials and
// parameters. Unparseable input becomes "database".
func Redact(databaseURL string) string {
	u, err := url.Parse(strings.TrimSpace(databaseURL))
	if err != nil || u.Host == "" {
		return "database"
	}
	return u.Host + u.Path
}
