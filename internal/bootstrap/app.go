package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"clinicrx/internal/archive"
	"clinicrx/internal/feedback"
	"clinicrx/internal/prescriptions"
	"clinicrx/internal/services/health"
	"clinicrx/internal/shared/auth"
	"clinicrx/internal/shared/config"
	"clinicrx/internal/shared/server"
	"clinicrx/internal/shared/server/middleware"
	"clinicrx/internal/shared/storage/db"
	"clinicrx/internal/shared/storage/object"
	localstore "clinicrx/internal/shared/storage/object/local"
	s3store "clinicrx/internal/shared/storage/object/s3"
	"clinicrx/internal/shared/telemetry"
	"clinicrx/prescription/render"
)

// archiveDir holds store-backed archives when no S3 bucket is configured.
const archiveDir = "archive"

// App holds shared dependencies.
type App struct {
	Config        config.Config
	Router        *gin.Engine
	DB            *sql.DB
	LocalStore    object.Store
	Archiver      archive.Archiver
	Repo          prescriptions.Repo
	Tokens        *auth.Tokens
	Authorizer    *auth.Authorizer
	Service       *prescriptions.Service
	Handler       *prescriptions.Handler
	HealthService *health.Service
}

// Build prepares dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	if strings.TrimSpace(cfg.ArchiveBackend) == "" {
		cfg.ArchiveBackend = "upload"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	archiver, err := BuildArchiver(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.Env, cfg.JWTTTL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		telemetry.Warn("bootstrap: JWT_SECRET empty; using development secret", nil)
	}
	authz, err := auth.NewAuthorizer()
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:     cfg,
		DB:         sqlDB,
		LocalStore: localstore.New(cfg.LocalStoreDir),
		Archiver:   archiver,
		Tokens:     tokens,
		Authorizer: authz,
	}
	if err := buildServices(app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:        app.Config,
		Tokens:        app.Tokens,
		Health:        app.HealthService,
		Prescriptions: app.Handler,
		Limiter:       middleware.NewRateLimiter(nil),
	})
	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap: DATABASE_URL empty; using in-memory repositories", nil)
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Open(ctx, cfg.DatabaseURL, DBPool(cfg, db.ServerPool(cfg.RenderBurst)))
	if err == nil {
		err = db.RunMigrations(ctx, sqlDB)
	}
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap: database unavailable; using in-memory repositories", map[string]any{"error": err})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

// DBPool applies the DB_* settings from cfg on top of base.
func DBPool(cfg config.Config, base db.Pool) db.Pool {
	return base.Override(db.Pool{
		MaxOpen:     cfg.DBMaxOpenConns,
		MaxIdle:     cfg.DBMaxIdleConns,
		MaxLifetime: cfg.DBConnMaxLifetime,
		MaxIdleTime: cfg.DBConnMaxIdleTime,
		PingTimeout: cfg.DBPingTimeout,
	})
}

// BuildArchiver returns the archiver selected by ARCHIVE_BACKEND: the media
// upload endpoint, or the object store (S3 when configured, otherwise a
// directory under LOCAL_STORE_DIR).
func BuildArchiver(ctx context.Context, cfg config.Config) (archive.Archiver, error) {
	switch cfg.ArchiveBackend {
	case "store":
		store, err := buildArchiveStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &archive.StoreArchiver{Store: store, Folder: cfg.UploadFolder}, nil
	default:
		client, err := archive.NewClient(archive.Config{
			Endpoint:     cfg.UploadURL,
			UploadPreset: cfg.UploadPreset,
			Folder:       cfg.UploadFolder,
			Timeout:      cfg.UploadTimeout,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func buildArchiveStore(ctx context.Context, cfg config.Config) (object.Store, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		store, err := s3store.New(ctx, s3store.Options{
			Region:          cfg.AWSRegion,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			KMSKeyID:        cfg.SSEKMSKeyID,
			PresignTTL:      cfg.S3PresignTTL,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return localstore.New(filepath.Join(cfg.LocalStoreDir, archiveDir)), nil
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func buildServices(app *App) error {
	if app.DB != nil {
		app.Repo = &prescriptions.PGRepo{DB: app.DB}
	} else {
		app.Repo = prescriptions.NewMemoryRepo()
	}

	app.Service = &prescriptions.Service{
		Repo:       app.Repo,
		Renderer:   &render.Renderer{Location: app.Config.Location()},
		Archiver:   app.Archiver,
		LocalStore: app.LocalStore,
		Sink:       feedback.LogSink{Fields: map[string]any{"component": "prescriptions"}},
	}
	app.Handler = prescriptions.NewHandler(app.Service, app.Authorizer)
	app.HealthService = health.NewService(app.DB, app.Config.ArchiveBackend)

	if app.Handler == nil || app.Service.Repo == nil {
		return errors.New("failed to initialize handlers")
	}
	return nil
}
