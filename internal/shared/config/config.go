package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"clinicrx/internal/shared/telemetry"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	LogLevel        string
	CORSAllowOrigin []string
	DatabaseURL     string

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	DBPingTimeout     time.Duration

	JWTSecret string
	JWTTTL    time.Duration

	ObjectStoreType   string
	LocalStoreDir     string
	AWSRegion         string
	S3Bucket          string
	S3Prefix          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	SSEKMSKeyID       string
	S3PresignTTL      time.Duration

	ArchiveBackend string
	UploadURL      string
	UploadPreset   string
	UploadFolder   string
	UploadTimeout  time.Duration

	ClinicTimezone     string
	RenderRateLimit    float64
	RenderBurst        int
	PatientRenderBurst int
}

var defaults = map[string]any{
	"PORT":                 "8080",
	"ENV":                  "dev",
	"LOG_LEVEL":            "info",
	"CORS_ALLOW_ORIGINS":   "http://localhost:5173",
	"JWT_TTL":              "24h",
	"OBJECT_STORE":         "local",
	"LOCAL_STORE_DIR":      "./data",
	"S3_PRESIGN_TTL":       "15m",
	"ARCHIVE_BACKEND":      "upload",
	"UPLOAD_URL":           "https://api.cloudinary.com/v1_1/dxg7emkw9/upload",
	"UPLOAD_PRESET":        "clinic-pdf",
	"UPLOAD_FOLDER":        "prescriptions",
	"UPLOAD_TIMEOUT":       "0s",
	"CLINIC_TIMEZONE":      "UTC",
	"RENDER_RATE_LIMIT":    1.0,
	"RENDER_BURST":         5,
	"PATIENT_RENDER_BURST": 2,
}

var keys = []string{
	"DATABASE_URL", "DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME",
	"DB_CONN_MAX_IDLE_TIME", "DB_PING_TIMEOUT", "JWT_SECRET", "AWS_REGION", "S3_BUCKET", "S3_PREFIX", "S3_ENDPOINT",
	"S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY", "SSE_KMS_KEY_ID",
}

// DotEnvFile is the optional development config file read by Load.
const DotEnvFile = ".env"

// Load reads configuration from environment variables, falling back to an
// optional .env file in the working directory and then to defaults.
func Load() Config {
	return loadFile(DotEnvFile)
}

func loadFile(path string) Config {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
		_ = v.BindEnv(k)
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
	if err := v.ReadInConfig(); err != nil && !missingConfig(err) {
		telemetry.Warn("config: ignoring unreadable env file", map[string]any{"file": path, "error": err})
	}

	return fromViper(v)
}

func missingConfig(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

func fromViper(v *viper.Viper) Config {
	env := normalizeEnv(v.GetString("ENV"))
	cfg := Config{
		Port:            v.GetString("PORT"),
		Env:             env,
		LogLevel:        strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		CORSAllowOrigin: splitAndTrim(v.GetString("CORS_ALLOW_ORIGINS")),
		DatabaseURL:     strings.TrimSpace(v.GetString("DATABASE_URL")),

		DBMaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		DBMaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		DBConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTime: v.GetDuration("DB_CONN_MAX_IDLE_TIME"),
		DBPingTimeout:     v.GetDuration("DB_PING_TIMEOUT"),

		JWTSecret: v.GetString("JWT_SECRET"),
		JWTTTL:    v.GetDuration("JWT_TTL"),

		ObjectStoreType:   normalizeStoreType(v.GetString("OBJECT_STORE")),
		LocalStoreDir:     v.GetString("LOCAL_STORE_DIR"),
		AWSRegion:         v.GetString("AWS_REGION"),
		S3Bucket:          v.GetString("S3_BUCKET"),
		S3Prefix:          v.GetString("S3_PREFIX"),
		S3Endpoint:        v.GetString("S3_ENDPOINT"),
		S3AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
		SSEKMSKeyID:       v.GetString("SSE_KMS_KEY_ID"),
		S3PresignTTL:      v.GetDuration("S3_PRESIGN_TTL"),

		ArchiveBackend: normalizeArchiveBackend(v.GetString("ARCHIVE_BACKEND")),
		UploadURL:      strings.TrimSpace(v.GetString("UPLOAD_URL")),
		UploadPreset:   strings.TrimSpace(v.GetString("UPLOAD_PRESET")),
		UploadFolder:   strings.TrimSpace(v.GetString("UPLOAD_FOLDER")),
		UploadTimeout:  v.GetDuration("UPLOAD_TIMEOUT"),

		ClinicTimezone:  v.GetString("CLINIC_TIMEZONE"),
		RenderRateLimit: v.GetFloat64("RENDER_RATE_LIMIT"),
		RenderBurst:     v.GetInt("RENDER_BURST"),

		PatientRenderBurst: v.GetInt("PATIENT_RENDER_BURST"),
	}

	if env == "production" && cfg.DatabaseURL == "" {
		telemetry.Warn("DATABASE_URL is required in production", nil)
	}
	return cfg
}

// Location resolves ClinicTimezone, falling back to UTC.
func (c Config) Location() *time.Location {
	name := strings.TrimSpace(c.ClinicTimezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		telemetry.Warn("unknown CLINIC_TIMEZONE, using UTC", map[string]any{"timezone": name})
		return time.UTC
	}
	return loc
}

// Validate reports settings that make the selected backends unusable.
func (c Config) Validate() error {
	if c.ObjectStoreType == "s3" && strings.TrimSpace(c.S3Bucket) == "" {
		return fmt.Errorf("S3_BUCKET is required when OBJECT_STORE=s3")
	}
	if c.ArchiveBackend == "upload" && c.UploadURL == "" {
		return fmt.Errorf("UPLOAD_URL is required when ARCHIVE_BACKEND=upload")
	}
	if c.Env == "production" && strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	return nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func normalizeArchiveBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "store", "s3", "object":
		return "store"
	default:
		return "upload"
	}
}
