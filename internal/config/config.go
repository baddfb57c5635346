package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Audit backends.
const (
	AuditBackendFile     = "file"
	AuditBackendPostgres = "postgres"
)

// Config holds service configuration.
type Config struct {
	ServerAddr    string
	LogLevel      string
	DatabaseURL   string
	MigrationsDir string

	AuditBackend    string
	AuditDir        string
	AuditMaxSizeMB  int
	AuditMaxBackups int

	ContentAPIURL     string
	ContentAPIToken   string
	ContentAPITimeout time.Duration

	TemplateDir string

	JWTSecret    string
	AuthDisabled bool

	BulkDefaultConcurrency int
	BulkMaxConcurrency     int
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" && os.Getenv("POSTGRES_HOST") != "" {
		user := getenv("POSTGRES_USER", "curriculum_hub")
		pass := getenv("POSTGRES_PASSWORD", "curriculum_hub_pass")
		db := getenv("POSTGRES_DB", "curriculum_hub")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	cfg := &Config{
		ServerAddr:    getenv("SERVER_ADDR", "0.0.0.0:8080"),
		LogLevel:      strings.ToLower(getenv("LOG_LEVEL", "info")),
		DatabaseURL:   dsn,
		MigrationsDir: getenv("MIGRATIONS_DIR", "internal/migrations"),

		AuditBackend:    strings.ToLower(getenv("AUDIT_BACKEND", AuditBackendFile)),
		AuditDir:        getenv("AUDIT_DIR", "var/audit"),
		AuditMaxSizeMB:  parseInt(getenv("AUDIT_MAX_SIZE_MB", "10"), 10),
		AuditMaxBackups: parseInt(getenv("AUDIT_MAX_BACKUPS", "5"), 5),

		ContentAPIURL:     getenv("CONTENT_API_URL", ""),
		ContentAPIToken:   getenv("CONTENT_API_TOKEN", ""),
		ContentAPITimeout: parseDuration(getenv("CONTENT_API_TIMEOUT", "15s"), 15*time.Second),

		TemplateDir: getenv("TEMPLATE_DIR", ""),

		JWTSecret:    getenv("JWT_SECRET", ""),
		AuthDisabled: parseBool(getenv("AUTH_DISABLED", "false"), false),

		BulkDefaultConcurrency: parseInt(getenv("BULK_DEFAULT_CONCURRENCY", "5"), 5),
		BulkMaxConcurrency:     parseInt(getenv("BULK_MAX_CONCURRENCY", "20"), 20),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.AuditBackend {
	case AuditBackendFile:
	case AuditBackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("AUDIT_BACKEND=postgres requires DATABASE_URL or POSTGRES_HOST")
		}
	default:
		return fmt.Errorf("unsupported AUDIT_BACKEND %q", c.AuditBackend)
	}
	if !c.AuthDisabled && c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required unless AUTH_DISABLED=true")
	}
	if c.BulkMaxConcurrency < 1 {
		return errors.New("BULK_MAX_CONCURRENCY must be at least 1")
	}
	if c.BulkDefaultConcurrency < 1 || c.BulkDefaultConcurrency > c.BulkMaxConcurrency {
		return fmt.Errorf("BULK_DEFAULT_CONCURRENCY must be between 1 and %d", c.BulkMaxConcurrency)
	}
	return nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseBool(val string, def bool) bool {
	if val == "" {
		return def
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return b
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return def
	}
	return n
}
