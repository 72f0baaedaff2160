// Package config loads all runtime configuration from environment variables.
// No config files and no third-party config framework are used.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration for the Saulto sync service.
type Config struct {
	HTTP      HTTPConfig
	DB        DBConfig
	Log       LogConfig
	JWT       JWTConfig
	App       AppConfig
	Sync      SyncConfig
	Worker    WorkerConfig
	OTel      OTelConfig
	Providers map[string]ProviderConfig
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int
}

// DBConfig holds application database connection configuration.
// The same Postgres DSN also hosts the per-tenant analytics schemas.
type DBConfig struct {
	Driver   string // "sqlite" (default) or "postgres"
	DSN      string // required when Driver == "postgres"
	File     string // SQLite database file path (default: "saulto.db")
	MaxConns int    // Postgres only
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string
	Format string
}

// JWTConfig holds JSON Web Token signing and expiry settings. The same
// secret signs the OAuth state tokens handed to providers.
type JWTConfig struct {
	Secret     string //nolint:gosec // intentional: holds JWT signing secret loaded from env
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// AppConfig holds application-level settings such as seed credentials and
// the externally visible base URL used to build OAuth redirect URIs.
type AppConfig struct {
	BaseURL           string
	SeedAdminEmail    string
	SeedAdminPassword string
	SeedCompanyName   string
}

// RetentionPolicy controls what happens to previously loaded raw rows when
// a sync reloads an entity.
type RetentionPolicy string

const (
	// RetentionReplace truncates the raw table before loading.
	RetentionReplace RetentionPolicy = "replace"
	// RetentionAppend keeps prior rows; duplicates accumulate across syncs.
	RetentionAppend RetentionPolicy = "append"
)

// SyncConfig holds connector sync behaviour settings.
type SyncConfig struct {
	EntityRowLimit int             // per-entity extraction cap
	RawRetention   RetentionPolicy // replace (default) or append
	HTTPTimeout    time.Duration   // per provider request
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	Concurrency int
}

// OTelConfig holds OpenTelemetry exporter settings.
type OTelConfig struct {
	OTLPEndpoint string
}

// ProviderConfig holds one OAuth provider's client credentials. A provider
// is enabled only when both values are present.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
}

// providerSources lists the connector sources whose OAuth credentials are
// read from <SOURCE>_CLIENT_ID / <SOURCE>_CLIENT_SECRET.
var providerSources = []string{"harvest", "hubspot"}

// Load reads configuration from environment variables, applies defaults,
// and returns an error if any required field is absent. Missing provider
// credentials are not an error: the provider is simply left disabled.
func Load() (*Config, error) {
	cfg := &Config{}

	// HTTP
	cfg.HTTP.Port = envInt("HTTP_PORT", 8080)

	// DB
	cfg.DB.Driver = envStr("DB_DRIVER", "sqlite")
	cfg.DB.File = envStr("DB_FILE", "saulto.db")
	cfg.DB.DSN = os.Getenv("DATABASE_URL")
	if cfg.DB.Driver == "postgres" && cfg.DB.DSN == "" {
		return nil, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
	}
	cfg.DB.MaxConns = envInt("DB_MAX_CONNS", 25)

	// Log
	cfg.Log.Level = envStr("LOG_LEVEL", "info")
	cfg.Log.Format = envStr("LOG_FORMAT", "json")

	// JWT (required)
	cfg.JWT.Secret = os.Getenv("JWT_SECRET")
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	var err error
	cfg.JWT.AccessTTL, err = envDuration("JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("JWT_ACCESS_TTL: %w", err)
	}
	cfg.JWT.RefreshTTL, err = envDuration("JWT_REFRESH_TTL", 720*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("JWT_REFRESH_TTL: %w", err)
	}

	// App
	cfg.App.BaseURL = strings.TrimSuffix(envStr("APP_BASE_URL", "http://localhost:8080"), "/")
	cfg.App.SeedAdminEmail = envStr("SEED_ADMIN_EMAIL", "admin@saulto.local")
	cfg.App.SeedAdminPassword = os.Getenv("SEED_ADMIN_PASSWORD")
	cfg.App.SeedCompanyName = envStr("SEED_COMPANY_NAME", "Demo Company")

	// Sync
	cfg.Sync.EntityRowLimit = envInt("SYNC_ENTITY_ROW_LIMIT", 10000)
	retention := RetentionPolicy(envStr("SYNC_RAW_RETENTION", string(RetentionReplace)))
	if retention != RetentionReplace && retention != RetentionAppend {
		return nil, fmt.Errorf("SYNC_RAW_RETENTION: must be %q or %q, got %q",
			RetentionReplace, RetentionAppend, retention)
	}
	cfg.Sync.RawRetention = retention
	cfg.Sync.HTTPTimeout, err = envDuration("SYNC_HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SYNC_HTTP_TIMEOUT: %w", err)
	}

	// Worker
	cfg.Worker.Concurrency = envInt("WORKER_CONCURRENCY", 10)

	// OTel
	cfg.OTel.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	// Providers
	cfg.Providers = loadProviders()

	return cfg, nil
}

// loadProviders reads per-source OAuth client credentials. Sources with
// incomplete credentials are omitted so callers can treat absence as
// "feature disabled".
func loadProviders() map[string]ProviderConfig {
	providers := make(map[string]ProviderConfig)
	for _, source := range providerSources {
		prefix := strings.ToUpper(source)
		id := os.Getenv(prefix + "_CLIENT_ID")
		secret := os.Getenv(prefix + "_CLIENT_SECRET")
		if id == "" || secret == "" {
			continue
		}
		providers[source] = ProviderConfig{ClientID: id, ClientSecret: secret}
	}
	return providers
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", v, err)
	}
	return d, nil
}
