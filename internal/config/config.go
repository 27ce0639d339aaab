package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

// Storage backends.
const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
	BackendRedis     = "redis"
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
)

type Config struct {
	Mode Mode
	Env  string

	Port     string
	LogLevel string

	GCPProjectID string
	GCPLocation  string
	ModelName    string

	StorageBackend string // "memory", "firestore", "redis", "sqlite" or "postgres"
	RedisURL       string
	SQLitePath     string
	DatabaseURL    string
	SessionTTL     time.Duration // redis only; 0 keeps sessions forever

	UseVertexSummary bool // false = template summaries

	// ReplyDelay is the artificial "typing" pause before a bot reply appears.
	ReplyDelay time.Duration

	TelegramToken string
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func getDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// Load reads all env vars and builds the config. A .env file in the working
// directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	modeStr := getEnv("KNEE_MODE", "local")
	var mode Mode
	switch modeStr {
	case "gcp":
		mode = ModeGCP
	default:
		mode = ModeLocal
	}

	replyDelay, err := getDurationEnv("KNEE_REPLY_DELAY", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	sessionTTL, err := getDurationEnv("KNEE_SESSION_TTL", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Mode: mode,
		Env:  getEnv("KNEE_ENV", "development"),

		Port:     getEnv("KNEE_PORT", "8080"),
		LogLevel: getEnv("KNEE_LOG_LEVEL", "info"),

		GCPProjectID: getEnv("KNEE_GCP_PROJECT", ""),
		GCPLocation:  getEnv("KNEE_GCP_LOCATION", "us-central1"),
		ModelName:    getEnv("KNEE_MODEL_NAME", "gemini-2.5-flash-lite"),

		StorageBackend: strings.ToLower(getEnv("KNEE_STORAGE_BACKEND", BackendMemory)),
		RedisURL:       getEnv("KNEE_REDIS_URL", ""),
		SQLitePath:     getEnv("KNEE_SQLITE_PATH", "./data/knee.db"),
		DatabaseURL:    getEnv("KNEE_DATABASE_URL", ""),
		SessionTTL:     sessionTTL,

		UseVertexSummary: getBoolEnv("KNEE_USE_VERTEX_SUMMARY", mode == ModeGCP),

		ReplyDelay: replyDelay,

		TelegramToken: getEnv("KNEE_TELEGRAM_TOKEN", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case BackendMemory, BackendSQLite:
	case BackendFirestore:
		if c.GCPProjectID == "" {
			return fmt.Errorf("KNEE_GCP_PROJECT is required for the firestore backend")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("KNEE_REDIS_URL is required for the redis backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("KNEE_DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	if c.UseVertexSummary && c.GCPProjectID == "" {
		return fmt.Errorf("KNEE_GCP_PROJECT must be set for Vertex summaries")
	}
	if c.ReplyDelay < 0 {
		return fmt.Errorf("KNEE_REPLY_DELAY must not be negative")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
