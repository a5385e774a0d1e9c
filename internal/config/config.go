package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session store backends.
const (
	SessionBackendFile  = "file"
	SessionBackendRedis = "redis"
)

// Config holds all application configuration.
type Config struct {
	ServerPort string
	GinMode    string
	LogLevel   string
	LogFormat  string

	// APIBaseURL is the root of the Tricol REST API, e.g. http://host/tricol/api/v2.
	APIBaseURL string
	APITimeout time.Duration

	SessionBackend   string
	SessionDir       string
	SessionKeyPrefix string
	RedisURL         string
	// SessionSyncInterval is how often the server re-reads the session
	// store to follow logins and logouts made by consolectl. Zero disables it.
	SessionSyncInterval time.Duration

	PermissionCatalogFile string

	LoginRatePerMinute int
	MaxProxyBodyBytes  int64
	// AllowedOrigins controls HTTP CORS and WebSocket origin validation.
	// Empty slice means all origins are permitted (dev default).
	AllowedOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // Ignore error — .env is optional

	return &Config{
		ServerPort:            getEnv("SERVER_PORT", "4200"),
		GinMode:               getEnv("GIN_MODE", "debug"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "pretty"),
		APIBaseURL:            strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8080/tricol/api/v2"), "/"),
		APITimeout:            time.Duration(getEnvInt("API_TIMEOUT_SECONDS", 30)) * time.Second,
		SessionBackend:        getEnv("SESSION_BACKEND", SessionBackendFile),
		SessionDir:            getEnv("SESSION_DIR", defaultSessionDir()),
		SessionKeyPrefix:      getEnv("SESSION_KEY_PREFIX", "tricol:console"),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379/0"),
		SessionSyncInterval:   time.Duration(getEnvInt("SESSION_SYNC_SECONDS", 5)) * time.Second,
		PermissionCatalogFile: getEnv("PERMISSION_CATALOG_FILE", ""),
		LoginRatePerMinute:    getEnvInt("LOGIN_RATE_PER_MINUTE", 10),
		MaxProxyBodyBytes:     int64(getEnvInt("MAX_PROXY_BODY_MB", 10)) * 1024 * 1024,
		AllowedOrigins:        parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func defaultSessionDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tricol"
	}
	return home + string(os.PathSeparator) + ".tricol"
}

// parseOrigins splits a comma-separated origins string into a trimmed slice.
// Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
