package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type StorageBackend string

const (
	StorageMemory    StorageBackend = "memory"
	StorageFirestore StorageBackend = "firestore"
	StoragePostgres  StorageBackend = "postgres"
)

const DefaultServerEndpoint = "http://localhost:5007/webhooks/rest/webhook"

type Config struct {
	Port string

	// Dialogue server webhook
	ServerEndpoint string
	RequestTimeout time.Duration
	ResponseDelay  time.Duration // stagger between fragments of one batch
	ProbeOnStart   bool

	UseMockDialogue bool
	MockScriptPath  string // empty = embedded default script

	StorageBackend StorageBackend
	GCPProjectID   string
	DatabaseURL    string

	NatsURL             string // empty = signals are not published
	SignalSubjectPrefix string

	AllowedOrigin string
	LogLevel      string
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
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func getMillisEnv(key string, def int) time.Duration {
	ms := def
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			ms = n
		}
	}
	return time.Duration(ms) * time.Millisecond
}

// Load reads a .env file if present, then all env vars, and builds the config
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port: getEnv("CAREBOT_PORT", "8080"),

		ServerEndpoint: getEnv("CAREBOT_SERVER_ENDPOINT", DefaultServerEndpoint),
		RequestTimeout: getMillisEnv("CAREBOT_REQUEST_TIMEOUT_MS", 15000),
		ResponseDelay:  getMillisEnv("CAREBOT_RESPONSE_DELAY_MS", 500),
		ProbeOnStart:   getBoolEnv("CAREBOT_PROBE_ON_START", false),

		UseMockDialogue: getBoolEnv("CAREBOT_USE_MOCK_DIALOGUE", false),
		MockScriptPath:  getEnv("CAREBOT_MOCK_SCRIPT", ""),

		StorageBackend: StorageBackend(strings.ToLower(getEnv("CAREBOT_STORAGE_BACKEND", string(StorageMemory)))),
		GCPProjectID:   getEnv("CAREBOT_GCP_PROJECT", ""),
		DatabaseURL:    getEnv("CAREBOT_DATABASE_URL", ""),

		NatsURL:             getEnv("CAREBOT_NATS_URL", ""),
		SignalSubjectPrefix: getEnv("CAREBOT_SIGNAL_SUBJECT_PREFIX", "carebot"),

		AllowedOrigin: getEnv("CAREBOT_ALLOWED_ORIGIN", "*"),
		LogLevel:      getEnv("CAREBOT_LOG_LEVEL", "info"),
	}
}

// Validate checks combinations Load cannot default away.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageMemory:
	case StorageFirestore:
		if c.GCPProjectID == "" {
			return fmt.Errorf("CAREBOT_GCP_PROJECT is required for the firestore storage backend")
		}
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("CAREBOT_DATABASE_URL is required for the postgres storage backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	if !c.UseMockDialogue && c.ServerEndpoint == "" {
		return fmt.Errorf("CAREBOT_SERVER_ENDPOINT is required unless the mock dialogue is enabled")
	}
	return nil
}
