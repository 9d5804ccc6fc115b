// Package config provides environment configuration for the gateway.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	CORSOrigins        []string

	// Environment
	Env      string
	LogLevel string

	// Record store
	StoreDriver string
	DatabaseURL string
	DBMigrate   bool
	FlowsFile   string

	// WhatsApp Cloud API
	WhatsAppVerifyToken string
	WhatsAppAccessToken string
	WhatsAppPhoneID     string
	WhatsAppBaseURL     string
	WhatsAppAPIVersion  string
	WhatsAppTimeout     time.Duration

	// Media
	MediaRoot         string
	MediaPublicPrefix string
	MediaMaxBytes     int64
	MediaFetchTimeout time.Duration

	// NATS settings. An empty URL disables the NATS sink.
	NATSURL       string
	NATSCAFile    string
	NATSCertFile  string
	NATSKeyFile   string
	NATSToken     string
	NATSJetStream bool

	RealtimePublishTimeout time.Duration

	// JWT settings
	JWTSecret     string
	OperatorScope string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration
	WebhookRateLimit  int

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads a .env file when present and then configuration from environment
// variables. Variables already set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads configuration from environment variables.
func FromEnv() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
		CORSOrigins:        getListEnv("CORS_ALLOWED_ORIGINS"),

		Env:      getEnv("ENV", "production"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Store
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBMigrate:   getBoolEnv("DB_MIGRATE", false),
		FlowsFile:   getEnv("FLOWS_FILE", ""),

		// WhatsApp
		WhatsAppVerifyToken: getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAccessToken: getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppPhoneID:     getEnv("WHATSAPP_PHONE_ID", ""),
		WhatsAppBaseURL:     getEnv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com"),
		WhatsAppAPIVersion:  getEnv("WHATSAPP_API_VERSION", "v22.0"),
		WhatsAppTimeout:     getDurationEnv("WHATSAPP_HTTP_TIMEOUT", 10*time.Second),

		// Media
		MediaRoot:         getEnv("MEDIA_ROOT", "storage/public"),
		MediaPublicPrefix: getEnv("MEDIA_PUBLIC_PREFIX", "/storage"),
		MediaMaxBytes:     int64(getIntEnv("MEDIA_MAX_BYTES", 100*1024*1024)),
		MediaFetchTimeout: getDurationEnv("MEDIA_FETCH_TIMEOUT", 30*time.Second),

		// NATS
		NATSURL:       getEnv("NATS_URL", ""),
		NATSCAFile:    getEnv("NATS_CA_FILE", ""),
		NATSCertFile:  getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:   getEnv("NATS_KEY_FILE", ""),
		NATSToken:     getEnv("NATS_TOKEN", ""),
		NATSJetStream: getBoolEnv("NATS_JETSTREAM", true),

		RealtimePublishTimeout: getDurationEnv("REALTIME_PUBLISH_TIMEOUT", 2*time.Second),

		// JWT
		JWTSecret:     getEnv("JWT_SECRET", "development-secret-change-in-production"),
		OperatorScope: getEnv("OPERATOR_SCOPE", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		WebhookRateLimit:  getIntEnv("WEBHOOK_RATE_LIMIT", 600),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate checks settings that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return errors.New("STORE_DRIVER must be memory or postgres")
	}
	if c.WebhookRateLimit <= 0 || c.RateLimitRequests <= 0 {
		return errors.New("rate limits must be positive")
	}
	return nil
}

// IsDevelopment reports whether ENV=development.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
