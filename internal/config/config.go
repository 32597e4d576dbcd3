package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Webhook
	WebhookSecret string
	WebhookPort   int
	WebhookPath   string

	// TonAPI
	TonAPIKey         string
	TonAPIBaseURL     string
	TonAPIRPS         float64
	ChainIndexTimeout time.Duration

	// Evidence
	EvidenceStrategy string
	RequireEvidence  bool

	// Storage
	StoreDriver string
	DBPath      string
	DatabaseURL string

	// Notifications
	NotifyURL            string
	NotifyAPIKey         string
	BotToken             string
	NotifyTelegramChatID int64
	NotifyPG             bool
	NotifyTimeout        time.Duration

	// Logging
	LogLevel string
	LogFile  string
}

func Load() *Config {
	return &Config{
		// Webhook
		WebhookSecret: getEnv("ALLOCATOR_WEBHOOK_SECRET", ""),
		WebhookPort:   getEnvInt("WEBHOOK_PORT", 8080),
		WebhookPath:   getEnv("WEBHOOK_PATH", "/allocator-webhook"),

		// TonAPI
		TonAPIKey:         getEnv("TONAPI_API_KEY", ""),
		TonAPIBaseURL:     strings.TrimSuffix(getEnv("TONAPI_BASE_URL", "https://tonapi.io/v2"), "/"),
		TonAPIRPS:         getEnvFloat("TONAPI_RPS", 4),
		ChainIndexTimeout: getEnvDuration("CHAIN_INDEX_TIMEOUT", 10*time.Second),

		// Evidence
		EvidenceStrategy: strings.ToLower(getEnv("EVIDENCE_STRATEGY", "auto")),
		RequireEvidence:  getEnvBool("REQUIRE_EVIDENCE", false),

		// Storage
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "sqlite")),
		DBPath:      getEnv("DB_PATH", "./verifier.db"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		// Notifications
		NotifyURL:            getEnv("NOTIFY_URL", ""),
		NotifyAPIKey:         getEnv("NOTIFY_API_KEY", ""),
		BotToken:             getEnv("BOT_TOKEN", ""),
		NotifyTelegramChatID: getEnvInt64("NOTIFY_TELEGRAM_CHAT_ID", 0),
		NotifyPG:             getEnvBool("NOTIFY_PG", false),
		NotifyTimeout:        getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),

		// Logging
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFile:  getEnv("LOG_FILE", ""),
	}
}

// Validate reports settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.WebhookSecret == "" {
		errs = append(errs, errors.New("ALLOCATOR_WEBHOOK_SECRET is required"))
	}
	if !strings.HasPrefix(c.WebhookPath, "/") {
		errs = append(errs, fmt.Errorf("WEBHOOK_PATH must start with /: %q", c.WebhookPath))
	}
	switch c.EvidenceStrategy {
	case "auto", "trace", "index":
	default:
		errs = append(errs, fmt.Errorf("EVIDENCE_STRATEGY must be auto, trace or index: %q", c.EvidenceStrategy))
	}
	switch c.StoreDriver {
	case "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for STORE_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be sqlite or postgres: %q", c.StoreDriver))
	}
	if c.NotifyPG && c.StoreDriver != "postgres" {
		errs = append(errs, errors.New("NOTIFY_PG requires STORE_DRIVER=postgres"))
	}
	if c.BotToken != "" && c.NotifyTelegramChatID == 0 {
		errs = append(errs, errors.New("NOTIFY_TELEGRAM_CHAT_ID is required when BOT_TOKEN is set"))
	}
	if c.ChainIndexTimeout <= 0 {
		errs = append(errs, errors.New("CHAIN_INDEX_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration accepts Go durations ("5s") or bare seconds ("5").
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}
