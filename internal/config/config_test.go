package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ALLOCATOR_WEBHOOK_SECRET", "s3cret")

	cfg := Load()
	assert.Equal(t, "s3cret", cfg.WebhookSecret)
	assert.Equal(t, 8080, cfg.WebhookPort)
	assert.Equal(t, "/allocator-webhook", cfg.WebhookPath)
	assert.Equal(t, "https://tonapi.io/v2", cfg.TonAPIBaseURL)
	assert.Equal(t, 10*time.Second, cfg.ChainIndexTimeout)
	assert.Equal(t, "auto", cfg.EvidenceStrategy)
	assert.False(t, cfg.RequireEvidence)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ALLOCATOR_WEBHOOK_SECRET", "s3cret")
	t.Setenv("WEBHOOK_PORT", "9090")
	t.Setenv("TONAPI_BASE_URL", "http://localhost:8081/v2/")
	t.Setenv("CHAIN_INDEX_TIMEOUT", "3")
	t.Setenv("NOTIFY_TIMEOUT", "1500ms")
	t.Setenv("EVIDENCE_STRATEGY", "INDEX")
	t.Setenv("REQUIRE_EVIDENCE", "true")
	t.Setenv("NOTIFY_TELEGRAM_CHAT_ID", "-100123")

	cfg := Load()
	assert.Equal(t, 9090, cfg.WebhookPort)
	assert.Equal(t, "http://localhost:8081/v2", cfg.TonAPIBaseURL)
	assert.Equal(t, 3*time.Second, cfg.ChainIndexTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.NotifyTimeout)
	assert.Equal(t, "index", cfg.EvidenceStrategy)
	assert.True(t, cfg.RequireEvidence)
	assert.Equal(t, int64(-100123), cfg.NotifyTelegramChatID)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("WEBHOOK_PORT", "eighty")
	t.Setenv("REQUIRE_EVIDENCE", "maybe")

	cfg := Load()
	assert.Equal(t, 8080, cfg.WebhookPort)
	assert.False(t, cfg.RequireEvidence)
}

func TestValidate(t *testing.T) {
	t.Setenv("ALLOCATOR_WEBHOOK_SECRET", "s3cret")

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing secret", func(c *Config) { c.WebhookSecret = "" }, "ALLOCATOR_WEBHOOK_SECRET"},
		{"bad strategy", func(c *Config) { c.EvidenceStrategy = "oracle" }, "EVIDENCE_STRATEGY"},
		{"bad driver", func(c *Config) { c.StoreDriver = "mysql" }, "STORE_DRIVER"},
		{"postgres without dsn", func(c *Config) { c.StoreDriver = "postgres" }, "DATABASE_URL"},
		{"pg notify on sqlite", func(c *Config) { c.NotifyPG = true }, "NOTIFY_PG"},
		{"bot without chat", func(c *Config) { c.BotToken = "123:abc" }, "NOTIFY_TELEGRAM_CHAT_ID"},
		{"relative path", func(c *Config) { c.WebhookPath = "hook" }, "WEBHOOK_PATH"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
