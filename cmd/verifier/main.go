package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/suspectuso/deposit-verifier/internal/config"
	"github.com/suspectuso/deposit-verifier/internal/evidence"
	"github.com/suspectuso/deposit-verifier/internal/metrics"
	"github.com/suspectuso/deposit-verifier/internal/notifier"
	"github.com/suspectuso/deposit-verifier/internal/storage"
	"github.com/suspectuso/deposit-verifier/internal/storage/postgres"
	"github.com/suspectuso/deposit-verifier/internal/tonapi"
	"github.com/suspectuso/deposit-verifier/internal/webhook"
)

type recorder interface {
	webhook.Recorder
	Close() error
}

func main() {
	// Load .env file
	envErr := godotenv.Load()

	// Load config
	cfg := config.Load()

	log := newLogger(cfg)
	slog.SetDefault(log)
	if envErr != nil {
		log.Debug("no .env file found")
	}

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("verifier stopped", "error", err)
		os.Exit(1)
	}
	log.Info("verifier stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	m := metrics.New()

	// Initialize storage
	var (
		rec recorder
		pg  *postgres.Store
	)
	switch cfg.StoreDriver {
	case "postgres":
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return err
		}
		rec, pg = store, store
		log.Info("storage initialized", "driver", "postgres")
	default:
		store, err := storage.New(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		rec = store
		log.Info("storage initialized", "driver", "sqlite", "path", cfg.DBPath)
	}
	defer rec.Close()

	// Initialize TonAPI client
	tonAPI := tonapi.NewClient(cfg.TonAPIBaseURL, cfg.TonAPIKey, tonapi.Options{
		RequestsPerSecond: cfg.TonAPIRPS,
	})
	defer tonAPI.Close()
	log.Info("tonapi client initialized", "base_url", cfg.TonAPIBaseURL)

	verifier := newVerifier(cfg, tonAPI, m)
	log.Info("evidence configured", "strategy", cfg.EvidenceStrategy, "require", cfg.RequireEvidence)

	notify, err := newNotifier(cfg, pg)
	if err != nil {
		return err
	}

	handler := webhook.NewHandler(rec, verifier, notify, m, log, webhook.Options{
		Secret:          []byte(cfg.WebhookSecret),
		RequireEvidence: cfg.RequireEvidence,
		NotifyTimeout:   cfg.NotifyTimeout,
	})
	return webhook.NewServer(handler, cfg.WebhookPath, m, log).Start(ctx, cfg.WebhookPort)
}

func newVerifier(cfg *config.Config, tonAPI *tonapi.Client, m *metrics.Metrics) evidence.Verifier {
	index := &evidence.IndexMatcher{
		Fetcher: tonAPI,
		Timeout: cfg.ChainIndexTimeout,
		Metrics: m,
	}
	switch cfg.EvidenceStrategy {
	case "trace":
		return evidence.Auto{Trace: evidence.TraceMatcher{}}
	case "index":
		return index
	default:
		return evidence.Auto{Trace: evidence.TraceMatcher{}, Index: index}
	}
}

func newNotifier(cfg *config.Config, pg *postgres.Store) (notifier.Notifier, error) {
	var targets notifier.Multi
	if cfg.NotifyURL != "" {
		targets = append(targets, notifier.NewHTTP(cfg.NotifyURL, cfg.NotifyAPIKey, cfg.NotifyTimeout))
	}
	if cfg.BotToken != "" {
		tg, err := notifier.NewTelegramBot(cfg.BotToken, cfg.NotifyTelegramChatID)
		if err != nil {
			return nil, err
		}
		targets = append(targets, tg)
	}
	if cfg.NotifyPG && pg != nil {
		targets = append(targets, notifier.Store{Publisher: pg})
	}
	if len(targets) == 0 {
		return notifier.Nop{}, nil
	}
	return targets, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		})
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: level,
	}))
}
