// Command server runs the classifieds marketplace HTTP API: Telegram
// WebApp authentication, listing lifecycle, photo storage, and the
// channel-subscription gate.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/cubamarket/go-classifieds-backend/internal/config"
	httpapi "github.com/cubamarket/go-classifieds-backend/internal/http"
	"github.com/cubamarket/go-classifieds-backend/internal/http/handlers"
	"github.com/cubamarket/go-classifieds-backend/internal/notify"
	"github.com/cubamarket/go-classifieds-backend/internal/observability"
	"github.com/cubamarket/go-classifieds-backend/internal/repo"
	"github.com/cubamarket/go-classifieds-backend/internal/storage"
	"github.com/cubamarket/go-classifieds-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is a dev convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx := context.Background()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	store, err := storage.NewFSStore(cfg.Upload.Dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Upload.Dir).Msg("upload store init failed")
	}

	notifier, subs := telegramStack(cfg)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, store, notifier, subs, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("base_path", cfg.APIBasePath).
			Str("version", version).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("bye")
}

// openDatabase prefers Postgres when DATABASE_URL is set and falls back
// to the local SQLite file otherwise.
func openDatabase(cfg config.Config) (*gorm.DB, error) {
	if dsn := sysutil.FirstNonEmpty(cfg.DatabaseURL, os.Getenv("POSTGRES_URL")); dsn != "" {
		log.Info().Msg("using postgres")
		return repo.OpenPostgres(dsn)
	}
	log.Info().Str("path", cfg.SQLitePath).Msg("using sqlite")
	return repo.OpenSQLite(cfg.SQLitePath)
}

// telegramStack wires the bot-backed notifier and subscription checker,
// degrading to inert implementations when no token is configured so the
// server stays usable in local development.
func telegramStack(cfg config.Config) (notify.Notifier, handlers.SubscriptionChecker) {
	if cfg.Telegram.BotToken == "" {
		log.Warn().Msg("no telegram bot token; notifications disabled, subscription checks pass")
		return notify.NoopNotifier{}, notify.AlwaysSubscribed{}
	}
	bot, err := notify.NewBot(cfg.Telegram.BotToken)
	if err != nil {
		log.Warn().Err(err).Msg("telegram bot init failed; notifications disabled")
		return notify.NoopNotifier{}, notify.AlwaysSubscribed{}
	}
	notifier := notify.NewTelegramNotifier(bot, cfg.Telegram.AdminID, log.With().Str("component", "notify").Logger())
	checker := notify.NewChannelChecker(bot, cfg.Telegram.RequiredChannel)
	return notifier, checker
}
