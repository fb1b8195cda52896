package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	config "github.com/maheshrc27/contentops/configs"
	"github.com/maheshrc27/contentops/internal/api"
	"github.com/maheshrc27/contentops/internal/metrics"
	"github.com/maheshrc27/contentops/internal/queue"
	"github.com/maheshrc27/contentops/internal/repository"
	"github.com/maheshrc27/contentops/internal/service"
	"github.com/maheshrc27/contentops/pkg/logx"
	"github.com/rs/zerolog"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.LoadConfig()
	log := logx.New(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		log.Warn().Err(envErr).Msg("no .env file loaded")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.SecretKey == "" {
		log.Fatal().Msg("SECRET_KEY is required to authenticate API callers")
	}
	metrics.Register()

	db, err := repository.Open(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}

	var kicker service.CycleKicker
	var client *asynq.Client
	if cfg.RedisURI != "" {
		client = asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisURI})
		kicker = queue.NewAsynqKicker(client)
	} else {
		log.Warn().Msg("REDIS_URI not set, cycle kicks disabled")
	}

	ops := service.NewOpsService(
		repository.NewJobRepository(db),
		repository.NewContentRepository(db),
		repository.NewRateLimitRepository(db),
		kicker,
		cfg.Worker.StuckJobAfter,
		logx.Component(log, "ops"),
	)

	app := api.NewApp(api.Deps{
		DB:        db,
		Ops:       ops,
		SecretKey: cfg.SecretKey,
		Log:       logx.Component(log, "api"),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Str("addr", cfg.HTTPAddr).Msg("ops API listening")

	gracefulShutdown(app, db, client, log)
}

func gracefulShutdown(app *fiber.App, db *repository.DB, client *asynq.Client, log zerolog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Info().Msg("shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Error().Err(err).Msg("failed to shut down server")
	}
	if client != nil {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close asynq client")
		}
	}
	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close database")
	}
	log.Info().Msg("server shutdown complete")
}
