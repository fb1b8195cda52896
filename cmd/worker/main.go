package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	config "github.com/maheshrc27/contentops/configs"
	job "github.com/maheshrc27/contentops/internal/jobs"
	"github.com/maheshrc27/contentops/internal/metrics"
	"github.com/maheshrc27/contentops/internal/models"
	"github.com/maheshrc27/contentops/internal/queue"
	"github.com/maheshrc27/contentops/internal/repository"
	"github.com/maheshrc27/contentops/internal/service"
	"github.com/maheshrc27/contentops/pkg/logx"
	"github.com/robfig/cron"
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
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer closeDB(db, log)

	jobRepo := repository.NewJobRepository(db)
	contentRepo := repository.NewContentRepository(db)
	rateLimitRepo := repository.NewRateLimitRepository(db)
	accountRepo := repository.NewPlatformAccountRepository(db)

	httpClient := &http.Client{Timeout: cfg.Worker.PublishTimeout}
	publishers := service.Publishers{
		models.PlatformFacebook:  service.NewFacebookPublisher(cfg.Facebook.GraphAPIBase, httpClient),
		models.PlatformInstagram: service.NewInstagramPublisher(cfg.Facebook.GraphAPIBase, httpClient),
		models.PlatformX:         service.NewXPublisher(cfg.X.APIBase, httpClient),
	}

	var uploader service.ObjectUploader
	if cfg.R2.Enabled() {
		r2, err := service.NewR2Uploader(ctx, cfg.R2)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to configure R2")
		}
		uploader = r2
	}

	scheduler := queue.NewScheduler(queue.Deps{
		Store:       queue.NewJobStore(jobRepo, contentRepo),
		Credentials: service.NewCredentialService(accountRepo, cfg),
		Publisher:   publishers,
		RateLimits:  service.NewRateLimitTracker(rateLimitRepo, cfg.RateLimit),
		Stager:      service.NewMediaStager(cfg.UploadDir, cfg.PublicBaseURL, cfg.R2.PublicURL, uploader),
	}, cfg.Worker, logx.Component(log, "scheduler"))

	// cron jobs
	exchanger := service.NewMetaTokenExchanger(cfg.Facebook.GraphAPIBase, cfg.Facebook.AppID, cfg.Facebook.AppSecret, httpClient)
	refreshTokenJob := job.NewTokenRefreshJob(accountRepo, exchanger, cfg.SecretKey, logx.Component(log, "token_refresh"))
	stuckJobAudit := job.NewStuckJobAudit(jobRepo, cfg.Worker.StuckJobAfter, logx.Component(log, "stuck_job_audit"))

	c := cron.New()
	if err := c.AddFunc(cfg.Worker.RefreshSchedule, refreshTokenJob.RefreshTokens); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Worker.RefreshSchedule).Msg("invalid token refresh schedule")
	}
	if err := c.AddFunc(cfg.Worker.AuditSchedule, stuckJobAudit.Run); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Worker.AuditSchedule).Msg("invalid stuck job audit schedule")
	}
	c.Start()
	defer c.Stop()

	// queue
	var taskServer *asynq.Server
	if cfg.RedisURI != "" {
		server, mux := queue.NewTaskServer(asynq.RedisClientOpt{Addr: cfg.RedisURI}, scheduler, logx.Component(log, "asynq"))
		if err := server.Start(mux); err != nil {
			log.Error().Err(err).Msg("could not start asynq server, cycle kicks disabled")
		} else {
			taskServer = server
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		scheduler.Run(ctx)
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down worker...")

	if taskServer != nil {
		taskServer.Shutdown()
	}
	if err := waitFor(done, cfg.Worker.ShutdownGrace); err != nil {
		log.Warn().Err(err).Dur("grace", cfg.Worker.ShutdownGrace).
			Msg("in-flight job did not finish; it stays RUNNING until requeued")
		return
	}
	log.Info().Msg("worker shutdown complete")
}

var errGraceExpired = errors.New("shutdown grace period expired")

func waitFor(done <-chan struct{}, grace time.Duration) error {
	select {
	case <-done:
		return nil
	case <-time.After(grace):
		return errGraceExpired
	}
}

func closeDB(db *repository.DB, log zerolog.Logger) {
	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close database")
		return
	}
	log.Info().Msg("database closed")
}
