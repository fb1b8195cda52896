package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	config "github.com/maheshrc27/contentops/configs"
	"github.com/maheshrc27/contentops/internal/metrics"
	"github.com/maheshrc27/contentops/internal/models"
	"github.com/maheshrc27/contentops/internal/repository"
	"github.com/maheshrc27/contentops/internal/service"
	"github.com/rs/zerolog"
)

type JobStore interface {
	ListDueJobs(ctx context.Context, now time.Time, limit int) ([]*models.PublishJob, error)
	UpdateJob(ctx context.Context, id string, u models.JobUpdate) error
	UpdateContentItem(ctx context.Context, id string, u models.ContentUpdate) error
}

type CredentialResolver interface {
	Resolve(ctx context.Context, platform models.Platform) (models.Credentials, error)
}

type CallRecorder interface {
	RecordCall(ctx context.Context, platform models.Platform, endpoint string) service.RecordResult
}

type ImageStager interface {
	Stage(ctx context.Context, imageURL string) (string, error)
}

// NewJobStore combines the job and content repositories into the store the
// scheduler writes through.
func NewJobStore(jobs repository.JobRepository, content repository.ContentRepository) JobStore {
	return struct {
		repository.JobRepository
		repository.ContentRepository
	}{jobs, content}
}

type Deps struct {
	Store       JobStore
	Credentials CredentialResolver
	Publisher   service.Publisher
	RateLimits  CallRecorder
	// Stager is optional; without it image URLs are sent as stored.
	Stager ImageStager
}

// CycleReport summarises one pass over the due jobs.
type CycleReport struct {
	Due         int
	Succeeded   int
	Retried     int
	Failed      int
	Skipped     int
	Interrupted bool
}

// Scheduler claims due publish jobs and drives them through
// SCHEDULED -> RUNNING -> SUCCESS | SCHEDULED (retry) | FAILED.
type Scheduler struct {
	deps Deps
	cfg  config.Worker
	log  zerolog.Logger
	now  func() time.Time

	mu   sync.Mutex
	kick chan struct{}
}

func NewScheduler(deps Deps, cfg config.Worker, log zerolog.Logger) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if len(cfg.BackoffMinutes) == 0 {
		cfg.BackoffMinutes = []int{1, 5, 15}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &Scheduler{
		deps: deps,
		cfg:  cfg,
		log:  log,
		now:  time.Now,
		kick: make(chan struct{}, 1),
	}
}

// Trigger asks Run for a cycle now. Kicks coalesce: while one is pending, further
// calls are dropped.
func (s *Scheduler) Trigger() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run executes a cycle immediately, then one per poll interval or kick, until ctx is
// cancelled. A cycle in progress when ctx is cancelled finishes its current job first.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info().
		Dur("poll_interval", s.cfg.PollInterval).
		Int("max_attempts", s.cfg.MaxAttempts).
		Ints("backoff_minutes", s.cfg.BackoffMinutes).
		Int("batch_size", s.cfg.BatchSize).
		Msg("publish scheduler started")
	defer s.log.Info().Msg("publish scheduler stopped")

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.safeCycle(ctx, "startup")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.safeCycle(ctx, "tick")
		case <-s.kick:
			s.safeCycle(ctx, "kick")
		}
	}
}

func (s *Scheduler) safeCycle(ctx context.Context, trigger string) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			metrics.ObserveCycle("panic", time.Since(start))
			s.log.Error().
				Str("trigger", trigger).
				Interface("panic", p).
				Bytes("stack", debug.Stack()).
				Msg("publish cycle panicked")
		}
	}()

	report, err := s.RunCycle(ctx)
	if err != nil {
		metrics.ObserveCycle("error", time.Since(start))
		s.log.Error().Err(err).Str("trigger", trigger).Msg("publish cycle failed")
		return
	}
	metrics.ObserveCycle("ok", time.Since(start))
	if report.Due > 0 {
		s.log.Info().
			Str("trigger", trigger).
			Int("due", report.Due).
			Int("succeeded", report.Succeeded).
			Int("retried", report.Retried).
			Int("failed", report.Failed).
			Int("skipped", report.Skipped).
			Bool("interrupted", report.Interrupted).
			Dur("took", time.Since(start)).
			Msg("publish cycle finished")
	}
}

// RunCycle processes up to BatchSize due jobs, oldest first, one at a time. ctx only
// gates claiming the next job; the job being processed always runs to completion.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report CycleReport
	if err := ctx.Err(); err != nil {
		report.Interrupted = true
		return report, nil
	}
	work := context.WithoutCancel(ctx)

	jobs, err := s.deps.Store.ListDueJobs(work, s.now().UTC(), s.cfg.BatchSize)
	if err != nil {
		return report, fmt.Errorf("list due jobs: %w", err)
	}
	report.Due = len(jobs)

	for _, job := range jobs {
		if ctx.Err() != nil {
			report.Interrupted = true
			s.log.Info().Int("remaining", report.Due-report.Succeeded-report.Retried-report.Failed-report.Skipped).
				Msg("shutdown requested, leaving remaining jobs scheduled")
			break
		}

		switch s.processJob(work, job) {
		case outcomeSucceeded:
			report.Succeeded++
		case outcomeRetried:
			report.Retried++
		case outcomeFailed:
			report.Failed++
		default:
			report.Skipped++
		}
	}
	return report, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSucceeded
	outcomeRetried
	outcomeFailed
)

func (s *Scheduler) processJob(ctx context.Context, job *models.PublishJob) outcome {
	log := s.log.With().Str("job_id", job.ID).Str("content_id", job.ContentItemID).Logger()

	running := models.JobStatusRunning
	if err := s.deps.Store.UpdateJob(ctx, job.ID, models.JobUpdate{Status: &running}); err != nil {
		log.Error().Err(err).Msg("could not claim job")
		return outcomeSkipped
	}
	metrics.IncJobsClaimed()

	item := job.Content
	if item == nil {
		return s.fail(ctx, log, job, models.Platform(""), errors.New("content item not loaded"))
	}
	log = log.With().Str("platform", string(item.Platform)).Logger()

	start := time.Now()
	res, err := s.publish(ctx, item)
	if err != nil {
		metrics.ObservePublish(string(item.Platform), "error", time.Since(start))
		return s.fail(ctx, log, job, item.Platform, err)
	}
	metrics.ObservePublish(string(item.Platform), "ok", time.Since(start))

	return s.succeed(ctx, log, job, item, res)
}

// publish resolves credentials, stages media and calls the platform. Panics inside a
// publisher are turned into errors so the job still gets its bookkeeping.
func (s *Scheduler) publish(ctx context.Context, item *models.ContentItem) (res *service.PublishResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("publisher panic: %v", p)
		}
	}()

	if err := validPlatform(item.Platform); err != nil {
		return nil, err
	}

	creds, err := s.deps.Credentials.Resolve(ctx, item.Platform)
	if err != nil {
		return nil, err
	}

	out := item
	if s.deps.Stager != nil && needsImage(item) {
		staged, err := s.deps.Stager.Stage(ctx, *item.ImageURL)
		if err != nil {
			return nil, fmt.Errorf("stage image: %w", err)
		}
		cp := *item
		cp.ImageURL = &staged
		out = &cp
	}

	pubCtx := ctx
	if s.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		pubCtx, cancel = context.WithTimeout(ctx, s.cfg.PublishTimeout)
		defer cancel()
	}
	return s.deps.Publisher.Publish(pubCtx, out, RenderMessage(item.Caption, item.Hashtags), creds)
}

func validPlatform(p models.Platform) error {
	switch p {
	case models.PlatformFacebook, models.PlatformInstagram, models.PlatformX:
		return nil
	default:
		return fmt.Errorf("unsupported platform %q", p)
	}
}

// needsImage reports whether the publisher for item will send its image URL.
func needsImage(item *models.ContentItem) bool {
	if item.ImageURL == nil || *item.ImageURL == "" {
		return false
	}
	switch item.Platform {
	case models.PlatformFacebook:
		return item.PostType == models.PostTypeImage
	case models.PlatformInstagram:
		return true
	case models.PlatformX:
		return false
	default:
		return false
	}
}

func (s *Scheduler) succeed(ctx context.Context, log zerolog.Logger, job *models.PublishJob, item *models.ContentItem, res *service.PublishResult) outcome {
	now := s.now().UTC()
	posted := models.ContentStatusPosted
	if err := s.deps.Store.UpdateContentItem(ctx, item.ID, models.ContentUpdate{
		Status:         &posted,
		PostedAt:       &now,
		ExternalPostID: &res.PostID,
		ClearError:     true,
	}); err != nil {
		log.Error().Err(err).Str("external_post_id", res.PostID).Msg("published but could not mark content posted")
	}

	success := models.JobStatusSuccess
	if err := s.deps.Store.UpdateJob(ctx, job.ID, models.JobUpdate{Status: &success, ClearError: true}); err != nil {
		log.Error().Err(err).Str("external_post_id", res.PostID).Msg("published but could not mark job succeeded")
	}

	log.Info().Str("external_post_id", res.PostID).Str("endpoint", res.Endpoint).Msg("published")

	if item.Platform == models.PlatformFacebook && s.deps.RateLimits != nil {
		if rr := s.deps.RateLimits.RecordCall(ctx, models.PlatformFacebook, res.Endpoint); !rr.OK() {
			metrics.IncRateLimitRecordFailure()
			log.Warn().Err(rr.Err).Str("endpoint", res.Endpoint).Msg("rate limit bookkeeping failed")
		}
	}
	return outcomeSucceeded
}

func (s *Scheduler) fail(ctx context.Context, log zerolog.Logger, job *models.PublishJob, platform models.Platform, cause error) outcome {
	attempts := job.Attempts + 1
	msg := cause.Error()

	if attempts >= s.cfg.MaxAttempts {
		failed := models.ContentStatusFailed
		if err := s.deps.Store.UpdateContentItem(ctx, job.ContentItemID, models.ContentUpdate{Status: &failed, Error: &msg}); err != nil {
			log.Error().Err(err).Msg("could not mark content failed")
		}
		jobFailed := models.JobStatusFailed
		if err := s.deps.Store.UpdateJob(ctx, job.ID, models.JobUpdate{Status: &jobFailed, Attempts: &attempts, LastError: &msg}); err != nil {
			log.Error().Err(err).Msg("could not mark job failed")
		}
		metrics.IncTerminalFailure(string(platform))
		log.Error().Err(cause).Int("attempts", attempts).Msg("giving up after max attempts")
		return outcomeFailed
	}

	backoff := BackoffFor(s.cfg.BackoffMinutes, attempts)
	next := s.now().UTC().Add(backoff)
	scheduled := models.JobStatusScheduled
	if err := s.deps.Store.UpdateJob(ctx, job.ID, models.JobUpdate{
		Status:        &scheduled,
		Attempts:      &attempts,
		LastError:     &msg,
		RunAt:         &next,
		NextAttemptAt: &next,
	}); err != nil {
		log.Error().Err(err).Msg("could not reschedule job")
	}
	metrics.IncRetry(string(platform))
	log.Warn().Err(cause).
		Int("attempts", attempts).
		Int("max_attempts", s.cfg.MaxAttempts).
		Time("next_attempt_at", next).
		Dur("backoff", backoff).
		Msg("publish failed, retrying")
	return outcomeRetried
}
