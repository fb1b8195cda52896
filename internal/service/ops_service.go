package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/maheshrc27/contentops/internal/models"
	"github.com/maheshrc27/contentops/internal/repository"
	"github.com/rs/zerolog"
)

var ErrAlreadyPosted = errors.New("content item is already posted")

// CycleKicker asks the worker to run a cycle ahead of its next tick.
type CycleKicker interface {
	Kick(reason string) error
}

// OpsService backs the operator API: inspecting the queue and nudging it.
type OpsService struct {
	jobs       repository.JobRepository
	content    repository.ContentRepository
	rates      repository.RateLimitRepository
	kicker     CycleKicker
	stuckAfter time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

// NewOpsService wires the API. kicker may be nil when no task queue is configured.
// stuckAfter is how long a job must sit in RUNNING before it may be requeued.
func NewOpsService(jobs repository.JobRepository, content repository.ContentRepository, rates repository.RateLimitRepository, kicker CycleKicker, stuckAfter time.Duration, log zerolog.Logger) *OpsService {
	return &OpsService{
		jobs:       jobs,
		content:    content,
		rates:      rates,
		kicker:     kicker,
		stuckAfter: stuckAfter,
		log:        log,
		now:        time.Now,
	}
}

func (s *OpsService) ListJobs(ctx context.Context, filter models.JobFilter) ([]*models.PublishJob, error) {
	return s.jobs.ListJobs(ctx, filter)
}

func (s *OpsService) ListRateLimits(ctx context.Context) ([]*models.RateLimitCounter, error) {
	return s.rates.ListRateLimitCounters(ctx)
}

// Schedule arms (or re-arms) the publish job for a content item. A due-now schedule
// also kicks the worker.
func (s *OpsService) Schedule(ctx context.Context, contentID string, when time.Time) (*models.PublishJob, error) {
	item, err := s.content.GetContentItem(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if item.Status == models.ContentStatusPosted {
		return nil, ErrAlreadyPosted
	}

	jobID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("generate job id: %w", err)
	}

	job, err := s.jobs.ScheduleContentItem(ctx, contentID, jobID, when)
	if err != nil {
		return nil, err
	}

	if !when.After(s.now()) {
		s.kick("content scheduled for now")
	}
	return job, nil
}

// Requeue hands a job stuck in RUNNING back to the scheduler, due immediately. Jobs
// claimed less than stuckAfter ago are refused with repository.ErrJobNotStuck.
func (s *OpsService) Requeue(ctx context.Context, jobID string) error {
	now := s.now()
	if err := s.jobs.RequeueRunningJob(ctx, jobID, now, now.Add(-s.stuckAfter)); err != nil {
		return err
	}
	s.kick("job requeued")
	return nil
}

// Kick requests a cycle. It reports false when no task queue is configured.
func (s *OpsService) Kick(reason string) (bool, error) {
	if s.kicker == nil {
		return false, nil
	}
	if err := s.kicker.Kick(reason); err != nil {
		return false, err
	}
	return true, nil
}

func (s *OpsService) kick(reason string) {
	if s.kicker == nil {
		return
	}
	// the poll interval picks the job up anyway
	if err := s.kicker.Kick(reason); err != nil {
		s.log.Warn().Err(err).Str("reason", reason).Msg("cycle kick failed")
	}
}
