package job

import (
	"context"
	"time"

	"github.com/maheshrc27/contentops/internal/metrics"
	"github.com/maheshrc27/contentops/internal/models"
	"github.com/rs/zerolog"
)

type StuckJobLister interface {
	ListStuckJobs(ctx context.Context, updatedBefore time.Time) ([]*models.PublishJob, error)
}

// StuckJobAudit reports jobs that have sat in RUNNING longer than threshold, which
// happens when the worker dies mid-publish. It only reports: whether the post went
// out is unknown, so an operator requeues after checking the platform.
type StuckJobAudit struct {
	jobs      StuckJobLister
	threshold time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

func NewStuckJobAudit(jobs StuckJobLister, threshold time.Duration, log zerolog.Logger) *StuckJobAudit {
	if threshold <= 0 {
		threshold = 15 * time.Minute
	}
	return &StuckJobAudit{jobs: jobs, threshold: threshold, log: log, now: time.Now}
}

func (a *StuckJobAudit) Run() {
	a.Audit(context.Background())
}

// Audit logs each stuck job, updates the gauge and returns how many it found.
func (a *StuckJobAudit) Audit(ctx context.Context) int {
	now := a.now()
	stuck, err := a.jobs.ListStuckJobs(ctx, now.Add(-a.threshold))
	if err != nil {
		a.log.Error().Err(err).Msg("list stuck jobs")
		return 0
	}

	metrics.SetStuckJobs(len(stuck))
	for _, j := range stuck {
		a.log.Warn().
			Str("job_id", j.ID).
			Str("content_id", j.ContentItemID).
			Int("attempts", j.Attempts).
			Dur("running_for", now.Sub(j.UpdatedAt)).
			Msg("publish job stuck in RUNNING; verify on the platform, then requeue")
	}
	return len(stuck)
}
