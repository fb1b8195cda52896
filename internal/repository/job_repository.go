package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/maheshrc27/contentops/internal/models"
)

type JobRepository interface {
	ListDueJobs(ctx context.Context, now time.Time, limit int) ([]*models.PublishJob, error)
	UpdateJob(ctx context.Context, id string, u models.JobUpdate) error
	GetJob(ctx context.Context, id string) (*models.PublishJob, error)
	ListJobs(ctx context.Context, filter models.JobFilter) ([]*models.PublishJob, error)
	ListStuckJobs(ctx context.Context, updatedBefore time.Time) ([]*models.PublishJob, error)
	ScheduleContentItem(ctx context.Context, contentItemID, jobID string, runAt time.Time) (*models.PublishJob, error)
	RequeueRunningJob(ctx context.Context, id string, runAt, stuckBefore time.Time) error
}

type jobRepository struct {
	db *DB
}

func NewJobRepository(db *DB) JobRepository {
	return &jobRepository{db: db}
}

var jobColumns = []string{
	"j.id", "j.content_item_id", "j.run_at", "j.status", "j.attempts", "j.last_error",
	"j.next_attempt_at", "j.created_at", "j.updated_at",
}

func (r *jobRepository) selectWithContent() sq.SelectBuilder {
	cols := append(append([]string{}, jobColumns...), contentColumns...)
	return r.db.sb.Select(cols...).
		From("publish_jobs j").
		Join("content_items c ON c.id = j.content_item_id")
}

// ListDueJobs returns SCHEDULED jobs whose run_at has passed, oldest first, each
// joined with its content item.
func (r *jobRepository) ListDueJobs(ctx context.Context, now time.Time, limit int) ([]*models.PublishJob, error) {
	if limit <= 0 {
		limit = 10
	}
	q := r.selectWithContent().
		Where(sq.Eq{"j.status": string(models.JobStatusScheduled)}).
		Where(sq.LtOrEq{"j.run_at": now.UTC()}).
		OrderBy("j.run_at ASC", "j.id ASC").
		Limit(uint64(limit))
	return r.queryJobs(ctx, q, true)
}

func (r *jobRepository) ListJobs(ctx context.Context, filter models.JobFilter) ([]*models.PublishJob, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := r.selectWithContent().OrderBy("j.run_at DESC", "j.id ASC").Limit(uint64(limit))
	if filter.Status != "" {
		q = q.Where(sq.Eq{"j.status": string(filter.Status)})
	}
	return r.queryJobs(ctx, q, true)
}

// ListStuckJobs returns RUNNING jobs that have not been touched since updatedBefore.
func (r *jobRepository) ListStuckJobs(ctx context.Context, updatedBefore time.Time) ([]*models.PublishJob, error) {
	q := r.db.sb.Select(jobColumns...).
		From("publish_jobs j").
		Where(sq.Eq{"j.status": string(models.JobStatusRunning)}).
		Where(sq.Lt{"j.updated_at": updatedBefore.UTC()}).
		OrderBy("j.updated_at ASC")
	return r.queryJobs(ctx, q, false)
}

func (r *jobRepository) GetJob(ctx context.Context, id string) (*models.PublishJob, error) {
	query, args, err := r.selectWithContent().Where(sq.Eq{"j.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build job select: %w", err)
	}
	job, err := scanJob(r.db.conn.QueryRowContext(ctx, query, args...), true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

func (r *jobRepository) queryJobs(ctx context.Context, b sq.SelectBuilder, withContent bool) ([]*models.PublishJob, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build job select: %w", err)
	}

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.PublishJob
	for rows.Next() {
		job, err := scanJob(rows, withContent)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row rowScanner, withContent bool) (*models.PublishJob, error) {
	var (
		job           models.PublishJob
		status        string
		lastError     sql.NullString
		nextAttemptAt sql.NullTime
	)
	targets := []any{
		&job.ID, &job.ContentItemID, &job.RunAt, &status, &job.Attempts, &lastError,
		&nextAttemptAt, &job.CreatedAt, &job.UpdatedAt,
	}

	var (
		item     models.ContentItem
		hashtags string
		dst      contentScanDest
	)
	if withContent {
		targets = append(targets, dst.targets(&item, &hashtags)...)
	}

	if err := row.Scan(targets...); err != nil {
		return nil, err
	}

	job.Status = models.JobStatus(status)
	job.LastError = nullableString(lastError)
	job.NextAttemptAt = nullableTime(nextAttemptAt)
	if withContent {
		if err := dst.apply(&item, hashtags); err != nil {
			return nil, err
		}
		job.Content = &item
	}
	return &job, nil
}

func (r *jobRepository) UpdateJob(ctx context.Context, id string, u models.JobUpdate) error {
	if u.IsEmpty() {
		return nil
	}

	b := r.db.sb.Update("publish_jobs").Set("updated_at", r.db.timestamp())
	if u.Status != nil {
		b = b.Set("status", string(*u.Status))
	}
	if u.Attempts != nil {
		b = b.Set("attempts", *u.Attempts)
	}
	switch {
	case u.ClearError:
		b = b.Set("last_error", nil)
	case u.LastError != nil:
		b = b.Set("last_error", *u.LastError)
	}
	if u.RunAt != nil {
		b = b.Set("run_at", u.RunAt.UTC())
	}
	if u.NextAttemptAt != nil {
		b = b.Set("next_attempt_at", u.NextAttemptAt.UTC())
	}

	res, err := exec(ctx, r.db.conn, b.Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ScheduleContentItem moves a content item to SCHEDULED and creates or re-arms its
// job with attempts reset. A RUNNING job is never re-armed.
func (r *jobRepository) ScheduleContentItem(ctx context.Context, contentItemID, jobID string, runAt time.Time) (*models.PublishJob, error) {
	runAt = runAt.UTC()
	now := r.db.timestamp()

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		status := models.ContentStatusScheduled
		if err := updateContentItem(ctx, r.db, tx, contentItemID, models.ContentUpdate{
			Status:       &status,
			ScheduledFor: &runAt,
			ClearError:   true,
		}); err != nil {
			return err
		}

		res, err := exec(ctx, tx, r.db.sb.
			Insert("publish_jobs").
			Columns("id", "content_item_id", "run_at", "status", "attempts", "created_at", "updated_at").
			Values(jobID, contentItemID, runAt, string(models.JobStatusScheduled), 0, now, now).
			Suffix(`ON CONFLICT (content_item_id) DO UPDATE SET
				run_at = excluded.run_at,
				status = excluded.status,
				attempts = 0,
				last_error = NULL,
				next_attempt_at = NULL,
				updated_at = excluded.updated_at
			WHERE publish_jobs.status <> ?`, string(models.JobStatusRunning)))
		if err != nil {
			return fmt.Errorf("upsert job for %s: %w", contentItemID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrJobRunning
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	query, args, err := r.selectWithContent().Where(sq.Eq{"j.content_item_id": contentItemID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build job select: %w", err)
	}
	job, err := scanJob(r.db.conn.QueryRowContext(ctx, query, args...), true)
	if err != nil {
		return nil, fmt.Errorf("reload job for %s: %w", contentItemID, err)
	}
	return job, nil
}

// RequeueRunningJob hands a RUNNING job back to the scheduler. It is the manual
// reconciliation step for jobs interrupted mid-publish, so only jobs untouched since
// stuckBefore qualify.
func (r *jobRepository) RequeueRunningJob(ctx context.Context, id string, runAt, stuckBefore time.Time) error {
	res, err := exec(ctx, r.db.conn, r.db.sb.
		Update("publish_jobs").
		Set("status", string(models.JobStatusScheduled)).
		Set("run_at", runAt.UTC()).
		Set("updated_at", r.db.timestamp()).
		Where(sq.Eq{"id": id, "status": string(models.JobStatusRunning)}).
		Where(sq.Lt{"updated_at": stuckBefore.UTC()}))
	if err != nil {
		return fmt.Errorf("requeue job %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	job, err := r.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == models.JobStatusRunning {
		return ErrJobNotStuck
	}
	return ErrJobNotRunning
}
