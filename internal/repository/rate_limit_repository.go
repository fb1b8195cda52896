package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/maheshrc27/contentops/internal/models"
)

type RateLimitRepository interface {
	GetRateLimitCounter(ctx context.Context, platform models.Platform, endpoint string) (*models.RateLimitCounter, error)
	UpsertRateLimitCounter(ctx context.Context, c *models.RateLimitCounter) error
	ListRateLimitCounters(ctx context.Context) ([]*models.RateLimitCounter, error)
}

type rateLimitRepository struct {
	db *DB
}

func NewRateLimitRepository(db *DB) RateLimitRepository {
	return &rateLimitRepository{db: db}
}

var rateLimitColumns = []string{
	"id", "platform", "endpoint", "call_count", "window_start", "window_minutes",
	"limit_per_window", "last_call_at", "updated_at",
}

func (r *rateLimitRepository) GetRateLimitCounter(ctx context.Context, platform models.Platform, endpoint string) (*models.RateLimitCounter, error) {
	query, args, err := r.db.sb.Select(rateLimitColumns...).
		From("rate_limits").
		Where(sq.Eq{"platform": string(platform), "endpoint": endpoint}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build rate limit select: %w", err)
	}

	c, err := scanRateLimitCounter(r.db.conn.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rate limit %s/%s: %w", platform, endpoint, err)
	}
	return c, nil
}

// UpsertRateLimitCounter writes the counter's window fields keyed by (platform, endpoint).
func (r *rateLimitRepository) UpsertRateLimitCounter(ctx context.Context, c *models.RateLimitCounter) error {
	now := r.db.timestamp()
	_, err := exec(ctx, r.db.conn, r.db.sb.
		Insert("rate_limits").
		Columns("platform", "endpoint", "call_count", "window_start", "window_minutes",
			"limit_per_window", "last_call_at", "updated_at").
		Values(string(c.Platform), c.Endpoint, c.CallCount, c.WindowStart.UTC(), c.WindowMinutes,
			c.LimitPerWindow, c.LastCallAt.UTC(), now).
		Suffix(`ON CONFLICT (platform, endpoint) DO UPDATE SET
			call_count = excluded.call_count,
			window_start = excluded.window_start,
			window_minutes = excluded.window_minutes,
			limit_per_window = excluded.limit_per_window,
			last_call_at = excluded.last_call_at,
			updated_at = excluded.updated_at`))
	if err != nil {
		return fmt.Errorf("upsert rate limit %s/%s: %w", c.Platform, c.Endpoint, err)
	}
	c.UpdatedAt = now
	return nil
}

func (r *rateLimitRepository) ListRateLimitCounters(ctx context.Context) ([]*models.RateLimitCounter, error) {
	query, args, err := r.db.sb.Select(rateLimitColumns...).
		From("rate_limits").
		OrderBy("updated_at DESC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build rate limit select: %w", err)
	}

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}
	defer rows.Close()

	var out []*models.RateLimitCounter
	for rows.Next() {
		c, err := scanRateLimitCounter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rate limit: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanRateLimitCounter(row rowScanner) (*models.RateLimitCounter, error) {
	var (
		c        models.RateLimitCounter
		platform string
	)
	if err := row.Scan(&c.ID, &platform, &c.Endpoint, &c.CallCount, &c.WindowStart, &c.WindowMinutes,
		&c.LimitPerWindow, &c.LastCallAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Platform = models.Platform(platform)
	return &c, nil
}
