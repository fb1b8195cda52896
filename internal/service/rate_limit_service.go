package service

import (
	"context"
	"errors"
	"time"

	config "github.com/maheshrc27/contentops/configs"
	"github.com/maheshrc27/contentops/internal/models"
	"github.com/maheshrc27/contentops/internal/repository"
)

type RateLimitStore interface {
	GetRateLimitCounter(ctx context.Context, platform models.Platform, endpoint string) (*models.RateLimitCounter, error)
	UpsertRateLimitCounter(ctx context.Context, c *models.RateLimitCounter) error
}

// RecordResult is the outcome of bookkeeping one call. It is informational: a failed
// record never affects the publish it follows.
type RecordResult struct {
	Counter *models.RateLimitCounter
	Created bool
	Rolled  bool
	Err     error
}

func (r RecordResult) OK() bool { return r.Err == nil }

type RateLimitTracker struct {
	store RateLimitStore
	cfg   config.RateLimit
	now   func() time.Time
}

func NewRateLimitTracker(store RateLimitStore, cfg config.RateLimit) *RateLimitTracker {
	return &RateLimitTracker{store: store, cfg: cfg, now: time.Now}
}

// RecordCall counts one successful call against (platform, endpoint). It never
// blocks or rejects.
func (t *RateLimitTracker) RecordCall(ctx context.Context, platform models.Platform, endpoint string) RecordResult {
	now := t.now().UTC()

	current, err := t.store.GetRateLimitCounter(ctx, platform, endpoint)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return RecordResult{Err: err}
	}

	var res RecordResult
	if current == nil {
		res.Created = true
		res.Counter = &models.RateLimitCounter{
			Platform:       platform,
			Endpoint:       endpoint,
			CallCount:      1,
			WindowStart:    now,
			WindowMinutes:  t.cfg.WindowMinutes,
			LimitPerWindow: t.cfg.PerWindow,
			LastCallAt:     now,
		}
	} else {
		next, rolled := Advance(*current, now)
		res.Counter, res.Rolled = &next, rolled
	}

	if err := t.store.UpsertRateLimitCounter(ctx, res.Counter); err != nil {
		res.Err = err
	}
	return res
}

// Advance applies one call at now. Once now is past windowStart+windowMinutes the
// window restarts at now with a count of 1.
func Advance(c models.RateLimitCounter, now time.Time) (models.RateLimitCounter, bool) {
	rolled := now.After(c.WindowEnd())
	if rolled {
		c.CallCount = 1
		c.WindowStart = now
	} else {
		c.CallCount++
	}
	c.LastCallAt = now
	return c, rolled
}
