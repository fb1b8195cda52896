package models

import "time"

type RateLimitCounter struct {
	ID             int64     `db:"id" json:"id"`
	Platform       Platform  `db:"platform" json:"platform"`
	Endpoint       string    `db:"endpoint" json:"endpoint"`
	CallCount      int       `db:"call_count" json:"call_count"`
	WindowStart    time.Time `db:"window_start" json:"window_start"`
	WindowMinutes  int       `db:"window_minutes" json:"window_minutes"`
	LimitPerWindow int       `db:"limit_per_window" json:"limit_per_window"`
	LastCallAt     time.Time `db:"last_call_at" json:"last_call_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

func (c RateLimitCounter) WindowEnd() time.Time {
	return c.WindowStart.Add(time.Duration(c.WindowMinutes) * time.Minute)
}

func (c RateLimitCounter) Remaining() int {
	if r := c.LimitPerWindow - c.CallCount; r > 0 {
		return r
	}
	return 0
}
