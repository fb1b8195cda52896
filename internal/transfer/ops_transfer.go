package transfer

import (
	"time"

	"github.com/maheshrc27/contentops/internal/models"
)

type ScheduleRequest struct {
	ScheduledFor string `json:"scheduled_for"`
}

type JobList struct {
	Jobs  []*models.PublishJob `json:"jobs"`
	Count int                  `json:"count"`
}

type RateLimitView struct {
	Platform       models.Platform `json:"platform"`
	Endpoint       string          `json:"endpoint"`
	CallCount      int             `json:"call_count"`
	LimitPerWindow int             `json:"limit_per_window"`
	Remaining      int             `json:"remaining"`
	WindowStart    time.Time       `json:"window_start"`
	ResetsAt       time.Time       `json:"resets_at"`
	LastCallAt     time.Time       `json:"last_call_at"`
}

func NewRateLimitView(c *models.RateLimitCounter) RateLimitView {
	return RateLimitView{
		Platform:       c.Platform,
		Endpoint:       c.Endpoint,
		CallCount:      c.CallCount,
		LimitPerWindow: c.LimitPerWindow,
		Remaining:      c.Remaining(),
		WindowStart:    c.WindowStart,
		ResetsAt:       c.WindowEnd(),
		LastCallAt:     c.LastCallAt,
	}
}

type CycleKickResponse struct {
	Queued bool   `json:"queued"`
	Reason string `json:"reason,omitempty"`
}
