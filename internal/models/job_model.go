package models

import "time"

type JobStatus string

const (
	JobStatusScheduled JobStatus = "SCHEDULED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSuccess   JobStatus = "SUCCESS"
	JobStatusFailed    JobStatus = "FAILED"
)

// Terminal reports whether the scheduler will never claim a job in this status again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed
}

type PublishJob struct {
	ID            string     `db:"id" json:"id"`
	ContentItemID string     `db:"content_item_id" json:"content_item_id"`
	RunAt         time.Time  `db:"run_at" json:"run_at"`
	Status        JobStatus  `db:"status" json:"status"`
	Attempts      int        `db:"attempts" json:"attempts"`
	LastError     *string    `db:"last_error" json:"last_error,omitempty"`
	NextAttemptAt *time.Time `db:"next_attempt_at" json:"next_attempt_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`

	// Content is joined in by the listing queries.
	Content *ContentItem `db:"-" json:"content,omitempty"`
}

// JobUpdate is a partial update; nil fields are left untouched.
type JobUpdate struct {
	Status        *JobStatus
	Attempts      *int
	LastError     *string
	ClearError    bool
	RunAt         *time.Time
	NextAttemptAt *time.Time
}

func (u JobUpdate) IsEmpty() bool {
	return u.Status == nil && u.Attempts == nil && u.LastError == nil &&
		!u.ClearError && u.RunAt == nil && u.NextAttemptAt == nil
}

// JobFilter narrows ListJobs. Zero values mean "any".
type JobFilter struct {
	Status JobStatus
	Limit  int
}
