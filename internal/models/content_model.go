package models

import (
	"fmt"
	"time"
)

type Platform string

const (
	PlatformFacebook  Platform = "FACEBOOK"
	PlatformInstagram Platform = "INSTAGRAM"
	PlatformX         Platform = "X"
)

// Platforms lists every supported destination.
var Platforms = []Platform{PlatformFacebook, PlatformInstagram, PlatformX}

func ParsePlatform(s string) (Platform, error) {
	for _, p := range Platforms {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

type PostType string

const (
	PostTypeText  PostType = "TEXT"
	PostTypeLink  PostType = "LINK"
	PostTypeImage PostType = "IMAGE"
)

type ContentStatus string

const (
	ContentStatusDraft          ContentStatus = "DRAFT"
	ContentStatusReadyForReview ContentStatus = "READY_FOR_REVIEW"
	ContentStatusApproved       ContentStatus = "APPROVED"
	ContentStatusScheduled      ContentStatus = "SCHEDULED"
	ContentStatusPosted         ContentStatus = "POSTED"
	ContentStatusFailed         ContentStatus = "FAILED"
)

type ContentItem struct {
	ID             string        `db:"id" json:"id"`
	Platform       Platform      `db:"platform" json:"platform"`
	PostType       PostType      `db:"post_type" json:"post_type"`
	Caption        string        `db:"caption" json:"caption"`
	Hashtags       []string      `db:"hashtags" json:"hashtags"`
	LinkURL        *string       `db:"link_url" json:"link_url,omitempty"`
	ImageURL       *string       `db:"image_url" json:"image_url,omitempty"`
	Status         ContentStatus `db:"status" json:"status"`
	ScheduledFor   *time.Time    `db:"scheduled_for" json:"scheduled_for,omitempty"`
	PostedAt       *time.Time    `db:"posted_at" json:"posted_at,omitempty"`
	ExternalPostID *string       `db:"external_post_id" json:"external_post_id,omitempty"`
	Error          *string       `db:"error" json:"error,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// ContentUpdate is a partial update; nil fields are left untouched.
// ClearError writes NULL to the error column and wins over Error.
type ContentUpdate struct {
	Status         *ContentStatus
	ScheduledFor   *time.Time
	PostedAt       *time.Time
	ExternalPostID *string
	Error          *string
	ClearError     bool
}

func (u ContentUpdate) IsEmpty() bool {
	return u.Status == nil && u.ScheduledFor == nil && u.PostedAt == nil &&
		u.ExternalPostID == nil && u.Error == nil && !u.ClearError
}
