package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/maheshrc27/contentops/internal/models"
)

var (
	ErrNoCredentials       = errors.New("no credentials configured")
	ErrCredentialsMismatch = errors.New("credentials do not match platform")
	ErrImageRequired       = errors.New("Instagram posts require an image URL. Text-only posts are not supported.")
)

// PublishResult is what a platform returned for a created post. Endpoint names the
// API surface that was called, for rate-limit bookkeeping.
type PublishResult struct {
	PostID   string
	Endpoint string
}

type Publisher interface {
	Publish(ctx context.Context, item *models.ContentItem, message string, creds models.Credentials) (*PublishResult, error)
}

// PublishError is a failure reported by the platform itself, as opposed to a
// transport or local error.
type PublishError struct {
	Platform models.Platform
	Message  string
	Code     int
	Status   int
}

func (e *PublishError) Error() string {
	switch e.Platform {
	case models.PlatformFacebook:
		return fmt.Sprintf("Facebook API error: %s (code: %d)", e.Message, e.Code)
	case models.PlatformInstagram:
		return fmt.Sprintf("Instagram API: %s (code: %d)", e.Message, e.Code)
	case models.PlatformX:
		return fmt.Sprintf("X API error: %s (status: %d)", e.Message, e.Status)
	default:
		return fmt.Sprintf("%s API error: %s (status: %d)", e.Platform, e.Message, e.Status)
	}
}

// Publishers routes a platform to its publisher.
type Publishers map[models.Platform]Publisher

func (p Publishers) Publish(ctx context.Context, item *models.ContentItem, message string, creds models.Credentials) (*PublishResult, error) {
	pub, ok := p[item.Platform]
	if !ok {
		return nil, fmt.Errorf("no publisher for platform %q", item.Platform)
	}
	return pub.Publish(ctx, item, message, creds)
}
