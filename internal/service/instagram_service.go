package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/maheshrc27/contentops/internal/models"
)

const InstagramEndpointMediaPublish = "media_publish"

type InstagramPublisher struct {
	graph graphClient
}

func NewInstagramPublisher(graphAPIBase string, client *http.Client) *InstagramPublisher {
	return &InstagramPublisher{graph: newGraphClient(graphAPIBase, client)}
}

// Publish creates a media container for the image and caption, then publishes it.
// Instagram has no text-only posts.
func (p *InstagramPublisher) Publish(ctx context.Context, item *models.ContentItem, message string, creds models.Credentials) (*PublishResult, error) {
	ig, ok := creds.(models.InstagramCredentials)
	if !ok {
		return nil, fmt.Errorf("instagram: %w", ErrCredentialsMismatch)
	}
	if ig.AccountID == "" || ig.AccessToken == "" {
		return nil, fmt.Errorf("instagram: %w", ErrNoCredentials)
	}
	if item.ImageURL == nil || *item.ImageURL == "" {
		return nil, ErrImageRequired
	}

	containerID, err := p.createContainer(ctx, ig, *item.ImageURL, message)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("creation_id", containerID)
	form.Set("access_token", ig.AccessToken)

	res, err := p.graph.post(ctx, models.PlatformInstagram, "/"+ig.AccountID+"/media_publish", form)
	if err != nil {
		return nil, err
	}
	if res.ID == "" {
		return nil, errors.New("no media ID returned from Instagram publish")
	}
	return &PublishResult{PostID: res.ID, Endpoint: InstagramEndpointMediaPublish}, nil
}

func (p *InstagramPublisher) createContainer(ctx context.Context, ig models.InstagramCredentials, imageURL, caption string) (string, error) {
	form := url.Values{}
	form.Set("image_url", imageURL)
	form.Set("caption", caption)
	form.Set("access_token", ig.AccessToken)

	res, err := p.graph.post(ctx, models.PlatformInstagram, "/"+ig.AccountID+"/media", form)
	if err != nil {
		return "", err
	}
	if res.ID == "" {
		return "", errors.New("no media ID returned from Instagram")
	}
	return res.ID, nil
}
