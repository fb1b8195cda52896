package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/maheshrc27/contentops/internal/models"
)

const (
	FacebookEndpointFeed   = "feed"
	FacebookEndpointPhotos = "photos"
)

type FacebookPublisher struct {
	graph graphClient
}

func NewFacebookPublisher(graphAPIBase string, client *http.Client) *FacebookPublisher {
	return &FacebookPublisher{graph: newGraphClient(graphAPIBase, client)}
}

// Publish posts to a Page: IMAGE items with an image go to /photos, LINK items with
// a link go to /feed with the link attached, everything else is a plain feed post.
func (p *FacebookPublisher) Publish(ctx context.Context, item *models.ContentItem, message string, creds models.Credentials) (*PublishResult, error) {
	fb, ok := creds.(models.FacebookCredentials)
	if !ok {
		return nil, fmt.Errorf("facebook: %w", ErrCredentialsMismatch)
	}
	if fb.PageID == "" || fb.PageAccessToken == "" {
		return nil, fmt.Errorf("facebook: %w", ErrNoCredentials)
	}

	form := url.Values{}
	form.Set("message", message)
	form.Set("access_token", fb.PageAccessToken)

	endpoint := FacebookEndpointFeed
	switch {
	case item.PostType == models.PostTypeImage && item.ImageURL != nil && *item.ImageURL != "":
		endpoint = FacebookEndpointPhotos
		form.Set("url", *item.ImageURL)
	case item.PostType == models.PostTypeLink && item.LinkURL != nil && *item.LinkURL != "":
		form.Set("link", *item.LinkURL)
	}

	res, err := p.graph.post(ctx, models.PlatformFacebook, "/"+fb.PageID+"/"+endpoint, form)
	if err != nil {
		return nil, err
	}

	// photo uploads answer with both the photo id and the feed story id
	id := res.ID
	if endpoint == FacebookEndpointPhotos && res.PostID != "" {
		id = res.PostID
	}
	if id == "" {
		return nil, errors.New("no post ID returned from Facebook")
	}
	return &PublishResult{PostID: id, Endpoint: endpoint}, nil
}
