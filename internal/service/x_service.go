package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/dghubble/oauth1"
	"github.com/maheshrc27/contentops/internal/models"
)

const (
	XEndpointTweets = "tweets"

	maxTweetLength = 280
)

type XPublisher struct {
	baseURL string
	client  *http.Client
}

func NewXPublisher(apiBase string, client *http.Client) *XPublisher {
	if client == nil {
		client = http.DefaultClient
	}
	return &XPublisher{baseURL: strings.TrimRight(apiBase, "/"), client: client}
}

// TruncateTweet cuts text longer than 280 characters to 277 plus "...".
func TruncateTweet(text string) string {
	if utf8.RuneCountInString(text) <= maxTweetLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxTweetLength-3]) + "..."
}

// Publish posts a tweet signed with OAuth 1.0a user context.
func (p *XPublisher) Publish(ctx context.Context, item *models.ContentItem, message string, creds models.Credentials) (*PublishResult, error) {
	xc, ok := creds.(models.XCredentials)
	if !ok {
		return nil, fmt.Errorf("x: %w", ErrCredentialsMismatch)
	}
	if !xc.Complete() {
		return nil, fmt.Errorf("x: %w", ErrNoCredentials)
	}

	body, err := json.Marshal(map[string]string{"text": TruncateTweet(message)})
	if err != nil {
		return nil, fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/tweets", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	signer := oauth1.NewConfig(xc.APIKey, xc.APISecret)
	client := signer.Client(context.WithValue(ctx, oauth1.HTTPClient, p.client), oauth1.NewToken(xc.AccessToken, xc.AccessSecret))
	// the signing client only borrows the base transport
	client.Timeout = p.client.Timeout

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	var result struct {
		Data *struct {
			ID string `json:"id"`
		} `json:"data"`
		Detail string `json:"detail"`
		Title  string `json:"title"`
	}
	decodeErr := json.Unmarshal(respBody, &result)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := http.StatusText(resp.StatusCode)
		switch {
		case decodeErr == nil && result.Detail != "":
			msg = result.Detail
		case decodeErr == nil && result.Title != "":
			msg = result.Title
		}
		return nil, &PublishError{Platform: models.PlatformX, Message: msg, Status: resp.StatusCode}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("error parsing response: %w", decodeErr)
	}
	if result.Data == nil || result.Data.ID == "" {
		return nil, errors.New("no tweet ID returned from X")
	}
	return &PublishResult{PostID: result.Data.ID, Endpoint: XEndpointTweets}, nil
}
