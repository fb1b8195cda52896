package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/maheshrc27/contentops/internal/models"
)

// graphClient talks to the Meta Graph API, which Facebook Pages and Instagram
// business accounts share.
type graphClient struct {
	baseURL string
	client  *http.Client
}

func newGraphClient(baseURL string, client *http.Client) graphClient {
	if client == nil {
		client = http.DefaultClient
	}
	return graphClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type graphError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

type graphResponse struct {
	ID          string      `json:"id"`
	PostID      string      `json:"post_id"`
	AccessToken string      `json:"access_token"`
	ExpiresIn   int         `json:"expires_in"`
	Error       *graphError `json:"error"`
}

// post sends a form-encoded POST to path and decodes the Graph response. Non-2xx
// answers become a *PublishError tagged with platform.
func (g graphClient) post(ctx context.Context, platform models.Platform, path string, form url.Values) (*graphResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return g.do(req, platform)
}

func (g graphClient) get(ctx context.Context, platform models.Platform, path string, query url.Values) (*graphResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	return g.do(req, platform)
}

func (g graphClient) do(req *http.Request, platform models.Platform) (*graphResponse, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	var out graphResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		pe := &PublishError{Platform: platform, Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Code: resp.StatusCode}
		if decodeErr == nil && out.Error != nil {
			if out.Error.Message != "" {
				pe.Message = out.Error.Message
			}
			if out.Error.Code != 0 {
				pe.Code = out.Error.Code
			}
		}
		return nil, pe
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("error parsing response: %w", decodeErr)
	}
	return &out, nil
}
