package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	config "github.com/maheshrc27/contentops/configs"
	"github.com/maheshrc27/contentops/internal/models"
	"github.com/maheshrc27/contentops/internal/repository"
	"github.com/maheshrc27/contentops/pkg/utils"
)

type AccountStore interface {
	GetActivePlatformAccount(ctx context.Context, platform models.Platform) (*models.PlatformAccount, error)
}

// CredentialService resolves the credentials a publisher needs. Stored accounts win;
// Instagram and X fall back to the process environment.
type CredentialService struct {
	accounts  AccountStore
	cfg       *config.Config
	secretKey []byte
}

func NewCredentialService(accounts AccountStore, cfg *config.Config) *CredentialService {
	return &CredentialService{accounts: accounts, cfg: cfg, secretKey: []byte(cfg.SecretKey)}
}

func (s *CredentialService) Resolve(ctx context.Context, platform models.Platform) (models.Credentials, error) {
	acc, err := s.accounts.GetActivePlatformAccount(ctx, platform)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load %s account: %w", platform, err)
	}
	if acc != nil {
		acc, err = s.reveal(acc)
		if err != nil {
			return nil, err
		}
	}

	switch platform {
	case models.PlatformFacebook:
		if acc == nil || acc.AccountID == "" || acc.AccessToken == "" {
			return nil, fmt.Errorf("facebook page: %w", ErrNoCredentials)
		}
		return models.FacebookCredentials{PageID: acc.AccountID, PageAccessToken: acc.AccessToken}, nil

	case models.PlatformInstagram:
		creds := models.InstagramCredentials{AccountID: s.cfg.Instagram.AccountID, AccessToken: s.cfg.Instagram.AccessToken}
		if acc != nil {
			creds = models.InstagramCredentials{AccountID: acc.AccountID, AccessToken: acc.AccessToken}
		}
		if creds.AccountID == "" || creds.AccessToken == "" {
			return nil, fmt.Errorf("instagram requires INSTAGRAM_ACCOUNT_ID and an access token: %w", ErrNoCredentials)
		}
		return creds, nil

	case models.PlatformX:
		creds := models.XCredentials{
			APIKey:       s.cfg.X.APIKey,
			APISecret:    s.cfg.X.APISecret,
			AccessToken:  s.cfg.X.AccessToken,
			AccessSecret: s.cfg.X.AccessSecret,
		}
		if acc != nil {
			creds = models.XCredentials{APIKey: acc.APIKey, APISecret: acc.APISecret, AccessToken: acc.AccessToken, AccessSecret: acc.AccessSecret}
		}
		if !creds.Complete() {
			return nil, fmt.Errorf("x requires X_API_KEY, X_API_SECRET, X_ACCESS_TOKEN and X_ACCESS_SECRET: %w", ErrNoCredentials)
		}
		return creds, nil

	default:
		return nil, fmt.Errorf("unknown platform %q", platform)
	}
}

func (s *CredentialService) reveal(acc *models.PlatformAccount) (*models.PlatformAccount, error) {
	out := *acc
	for _, f := range []*string{&out.AccessToken, &out.APISecret, &out.AccessSecret} {
		v, err := utils.RevealToken(*f, s.secretKey)
		if err != nil {
			return nil, fmt.Errorf("decrypt %s account %d: %w", acc.Platform, acc.ID, err)
		}
		*f = v
	}
	return &out, nil
}

// MetaTokenExchanger trades a Meta access token for a fresh long-lived one.
type MetaTokenExchanger struct {
	graph     graphClient
	appID     string
	appSecret string
	now       func() time.Time
}

func NewMetaTokenExchanger(graphAPIBase, appID, appSecret string, client *http.Client) *MetaTokenExchanger {
	return &MetaTokenExchanger{
		graph:     newGraphClient(graphAPIBase, client),
		appID:     appID,
		appSecret: appSecret,
		now:       time.Now,
	}
}

func (m *MetaTokenExchanger) Enabled() bool {
	return m.appID != "" && m.appSecret != ""
}

// Exchange returns the new token and its expiry. A nil expiry means the token does
// not expire (page tokens derived from a long-lived user token).
func (m *MetaTokenExchanger) Exchange(ctx context.Context, platform models.Platform, token string) (string, *time.Time, error) {
	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", m.appID)
	q.Set("client_secret", m.appSecret)
	q.Set("fb_exchange_token", token)

	res, err := m.graph.get(ctx, platform, "/oauth/access_token", q)
	if err != nil {
		return "", nil, err
	}
	if res.AccessToken == "" {
		return "", nil, errors.New("no access token returned from Graph API")
	}
	return res.AccessToken, GetExpiresAt(m.now(), res.ExpiresIn), nil
}
