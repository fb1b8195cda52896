package job

import (
	"context"
	"sync"
	"time"

	"github.com/maheshrc27/contentops/internal/metrics"
	"github.com/maheshrc27/contentops/internal/models"
	"github.com/maheshrc27/contentops/pkg/utils"
	"github.com/rs/zerolog"
)

type ExpiringAccountStore interface {
	ListExpiringAccounts(ctx context.Context, platforms []models.Platform, before time.Time) ([]*models.PlatformAccount, error)
	SetAccountToken(ctx context.Context, id int64, accessToken string, expiresAt *time.Time) error
}

type TokenExchanger interface {
	Enabled() bool
	Exchange(ctx context.Context, platform models.Platform, token string) (string, *time.Time, error)
}

// TokenRefreshJob swaps Meta access tokens that are about to expire for fresh
// long-lived ones. X uses OAuth 1.0a tokens, which do not expire.
type TokenRefreshJob struct {
	accounts  ExpiringAccountStore
	exchanger TokenExchanger
	secretKey []byte
	window    time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

func NewTokenRefreshJob(accounts ExpiringAccountStore, exchanger TokenExchanger, secretKey string, log zerolog.Logger) *TokenRefreshJob {
	return &TokenRefreshJob{
		accounts:  accounts,
		exchanger: exchanger,
		secretKey: []byte(secretKey),
		window:    30 * time.Minute,
		log:       log,
		now:       time.Now,
	}
}

func (c *TokenRefreshJob) RefreshTokens() {
	if !c.exchanger.Enabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	before := c.now().Add(c.window)
	accounts, err := c.accounts.ListExpiringAccounts(ctx, []models.Platform{models.PlatformFacebook, models.PlatformInstagram}, before)
	if err != nil {
		c.log.Error().Err(err).Msg("list expiring accounts")
		return
	}
	if len(accounts) == 0 {
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 4
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.PlatformAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.refresh(ctx, acc); err != nil {
				metrics.IncTokenRefresh(string(acc.Platform), "error")
				c.log.Warn().Err(err).Int64("account", acc.ID).Str("platform", string(acc.Platform)).Msg("unable to refresh access token")
				return
			}
			metrics.IncTokenRefresh(string(acc.Platform), "ok")
			c.log.Info().Int64("account", acc.ID).Str("platform", string(acc.Platform)).Msg("access token refreshed")
		}(acc)
	}
	wg.Wait()
}

func (c *TokenRefreshJob) refresh(ctx context.Context, acc *models.PlatformAccount) error {
	current, err := utils.RevealToken(acc.AccessToken, c.secretKey)
	if err != nil {
		return err
	}

	fresh, expiresAt, err := c.exchanger.Exchange(ctx, acc.Platform, current)
	if err != nil {
		return err
	}

	stored, err := utils.ConcealToken(fresh, c.secretKey)
	if err != nil {
		return err
	}
	return c.accounts.SetAccountToken(ctx, acc.ID, stored, expiresAt)
}
