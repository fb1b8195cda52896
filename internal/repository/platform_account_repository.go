package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/maheshrc27/contentops/internal/models"
)

type PlatformAccountRepository interface {
	CreatePlatformAccount(ctx context.Context, a *models.PlatformAccount) error
	GetActivePlatformAccount(ctx context.Context, platform models.Platform) (*models.PlatformAccount, error)
	ListExpiringAccounts(ctx context.Context, platforms []models.Platform, before time.Time) ([]*models.PlatformAccount, error)
	SetAccountToken(ctx context.Context, id int64, accessToken string, expiresAt *time.Time) error
}

type platformAccountRepository struct {
	db *DB
}

func NewPlatformAccountRepository(db *DB) PlatformAccountRepository {
	return &platformAccountRepository{db: db}
}

var accountColumns = []string{
	"id", "platform", "account_id", "access_token", "api_key", "api_secret", "access_secret",
	"token_expires_at", "active", "created_at", "updated_at",
}

func (r *platformAccountRepository) CreatePlatformAccount(ctx context.Context, a *models.PlatformAccount) error {
	now := r.db.timestamp()
	query, args, err := r.db.sb.
		Insert("platform_credentials").
		Columns("platform", "account_id", "access_token", "api_key", "api_secret", "access_secret",
			"token_expires_at", "active", "created_at", "updated_at").
		Values(string(a.Platform), a.AccountID, a.AccessToken, a.APIKey, a.APISecret, a.AccessSecret,
			utcPtr(a.TokenExpiresAt), a.Active, now, now).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build account insert: %w", err)
	}
	if err := r.db.conn.QueryRowContext(ctx, query, args...).Scan(&a.ID); err != nil {
		return fmt.Errorf("insert platform account: %w", err)
	}
	a.CreatedAt, a.UpdatedAt = now, now
	return nil
}

// GetActivePlatformAccount returns the most recently updated active row for platform.
func (r *platformAccountRepository) GetActivePlatformAccount(ctx context.Context, platform models.Platform) (*models.PlatformAccount, error) {
	query, args, err := r.db.sb.Select(accountColumns...).
		From("platform_credentials").
		Where(sq.Eq{"platform": string(platform), "active": true}).
		OrderBy("updated_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build account select: %w", err)
	}

	a, err := scanPlatformAccount(r.db.conn.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s account: %w", platform, err)
	}
	return a, nil
}

// ListExpiringAccounts returns active accounts on the given platforms whose token
// expires before the cutoff. Rows without an expiry are never returned.
func (r *platformAccountRepository) ListExpiringAccounts(ctx context.Context, platforms []models.Platform, before time.Time) ([]*models.PlatformAccount, error) {
	names := make([]string, 0, len(platforms))
	for _, p := range platforms {
		names = append(names, string(p))
	}

	query, args, err := r.db.sb.Select(accountColumns...).
		From("platform_credentials").
		Where(sq.Eq{"platform": names, "active": true}).
		Where(sq.NotEq{"token_expires_at": nil}).
		Where(sq.Lt{"token_expires_at": before.UTC()}).
		OrderBy("token_expires_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build account select: %w", err)
	}

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expiring accounts: %w", err)
	}
	defer rows.Close()

	var out []*models.PlatformAccount
	for rows.Next() {
		a, err := scanPlatformAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan platform account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *platformAccountRepository) SetAccountToken(ctx context.Context, id int64, accessToken string, expiresAt *time.Time) error {
	res, err := exec(ctx, r.db.conn, r.db.sb.
		Update("platform_credentials").
		Set("access_token", accessToken).
		Set("token_expires_at", utcPtr(expiresAt)).
		Set("updated_at", r.db.timestamp()).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("update account %d token: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPlatformAccount(row rowScanner) (*models.PlatformAccount, error) {
	var (
		a         models.PlatformAccount
		platform  string
		expiresAt sql.NullTime
	)
	if err := row.Scan(&a.ID, &platform, &a.AccountID, &a.AccessToken, &a.APIKey, &a.APISecret,
		&a.AccessSecret, &expiresAt, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Platform = models.Platform(platform)
	a.TokenExpiresAt = nullableTime(expiresAt)
	return &a, nil
}
