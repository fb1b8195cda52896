package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/maheshrc27/contentops/internal/models"
)

type ContentRepository interface {
	CreateContentItem(ctx context.Context, item *models.ContentItem) error
	GetContentItem(ctx context.Context, id string) (*models.ContentItem, error)
	UpdateContentItem(ctx context.Context, id string, u models.ContentUpdate) error
}

type contentRepository struct {
	db *DB
}

func NewContentRepository(db *DB) ContentRepository {
	return &contentRepository{db: db}
}

var contentColumns = []string{
	"c.id", "c.platform", "c.post_type", "c.caption", "c.hashtags", "c.link_url", "c.image_url",
	"c.status", "c.scheduled_for", "c.posted_at", "c.external_post_id", "c.error",
	"c.created_at", "c.updated_at",
}

func (r *contentRepository) CreateContentItem(ctx context.Context, item *models.ContentItem) error {
	hashtags, err := encodeHashtags(item.Hashtags)
	if err != nil {
		return err
	}
	now := r.db.timestamp()
	if item.Status == "" {
		item.Status = models.ContentStatusDraft
	}

	_, err = exec(ctx, r.db.conn, r.db.sb.
		Insert("content_items").
		Columns("id", "platform", "post_type", "caption", "hashtags", "link_url", "image_url",
			"status", "scheduled_for", "posted_at", "external_post_id", "error", "created_at", "updated_at").
		Values(item.ID, string(item.Platform), string(item.PostType), item.Caption, hashtags, item.LinkURL, item.ImageURL,
			string(item.Status), utcPtr(item.ScheduledFor), utcPtr(item.PostedAt), item.ExternalPostID, item.Error, now, now))
	if err != nil {
		return fmt.Errorf("insert content item: %w", err)
	}
	item.CreatedAt, item.UpdatedAt = now, now
	return nil
}

func (r *contentRepository) GetContentItem(ctx context.Context, id string) (*models.ContentItem, error) {
	return getContentItem(ctx, r.db, r.db.conn, id)
}

func getContentItem(ctx context.Context, db *DB, q queryer, id string) (*models.ContentItem, error) {
	query, args, err := db.sb.Select(contentColumns...).From("content_items c").Where(sq.Eq{"c.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build content select: %w", err)
	}

	item, err := scanContentItem(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get content item %s: %w", id, err)
	}
	return item, nil
}

func (r *contentRepository) UpdateContentItem(ctx context.Context, id string, u models.ContentUpdate) error {
	return updateContentItem(ctx, r.db, r.db.conn, id, u)
}

func updateContentItem(ctx context.Context, db *DB, q queryer, id string, u models.ContentUpdate) error {
	if u.IsEmpty() {
		return nil
	}

	b := db.sb.Update("content_items").Set("updated_at", db.timestamp())
	if u.Status != nil {
		b = b.Set("status", string(*u.Status))
	}
	if u.ScheduledFor != nil {
		b = b.Set("scheduled_for", u.ScheduledFor.UTC())
	}
	if u.PostedAt != nil {
		b = b.Set("posted_at", u.PostedAt.UTC())
	}
	if u.ExternalPostID != nil {
		b = b.Set("external_post_id", *u.ExternalPostID)
	}
	switch {
	case u.ClearError:
		b = b.Set("error", nil)
	case u.Error != nil:
		b = b.Set("error", *u.Error)
	}

	res, err := exec(ctx, q, b.Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("update content item %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContentItem(row rowScanner) (*models.ContentItem, error) {
	var (
		item     models.ContentItem
		hashtags string
		dst      = contentScanDest{}
	)
	err := row.Scan(dst.targets(&item, &hashtags)...)
	if err != nil {
		return nil, err
	}
	if err := dst.apply(&item, hashtags); err != nil {
		return nil, err
	}
	return &item, nil
}

// contentScanDest holds the nullable columns of a content_items row while scanning.
type contentScanDest struct {
	linkURL, imageURL, externalPostID, errText sql.NullString
	scheduledFor, postedAt                     sql.NullTime
	platform, postType, status                 string
}

func (d *contentScanDest) targets(item *models.ContentItem, hashtags *string) []any {
	return []any{
		&item.ID, &d.platform, &d.postType, &item.Caption, hashtags, &d.linkURL, &d.imageURL,
		&d.status, &d.scheduledFor, &d.postedAt, &d.externalPostID, &d.errText,
		&item.CreatedAt, &item.UpdatedAt,
	}
}

func (d *contentScanDest) apply(item *models.ContentItem, hashtags string) error {
	item.Platform = models.Platform(d.platform)
	item.PostType = models.PostType(d.postType)
	item.Status = models.ContentStatus(d.status)
	item.LinkURL = nullableString(d.linkURL)
	item.ImageURL = nullableString(d.imageURL)
	item.ExternalPostID = nullableString(d.externalPostID)
	item.Error = nullableString(d.errText)
	item.ScheduledFor = nullableTime(d.scheduledFor)
	item.PostedAt = nullableTime(d.postedAt)

	tags, err := decodeHashtags(hashtags)
	if err != nil {
		return fmt.Errorf("content item %s: %w", item.ID, err)
	}
	item.Hashtags = tags
	return nil
}

func encodeHashtags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode hashtags: %w", err)
	}
	return string(b), nil
}

func decodeHashtags(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("decode hashtags: %w", err)
	}
	return tags, nil
}
