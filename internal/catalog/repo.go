package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"modelhub/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

type ListQuery struct {
	Q      string // keyword search in title/creator/description; empty lists everything
	Sort   models.SortKey
	Limit  int
	Offset int
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

const listingColumns = `
	external_id, title, description, thumbnail_url, images, creator_name, creator_profile,
	price, currency, is_free, subscription, likes, views, makes, file_count,
	license, category, created_at, url`

type scanner interface {
	Scan(dest ...any) error
}

func scanListing(s scanner) (models.Listing, error) {
	var (
		l              models.Listing
		description    sql.NullString
		thumbnail      sql.NullString
		imagesJSON     sql.NullString
		creatorName    sql.NullString
		creatorProfile sql.NullString
		currency       sql.NullString
		license        sql.NullString
		category       sql.NullString
		createdAt      sql.NullTime
		url            sql.NullString
	)
	if err := s.Scan(
		&l.ExternalID, &l.Title, &description, &thumbnail, &imagesJSON, &creatorName, &creatorProfile,
		&l.Price, &currency, &l.IsFree, &l.Subscription, &l.Likes, &l.Views, &l.Makes, &l.FileCount,
		&license, &category, &createdAt, &url,
	); err != nil {
		return l, err
	}

	l.Source = SourceName
	l.Description = description.String
	l.ThumbnailURL = thumbnail.String
	l.CreatorName = creatorName.String
	l.CreatorProfile = creatorProfile.String
	l.Currency = currency.String
	l.License = license.String
	l.Category = category.String
	l.URL = url.String
	if createdAt.Valid {
		l.CreatedAt = createdAt.Time.UTC()
	}
	if imagesJSON.String != "" {
		_ = json.Unmarshal([]byte(imagesJSON.String), &l.Images)
	}
	return l, nil
}

// Get returns nil, nil when the listing does not exist.
func (r *Repo) Get(ctx context.Context, externalID string) (*models.Listing, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE external_id = ?`, externalID)
	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan get: %w", err)
	}
	return &l, nil
}

func (r *Repo) Count(ctx context.Context, q ListQuery) (int, error) {
	sqlStr, args := buildListSQL(q, true)
	var total int
	if err := r.DB.QueryRowContext(ctx, sqlStr, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count scan: %w", err)
	}
	return total, nil
}

func (r *Repo) List(ctx context.Context, q ListQuery) ([]models.Listing, error) {
	sqlStr, args := buildListSQL(q, false)

	rows, err := r.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list query: %w", err)
	}
	defer rows.Close()

	out := make([]models.Listing, 0, max(q.Limit, 0))
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("list scan: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// Upsert writes listings in one transaction, replacing existing rows with
// the same external id.
func (r *Repo) Upsert(ctx context.Context, listings []models.Listing) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO listings (`+listingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
		  title = excluded.title,
		  description = excluded.description,
		  thumbnail_url = excluded.thumbnail_url,
		  images = excluded.images,
		  creator_name = excluded.creator_name,
		  creator_profile = excluded.creator_profile,
		  price = excluded.price,
		  currency = excluded.currency,
		  is_free = excluded.is_free,
		  subscription = excluded.subscription,
		  likes = excluded.likes,
		  views = excluded.views,
		  makes = excluded.makes,
		  file_count = excluded.file_count,
		  license = excluded.license,
		  category = excluded.category,
		  created_at = excluded.created_at,
		  url = excluded.url
	`)
	if err != nil {
		return fmt.Errorf("prepare stmt: %w", err)
	}
	defer stmt.Close()

	for _, l := range listings {
		imagesJSON, err := json.Marshal(l.Images)
		if err != nil {
			return fmt.Errorf("marshal images for %s: %w", l.ExternalID, err)
		}
		var created sql.NullTime
		if !l.CreatedAt.IsZero() {
			created = sql.NullTime{Time: l.CreatedAt.UTC().Truncate(time.Second), Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			l.ExternalID, l.Title, nullString(l.Description), nullString(l.ThumbnailURL), string(imagesJSON),
			nullString(l.CreatorName), nullString(l.CreatorProfile),
			l.Price, nullString(l.Currency), l.IsFree, l.Subscription,
			l.Likes, l.Views, l.Makes, l.FileCount,
			nullString(l.License), nullString(l.Category), created, nullString(l.URL),
		); err != nil {
			return fmt.Errorf("exec upsert for %s: %w", l.ExternalID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// buildListSQL builds either COUNT(*) or the paged SELECT.
func buildListSQL(q ListQuery, countOnly bool) (string, []any) {
	sqlStr := `SELECT ` + listingColumns + ` FROM listings`
	if countOnly {
		sqlStr = `SELECT COUNT(*) FROM listings`
	}

	var args []any
	if kw := strings.ToLower(strings.TrimSpace(q.Q)); kw != "" {
		sqlStr += " WHERE (LOWER(title) LIKE ? OR LOWER(creator_name) LIKE ? OR LOWER(description) LIKE ?)"
		like := "%" + kw + "%"
		args = append(args, like, like, like)
	}
	if countOnly {
		return sqlStr, args
	}

	sqlStr += " ORDER BY " + orderBy(q.Sort)
	sqlStr += " LIMIT ? OFFSET ?"

	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	return sqlStr, args
}

func orderBy(sort models.SortKey) string {
	switch sort {
	case models.SortNewest:
		return "created_at DESC, external_id ASC"
	case models.SortLikes:
		return "likes DESC, external_id ASC"
	case models.SortPriceAsc:
		return "price ASC, external_id ASC"
	case models.SortPriceDesc:
		return "price DESC, external_id ASC"
	default:
		return "likes DESC, title ASC, external_id ASC"
	}
}

// All returns the whole catalog, most liked first, reading it in pages.
func (r *Repo) All(ctx context.Context) ([]models.Listing, error) {
	const batch = 100
	var out []models.Listing
	for offset := 0; ; offset += batch {
		page, err := r.List(ctx, ListQuery{Sort: models.SortLikes, Limit: batch, Offset: offset})
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < batch {
			return out, nil
		}
	}
}
