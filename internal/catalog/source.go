package catalog

import (
	"context"
	"fmt"
	"strings"

	"modelhub/pkg/models"
)

// SourceName is the name the local catalog registers under.
const SourceName = "local"

// Source exposes the local SQLite catalog as one more upstream.
type Source struct {
	Repo *Repo
}

func NewSource(repo *Repo) *Source {
	return &Source{Repo: repo}
}

func (s *Source) Name() string { return SourceName }

func (s *Source) Search(ctx context.Context, query string, page, pageSize int, sort models.SortKey) (models.SourceBatch, error) {
	return s.list(ctx, ListQuery{Q: query, Sort: sort}, page, pageSize)
}

func (s *Source) Trending(ctx context.Context, page, pageSize int) (models.SourceBatch, error) {
	return s.list(ctx, ListQuery{Sort: models.SortLikes}, page, pageSize)
}

func (s *Source) list(ctx context.Context, q ListQuery, page, pageSize int) (models.SourceBatch, error) {
	if page < 1 {
		page = 1
	}
	q.Limit = pageSize
	q.Offset = (page - 1) * pageSize

	total, err := s.Repo.Count(ctx, q)
	if err != nil {
		return models.SourceBatch{}, fmt.Errorf("local: %w", err)
	}
	items, err := s.Repo.List(ctx, q)
	if err != nil {
		return models.SourceBatch{}, fmt.Errorf("local: %w", err)
	}
	return models.SourceBatch{Source: SourceName, Total: total, Items: items}, nil
}

func (s *Source) Details(ctx context.Context, externalID string) (*models.Listing, error) {
	l, err := s.Repo.Get(ctx, strings.TrimSpace(externalID))
	if err != nil {
		return nil, fmt.Errorf("local: %w", err)
	}
	if l == nil {
		return nil, fmt.Errorf("local: listing %s not found", externalID)
	}
	return l, nil
}
