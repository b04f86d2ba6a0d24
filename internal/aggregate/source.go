package aggregate

import (
	"context"

	"modelhub/pkg/models"
)

// Source is implemented by each upstream catalog adapter. An adapter
// speaks its upstream's protocol, enforces its own timeout and maps the
// payload into models.Listing. Adapters may keep internal caches; they
// must be safe for concurrent use.
type Source interface {
	Name() string
	Search(ctx context.Context, query string, page, pageSize int, sort models.SortKey) (models.SourceBatch, error)
	Trending(ctx context.Context, page, pageSize int) (models.SourceBatch, error)
	Details(ctx context.Context, externalID string) (*models.Listing, error)
}
