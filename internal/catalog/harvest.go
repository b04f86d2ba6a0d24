package catalog

import (
	"context"
	"fmt"
	"strings"

	"modelhub/internal/aggregate"
	"modelhub/internal/logging"
	"modelhub/pkg/models"
)

// Harvester pulls trending pages from remote sources so the catalog can be
// served offline as the "local" source.
type Harvester struct {
	Sources  []aggregate.Source
	Pages    int
	PageSize int
}

func NewHarvester(sources []aggregate.Source, pages, pageSize int) *Harvester {
	remote := make([]aggregate.Source, 0, len(sources))
	for _, s := range sources {
		if s.Name() != SourceName {
			remote = append(remote, s)
		}
	}
	if pages < 1 {
		pages = 1
	}
	if pageSize < 1 || pageSize > aggregate.MaxPageSize {
		pageSize = aggregate.DefaultPageSize
	}
	return &Harvester{Sources: remote, Pages: pages, PageSize: pageSize}
}

// FetchAll walks every source's trending feed. A broken source is logged
// and skipped. External ids are rewritten to "<source>:<id>" so listings of
// different upstreams never collide in the catalog; the first copy wins.
func (h *Harvester) FetchAll(ctx context.Context) []models.Listing {
	seen := make(map[string]struct{})
	var out []models.Listing

	for _, src := range h.Sources {
		before := len(out)
		log := logging.With("harvest").With().Str("source", src.Name()).Logger()
		for page := 1; page <= h.Pages; page++ {
			batch, err := trendingPage(ctx, src, page, h.PageSize)
			if err != nil {
				log.Warn().Err(err).Int("page", page).Msg("harvest page failed")
				break
			}
			for _, l := range batch.Items {
				key := catalogID(src.Name(), l.ExternalID)
				if _, dup := seen[key]; dup || l.ExternalID == "" {
					continue
				}
				seen[key] = struct{}{}
				l.ExternalID = key
				l.Source = SourceName
				out = append(out, l)
			}
			if len(batch.Items) < h.PageSize {
				break
			}
		}
		log.Info().Int("listings", len(out)-before).Msg("harvested source")
	}
	return out
}

// trendingPage turns an adapter panic into an error so one source cannot
// take the whole harvest down.
func trendingPage(ctx context.Context, src aggregate.Source, page, pageSize int) (batch models.SourceBatch, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", src.Name(), r)
		}
	}()
	return src.Trending(ctx, page, pageSize)
}

func catalogID(source, externalID string) string {
	return strings.ToLower(source) + ":" + externalID
}
