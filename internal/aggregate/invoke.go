package aggregate

import (
	"context"
	"fmt"
	"time"

	"modelhub/internal/logging"
	"modelhub/internal/metrics"
	"modelhub/pkg/models"
)

// call is one adapter invocation the fan-out can run.
type call func(ctx context.Context, src Source) (models.SourceBatch, error)

func searchCall(query string, page, pageSize int, sort models.SortKey) call {
	return func(ctx context.Context, src Source) (models.SourceBatch, error) {
		return src.Search(ctx, query, page, pageSize, sort)
	}
}

func trendingCall(page, pageSize int) call {
	return func(ctx context.Context, src Source) (models.SourceBatch, error) {
		return src.Trending(ctx, page, pageSize)
	}
}

// safeInvoke runs fn against src and always returns a well-formed batch.
// Errors and panics are logged and turned into an empty batch for the
// source; they never reach the caller.
func safeInvoke(ctx context.Context, src Source, op string, timeout time.Duration, fn call) (batch models.SourceBatch) {
	name := src.Name()
	start := time.Now()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			logging.Ctx(ctx).Error().
				Str("source", name).
				Str("op", op).
				Str("panic", fmt.Sprint(r)).
				Msg("source adapter panicked")
			batch = models.EmptyBatch(name)
		}
		metrics.SourceRequests.WithLabelValues(name, op, outcome).Inc()
		metrics.SourceDuration.WithLabelValues(name, op).Observe(time.Since(start).Seconds())
		metrics.SourceItems.WithLabelValues(name, op).Add(float64(len(batch.Items)))
	}()

	b, err := fn(ctx, src)
	if err != nil {
		outcome = "error"
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("source", name).
			Str("op", op).
			Dur("duration", time.Since(start)).
			Msg("source failed, contributing no results")
		return models.EmptyBatch(name)
	}

	// Adapters may hand out slices they keep in a cache; normalize a copy.
	b.Source = name
	items := make([]models.Listing, len(b.Items))
	copy(items, b.Items)
	for i := range items {
		if items[i].Source == "" {
			items[i].Source = name
		}
	}
	b.Items = items
	if b.Total < 0 {
		b.Total = 0
	}
	return b
}
