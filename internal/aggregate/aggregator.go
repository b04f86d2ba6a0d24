package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"modelhub/internal/logging"
	"modelhub/pkg/models"
)

var (
	// ErrUnknownSource is returned when a requested source name matches no adapter.
	ErrUnknownSource = errors.New("unknown source")
	// ErrNotFound is returned when a detail lookup yields nothing.
	ErrNotFound = errors.New("not found")
)

// UnknownSourceError lists the allow-list names that matched no adapter.
type UnknownSourceError struct {
	Names []string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown source: %s", strings.Join(e.Names, ", "))
}

func (e *UnknownSourceError) Unwrap() error { return ErrUnknownSource }

type Options struct {
	MaxPageSize      int
	MinTrendingBatch int
	// SourceTimeout bounds every adapter call on top of the adapter's own
	// timeout. Zero leaves it to the adapter.
	SourceTimeout time.Duration
}

// Aggregator fans a request out to every selected source and merges the
// answers into one page. The source order given at construction is the
// order used for merging, whatever order the calls complete in.
type Aggregator struct {
	sources []Source
	opts    Options
}

// NewAggregator creates an Aggregator over sources, in registration order.
func NewAggregator(opts Options, sources ...Source) *Aggregator {
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = MaxPageSize
	}
	if opts.MinTrendingBatch <= 0 {
		opts.MinTrendingBatch = MinTrendingBatch
	}
	return &Aggregator{sources: sources, opts: opts}
}

// SourceNames returns the registered source names in order.
func (a *Aggregator) SourceNames() []string {
	names := make([]string, 0, len(a.sources))
	for _, s := range a.sources {
		names = append(names, s.Name())
	}
	return names
}

// Sources returns the registered adapters in order.
func (a *Aggregator) Sources() []Source {
	return append([]Source(nil), a.sources...)
}

// Select resolves an allow-list into adapters, keeping registration order.
// An empty list selects everything.
func (a *Aggregator) Select(names []string) ([]Source, error) {
	if len(names) == 0 {
		return a.Sources(), nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.ToLower(strings.TrimSpace(n))] = false
	}

	selected := make([]Source, 0, len(names))
	for _, s := range a.sources {
		key := strings.ToLower(s.Name())
		if _, ok := want[key]; ok {
			selected = append(selected, s)
			want[key] = true
		}
	}

	var unknown []string
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if !want[key] {
			unknown = append(unknown, n)
			want[key] = true // report each name once
		}
	}
	if len(unknown) > 0 {
		return nil, &UnknownSourceError{Names: unknown}
	}
	return selected, nil
}

// Lookup finds one adapter by case-insensitive name.
func (a *Aggregator) Lookup(name string) (Source, bool) {
	name = strings.TrimSpace(name)
	for _, s := range a.sources {
		if strings.EqualFold(s.Name(), name) {
			return s, true
		}
	}
	return nil, false
}

// Run dispatches to Search or Trending depending on the query.
func (a *Aggregator) Run(ctx context.Context, req Request) (Response, error) {
	if req.Trending() {
		return a.Trending(ctx, req)
	}
	return a.Search(ctx, req)
}

// Search queries every selected source for a full page each. Asking each
// source for pageSize items (rather than an even share) keeps the merged
// page full when some sources come back short.
func (a *Aggregator) Search(ctx context.Context, req Request) (Response, error) {
	req = req.Normalize(a.opts.MaxPageSize)
	srcs, err := a.Select(req.Sources)
	if err != nil {
		return Response{}, err
	}

	logging.Ctx(ctx).Debug().
		Str("query", req.Query).
		Int("page", req.Page).
		Int("page_size", req.PageSize).
		Int("sources", len(srcs)).
		Msg("search fan-out")

	batches := a.fanOut(ctx, srcs, "search", searchCall(req.Query, req.Page, req.PageSize, req.Sort))
	return Merge(batches, req), nil
}

// Trending asks each selected source for an even share of the page,
// never fewer than the minimum trending batch.
func (a *Aggregator) Trending(ctx context.Context, req Request) (Response, error) {
	req = req.Normalize(a.opts.MaxPageSize)
	req.Query = ""
	srcs, err := a.Select(req.Sources)
	if err != nil {
		return Response{}, err
	}
	if len(srcs) == 0 {
		return Merge(nil, req), nil
	}

	share := TrendingShare(req.PageSize, len(srcs), a.opts.MinTrendingBatch)
	logging.Ctx(ctx).Debug().
		Int("page", req.Page).
		Int("share", share).
		Int("sources", len(srcs)).
		Msg("trending fan-out")

	batches := a.fanOut(ctx, srcs, "trending", trendingCall(req.Page, share))
	return Merge(batches, req), nil
}

// TrendingShare is max(minBatch, pageSize/sourceCount).
func TrendingShare(pageSize, sourceCount, minBatch int) int {
	if sourceCount <= 0 {
		return max(minBatch, pageSize)
	}
	return max(minBatch, pageSize/sourceCount)
}

// fanOut runs fn against every source concurrently and waits for all of
// them. Batches come back indexed by source position.
func (a *Aggregator) fanOut(ctx context.Context, srcs []Source, op string, fn call) []models.SourceBatch {
	batches := make([]models.SourceBatch, len(srcs))

	var wg sync.WaitGroup
	for i, src := range srcs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batches[i] = safeInvoke(ctx, src, op, a.opts.SourceTimeout, fn)
		}()
	}
	wg.Wait()

	return batches
}

// Details looks up one listing. An unregistered source yields
// ErrUnknownSource without calling any adapter; any adapter failure is
// reported as ErrNotFound.
func (a *Aggregator) Details(ctx context.Context, source, externalID string) (*models.Listing, error) {
	src, ok := a.Lookup(source)
	if !ok {
		return nil, &UnknownSourceError{Names: []string{source}}
	}

	start := time.Now()
	l, err := safeDetails(ctx, src, externalID, a.opts.SourceTimeout)
	if err != nil {
		logging.Ctx(ctx).Info().
			Err(err).
			Str("source", src.Name()).
			Str("external_id", externalID).
			Dur("duration", time.Since(start)).
			Msg("detail lookup failed")
		return nil, ErrNotFound
	}
	if l == nil {
		return nil, ErrNotFound
	}
	c := *l
	if c.Source == "" {
		c.Source = src.Name()
	}
	return &c, nil
}

func safeDetails(ctx context.Context, src Source, externalID string, timeout time.Duration) (l *models.Listing, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			l, err = nil, fmt.Errorf("details panicked: %v", r)
		}
	}()
	return src.Details(ctx, externalID)
}
