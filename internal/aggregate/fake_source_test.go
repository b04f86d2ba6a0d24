package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"modelhub/pkg/models"
)

// fakeSource is a scripted adapter that records how it was called.
type fakeSource struct {
	name   string
	total  int
	items  []models.Listing
	err    error
	panics bool
	delay  time.Duration

	detail *models.Listing

	mu       sync.Mutex
	calls    int
	pageSize int
	page     int
	sort     models.SortKey
}

func newFake(name string, total int, ids ...string) *fakeSource {
	f := &fakeSource{name: name, total: total}
	for _, id := range ids {
		f.items = append(f.items, models.Listing{Source: name, ExternalID: id, Title: id})
	}
	return f
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) record(page, pageSize int, sort models.SortKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.page = page
	f.pageSize = pageSize
	f.sort = sort
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSource) answer(ctx context.Context, pageSize int) (models.SourceBatch, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return models.SourceBatch{}, ctx.Err()
		}
	}
	if f.panics {
		panic("boom")
	}
	if f.err != nil {
		return models.SourceBatch{}, f.err
	}
	items := f.items
	if len(items) > pageSize {
		items = items[:pageSize]
	}
	return models.SourceBatch{Source: f.name, Total: f.total, Items: items}, nil
}

func (f *fakeSource) Search(ctx context.Context, query string, page, pageSize int, sort models.SortKey) (models.SourceBatch, error) {
	f.record(page, pageSize, sort)
	return f.answer(ctx, pageSize)
}

func (f *fakeSource) Trending(ctx context.Context, page, pageSize int) (models.SourceBatch, error) {
	f.record(page, pageSize, "")
	return f.answer(ctx, pageSize)
}

func (f *fakeSource) Details(ctx context.Context, externalID string) (*models.Listing, error) {
	f.record(0, 0, "")
	if f.panics {
		panic("boom")
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.detail != nil && f.detail.ExternalID == externalID {
		l := *f.detail
		return &l, nil
	}
	return nil, fmt.Errorf("%s: %s: %w", f.name, externalID, errUpstreamMissing)
}

var errUpstreamMissing = errors.New("upstream 404")

func ids(items []models.Listing) []string {
	out := make([]string, 0, len(items))
	for _, l := range items {
		out = append(out, l.ExternalID)
	}
	return out
}
