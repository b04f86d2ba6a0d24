package aggregate

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"modelhub/pkg/models"
)

func TestSearchDispatchesFullPageToEverySource(t *testing.T) {
	a := newFake("A", 10, "a1", "a2", "a3")
	b := newFake("B", 1, "b1")
	c := newFake("C", 2, "c1", "c2")
	agg := NewAggregator(Options{}, a, b, c)

	resp, err := agg.Search(context.Background(), Request{Query: "benchy", Page: 3, PageSize: 6, Sort: models.SortLikes})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	for _, f := range []*fakeSource{a, b, c} {
		if f.pageSize != 6 || f.page != 3 || f.sort != models.SortLikes {
			t.Errorf("%s called with page=%d size=%d sort=%q", f.name, f.page, f.pageSize, f.sort)
		}
	}
	if resp.TotalCount != 13 || resp.TotalPages != 3 {
		t.Errorf("totals = %d/%d", resp.TotalCount, resp.TotalPages)
	}
	if len(resp.Results) != 6 {
		t.Errorf("len(Results) = %d", len(resp.Results))
	}
}

func TestSearchRelevanceInterleavesInRegistrationOrder(t *testing.T) {
	a := newFake("A", 3, "a1", "a2", "a3")
	a.delay = 30 * time.Millisecond // completes last
	b := newFake("B", 1, "b1")
	c := newFake("C", 2, "c1", "c2")
	agg := NewAggregator(Options{}, a, b, c)

	resp, err := agg.Search(context.Background(), Request{Query: "x", PageSize: 20})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := []string{"a1", "b1", "c1", "a2", "c2", "a3"}
	if got := ids(resp.Results); !slices.Equal(got, want) {
		t.Fatalf("Results = %v, want %v", got, want)
	}
}

func TestSearchAllSourcesFail(t *testing.T) {
	a := newFake("A", 99, "a1")
	a.err = errors.New("connection refused")
	b := newFake("B", 50, "b1")
	b.panics = true
	agg := NewAggregator(Options{}, a, b)

	resp, err := agg.Search(context.Background(), Request{Query: "x", PageSize: 10})
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if resp.TotalCount != 0 || resp.TotalPages != 1 {
		t.Errorf("totals = %d/%d, want 0/1", resp.TotalCount, resp.TotalPages)
	}
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Errorf("Results = %#v, want empty non-nil", resp.Results)
	}
}

func TestSearchIsolatesOneFailure(t *testing.T) {
	a := newFake("A", 4, "a1", "a2")
	b := newFake("B", 100, "b1")
	b.err = errors.New("502 bad gateway")
	agg := NewAggregator(Options{}, a, b)

	resp, _ := agg.Search(context.Background(), Request{Query: "x", PageSize: 10})
	if resp.TotalCount != 4 {
		t.Errorf("TotalCount = %d, want 4", resp.TotalCount)
	}
	if want := []string{"a1", "a2"}; !slices.Equal(ids(resp.Results), want) {
		t.Errorf("Results = %v", ids(resp.Results))
	}
}

func TestSearchSourceAllowList(t *testing.T) {
	a := newFake("Alpha", 1, "a1")
	b := newFake("Beta", 1, "b1")
	c := newFake("Gamma", 1, "c1")
	agg := NewAggregator(Options{}, a, b, c)

	resp, err := agg.Search(context.Background(), Request{Query: "x", Sources: []string{"gamma,ALPHA"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if b.Calls() != 0 {
		t.Error("Beta was called")
	}
	if a.Calls() != 1 || c.Calls() != 1 {
		t.Errorf("calls: alpha=%d gamma=%d", a.Calls(), c.Calls())
	}
	if resp.TotalCount != 2 {
		t.Errorf("TotalCount = %d, want 2", resp.TotalCount)
	}
	if want := []string{"a1", "c1"}; !slices.Equal(ids(resp.Results), want) {
		t.Errorf("Results = %v, want registration order %v", ids(resp.Results), want)
	}
}

func TestSearchUnknownAllowListName(t *testing.T) {
	a := newFake("A", 1, "a1")
	agg := NewAggregator(Options{}, a)

	_, err := agg.Search(context.Background(), Request{Query: "x", Sources: []string{"a", "nope"}})
	if !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("err = %v, want ErrUnknownSource", err)
	}
	var use *UnknownSourceError
	if !errors.As(err, &use) || !slices.Equal(use.Names, []string{"nope"}) {
		t.Fatalf("err = %#v", err)
	}
	if a.Calls() != 0 {
		t.Error("adapter called despite unknown source")
	}
}

func TestSearchClampsPageAndSize(t *testing.T) {
	a := newFake("A", 0)
	agg := NewAggregator(Options{MaxPageSize: 50}, a)

	resp, _ := agg.Search(context.Background(), Request{Query: "x", Page: -4, PageSize: 5000})
	if resp.Page != 1 || resp.PageSize != 50 {
		t.Fatalf("page/size = %d/%d", resp.Page, resp.PageSize)
	}
	if a.pageSize != 50 || a.page != 1 {
		t.Fatalf("adapter saw page/size = %d/%d", a.page, a.pageSize)
	}
}

func TestTrendingShare(t *testing.T) {
	tests := []struct {
		pageSize, sources, want int
	}{
		{20, 2, 10},
		{20, 5, 8},
		{100, 3, 33},
		{1, 1, 8},
		{40, 0, 40},
	}
	for _, tt := range tests {
		if got := TrendingShare(tt.pageSize, tt.sources, MinTrendingBatch); got != tt.want {
			t.Errorf("TrendingShare(%d, %d) = %d, want %d", tt.pageSize, tt.sources, got, tt.want)
		}
	}
}

func TestTrendingRequestsEvenShare(t *testing.T) {
	srcs := []*fakeSource{
		newFake("A", 100, "a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8", "a9", "a10"),
		newFake("B", 100, "b1", "b2", "b3", "b4", "b5", "b6", "b7", "b8", "b9", "b10"),
	}
	agg := NewAggregator(Options{}, srcs[0], srcs[1])

	resp, err := agg.Trending(context.Background(), Request{Page: 1, PageSize: 30})
	if err != nil {
		t.Fatalf("Trending: %v", err)
	}
	for _, f := range srcs {
		if f.pageSize != 15 {
			t.Errorf("%s share = %d, want 15", f.name, f.pageSize)
		}
	}
	if len(resp.Results) != 20 || resp.TotalCount != 200 || resp.TotalPages != 7 {
		t.Errorf("resp = %d results, total %d, pages %d", len(resp.Results), resp.TotalCount, resp.TotalPages)
	}
	if resp.Results[0].Source != "A" || resp.Results[1].Source != "B" {
		t.Errorf("trending not interleaved: %v", ids(resp.Results[:2]))
	}
}

func TestTrendingMinimumBatch(t *testing.T) {
	var fakes []Source
	var raw []*fakeSource
	for _, n := range []string{"A", "B", "C", "D"} {
		f := newFake(n, 0)
		raw = append(raw, f)
		fakes = append(fakes, f)
	}
	agg := NewAggregator(Options{}, fakes...)

	if _, err := agg.Trending(context.Background(), Request{PageSize: 12}); err != nil {
		t.Fatal(err)
	}
	for _, f := range raw {
		if f.pageSize != MinTrendingBatch {
			t.Errorf("%s share = %d, want %d", f.name, f.pageSize, MinTrendingBatch)
		}
	}
}

func TestRunPicksMode(t *testing.T) {
	a := newFake("A", 1, "a1")
	agg := NewAggregator(Options{}, a)

	if _, err := agg.Run(context.Background(), Request{Query: "  ", PageSize: 4}); err != nil {
		t.Fatal(err)
	}
	if a.pageSize != MinTrendingBatch {
		t.Errorf("blank query should run trending, adapter page size = %d", a.pageSize)
	}
	if _, err := agg.Run(context.Background(), Request{Query: "cube", PageSize: 4}); err != nil {
		t.Fatal(err)
	}
	if a.pageSize != 4 {
		t.Errorf("search page size = %d", a.pageSize)
	}
}

func TestSourceTimeoutIsolatesSlowSource(t *testing.T) {
	slow := newFake("slow", 10, "s1")
	slow.delay = time.Second
	fast := newFake("fast", 1, "f1")
	agg := NewAggregator(Options{SourceTimeout: 20 * time.Millisecond}, slow, fast)

	start := time.Now()
	resp, _ := agg.Search(context.Background(), Request{Query: "x"})
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("join waited past the source timeout")
	}
	if want := []string{"f1"}; !slices.Equal(ids(resp.Results), want) {
		t.Errorf("Results = %v", ids(resp.Results))
	}
}

func TestCancellationReachesEverySource(t *testing.T) {
	a := newFake("A", 1, "a1")
	a.delay = time.Second
	b := newFake("B", 1, "b1")
	b.delay = time.Second
	agg := NewAggregator(Options{}, a, b)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	resp, err := agg.Search(ctx, Request{Query: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("cancellation did not propagate")
	}
	if len(resp.Results) != 0 || resp.TotalPages != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestDetails(t *testing.T) {
	a := newFake("Thingiverse", 0)
	a.detail = &models.Listing{ExternalID: "42", Title: "Benchy"}
	broken := newFake("broken", 0)
	broken.err = errors.New("timeout")
	agg := NewAggregator(Options{}, a, broken)

	t.Run("found case-insensitively", func(t *testing.T) {
		l, err := agg.Details(context.Background(), "THINGIVERSE", "42")
		if err != nil {
			t.Fatalf("Details: %v", err)
		}
		if l.Title != "Benchy" || l.Source != "Thingiverse" {
			t.Errorf("listing = %+v", l)
		}
	})

	t.Run("adapter miss is not found", func(t *testing.T) {
		_, err := agg.Details(context.Background(), "thingiverse", "7")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v", err)
		}
		if errors.Is(err, errUpstreamMissing) {
			t.Fatal("underlying error leaked")
		}
	})

	t.Run("adapter failure is not found", func(t *testing.T) {
		_, err := agg.Details(context.Background(), "broken", "1")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("unknown source skips adapters", func(t *testing.T) {
		before := a.Calls() + broken.Calls()
		_, err := agg.Details(context.Background(), "printables", "1")
		if !errors.Is(err, ErrUnknownSource) {
			t.Fatalf("err = %v", err)
		}
		if a.Calls()+broken.Calls() != before {
			t.Fatal("adapter invoked for unknown source")
		}
	})

	t.Run("panic is not found", func(t *testing.T) {
		p := newFake("p", 0)
		p.panics = true
		agg := NewAggregator(Options{}, p)
		if _, err := agg.Details(context.Background(), "p", "1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestPropertiesAcrossPageSizes(t *testing.T) {
	a := newFake("A", 37, "a1", "a2", "a3", "a4", "a5", "a6", "a7")
	b := newFake("B", 0, "b1", "b2")
	agg := NewAggregator(Options{}, a, b)

	for size := 1; size <= 12; size++ {
		resp, err := agg.Search(context.Background(), Request{Query: "q", PageSize: size})
		if err != nil {
			t.Fatal(err)
		}
		if len(resp.Results) > size {
			t.Errorf("size %d: %d results", size, len(resp.Results))
		}
		if want := max(1, (resp.TotalCount+size-1)/size); resp.TotalPages != want {
			t.Errorf("size %d: TotalPages = %d, want %d", size, resp.TotalPages, want)
		}
	}
}
