package aggregate

import (
	"slices"
	"testing"
	"time"

	"modelhub/pkg/models"
)

func listing(source, id string) models.Listing {
	return models.Listing{Source: source, ExternalID: id}
}

func ptr(f float64) *float64 { return &f }

func TestInterleaveRoundRobin(t *testing.T) {
	items := []models.Listing{
		listing("A", "a1"), listing("A", "a2"), listing("A", "a3"),
		listing("B", "b1"),
		listing("C", "c1"), listing("C", "c2"),
	}

	got := ids(Interleave(items))
	want := []string{"a1", "b1", "c1", "a2", "c2", "a3"}
	if !slices.Equal(got, want) {
		t.Fatalf("Interleave = %v, want %v", got, want)
	}
}

func TestInterleaveUsesEncounterOrder(t *testing.T) {
	items := []models.Listing{
		listing("B", "b1"), listing("A", "a1"), listing("B", "b2"), listing("A", "a2"),
	}
	got := ids(Interleave(items))
	want := []string{"b1", "a1", "b2", "a2"}
	if !slices.Equal(got, want) {
		t.Fatalf("Interleave = %v, want %v", got, want)
	}
}

func TestInterleaveEmpty(t *testing.T) {
	if got := Interleave(nil); len(got) != 0 {
		t.Fatalf("Interleave(nil) = %v", got)
	}
}

func TestRankSortKeys(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t2.Add(time.Hour)

	t.Run("price_asc", func(t *testing.T) {
		items := []models.Listing{
			{ExternalID: "5", Price: 5}, {ExternalID: "1", Price: 1}, {ExternalID: "3", Price: 3},
		}
		got := ids(Rank(items, models.SortPriceAsc))
		if want := []string{"1", "3", "5"}; !slices.Equal(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		if items[0].ExternalID != "5" {
			t.Fatal("input slice reordered")
		}
	})

	t.Run("price_desc", func(t *testing.T) {
		items := []models.Listing{
			{ExternalID: "5", Price: 5}, {ExternalID: "1", Price: 1}, {ExternalID: "3", Price: 3},
		}
		got := ids(Rank(items, models.SortPriceDesc))
		if want := []string{"5", "3", "1"}; !slices.Equal(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("newest", func(t *testing.T) {
		items := []models.Listing{
			{ExternalID: "t2", CreatedAt: t2}, {ExternalID: "t1", CreatedAt: t1}, {ExternalID: "t3", CreatedAt: t3},
		}
		got := ids(Rank(items, models.SortNewest))
		if want := []string{"t3", "t2", "t1"}; !slices.Equal(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("likes stable", func(t *testing.T) {
		items := []models.Listing{
			{ExternalID: "x", Likes: 3}, {ExternalID: "y", Likes: 9}, {ExternalID: "z", Likes: 3},
		}
		got := ids(Rank(items, models.SortLikes))
		if want := []string{"y", "x", "z"}; !slices.Equal(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})

	t.Run("unknown passes through", func(t *testing.T) {
		items := []models.Listing{listing("A", "a1"), listing("A", "a2"), listing("B", "b1")}
		got := ids(Rank(items, models.SortKey("downloads")))
		if want := []string{"a1", "a2", "b1"}; !slices.Equal(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})
}

func TestFilter(t *testing.T) {
	items := []models.Listing{
		{ExternalID: "free", IsFree: true, Price: 0},
		{ExternalID: "three", Price: 3},
		{ExternalID: "one", Price: 1},
	}

	tests := []struct {
		name string
		req  Request
		want []string
	}{
		{"no filters", Request{}, []string{"free", "three", "one"}},
		{"free only", Request{FreeOnly: true}, []string{"free"}},
		{"free only ignores price bounds", Request{FreeOnly: true, MinPrice: ptr(2)}, []string{"free"}},
		{"min price", Request{MinPrice: ptr(2)}, []string{"three"}},
		{"max price", Request{MaxPrice: ptr(1)}, []string{"free", "one"}},
		{"price range", Request{MinPrice: ptr(1), MaxPrice: ptr(2)}, []string{"one"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Filter(items, tt.req))
			if !slices.Equal(got, tt.want) {
				t.Fatalf("Filter = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		total, size, want int
	}{
		{0, 20, 1},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{1000, 7, 143},
		{5, 0, 1},
	}
	for _, tt := range tests {
		if got := TotalPages(tt.total, tt.size); got != tt.want {
			t.Errorf("TotalPages(%d, %d) = %d, want %d", tt.total, tt.size, got, tt.want)
		}
	}
}

func TestMergeSumsTotalsAndTruncates(t *testing.T) {
	batches := []models.SourceBatch{
		{Source: "A", Total: 100, Items: []models.Listing{listing("A", "a1"), listing("A", "a2"), listing("A", "a3")}},
		{Source: "B", Total: 5, Items: []models.Listing{listing("B", "b1"), listing("B", "b2")}},
	}
	req := Request{Page: 2, PageSize: 4}.Normalize(0)

	resp := Merge(batches, req)
	if resp.TotalCount != 105 {
		t.Errorf("TotalCount = %d, want 105", resp.TotalCount)
	}
	if resp.TotalPages != 27 {
		t.Errorf("TotalPages = %d, want 27", resp.TotalPages)
	}
	if resp.Page != 2 || resp.PageSize != 4 {
		t.Errorf("page echo = %d/%d", resp.Page, resp.PageSize)
	}
	if want := []string{"a1", "b1", "a2", "b2"}; !slices.Equal(ids(resp.Results), want) {
		t.Errorf("Results = %v, want %v", ids(resp.Results), want)
	}
}

func TestMergeTotalIgnoresFilters(t *testing.T) {
	batches := []models.SourceBatch{
		{Source: "A", Total: 40, Items: []models.Listing{{Source: "A", ExternalID: "p", Price: 9}}},
	}
	resp := Merge(batches, Request{FreeOnly: true}.Normalize(0))
	if resp.TotalCount != 40 || len(resp.Results) != 0 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestConcatDropsDuplicateKeys(t *testing.T) {
	batches := []models.SourceBatch{
		{Source: "A", Items: []models.Listing{listing("A", "1"), listing("A", "1"), listing("A", "2")}},
		{Source: "B", Items: []models.Listing{listing("B", "1")}},
	}
	got := Concat(batches)
	if len(got) != 3 {
		t.Fatalf("Concat = %v", got)
	}
}

func TestPaginateNeverNil(t *testing.T) {
	if got := Paginate(nil, 10); got == nil {
		t.Fatal("Paginate(nil) returned nil")
	}
}
