package aggregate

import (
	"strings"

	"modelhub/pkg/models"
)

const (
	DefaultPageSize  = 20
	MaxPageSize      = 100
	MinTrendingBatch = 8
)

// Request is one aggregated search (Query != "") or trending (Query == "") call.
type Request struct {
	Query    string
	Page     int
	PageSize int
	Sort     models.SortKey
	Sources  []string // optional allow-list, matched case-insensitively
	FreeOnly bool
	MinPrice *float64
	MaxPrice *float64
}

// Trending reports whether the request asks for the landing feed.
func (r Request) Trending() bool {
	return strings.TrimSpace(r.Query) == ""
}

// Normalize clamps page and page size into range, trims the query and
// drops blank allow-list entries.
func (r Request) Normalize(maxPageSize int) Request {
	if maxPageSize <= 0 {
		maxPageSize = MaxPageSize
	}
	r.Query = strings.TrimSpace(r.Query)
	if r.Page < 1 {
		r.Page = 1
	}
	switch {
	case r.PageSize <= 0:
		r.PageSize = min(DefaultPageSize, maxPageSize)
	case r.PageSize > maxPageSize:
		r.PageSize = maxPageSize
	}
	if r.Sort == "" {
		r.Sort = models.SortRelevance
	}

	names := make([]string, 0, len(r.Sources))
	for _, s := range r.Sources {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				names = append(names, part)
			}
		}
	}
	r.Sources = names
	return r
}

// Response is one page of merged results. TotalCount and TotalPages
// describe the union of the queried sources as reported by each upstream.
type Response struct {
	Results    []models.Listing `json:"results"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalCount int              `json:"total_count"`
	TotalPages int              `json:"total_pages"`
}
