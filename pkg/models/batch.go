package models

import "strings"

// SourceBatch is one adapter's answer to one call.
//
// Total is whatever the upstream reported for the whole query and is
// independent of len(Items).
type SourceBatch struct {
	Source string    `json:"source"`
	Total  int       `json:"total"`
	Items  []Listing `json:"items"`
}

// EmptyBatch is the well-formed zero result for a source.
func EmptyBatch(source string) SourceBatch {
	return SourceBatch{Source: source, Items: []Listing{}}
}

// SortKey selects how merged results are ranked.
type SortKey string

const (
	SortRelevance SortKey = "relevance"
	SortNewest    SortKey = "newest"
	SortLikes     SortKey = "likes"
	SortPriceAsc  SortKey = "price_asc"
	SortPriceDesc SortKey = "price_desc"
)

// ParseSortKey normalizes a raw sort parameter. An empty value means
// relevance; anything unrecognised is kept as-is so callers can decide
// what to do with it.
func ParseSortKey(raw string) SortKey {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return SortRelevance
	}
	return SortKey(s)
}

// Known reports whether k is one of the supported sort keys.
func (k SortKey) Known() bool {
	switch k {
	case SortRelevance, SortNewest, SortLikes, SortPriceAsc, SortPriceDesc:
		return true
	}
	return false
}
