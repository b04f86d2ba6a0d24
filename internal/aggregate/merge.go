package aggregate

import (
	"cmp"
	"slices"

	"modelhub/pkg/models"
)

// Merge turns per-source batches into one ranked, filtered page.
// req is expected to be normalized.
func Merge(batches []models.SourceBatch, req Request) Response {
	total := 0
	for _, b := range batches {
		total += b.Total
	}

	items := Concat(batches)
	items = Filter(items, req)
	items = Rank(items, req.Sort)

	return Response{
		Results:    Paginate(items, req.PageSize),
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalCount: total,
		TotalPages: TotalPages(total, req.PageSize),
	}
}

// Concat joins batch items in batch order, keeping each source's order
// and dropping repeated (source, external id) pairs.
func Concat(batches []models.SourceBatch) []models.Listing {
	n := 0
	for _, b := range batches {
		n += len(b.Items)
	}

	out := make([]models.Listing, 0, n)
	seen := make(map[string]struct{}, n)
	for _, b := range batches {
		for _, l := range b.Items {
			k := l.Key()
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, l)
		}
	}
	return out
}

// Filter applies free-only, then minimum and maximum price. Free-only
// short-circuits the price bounds: every free listing is kept regardless
// of them, so free-only with minPrice > 0 still returns the free listings
// rather than an empty page. Free listings all carry price 0, so this only
// differs from applying both filters when minPrice is positive.
func Filter(items []models.Listing, req Request) []models.Listing {
	if !req.FreeOnly && req.MinPrice == nil && req.MaxPrice == nil {
		return items
	}

	out := make([]models.Listing, 0, len(items))
	for _, l := range items {
		if req.FreeOnly {
			if l.IsFree {
				out = append(out, l)
			}
			continue
		}
		if req.MinPrice != nil && l.Price < *req.MinPrice {
			continue
		}
		if req.MaxPrice != nil && l.Price > *req.MaxPrice {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Rank orders items by sort key. Unknown keys leave the order untouched.
func Rank(items []models.Listing, sort models.SortKey) []models.Listing {
	switch sort {
	case models.SortRelevance, "":
		return Interleave(items)
	case models.SortNewest:
		return sorted(items, func(a, b models.Listing) int { return b.CreatedAt.Compare(a.CreatedAt) })
	case models.SortLikes:
		return sorted(items, func(a, b models.Listing) int { return cmp.Compare(b.Likes, a.Likes) })
	case models.SortPriceAsc:
		return sorted(items, func(a, b models.Listing) int { return cmp.Compare(a.Price, b.Price) })
	case models.SortPriceDesc:
		return sorted(items, func(a, b models.Listing) int { return cmp.Compare(b.Price, a.Price) })
	default:
		return items
	}
}

func sorted(items []models.Listing, less func(a, b models.Listing) int) []models.Listing {
	out := slices.Clone(items)
	slices.SortStableFunc(out, less)
	return out
}

// Interleave round-robins items across sources in order of first
// appearance, so the top of a page holds one item per source before any
// source repeats. Each source keeps its internal order.
func Interleave(items []models.Listing) []models.Listing {
	var order []string
	queues := make(map[string][]models.Listing)
	for _, l := range items {
		if _, ok := queues[l.Source]; !ok {
			order = append(order, l.Source)
		}
		queues[l.Source] = append(queues[l.Source], l)
	}

	out := make([]models.Listing, 0, len(items))
	for len(out) < len(items) {
		for _, src := range order {
			q := queues[src]
			if len(q) == 0 {
				continue
			}
			out = append(out, q[0])
			queues[src] = q[1:]
		}
	}
	return out
}

// TotalPages is ceil(total/pageSize), never less than one.
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}

// Paginate keeps the first pageSize items. Anything beyond is discarded.
func Paginate(items []models.Listing, pageSize int) []models.Listing {
	if items == nil {
		return []models.Listing{}
	}
	if pageSize > 0 && len(items) > pageSize {
		return items[:pageSize]
	}
	return items
}
