package models

import "time"

// Listing is the normalized form of one 3D model record.
//
// Every source adapter maps its upstream payload into this structure;
// once a Listing leaves the adapter it is treated as read-only.
type Listing struct {
	Source     string `json:"source"`      // adapter name, e.g. "thingiverse"
	ExternalID string `json:"external_id"` // source-local id

	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	ThumbnailURL   string   `json:"thumbnail_url,omitempty"`
	Images         []string `json:"images,omitempty"`
	CreatorName    string   `json:"creator_name,omitempty"`
	CreatorProfile string   `json:"creator_profile,omitempty"`

	Price        float64 `json:"price"`
	Currency     string  `json:"currency,omitempty"`
	IsFree       bool    `json:"is_free"`
	Subscription bool    `json:"subscription,omitempty"` // gated behind a membership / tier

	Likes     int `json:"likes"`
	Views     int `json:"views"`
	Makes     int `json:"makes"`
	FileCount int `json:"file_count,omitempty"`

	License   string    `json:"license,omitempty"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	URL       string    `json:"url"`
}

// Key identifies a listing within one response.
func (l Listing) Key() string {
	return l.Source + "/" + l.ExternalID
}

// Enrich fills the gaps of a summary listing from a detail listing of the
// same model. It never overwrites a value the summary already carries,
// except where the detail is strictly richer (longer description, higher
// counters). The receiver is a copy; the enriched value is returned.
func (l Listing) Enrich(detail Listing) Listing {
	if l.Title == "" {
		l.Title = detail.Title
	}
	if len(detail.Description) > len(l.Description) {
		l.Description = detail.Description
	}
	if l.ThumbnailURL == "" {
		l.ThumbnailURL = detail.ThumbnailURL
	}
	l.Images = mergeStrings(l.Images, detail.Images)
	if l.CreatorName == "" {
		l.CreatorName = detail.CreatorName
	}
	if l.CreatorProfile == "" {
		l.CreatorProfile = detail.CreatorProfile
	}
	if l.Currency == "" {
		l.Currency = detail.Currency
	}

	l.Likes = max(l.Likes, detail.Likes)
	l.Views = max(l.Views, detail.Views)
	l.Makes = max(l.Makes, detail.Makes)
	l.FileCount = max(l.FileCount, detail.FileCount)

	if l.License == "" {
		l.License = detail.License
	}
	if l.Category == "" {
		l.Category = detail.Category
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = detail.CreatedAt
	}
	if l.URL == "" {
		l.URL = detail.URL
	}
	return l
}

func mergeStrings(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
