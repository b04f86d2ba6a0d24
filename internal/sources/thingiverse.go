package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"modelhub/pkg/models"
)

const thingiverseBase = "https://api.thingiverse.com"

// Thingiverse searches the Thingiverse REST API with an app token.
type Thingiverse struct {
	up    *upstream
	token string
}

func NewThingiverse(token string, cfg UpstreamConfig) *Thingiverse {
	cfg = cfg.withDefaults(thingiverseBase)
	return &Thingiverse{up: newUpstream("thingiverse", cfg), token: token}
}

func (s *Thingiverse) Name() string { return "thingiverse" }

func (s *Thingiverse) BreakerState() string { return s.up.State() }

type tvCreator struct {
	Name      string `json:"name"`
	PublicURL string `json:"public_url"`
}

type tvThing struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Thumbnail    string    `json:"thumbnail"`
	PreviewImage string    `json:"preview_image"`
	PublicURL    string    `json:"public_url"`
	Creator      tvCreator `json:"creator"`
	LikeCount    int       `json:"like_count"`
	ViewCount    int       `json:"view_count"`
	MakeCount    int       `json:"make_count"`
	FileCount    int       `json:"file_count"`
	License      string    `json:"license"`
	CreatedAt    string    `json:"created_at"`
	Categories   []struct {
		Name string `json:"name"`
	} `json:"categories"`
}

type tvSearchResponse struct {
	Total int       `json:"total"`
	Hits  []tvThing `json:"hits"`
}

func (s *Thingiverse) header() http.Header {
	h := http.Header{}
	if s.token != "" {
		h.Set("Authorization", "Bearer "+s.token)
	}
	return h
}

func thingiverseSort(sort models.SortKey) string {
	switch sort {
	case models.SortNewest:
		return "newest"
	case models.SortLikes:
		return "popular"
	default:
		return "relevant"
	}
}

func (s *Thingiverse) Search(ctx context.Context, query string, page, pageSize int, sort models.SortKey) (models.SourceBatch, error) {
	return s.search(ctx, "/search/"+url.PathEscape(query)+"/", page, pageSize, thingiverseSort(sort))
}

func (s *Thingiverse) Trending(ctx context.Context, page, pageSize int) (models.SourceBatch, error) {
	return s.search(ctx, "/search/", page, pageSize, "popular")
}

func (s *Thingiverse) search(ctx context.Context, path string, page, pageSize int, sort string) (models.SourceBatch, error) {
	q := url.Values{}
	q.Set("type", "things")
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(pageSize))
	q.Set("sort", sort)

	var resp tvSearchResponse
	if err := s.up.getJSON(ctx, s.up.baseURL+path+"?"+q.Encode(), s.header(), &resp); err != nil {
		return models.SourceBatch{}, err
	}

	items := make([]models.Listing, 0, len(resp.Hits))
	for _, t := range resp.Hits {
		if t.ID == 0 {
			continue
		}
		items = append(items, s.toListing(t))
	}
	return models.SourceBatch{Source: s.Name(), Total: resp.Total, Items: items}, nil
}

// Details fetches the thing and, when the thing record omits it, the
// file list to fill in the file count.
func (s *Thingiverse) Details(ctx context.Context, externalID string) (*models.Listing, error) {
	id := strings.TrimSpace(externalID)
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return nil, fmt.Errorf("thingiverse: invalid id %q", externalID)
	}

	var t tvThing
	if err := s.up.getJSON(ctx, s.up.baseURL+"/things/"+id, s.header(), &t); err != nil {
		return nil, err
	}
	l := s.toListing(t)

	if t.FileCount == 0 {
		var files []struct {
			ID int64 `json:"id"`
		}
		if err := s.up.getJSON(ctx, s.up.baseURL+"/things/"+id+"/files", s.header(), &files); err == nil {
			l = l.Enrich(models.Listing{FileCount: len(files)})
		}
	}
	return &l, nil
}

func (s *Thingiverse) toListing(t tvThing) models.Listing {
	l := models.Listing{
		Source:         s.Name(),
		ExternalID:     strconv.FormatInt(t.ID, 10),
		Title:          t.Name,
		Description:    t.Description,
		ThumbnailURL:   t.Thumbnail,
		CreatorName:    t.Creator.Name,
		CreatorProfile: t.Creator.PublicURL,
		IsFree:         true,
		Likes:          t.LikeCount,
		Views:          t.ViewCount,
		Makes:          t.MakeCount,
		FileCount:      t.FileCount,
		License:        t.License,
		CreatedAt:      parseTime(t.CreatedAt),
		URL:            t.PublicURL,
	}
	if t.PreviewImage != "" {
		l.Images = []string{t.PreviewImage}
	}
	if len(t.Categories) > 0 {
		l.Category = t.Categories[0].Name
	}
	if l.URL == "" {
		l.URL = "https://www.thingiverse.com/thing:" + l.ExternalID
	}
	return l
}

// parseTime accepts the timestamp layouts seen across upstreams.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05-0700", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).UTC()
	}
	return time.Time{}
}
