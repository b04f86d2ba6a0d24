package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"modelhub/pkg/models"
)

const myMiniFactoryBase = "https://www.myminifactory.com/api/v2"

// MyMiniFactory searches the MyMiniFactory v2 API. With client
// credentials configured it authenticates with OAuth2 bearer tokens,
// otherwise it falls back to the API key query parameter.
type MyMiniFactory struct {
	up     *upstream
	apiKey string
	tokens *tokenSource
}

type MyMiniFactoryAuth struct {
	APIKey       string
	ClientID     string
	ClientSecret string
	TokenURL     string
}

func NewMyMiniFactory(auth MyMiniFactoryAuth, cfg UpstreamConfig) *MyMiniFactory {
	cfg = cfg.withDefaults(myMiniFactoryBase)
	s := &MyMiniFactory{up: newUpstream("myminifactory", cfg), apiKey: auth.APIKey}
	if auth.ClientID != "" && auth.ClientSecret != "" {
		tokenURL := auth.TokenURL
		if tokenURL == "" {
			tokenURL = "https://auth.myminifactory.com/v1/oauth/tokens"
		}
		s.tokens = newTokenSource(s.up, tokenURL, auth.ClientID, auth.ClientSecret)
	}
	return s
}

func (s *MyMiniFactory) Name() string { return "myminifactory" }

func (s *MyMiniFactory) BreakerState() string { return s.up.State() }

type mmfObject struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
	PublishedAt string `json:"published_at"`
	Likes       int    `json:"likes"`
	Views       int    `json:"views"`
	Makes       int    `json:"makes_count"`
	Files       *struct {
		TotalCount int `json:"total_count"`
	} `json:"files"`
	Images []struct {
		IsPrimary bool `json:"is_primary"`
		Thumbnail struct {
			URL string `json:"url"`
		} `json:"thumbnail"`
		Standard struct {
			URL string `json:"url"`
		} `json:"standard"`
	} `json:"images"`
	Designer struct {
		Name       string `json:"name"`
		Username   string `json:"username"`
		ProfileURL string `json:"profile_url"`
	} `json:"designer"`
	Price *struct {
		Value    float64 `json:"value"`
		Currency string  `json:"currency"`
	} `json:"price"`
	TribeOnly bool `json:"tribe_only"`
	Licenses  []struct {
		Type string `json:"type"`
	} `json:"licenses"`
	Categories []struct {
		Name string `json:"name"`
	} `json:"categories"`
}

type mmfSearchResponse struct {
	TotalCount int         `json:"total_count"`
	Items      []mmfObject `json:"items"`
}

func myMiniFactorySort(sort models.SortKey) string {
	switch sort {
	case models.SortNewest:
		return "date"
	case models.SortLikes:
		return "popularity"
	case models.SortPriceAsc:
		return "price_asc"
	case models.SortPriceDesc:
		return "price_desc"
	default:
		return "relevance"
	}
}

func (s *MyMiniFactory) Search(ctx context.Context, query string, page, pageSize int, sort models.SortKey) (models.SourceBatch, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("sort", myMiniFactorySort(sort))
	return s.search(ctx, q, page, pageSize)
}

func (s *MyMiniFactory) Trending(ctx context.Context, page, pageSize int) (models.SourceBatch, error) {
	q := url.Values{}
	q.Set("sort", "popularity")
	return s.search(ctx, q, page, pageSize)
}

func (s *MyMiniFactory) search(ctx context.Context, q url.Values, page, pageSize int) (models.SourceBatch, error) {
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(pageSize))

	var resp mmfSearchResponse
	if err := s.getJSON(ctx, "/search", q, &resp); err != nil {
		return models.SourceBatch{}, err
	}

	items := make([]models.Listing, 0, len(resp.Items))
	for _, o := range resp.Items {
		if o.ID == 0 {
			continue
		}
		items = append(items, s.toListing(o))
	}
	return models.SourceBatch{Source: s.Name(), Total: resp.TotalCount, Items: items}, nil
}

func (s *MyMiniFactory) Details(ctx context.Context, externalID string) (*models.Listing, error) {
	id := strings.TrimSpace(externalID)
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return nil, fmt.Errorf("myminifactory: invalid id %q", externalID)
	}

	var o mmfObject
	if err := s.getJSON(ctx, "/objects/"+id, url.Values{}, &o); err != nil {
		return nil, err
	}
	l := s.toListing(o)
	return &l, nil
}

// getJSON authenticates the request. A 401 with a cached token drops the
// token and retries once with a fresh one.
func (s *MyMiniFactory) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	if s.tokens == nil {
		if s.apiKey != "" {
			q.Set("key", s.apiKey)
		}
		return s.up.getJSON(ctx, s.up.baseURL+path+"?"+q.Encode(), nil, out)
	}

	for attempt := 0; ; attempt++ {
		token, err := s.tokens.Token(ctx)
		if err != nil {
			return err
		}
		h := http.Header{}
		h.Set("Authorization", "Bearer "+token)

		err = s.up.getJSON(ctx, s.up.baseURL+path+"?"+q.Encode(), h, out)
		if err != nil && attempt == 0 && IsStatus(err, http.StatusUnauthorized) {
			s.tokens.Invalidate(token)
			continue
		}
		return err
	}
}

func (s *MyMiniFactory) toListing(o mmfObject) models.Listing {
	l := models.Listing{
		Source:         s.Name(),
		ExternalID:     strconv.FormatInt(o.ID, 10),
		Title:          o.Name,
		Description:    o.Description,
		CreatorName:    o.Designer.Name,
		CreatorProfile: o.Designer.ProfileURL,
		IsFree:         true,
		Subscription:   o.TribeOnly,
		Likes:          o.Likes,
		Views:          o.Views,
		Makes:          o.Makes,
		CreatedAt:      parseTime(o.PublishedAt),
		URL:            o.URL,
	}
	if l.CreatorName == "" {
		l.CreatorName = o.Designer.Username
	}
	if o.Price != nil && o.Price.Value > 0 {
		l.Price = o.Price.Value
		l.Currency = o.Price.Currency
		l.IsFree = false
	}
	if o.TribeOnly {
		l.IsFree = false
	}
	if o.Files != nil {
		l.FileCount = o.Files.TotalCount
	}
	for _, img := range o.Images {
		if img.IsPrimary && l.ThumbnailURL == "" {
			l.ThumbnailURL = img.Thumbnail.URL
		}
		if img.Standard.URL != "" {
			l.Images = append(l.Images, img.Standard.URL)
		}
	}
	if l.ThumbnailURL == "" && len(o.Images) > 0 {
		l.ThumbnailURL = o.Images[0].Thumbnail.URL
	}
	if len(o.Licenses) > 0 {
		l.License = o.Licenses[0].Type
	}
	if len(o.Categories) > 0 {
		l.Category = o.Categories[0].Name
	}
	if l.URL == "" {
		l.URL = "https://www.myminifactory.com/object/" + l.ExternalID
	}
	return l
}
