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

const makerWorldBase = "https://makerworld.com"

// MakerWorld has no public API. It reads the JSON data routes of the
// Next.js site, which are keyed by a build id discovered from the HTML.
type MakerWorld struct {
	up     *upstream
	builds *buildIDCache
}

func NewMakerWorld(buildIDTTL time.Duration, cfg UpstreamConfig) *MakerWorld {
	cfg = cfg.withDefaults(makerWorldBase)
	s := &MakerWorld{up: newUpstream("makerworld", cfg)}
	s.builds = newBuildIDCache(buildIDTTL, s.discoverBuildID)
	return s
}

func (s *MakerWorld) Name() string { return "makerworld" }

func (s *MakerWorld) BreakerState() string { return s.up.State() }

func (s *MakerWorld) discoverBuildID(ctx context.Context) (string, error) {
	h := http.Header{}
	h.Set("Accept", "text/html")
	page, err := s.up.get(ctx, s.up.baseURL+"/en", h)
	if err != nil {
		return "", err
	}
	id, err := extractBuildID(page)
	if err != nil {
		return "", fmt.Errorf("makerworld: %w", err)
	}
	return id, nil
}

type mwDesign struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	Summary       string  `json:"summary"`
	Cover         string  `json:"cover"`
	CoverURL      string  `json:"coverUrl"`
	LikeCount     int     `json:"likeCount"`
	DownloadCount int     `json:"downloadCount"`
	PrintCount    int     `json:"printCount"`
	License       string  `json:"license"`
	CreateTime    string  `json:"createTime"`
	IsExclusive   bool    `json:"isExclusive"`
	Price         float64 `json:"price"`
	Currency      string  `json:"currency"`
	DesignCreator struct {
		Name   string `json:"name"`
		Handle string `json:"handle"`
	} `json:"designCreator"`
	DesignExtension *struct {
		DesignPictures []struct {
			URL string `json:"url"`
		} `json:"design_pictures"`
	} `json:"designExtension"`
	Categories []struct {
		Name string `json:"name"`
	} `json:"categories"`
	Instances []struct {
		ID int64 `json:"id"`
	} `json:"instances"`
}

type mwListPage struct {
	PageProps struct {
		Total   int        `json:"total"`
		Designs []mwDesign `json:"designs"`
	} `json:"pageProps"`
}

func makerWorldOrder(sort models.SortKey) string {
	switch sort {
	case models.SortNewest:
		return "newUploads"
	case models.SortLikes:
		return "mostLikes"
	default:
		return ""
	}
}

func (s *MakerWorld) Search(ctx context.Context, query string, page, pageSize int, sort models.SortKey) (models.SourceBatch, error) {
	q := url.Values{}
	q.Set("keyword", query)
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(pageSize))
	if o := makerWorldOrder(sort); o != "" {
		q.Set("orderBy", o)
	}
	return s.list(ctx, "/en/search/models.json", q)
}

func (s *MakerWorld) Trending(ctx context.Context, page, pageSize int) (models.SourceBatch, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(pageSize))
	q.Set("orderBy", "hotScore")
	return s.list(ctx, "/en/3d-models.json", q)
}

func (s *MakerWorld) list(ctx context.Context, route string, q url.Values) (models.SourceBatch, error) {
	var resp mwListPage
	if err := s.getData(ctx, route, q, &resp); err != nil {
		return models.SourceBatch{}, err
	}

	items := make([]models.Listing, 0, len(resp.PageProps.Designs))
	for _, d := range resp.PageProps.Designs {
		if d.ID == 0 {
			continue
		}
		items = append(items, s.toListing(d))
	}
	return models.SourceBatch{Source: s.Name(), Total: resp.PageProps.Total, Items: items}, nil
}

func (s *MakerWorld) Details(ctx context.Context, externalID string) (*models.Listing, error) {
	id := strings.TrimSpace(externalID)
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return nil, fmt.Errorf("makerworld: invalid id %q", externalID)
	}

	var resp struct {
		PageProps struct {
			Design *mwDesign `json:"design"`
		} `json:"pageProps"`
	}
	if err := s.getData(ctx, "/en/models/"+id+".json", url.Values{}, &resp); err != nil {
		return nil, err
	}
	if resp.PageProps.Design == nil {
		return nil, fmt.Errorf("makerworld: design %s not found", id)
	}
	l := s.toListing(*resp.PageProps.Design)
	return &l, nil
}

// getData fetches a data route under the current build id. A 404 means
// the site was redeployed: the build id is rediscovered and the call is
// retried once.
func (s *MakerWorld) getData(ctx context.Context, route string, q url.Values, out any) error {
	for attempt := 0; ; attempt++ {
		buildID, err := s.builds.Get(ctx)
		if err != nil {
			return err
		}

		u := s.up.baseURL + "/_next/data/" + url.PathEscape(buildID) + route
		if len(q) > 0 {
			u += "?" + q.Encode()
		}
		err = s.up.getJSON(ctx, u, nil, out)
		if err != nil && attempt == 0 && IsStatus(err, http.StatusNotFound) {
			s.builds.Invalidate(buildID)
			continue
		}
		return err
	}
}

func (s *MakerWorld) toListing(d mwDesign) models.Listing {
	l := models.Listing{
		Source:      s.Name(),
		ExternalID:  strconv.FormatInt(d.ID, 10),
		Title:       d.Title,
		Description: d.Summary,
		CreatorName: d.DesignCreator.Name,
		IsFree:      true,
		Likes:       d.LikeCount,
		Views:       d.DownloadCount,
		Makes:       d.PrintCount,
		FileCount:   len(d.Instances),
		License:     d.License,
		CreatedAt:   parseTime(d.CreateTime),
		URL:         s.up.baseURL + "/en/models/" + strconv.FormatInt(d.ID, 10),
	}
	l.ThumbnailURL = d.CoverURL
	if l.ThumbnailURL == "" {
		l.ThumbnailURL = d.Cover
	}
	if d.DesignCreator.Handle != "" {
		l.CreatorProfile = s.up.baseURL + "/en/@" + d.DesignCreator.Handle
	}
	if d.Price > 0 {
		l.Price = d.Price
		l.Currency = d.Currency
		l.IsFree = false
	}
	l.Subscription = d.IsExclusive
	if d.DesignExtension != nil {
		for _, p := range d.DesignExtension.DesignPictures {
			if p.URL != "" {
				l.Images = append(l.Images, p.URL)
			}
		}
	}
	if len(d.Categories) > 0 {
		l.Category = d.Categories[0].Name
	}
	return l
}
