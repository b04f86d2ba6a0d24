package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"modelhub/pkg/models"
)

const (
	printablesBase  = "https://api.printables.com"
	printablesSite  = "https://www.printables.com"
	printablesMedia = "https://media.printables.com/"
)

// Printables talks to the public Printables GraphQL endpoint.
type Printables struct {
	up *upstream
}

func NewPrintables(cfg UpstreamConfig) *Printables {
	cfg = cfg.withDefaults(printablesBase)
	return &Printables{up: newUpstream("printables", cfg)}
}

func (s *Printables) Name() string { return "printables" }

func (s *Printables) BreakerState() string { return s.up.State() }

const printFields = `
	id
	name
	slug
	summary
	likesCount
	downloadCount
	makesCount
	datePublished
	premium
	price
	user { publicUsername handle }
	image { filePath }
	license { name }
	category { name }`

var (
	printablesSearchQuery = `query SearchModels($query: String!, $limit: Int!, $offset: Int!, $ordering: SearchChoicesEnum) {
  result: searchPrints2(query: $query, printType: print, limit: $limit, offset: $offset, ordering: $ordering) {
    totalCount
    items {` + printFields + `
    }
  }
}`

	printablesTrendingQuery = `query TrendingModels($limit: Int!, $offset: Int!, $ordering: String) {
  result: printList(limit: $limit, offset: $offset, ordering: $ordering) {
    totalCount
    items {` + printFields + `
    }
  }
}`

	printablesDetailQuery = `query PrintProfile($id: ID!) {
  print(id: $id) {` + printFields + `
    description
    filesCount
    images { filePath }
  }
}`
)

type gqlRequest struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
}

type gqlError struct {
	Message string `json:"message"`
}

type prPrint struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Slug          string   `json:"slug"`
	Summary       string   `json:"summary"`
	Description   string   `json:"description"`
	LikesCount    int      `json:"likesCount"`
	DownloadCount int      `json:"downloadCount"`
	MakesCount    int      `json:"makesCount"`
	FilesCount    int      `json:"filesCount"`
	DatePublished string   `json:"datePublished"`
	Premium       bool     `json:"premium"`
	Price         *float64 `json:"price"`
	User          struct {
		PublicUsername string `json:"publicUsername"`
		Handle         string `json:"handle"`
	} `json:"user"`
	Image *struct {
		FilePath string `json:"filePath"`
	} `json:"image"`
	Images []struct {
		FilePath string `json:"filePath"`
	} `json:"images"`
	License *struct {
		Name string `json:"name"`
	} `json:"license"`
	Category *struct {
		Name string `json:"name"`
	} `json:"category"`
}

type prListResponse struct {
	Data *struct {
		Result *struct {
			TotalCount int       `json:"totalCount"`
			Items      []prPrint `json:"items"`
		} `json:"result"`
	} `json:"data"`
	Errors []gqlError `json:"errors"`
}

func printablesOrdering(sort models.SortKey) string {
	switch sort {
	case models.SortNewest:
		return "latest"
	case models.SortLikes:
		return "likes"
	default:
		return "best_match"
	}
}

func (s *Printables) Search(ctx context.Context, query string, page, pageSize int, sort models.SortKey) (models.SourceBatch, error) {
	return s.list(ctx, gqlRequest{
		OperationName: "SearchModels",
		Query:         printablesSearchQuery,
		Variables: map[string]any{
			"query":    query,
			"limit":    pageSize,
			"offset":   offset(page, pageSize),
			"ordering": printablesOrdering(sort),
		},
	})
}

func (s *Printables) Trending(ctx context.Context, page, pageSize int) (models.SourceBatch, error) {
	return s.list(ctx, gqlRequest{
		OperationName: "TrendingModels",
		Query:         printablesTrendingQuery,
		Variables: map[string]any{
			"limit":    pageSize,
			"offset":   offset(page, pageSize),
			"ordering": "-likes_count_7_days",
		},
	})
}

func (s *Printables) list(ctx context.Context, req gqlRequest) (models.SourceBatch, error) {
	var resp prListResponse
	if err := s.up.postJSON(ctx, s.up.baseURL+"/graphql/", nil, req, &resp); err != nil {
		return models.SourceBatch{}, err
	}
	if err := gqlErr(resp.Errors); err != nil && (resp.Data == nil || resp.Data.Result == nil) {
		return models.SourceBatch{}, fmt.Errorf("printables: %w", err)
	}
	if resp.Data == nil || resp.Data.Result == nil {
		return models.SourceBatch{}, errors.New("printables: empty result")
	}

	items := make([]models.Listing, 0, len(resp.Data.Result.Items))
	for _, p := range resp.Data.Result.Items {
		if p.ID == "" {
			continue
		}
		items = append(items, s.toListing(p))
	}
	return models.SourceBatch{Source: s.Name(), Total: resp.Data.Result.TotalCount, Items: items}, nil
}

func (s *Printables) Details(ctx context.Context, externalID string) (*models.Listing, error) {
	req := gqlRequest{
		OperationName: "PrintProfile",
		Query:         printablesDetailQuery,
		Variables:     map[string]any{"id": strings.TrimSpace(externalID)},
	}
	var resp struct {
		Data *struct {
			Print *prPrint `json:"print"`
		} `json:"data"`
		Errors []gqlError `json:"errors"`
	}
	if err := s.up.postJSON(ctx, s.up.baseURL+"/graphql/", nil, req, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil || resp.Data.Print == nil {
		if err := gqlErr(resp.Errors); err != nil {
			return nil, fmt.Errorf("printables: %w", err)
		}
		return nil, fmt.Errorf("printables: print %s not found", externalID)
	}

	l := s.toListing(*resp.Data.Print)
	return &l, nil
}

func gqlErr(errs []gqlError) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return errors.New(strings.Join(msgs, "; "))
}

func (s *Printables) toListing(p prPrint) models.Listing {
	l := models.Listing{
		Source:       s.Name(),
		ExternalID:   p.ID,
		Title:        p.Name,
		Description:  p.Summary,
		CreatorName:  p.User.PublicUsername,
		Subscription: p.Premium,
		IsFree:       !p.Premium,
		Likes:        p.LikesCount,
		Views:        p.DownloadCount,
		Makes:        p.MakesCount,
		FileCount:    p.FilesCount,
		CreatedAt:    parseTime(p.DatePublished),
		URL:          printablesSite + "/model/" + p.ID,
	}
	if len(p.Description) > len(l.Description) {
		l.Description = p.Description
	}
	if p.Slug != "" {
		l.URL += "-" + p.Slug
	}
	if p.User.Handle != "" {
		l.CreatorProfile = printablesSite + "/@" + p.User.Handle
	}
	if p.Price != nil && *p.Price > 0 {
		l.Price = *p.Price
		l.Currency = "USD"
		l.IsFree = false
	}
	if p.Image != nil && p.Image.FilePath != "" {
		l.ThumbnailURL = printablesMedia + p.Image.FilePath
	}
	for _, img := range p.Images {
		if img.FilePath != "" {
			l.Images = append(l.Images, printablesMedia+img.FilePath)
		}
	}
	if p.License != nil {
		l.License = p.License.Name
	}
	if p.Category != nil {
		l.Category = p.Category.Name
	}
	return l
}

// offset converts a 1-based page into an item offset.
func offset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}
