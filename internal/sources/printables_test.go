package sources

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"modelhub/pkg/models"
)

func graphqlServer(t *testing.T, handle func(req gqlRequest) string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/graphql/" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req gqlRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, handle(req))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPrintablesSearch(t *testing.T) {
	srv := graphqlServer(t, func(req gqlRequest) string {
		if req.OperationName != "SearchModels" {
			t.Errorf("operation = %q", req.OperationName)
		}
		if req.Variables["query"] != "vase" || req.Variables["ordering"] != "latest" {
			t.Errorf("variables = %v", req.Variables)
		}
		// numbers decode as float64
		if req.Variables["offset"] != float64(20) || req.Variables["limit"] != float64(10) {
			t.Errorf("paging = %v/%v", req.Variables["offset"], req.Variables["limit"])
		}
		return `{"data":{"result":{"totalCount":77,"items":[
			{"id":"123","name":"Spiral Vase","slug":"spiral-vase","summary":"vase mode","likesCount":50,
			 "datePublished":"2024-05-01T10:00:00Z","premium":false,"price":null,
			 "user":{"publicUsername":"Alice","handle":"alice"},"image":{"filePath":"media/prints/123/a.png"},
			 "license":{"name":"CC BY"},"category":{"name":"Home"}},
			{"id":"124","name":"Paid Vase","premium":false,"price":3.5,"user":{"publicUsername":"Bob"}},
			{"id":"","name":"ghost"}
		]}}}`
	})

	s := NewPrintables(UpstreamConfig{BaseURL: srv.URL})
	b, err := s.Search(context.Background(), "vase", 3, 10, models.SortNewest)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if b.Total != 77 || len(b.Items) != 2 {
		t.Fatalf("batch = %+v", b)
	}
	free, paid := b.Items[0], b.Items[1]
	if !free.IsFree || free.URL != "https://www.printables.com/model/123-spiral-vase" {
		t.Fatalf("free = %+v", free)
	}
	if free.ThumbnailURL != "https://media.printables.com/media/prints/123/a.png" || free.CreatorProfile != "https://www.printables.com/@alice" {
		t.Fatalf("free media = %q %q", free.ThumbnailURL, free.CreatorProfile)
	}
	if paid.IsFree || paid.Price != 3.5 || paid.Currency != "USD" {
		t.Fatalf("paid = %+v", paid)
	}
}

func TestPrintablesTrendingUsesWeeklyLikes(t *testing.T) {
	srv := graphqlServer(t, func(req gqlRequest) string {
		if req.OperationName != "TrendingModels" || req.Variables["ordering"] != "-likes_count_7_days" {
			t.Errorf("request = %+v", req)
		}
		return `{"data":{"result":{"totalCount":0,"items":[]}}}`
	})

	b, err := NewPrintables(UpstreamConfig{BaseURL: srv.URL}).Trending(context.Background(), 1, 8)
	if err != nil {
		t.Fatalf("Trending: %v", err)
	}
	if b.Total != 0 || b.Items == nil {
		t.Fatalf("batch = %+v", b)
	}
}

func TestPrintablesErrors(t *testing.T) {
	srv := graphqlServer(t, func(req gqlRequest) string {
		if req.OperationName == "PrintProfile" {
			return `{"data":{"print":null}}`
		}
		return `{"data":null,"errors":[{"message":"rate limited"},{"message":"try later"}]}`
	})
	s := NewPrintables(UpstreamConfig{BaseURL: srv.URL})

	_, err := s.Search(context.Background(), "x", 1, 10, models.SortRelevance)
	if err == nil || !strings.Contains(err.Error(), "rate limited; try later") {
		t.Fatalf("err = %v", err)
	}
	_, err = s.Details(context.Background(), "999")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v", err)
	}
}

func TestPrintablesDetails(t *testing.T) {
	srv := graphqlServer(t, func(req gqlRequest) string {
		if req.Variables["id"] != "55" {
			t.Errorf("id = %v", req.Variables["id"])
		}
		return `{"data":{"print":{"id":"55","name":"Hook","summary":"short","description":"a much longer description",
			"filesCount":4,"premium":true,"images":[{"filePath":"a.png"},{"filePath":""},{"filePath":"b.png"}]}}}`
	})

	l, err := NewPrintables(UpstreamConfig{BaseURL: srv.URL}).Details(context.Background(), " 55 ")
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if l.Description != "a much longer description" || l.FileCount != 4 || len(l.Images) != 2 {
		t.Fatalf("listing = %+v", l)
	}
	if l.IsFree || !l.Subscription {
		t.Fatalf("premium print should not be free: %+v", l)
	}
}
