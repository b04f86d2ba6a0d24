package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"
)

// buildIDCache remembers a Next.js build id for ttl. Concurrent refreshes
// collapse into one page fetch.
type buildIDCache struct {
	ttl   time.Duration
	fetch func(ctx context.Context) (string, error)
	now   func() time.Time

	mu        sync.RWMutex
	id        string
	fetchedAt time.Time

	group singleflight.Group
}

func newBuildIDCache(ttl time.Duration, fetch func(ctx context.Context) (string, error)) *buildIDCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &buildIDCache{ttl: ttl, fetch: fetch, now: time.Now}
}

func (c *buildIDCache) Get(ctx context.Context) (string, error) {
	c.mu.RLock()
	id, at := c.id, c.fetchedAt
	c.mu.RUnlock()
	if id != "" && c.now().Sub(at) < c.ttl {
		return id, nil
	}

	ch := c.group.DoChan("build-id", func() (any, error) {
		// shared by every waiter, so not bound to this caller's cancellation
		fresh, err := c.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.id, c.fetchedAt = fresh, c.now()
		c.mu.Unlock()
		return fresh, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate forgets stale if it is still the cached id.
func (c *buildIDCache) Invalidate(stale string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.id == stale {
		c.id = ""
		c.fetchedAt = time.Time{}
	}
}

var errNoBuildID = errors.New("no build id in page")

// extractBuildID reads the buildId out of the __NEXT_DATA__ script of a
// Next.js page.
func extractBuildID(page []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	raw := doc.Find("script#__NEXT_DATA__").First().Text()
	if raw == "" {
		return "", errNoBuildID
	}

	var data struct {
		BuildID string `json:"buildId"`
	}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return "", fmt.Errorf("decode __NEXT_DATA__: %w", err)
	}
	if data.BuildID == "" {
		return "", errNoBuildID
	}
	return data.BuildID, nil
}
