package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenSkew       = 30 * time.Second
	defaultTokenTTL = 10 * time.Minute
)

// tokenSource fetches OAuth2 client-credentials access tokens and keeps
// the current one until shortly before it expires. Refreshes are
// serialized by mu so concurrent callers share one token request.
type tokenSource struct {
	up           *upstream
	tokenURL     string
	clientID     string
	clientSecret string
	now          func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newTokenSource(up *upstream, tokenURL, clientID, clientSecret string) *tokenSource {
	return &tokenSource{
		up:           up,
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		now:          time.Now,
	}
}

// Token returns a valid access token, fetching a new one when needed.
func (t *tokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && t.now().Add(tokenSkew).Before(t.expires) {
		return t.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", t.clientID)
	form.Set("client_secret", t.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%s: build token request: %w", t.up.name, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, err := t.up.do(req)
	if err != nil {
		return "", fmt.Errorf("token: %w", err)
	}

	var tr struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("%s: decode token: %w", t.up.name, err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%s: token response without access_token", t.up.name)
	}

	t.token = tr.AccessToken
	t.expires = tokenExpiry(tr.AccessToken, tr.ExpiresIn, t.now())
	return t.token, nil
}

// Invalidate drops the cached token if it is still the given one.
func (t *tokenSource) Invalidate(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token == token {
		t.token = ""
		t.expires = time.Time{}
	}
}

// tokenExpiry prefers expires_in, then the exp claim of a JWT access
// token (read without verification, we are not the audience), then a
// fixed TTL.
func tokenExpiry(raw string, expiresIn int, now time.Time) time.Time {
	if expiresIn > 0 {
		return now.Add(time.Duration(expiresIn) * time.Second)
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return now.Add(defaultTokenTTL)
}
