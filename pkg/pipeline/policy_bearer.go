package pipeline

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Alwanly/cloud-sdk-go/pkg/identity"
	"golang.org/x/sync/singleflight"
)

// tokenRefreshWindow is how long before expiry a cached token is refreshed.
// Refresh failures inside the window fall back to the still-valid cached
// token instead of failing the request.
const tokenRefreshWindow = 2 * time.Minute

// BearerTokenPolicy caches an access token from a TokenCredential and
// injects it as an Authorization header. Concurrent refreshes are collapsed
// into a single credential call.
type BearerTokenPolicy struct {
	cred   identity.TokenCredential
	scopes []string

	mu     sync.RWMutex
	cached identity.AccessToken
	group  singleflight.Group
}

func NewBearerTokenPolicy(cred identity.TokenCredential, scopes []string) *BearerTokenPolicy {
	return &BearerTokenPolicy{cred: cred, scopes: scopes}
}

func (b *BearerTokenPolicy) Do(req *Request) (*http.Response, error) {
	tok, err := b.token(req.Raw().Context())
	if err != nil {
		return nil, err
	}
	req.Raw().Header.Set("Authorization", "Bearer "+tok)
	return req.Next()
}

func (b *BearerTokenPolicy) token(ctx context.Context) (string, error) {
	now := time.Now()

	b.mu.RLock()
	cached := b.cached
	b.mu.RUnlock()

	if cached.Token != "" && now.Before(cached.ExpiresOn.Add(-tokenRefreshWindow)) {
		return cached.Token, nil
	}

	v, err, _ := b.group.Do("token", func() (interface{}, error) {
		tok, err := b.cred.GetToken(ctx, b.scopes)
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		b.cached = tok
		b.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		// inside the refresh window the old token is still usable
		if cached.Token != "" && now.Before(cached.ExpiresOn) {
			return cached.Token, nil
		}
		return "", err
	}
	return v.(identity.AccessToken).Token, nil
}
