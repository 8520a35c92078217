package identity

import (
	"context"
	"time"
)

// AccessToken is a bearer token with its expiry.
type AccessToken struct {
	Token     string
	ExpiresOn time.Time
}

// TokenCredential provides bearer tokens for the pipeline's auth policy.
// Implementations must be safe for concurrent use.
type TokenCredential interface {
	// GetToken requests a token for the given scopes.
	GetToken(ctx context.Context, scopes []string) (AccessToken, error)
}

// StaticTokenCredential returns a fixed token. Intended for tests and for
// services that hand out pre-signed access tokens.
type StaticTokenCredential struct {
	token AccessToken
}

// NewStaticTokenCredential wraps an existing token in a credential. A zero
// expiry is treated as never-expiring.
func NewStaticTokenCredential(token string, expiresOn time.Time) *StaticTokenCredential {
	if expiresOn.IsZero() {
		expiresOn = time.Now().Add(365 * 24 * time.Hour)
	}
	return &StaticTokenCredential{token: AccessToken{Token: token, ExpiresOn: expiresOn}}
}

func (s *StaticTokenCredential) GetToken(ctx context.Context, scopes []string) (AccessToken, error) {
	return s.token, nil
}
