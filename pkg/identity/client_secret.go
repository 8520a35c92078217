package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 1 * time.Hour

// ClientSecretCredentialOptions configures a ClientSecretCredential.
type ClientSecretCredentialOptions struct {
	// HTTPClient overrides the client used for token requests.
	HTTPClient *http.Client
	// RequestTimeout bounds each token request. Default is 10s.
	RequestTimeout time.Duration
}

// ClientSecretCredential authenticates a confidential client with the
// OAuth2 client-credentials grant against
// <authority>/<tenant>/oauth2/v2.0/token.
type ClientSecretCredential struct {
	authority    string
	tenantID     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// NewClientSecretCredential constructs a credential for the given tenant and
// client. authority is the token service base URL, e.g.
// "https://login.example.net".
func NewClientSecretCredential(authority, tenantID, clientID, clientSecret string, opts *ClientSecretCredentialOptions) (*ClientSecretCredential, error) {
	if authority == "" || tenantID == "" || clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("authority, tenant id, client id and client secret are all required")
	}
	if _, err := url.Parse(authority); err != nil {
		return nil, fmt.Errorf("invalid authority url: %w", err)
	}

	timeout := 10 * time.Second
	var httpClient *http.Client
	if opts != nil {
		if opts.RequestTimeout > 0 {
			timeout = opts.RequestTimeout
		}
		httpClient = opts.HTTPClient
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &ClientSecretCredential{
		authority:    strings.TrimSuffix(authority, "/"),
		tenantID:     tenantID,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
	}, nil
}

func (c *ClientSecretCredential) GetToken(ctx context.Context, scopes []string) (AccessToken, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	if len(scopes) > 0 {
		form.Set("scope", strings.Join(scopes, " "))
	}

	endpoint := fmt.Sprintf("%s/%s/oauth2/v2.0/token", c.authority, c.tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return AccessToken{}, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return AccessToken{}, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return AccessToken{}, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(b))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return AccessToken{}, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return AccessToken{}, fmt.Errorf("token response contains no access token")
	}

	return AccessToken{
		Token:     tr.AccessToken,
		ExpiresOn: expiryOf(tr),
	}, nil
}

// expiryOf prefers the explicit expires_in field, falls back to the exp claim
// of a JWT access token, and finally to a fixed default TTL.
func expiryOf(tr tokenResponse) time.Time {
	if tr.ExpiresIn > 0 {
		return time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tr.AccessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}

	return time.Now().Add(defaultTokenTTL)
}
