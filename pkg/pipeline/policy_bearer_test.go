package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Alwanly/cloud-sdk-go/pkg/identity"
)

type fakeCredential struct {
	calls int32
	ttl   time.Duration
	fail  atomic.Bool
}

func (c *fakeCredential) GetToken(ctx context.Context, scopes []string) (identity.AccessToken, error) {
	n := atomic.AddInt32(&c.calls, 1)
	if c.fail.Load() {
		return identity.AccessToken{}, errors.New("token service unavailable")
	}
	return identity.AccessToken{
		Token:     "tok-" + string(rune('0'+n)),
		ExpiresOn: time.Now().Add(c.ttl),
	}, nil
}

func TestBearerPolicy_InjectsAndCaches(t *testing.T) {
	var seen []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	cred := &fakeCredential{ttl: time.Hour}
	pl := testPipeline(Options{Retry: fastRetry(), Credential: cred, Scopes: []string{"scope"}})

	for i := 0; i < 3; i++ {
		req, _ := NewRequest(context.Background(), http.MethodGet, ts.URL)
		resp, err := pl.Do(req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		Drain(resp)
	}

	if n := atomic.LoadInt32(&cred.calls); n != 1 {
		t.Errorf("expected a single token fetch for 3 requests, got %d", n)
	}
	for _, auth := range seen {
		if auth != "Bearer tok-1" {
			t.Errorf("expected cached bearer token on every request, got %q", auth)
		}
	}
}

func TestBearerPolicy_RefreshesNearExpiry(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	// tokens expire inside the refresh window, so every request refreshes
	cred := &fakeCredential{ttl: 30 * time.Second}
	pl := testPipeline(Options{Retry: fastRetry(), Credential: cred, Scopes: []string{"scope"}})

	for i := 0; i < 2; i++ {
		req, _ := NewRequest(context.Background(), http.MethodGet, ts.URL)
		resp, err := pl.Do(req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		Drain(resp)
	}

	if n := atomic.LoadInt32(&cred.calls); n != 2 {
		t.Errorf("expected a refresh per request near expiry, got %d fetches", n)
	}
}

func TestBearerPolicy_FallsBackToCachedOnRefreshFailure(t *testing.T) {
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	// first token is valid for 90s: within the refresh window but not expired
	cred := &fakeCredential{ttl: 90 * time.Second}
	pl := testPipeline(Options{Retry: fastRetry(), Credential: cred, Scopes: []string{"scope"}})

	req, _ := NewRequest(context.Background(), http.MethodGet, ts.URL)
	resp, err := pl.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Drain(resp)

	cred.fail.Store(true)
	req, _ = NewRequest(context.Background(), http.MethodGet, ts.URL)
	resp, err = pl.Do(req)
	if err != nil {
		t.Fatalf("expected fallback to cached token, got error: %v", err)
	}
	Drain(resp)

	if auth != "Bearer tok-1" {
		t.Errorf("expected the still-valid cached token, got %q", auth)
	}
}

func TestBearerPolicy_FailsWithoutUsableToken(t *testing.T) {
	cred := &fakeCredential{ttl: time.Hour}
	cred.fail.Store(true)
	pl := testPipeline(Options{Retry: fastRetry(), Credential: cred, Scopes: []string{"scope"}})

	req, _ := NewRequest(context.Background(), http.MethodGet, "http://localhost:0")
	if _, err := pl.Do(req); err == nil {
		t.Fatal("expected error when no token can be acquired")
	}
}
