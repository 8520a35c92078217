package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testPipeline(opts Options) Pipeline {
	return New(http.DefaultClient, opts)
}

func fastRetry() RetryOptions {
	return RetryOptions{
		MaxRetries:     3,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
	}
}

func TestPipeline_SetsClientRequestID(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(HeaderClientRequestID)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	pl := testPipeline(Options{Retry: fastRetry()})
	req, err := NewRequest(context.Background(), http.MethodGet, ts.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := pl.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Drain(resp)

	if got == "" {
		t.Error("expected a generated client request id header")
	}
}

func TestPipeline_PreservesCallerRequestID(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(HeaderClientRequestID)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	pl := testPipeline(Options{Retry: fastRetry()})
	req, _ := NewRequest(context.Background(), http.MethodGet, ts.URL)
	req.Raw().Header.Set(HeaderClientRequestID, "caller-id")
	resp, err := pl.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Drain(resp)

	if got != "caller-id" {
		t.Errorf("expected caller-id to be preserved, got %q", got)
	}
}

func TestPipeline_SetsUserAgent(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	pl := testPipeline(Options{Retry: fastRetry(), Telemetry: "appconfig/1.0"})
	req, _ := NewRequest(context.Background(), http.MethodGet, ts.URL)
	resp, err := pl.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Drain(resp)

	want := "appconfig/1.0 cloud-sdk-go/" + Version
	if got != want {
		t.Errorf("expected user agent %q, got %q", want, got)
	}
}

func TestRetry_EventualSuccess(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	pl := testPipeline(Options{Retry: fastRetry()})
	req, _ := NewRequest(context.Background(), http.MethodGet, ts.URL)
	resp, err := pl.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Drain(resp)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 after retries, got %d", resp.StatusCode)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestRetry_Exhaustion(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	pl := testPipeline(Options{Retry: fastRetry()})
	req, _ := NewRequest(context.Background(), http.MethodGet, ts.URL)
	resp, err := pl.Do(req)
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	Drain(resp)

	// retries exhausted: the last response is returned for error mapping
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", resp.StatusCode)
	}
	if n := atomic.LoadInt32(&calls); n != 4 {
		t.Errorf("expected 1 initial + 3 retries, got %d attempts", n)
	}
}

func TestRetry_NoRetryOnClientError(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	pl := testPipeline(Options{Retry: fastRetry()})
	req, _ := NewRequest(context.Background(), http.MethodGet, ts.URL)
	resp, err := pl.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Drain(resp)

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected no retries for 400, got %d attempts", n)
	}
}

func TestRetry_HonorsRetryAfter(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	pl := testPipeline(Options{Retry: fastRetry()})
	req, _ := NewRequest(context.Background(), http.MethodGet, ts.URL)

	start := time.Now()
	resp, err := pl.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Drain(resp)

	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("expected Retry-After of 1s to be honored, finished in %v", elapsed)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRetry_HonorsRetryAfterHTTPDate(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", time.Now().Add(time.Second).UTC().Format(http.TimeFormat))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	pl := testPipeline(Options{Retry: fastRetry()})
	req, _ := NewRequest(context.Background(), http.MethodGet, ts.URL)

	start := time.Now()
	resp, err := pl.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Drain(resp)

	// http.TimeFormat has second granularity, so the wait can round down
	if elapsed := time.Since(start); elapsed < 500*time.Millisecond {
		t.Errorf("expected an HTTP-date Retry-After to be honored, finished in %v", elapsed)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRetryAfterParsing(t *testing.T) {
	mkResp := func(value string) *http.Response {
		h := http.Header{}
		if value != "" {
			h.Set("Retry-After", value)
		}
		return &http.Response{Header: h}
	}

	// delta seconds
	if d, ok := retryAfter(mkResp("2")); !ok || d != 2*time.Second {
		t.Errorf("delta seconds: got (%v, %v), want (2s, true)", d, ok)
	}

	// future HTTP date, allow for the clock advancing between format and parse
	future := time.Now().Add(10 * time.Second).UTC().Format(http.TimeFormat)
	if d, ok := retryAfter(mkResp(future)); !ok || d <= 8*time.Second || d > 10*time.Second {
		t.Errorf("future date: got (%v, %v), want about 10s", d, ok)
	}

	// past HTTP date yields zero delay, not a parse failure
	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	if d, ok := retryAfter(mkResp(past)); !ok || d != 0 {
		t.Errorf("past date: got (%v, %v), want (0, true)", d, ok)
	}

	if _, ok := retryAfter(mkResp("")); ok {
		t.Error("missing header: want ok=false")
	}
	if _, ok := retryAfter(mkResp("soon")); ok {
		t.Error("garbage value: want ok=false")
	}
}

func TestRetry_RewindsBody(t *testing.T) {
	var bodies []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if len(bodies) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	pl := testPipeline(Options{Retry: fastRetry()})
	req, _ := NewRequest(context.Background(), http.MethodPost, ts.URL)
	if err := req.SetBody(map[string]string{"key": "value"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := pl.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Drain(resp)

	if len(bodies) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(bodies))
	}
	if bodies[0] != bodies[1] || bodies[1] == "" {
		t.Errorf("expected identical non-empty bodies on retry, got %q then %q", bodies[0], bodies[1])
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	pl := testPipeline(Options{Retry: RetryOptions{
		MaxRetries:     10,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     time.Second,
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	req, _ := NewRequest(ctx, http.MethodGet, ts.URL)
	if _, err := pl.Do(req); err == nil {
		t.Fatal("expected error after context cancellation")
	} else if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestErrors_ResponseErrorMapping(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"code": "SettingNotFound", "message": "no such key"},
		})
	}))
	defer ts.Close()

	pl := testPipeline(Options{Retry: fastRetry()})
	req, _ := NewRequest(context.Background(), http.MethodGet, ts.URL)
	resp, err := pl.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mapped := NewResponseError(resp)
	var re *ResponseError
	if !errors.As(mapped, &re) {
		t.Fatalf("expected *ResponseError, got %T", mapped)
	}
	if re.ErrorCode != "SettingNotFound" {
		t.Errorf("expected error code SettingNotFound, got %q", re.ErrorCode)
	}
	if !errors.Is(mapped, ErrNotFound) {
		t.Error("expected mapping onto ErrNotFound")
	}
	if errors.Is(mapped, ErrResourceExists) {
		t.Error("404 must not map onto ErrResourceExists")
	}
}

func TestErrors_ConflictSentinels(t *testing.T) {
	for _, code := range []int{http.StatusConflict, http.StatusPreconditionFailed} {
		re := &ResponseError{StatusCode: code}
		if !errors.Is(error(re), ErrResourceExists) {
			t.Errorf("status %d should map onto ErrResourceExists", code)
		}
	}
	re := &ResponseError{StatusCode: http.StatusForbidden}
	if !errors.Is(error(re), ErrUnauthorized) {
		t.Error("403 should map onto ErrUnauthorized")
	}
}
