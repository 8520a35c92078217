package appconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Alwanly/cloud-sdk-go/pkg/pipeline"
)

func TestGetSetting_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/kv/db-url" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("ETag", "v1")
		_ = json.NewEncoder(w).Encode(Setting{Key: "db-url", Value: "postgres://db", ETag: "v1"})
	}))
	defer ts.Close()

	client, err := NewClient(ts.URL, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := client.GetSetting(context.Background(), "db-url", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Unchanged {
		t.Fatal("expected Unchanged=false")
	}
	if res.Setting.Value != "postgres://db" || res.Setting.ETag != "v1" {
		t.Fatalf("unexpected setting %+v", res.Setting)
	}
}

func TestGetSetting_NotModified(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// if client sends If-None-Match, return 304
		if inm := r.Header.Get("If-None-Match"); inm == "v1" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", "v1")
		_ = json.NewEncoder(w).Encode(Setting{Key: "db-url", Value: "postgres://db", ETag: "v1"})
	}))
	defer ts.Close()

	client, _ := NewClient(ts.URL, nil)

	// First call without ETag -> should return body
	res, err := client.GetSetting(context.Background(), "db-url", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Unchanged {
		t.Fatal("expected Unchanged=false on first call")
	}

	// Now call with ETag v1 to trigger 304
	res, err = client.GetSetting(context.Background(), "db-url", &GetSettingOptions{OnlyIfChanged: "v1"})
	if err != nil {
		t.Fatalf("unexpected error on conditional request: %v", err)
	}
	if !res.Unchanged {
		t.Fatal("expected Unchanged=true when server returns 304")
	}
}

func TestGetSetting_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = fmt.Fprint(w, `{"error":{"code":"SettingNotFound","message":"no such key"}}`)
	}))
	defer ts.Close()

	client, _ := NewClient(ts.URL, nil)

	_, err := client.GetSetting(context.Background(), "missing", nil)
	if err == nil {
		t.Fatal("expected error for missing setting")
	}
	if !errors.Is(err, pipeline.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	var re *pipeline.ResponseError
	if !errors.As(err, &re) || re.ErrorCode != "SettingNotFound" {
		t.Errorf("expected typed response error with code, got %v", err)
	}
}

func TestSetSetting_OptimisticConcurrency(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		if im := r.Header.Get("If-Match"); im != "v1" {
			w.WriteHeader(http.StatusPreconditionFailed)
			_, _ = fmt.Fprint(w, `{"error":{"code":"PreconditionFailed","message":"etag mismatch"}}`)
			return
		}
		var s Setting
		_ = json.NewDecoder(r.Body).Decode(&s)
		s.ETag = "v2"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s)
	}))
	defer ts.Close()

	client, _ := NewClient(ts.URL, nil)

	updated, err := client.SetSetting(context.Background(), Setting{Key: "db-url", Value: "new"},
		&SetSettingOptions{OnlyIfUnchanged: "v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.ETag != "v2" {
		t.Errorf("expected new etag v2, got %q", updated.ETag)
	}

	// stale etag -> 412 mapped onto ErrResourceExists
	_, err = client.SetSetting(context.Background(), Setting{Key: "db-url", Value: "newer"},
		&SetSettingOptions{OnlyIfUnchanged: "v0"})
	if !errors.Is(err, pipeline.ErrResourceExists) {
		t.Errorf("expected ErrResourceExists for stale etag, got %v", err)
	}
}

func TestSetSetting_RequiresKey(t *testing.T) {
	client, _ := NewClient("http://localhost:0", nil)
	if _, err := client.SetSetting(context.Background(), Setting{Value: "v"}, nil); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestDeleteSetting_MissingIsNotAnError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	client, _ := NewClient(ts.URL, nil)
	if err := client.DeleteSetting(context.Background(), "missing", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestListSettings_FollowsNextLink(t *testing.T) {
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.RequestURI() {
		case "/kv?key=app%2F":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"value":    []Setting{{Key: "app/a", Value: "1"}, {Key: "app/b", Value: "2"}},
				"nextLink": ts.URL + "/kv?key=app%2F&page=2",
			})
		case "/kv?key=app%2F&page=2":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"value": []Setting{{Key: "app/c", Value: "3"}},
			})
		default:
			t.Errorf("unexpected request %s", r.URL.RequestURI())
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer ts.Close()

	client, _ := NewClient(ts.URL, nil)
	pager := client.NewListSettingsPager(&ListSettingsOptions{KeyFilter: "app/"})

	var keys []string
	pages := 0
	for pager.More() {
		page, err := pager.NextPage(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		pages++
		for _, s := range page.Items {
			keys = append(keys, s.Key)
		}
	}

	if pages != 2 {
		t.Errorf("expected 2 pages, got %d", pages)
	}
	if len(keys) != 3 || keys[0] != "app/a" || keys[2] != "app/c" {
		t.Errorf("unexpected keys %v", keys)
	}
}
