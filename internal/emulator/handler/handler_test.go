package handler

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/Alwanly/cloud-sdk-go/internal/config"
	"github.com/Alwanly/cloud-sdk-go/internal/emulator/dto"
	authentication "github.com/Alwanly/cloud-sdk-go/pkg/auth"
	"github.com/Alwanly/cloud-sdk-go/pkg/database"
	"github.com/Alwanly/cloud-sdk-go/pkg/deps"
	"github.com/Alwanly/cloud-sdk-go/pkg/logger"
	"github.com/Alwanly/cloud-sdk-go/pkg/middleware"
	"github.com/Alwanly/cloud-sdk-go/pkg/wrapper"
)

func newTestApp(t *testing.T) (*fiber.App, authentication.ITokenService) {
	t.Helper()

	cfg := &config.EmulatorConfig{}
	cfg.Auth.SigningKey = "test-signing-key"
	cfg.Auth.Issuer = "test"
	cfg.Auth.TokenTTLSeconds = 3600
	cfg.Auth.AdminUsername = "admin"
	cfg.Auth.AdminPassword = "secret"
	cfg.Auth.Clients = []config.ClientCredential{
		{ClientID: "client-1", ClientSecret: "s3cret"},
	}
	cfg.Lease.DefaultDurationSeconds = 60

	log := logger.Nop()

	tokenSvc, err := authentication.NewTokenService(&authentication.TokenConfig{
		SigningKey: cfg.Auth.SigningKey,
		Issuer:     cfg.Auth.Issuer,
		TTL:        cfg.Auth.TokenTTL(),
	})
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}

	mid := middleware.NewAuthMiddleware(
		middleware.SetBasicAuth(&authentication.BasicAuthConfig{
			Username: cfg.Auth.AdminUsername,
			Password: cfg.Auth.AdminPassword,
		}),
		middleware.SetTokenService(tokenSvc),
	)

	db, err := database.NewSQLiteDB("")
	if err != nil {
		t.Fatalf("NewSQLiteDB() error = %v", err)
	}
	if err := database.RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(log),
	})
	app.Use(requestid.New())
	app.Use(middleware.CanonicalLoggerMiddleware(log))

	NewHandler(deps.App{
		Fiber:      app,
		Database:   db,
		Logger:     log,
		Middleware: mid,
	}, cfg)

	return app, tokenSvc
}

func bearer(t *testing.T, svc authentication.ITokenService) string {
	t.Helper()
	token, _, err := svc.IssueToken("client-1", "")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return "Bearer " + token
}

func doJSON(t *testing.T, app *fiber.App, method, target, auth string, body interface{}, headers map[string]string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestTokenEndpoint(t *testing.T) {
	app, _ := newTestApp(t)

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", "client-1")
	form.Set("client_secret", "s3cret")

	req := httptest.NewRequest(http.MethodPost, "/common/oauth2/v2.0/token",
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var tr dto.TokenResponse
	decodeBody(t, resp, &tr)
	if tr.AccessToken == "" || tr.TokenType != "Bearer" || tr.ExpiresIn != 3600 {
		t.Fatalf("unexpected token response: %+v", tr)
	}

	// wrong secret
	form.Set("client_secret", "nope")
	req = httptest.NewRequest(http.MethodPost, "/common/oauth2/v2.0/token",
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	var oe dto.OAuthError
	decodeBody(t, resp, &oe)
	if oe.Error != "invalid_client" {
		t.Fatalf("oauth error = %q, want invalid_client", oe.Error)
	}
}

func TestSettingsRequireBearerToken(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/kv/some-key", "", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	resp = doJSON(t, app, http.MethodGet, "/kv/some-key", "Bearer not-a-token", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status with bad token = %d, want 401", resp.StatusCode)
	}
}

func TestSettingETagLifecycle(t *testing.T) {
	app, svc := newTestApp(t)
	auth := bearer(t, svc)

	// create-only write succeeds on a new key
	resp := doJSON(t, app, http.MethodPut, "/kv/db-conn", auth,
		dto.SetSettingRequest{Value: "v1"}, map[string]string{"If-None-Match": "*"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create status = %d, want 200", resp.StatusCode)
	}
	var created dto.SettingResponse
	etagHeader := resp.Header.Get("ETag")
	decodeBody(t, resp, &created)
	if created.ETag == "" || created.ETag != etagHeader {
		t.Fatalf("etag body %q, header %q", created.ETag, etagHeader)
	}

	// create-only write fails on an existing key
	resp = doJSON(t, app, http.MethodPut, "/kv/db-conn", auth,
		dto.SetSettingRequest{Value: "v2"}, map[string]string{"If-None-Match": "*"})
	if resp.StatusCode != http.StatusPreconditionFailed {
		t.Fatalf("duplicate create status = %d, want 412", resp.StatusCode)
	}
	var env wrapper.ErrorEnvelope
	decodeBody(t, resp, &env)
	if env.Error.Code != "KeyAlreadyExists" {
		t.Fatalf("error code = %q, want KeyAlreadyExists", env.Error.Code)
	}

	// conditional read with the current etag reports unchanged
	resp = doJSON(t, app, http.MethodGet, "/kv/db-conn", auth, nil,
		map[string]string{"If-None-Match": created.ETag})
	if resp.StatusCode != http.StatusNotModified {
		t.Fatalf("conditional get status = %d, want 304", resp.StatusCode)
	}

	// matched If-Match write wins and rotates the etag
	resp = doJSON(t, app, http.MethodPut, "/kv/db-conn", auth,
		dto.SetSettingRequest{Value: "v2"}, map[string]string{"If-Match": created.ETag})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d, want 200", resp.StatusCode)
	}
	var updated dto.SettingResponse
	decodeBody(t, resp, &updated)
	if updated.ETag == created.ETag {
		t.Fatal("etag did not rotate on update")
	}

	// the old etag no longer matches
	resp = doJSON(t, app, http.MethodPut, "/kv/db-conn", auth,
		dto.SetSettingRequest{Value: "v3"}, map[string]string{"If-Match": created.ETag})
	if resp.StatusCode != http.StatusPreconditionFailed {
		t.Fatalf("stale update status = %d, want 412", resp.StatusCode)
	}

	resp = doJSON(t, app, http.MethodDelete, "/kv/db-conn", auth, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", resp.StatusCode)
	}
	resp = doJSON(t, app, http.MethodGet, "/kv/db-conn", auth, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", resp.StatusCode)
	}
}

func TestLockedSettingRejectsWrites(t *testing.T) {
	app, svc := newTestApp(t)
	auth := bearer(t, svc)
	adminAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:secret"))

	resp := doJSON(t, app, http.MethodPut, "/kv/frozen", auth,
		dto.SetSettingRequest{Value: "v1"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create status = %d, want 200", resp.StatusCode)
	}

	// admin endpoints reject non-admin callers
	resp = doJSON(t, app, http.MethodPut, "/admin/kv/frozen/lock", auth, nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("lock without basic auth status = %d, want 401", resp.StatusCode)
	}

	resp = doJSON(t, app, http.MethodPut, "/admin/kv/frozen/lock", adminAuth, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("lock status = %d, want 200", resp.StatusCode)
	}

	resp = doJSON(t, app, http.MethodPut, "/kv/frozen", auth,
		dto.SetSettingRequest{Value: "v2"}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("write to locked setting status = %d, want 409", resp.StatusCode)
	}
	var env wrapper.ErrorEnvelope
	decodeBody(t, resp, &env)
	if env.Error.Code != "SettingLocked" {
		t.Fatalf("error code = %q, want SettingLocked", env.Error.Code)
	}

	resp = doJSON(t, app, http.MethodDelete, "/admin/kv/frozen/lock", adminAuth, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unlock status = %d, want 200", resp.StatusCode)
	}
	resp = doJSON(t, app, http.MethodPut, "/kv/frozen", auth,
		dto.SetSettingRequest{Value: "v2"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("write after unlock status = %d, want 200", resp.StatusCode)
	}
}

func TestListSettingsPagination(t *testing.T) {
	app, svc := newTestApp(t)
	auth := bearer(t, svc)

	for _, key := range []string{"app/a", "app/b", "other/c"} {
		resp := doJSON(t, app, http.MethodPut, "/kv/"+url.PathEscape(key), auth,
			dto.SetSettingRequest{Value: "v"}, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("seed %s status = %d", key, resp.StatusCode)
		}
	}

	// prefix filter with a one-row page
	resp := doJSON(t, app, http.MethodGet, "/kv?key="+url.QueryEscape("app/*")+"&$top=1", auth, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d, want 200", resp.StatusCode)
	}
	var page dto.ListSettingsResponse
	decodeBody(t, resp, &page)
	if len(page.Value) != 1 || page.Value[0].Key != "app/a" {
		t.Fatalf("first page = %+v", page.Value)
	}
	if page.NextLink == "" {
		t.Fatal("expected a nextLink on the first page")
	}

	resp = doJSON(t, app, http.MethodGet, page.NextLink, auth, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second page status = %d, want 200", resp.StatusCode)
	}
	var page2 dto.ListSettingsResponse
	decodeBody(t, resp, &page2)
	if len(page2.Value) != 1 || page2.Value[0].Key != "app/b" {
		t.Fatalf("second page = %+v", page2.Value)
	}
	if page2.NextLink != "" {
		t.Fatalf("last page carries nextLink %q", page2.NextLink)
	}
}

func TestLeaseLifecycle(t *testing.T) {
	app, svc := newTestApp(t)
	auth := bearer(t, svc)
	target := "/containers/checkpoints/blobs/partition-0?comp=lease"

	// acquire
	resp := doJSON(t, app, http.MethodPut, target, auth, nil, map[string]string{
		"x-ms-lease-action":   "acquire",
		"x-ms-lease-duration": "30",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("acquire status = %d, want 201", resp.StatusCode)
	}
	leaseID := resp.Header.Get("x-ms-lease-id")
	var lease dto.LeaseResponse
	decodeBody(t, resp, &lease)
	if leaseID == "" || lease.Epoch != 1 {
		t.Fatalf("lease id %q epoch %d after acquire", leaseID, lease.Epoch)
	}

	// competing acquire fails while leased
	resp = doJSON(t, app, http.MethodPut, target, auth, nil, map[string]string{
		"x-ms-lease-action":      "acquire",
		"x-ms-lease-duration":    "30",
		"x-ms-proposed-lease-id": "some-other-lease",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("competing acquire status = %d, want 409", resp.StatusCode)
	}
	var env wrapper.ErrorEnvelope
	decodeBody(t, resp, &env)
	if env.Error.Code != "LeaseAlreadyPresent" {
		t.Fatalf("error code = %q, want LeaseAlreadyPresent", env.Error.Code)
	}

	// renew with the right id
	resp = doJSON(t, app, http.MethodPut, target, auth, nil, map[string]string{
		"x-ms-lease-action": "renew",
		"x-ms-lease-id":     leaseID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("renew status = %d, want 200", resp.StatusCode)
	}

	// renew with the wrong id
	resp = doJSON(t, app, http.MethodPut, target, auth, nil, map[string]string{
		"x-ms-lease-action": "renew",
		"x-ms-lease-id":     "bogus",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("renew with wrong id status = %d, want 409", resp.StatusCode)
	}

	// release, then a new acquire bumps the epoch
	resp = doJSON(t, app, http.MethodPut, target, auth, nil, map[string]string{
		"x-ms-lease-action": "release",
		"x-ms-lease-id":     leaseID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("release status = %d, want 200", resp.StatusCode)
	}

	resp = doJSON(t, app, http.MethodPut, target, auth, nil, map[string]string{
		"x-ms-lease-action":   "acquire",
		"x-ms-lease-duration": "-1",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("reacquire status = %d, want 201", resp.StatusCode)
	}
	decodeBody(t, resp, &lease)
	if lease.Epoch != 2 {
		t.Fatalf("epoch after reacquire = %d, want 2", lease.Epoch)
	}

	// break ends the lease immediately
	resp = doJSON(t, app, http.MethodPut, target, auth, nil, map[string]string{
		"x-ms-lease-action": "break",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("break status = %d, want 202", resp.StatusCode)
	}
	if got := resp.Header.Get("x-ms-lease-time"); got != "0" {
		t.Fatalf("x-ms-lease-time = %q, want 0", got)
	}

	// invalid duration is rejected before touching state
	resp = doJSON(t, app, http.MethodPut, target, auth, nil, map[string]string{
		"x-ms-lease-action":   "acquire",
		"x-ms-lease-duration": "5",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid duration status = %d, want 400", resp.StatusCode)
	}
}

func TestImportOperation(t *testing.T) {
	app, svc := newTestApp(t)
	auth := bearer(t, svc)

	resp := doJSON(t, app, http.MethodPost, "/kv/$import", auth, dto.ImportRequest{
		Settings: []dto.ImportSetting{
			{Key: "imported/a", Value: "1"},
			{Key: "imported/b", Value: "2"},
		},
	}, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("import status = %d, want 202", resp.StatusCode)
	}
	opLocation := resp.Header.Get("Operation-Location")
	if opLocation == "" {
		t.Fatal("missing Operation-Location header")
	}

	var op dto.OperationResponse
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp = doJSON(t, app, http.MethodGet, opLocation, auth, nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("operation status = %d, want 200", resp.StatusCode)
		}
		decodeBody(t, resp, &op)
		if op.Status != "InProgress" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("operation did not finish in time")
		}
		time.Sleep(20 * time.Millisecond)
	}

	if op.Status != "Succeeded" {
		t.Fatalf("operation status = %q, want Succeeded (error: %+v)", op.Status, op.Error)
	}
	var result dto.ImportResult
	if err := json.Unmarshal(op.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Imported != 2 {
		t.Fatalf("imported = %d, want 2", result.Imported)
	}

	resp = doJSON(t, app, http.MethodGet, "/kv/"+url.PathEscape("imported/a"), auth, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("imported setting status = %d, want 200", resp.StatusCode)
	}

	resp = doJSON(t, app, http.MethodGet, "/operations/unknown", auth, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown operation status = %d, want 404", resp.StatusCode)
	}
}
