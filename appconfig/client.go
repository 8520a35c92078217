// Package appconfig is a client for the key-value configuration service.
// It demonstrates the conditional-request (ETag) conventions used across
// this module's data-plane clients.
package appconfig

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Alwanly/cloud-sdk-go/pkg/identity"
	"github.com/Alwanly/cloud-sdk-go/pkg/logger"
	"github.com/Alwanly/cloud-sdk-go/pkg/pipeline"
)

// Setting is one configuration key-value.
type Setting struct {
	Key          string    `json:"key"`
	Label        string    `json:"label,omitempty"`
	Value        string    `json:"value"`
	ContentType  string    `json:"content_type,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified,omitempty"`
}

// ClientOptions configures a Client.
type ClientOptions struct {
	Transport  pipeline.Transporter
	Retry      pipeline.RetryOptions
	Credential identity.TokenCredential
	Scopes     []string
	Logger     *logger.CanonicalLogger
	Metrics    *pipeline.Metrics
}

// Client accesses the configuration service at a single endpoint.
type Client struct {
	endpoint string
	pl       pipeline.Pipeline
}

// NewClient creates a client for the given endpoint, e.g.
// "https://myconfig.example.net".
func NewClient(endpoint string, opts *ClientOptions) (*Client, error) {
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	if opts == nil {
		opts = &ClientOptions{}
	}
	pl := pipeline.New(opts.Transport, pipeline.Options{
		Retry:      opts.Retry,
		Credential: opts.Credential,
		Scopes:     opts.Scopes,
		Telemetry:  "appconfig/" + pipeline.Version,
		Logger:     opts.Logger,
		Metrics:    opts.Metrics,
	})
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		pl:       pl,
	}, nil
}

func (c *Client) settingURL(key, label string) string {
	u := c.endpoint + "/kv/" + url.PathEscape(key)
	if label != "" {
		u += "?label=" + url.QueryEscape(label)
	}
	return u
}

// GetSettingOptions refines GetSetting.
type GetSettingOptions struct {
	Label string
	// OnlyIfChanged makes the request conditional on the given ETag: when
	// the stored setting still matches, the response reports Unchanged and
	// carries no setting.
	OnlyIfChanged string
}

// GetSettingResponse is the result of GetSetting.
type GetSettingResponse struct {
	Setting Setting
	// Unchanged is true when OnlyIfChanged was set and the value has not
	// changed since that ETag.
	Unchanged bool
}

// GetSetting retrieves a setting by key.
func (c *Client) GetSetting(ctx context.Context, key string, opts *GetSettingOptions) (GetSettingResponse, error) {
	if opts == nil {
		opts = &GetSettingOptions{}
	}
	req, err := pipeline.NewRequest(ctx, http.MethodGet, c.settingURL(key, opts.Label))
	if err != nil {
		return GetSettingResponse{}, err
	}
	if opts.OnlyIfChanged != "" {
		req.Raw().Header.Set("If-None-Match", opts.OnlyIfChanged)
	}

	resp, err := c.pl.Do(req)
	if err != nil {
		return GetSettingResponse{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		pipeline.Drain(resp)
		return GetSettingResponse{Unchanged: true}, nil
	case resp.StatusCode == http.StatusOK:
		var s Setting
		if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
			return GetSettingResponse{}, fmt.Errorf("failed to decode setting: %w", err)
		}
		if s.ETag == "" {
			s.ETag = resp.Header.Get("ETag")
		}
		return GetSettingResponse{Setting: s}, nil
	default:
		return GetSettingResponse{}, pipeline.NewResponseError(resp)
	}
}

// SetSettingOptions refines SetSetting.
type SetSettingOptions struct {
	// OnlyIfUnchanged makes the write conditional on the given ETag; a
	// concurrent modification surfaces as pipeline.ErrResourceExists.
	OnlyIfUnchanged string
	// OnlyIfMissing makes the write fail when the key already exists.
	OnlyIfMissing bool
}

// SetSetting creates or updates a setting.
func (c *Client) SetSetting(ctx context.Context, setting Setting, opts *SetSettingOptions) (Setting, error) {
	if setting.Key == "" {
		return Setting{}, fmt.Errorf("setting key is required")
	}
	if opts == nil {
		opts = &SetSettingOptions{}
	}

	req, err := pipeline.NewRequest(ctx, http.MethodPut, c.settingURL(setting.Key, setting.Label))
	if err != nil {
		return Setting{}, err
	}
	if err := req.SetBody(setting); err != nil {
		return Setting{}, err
	}
	if opts.OnlyIfUnchanged != "" {
		req.Raw().Header.Set("If-Match", opts.OnlyIfUnchanged)
	}
	if opts.OnlyIfMissing {
		req.Raw().Header.Set("If-None-Match", "*")
	}

	resp, err := c.pl.Do(req)
	if err != nil {
		return Setting{}, err
	}
	defer resp.Body.Close()

	if !pipeline.HasStatusCode(resp, http.StatusOK, http.StatusCreated) {
		return Setting{}, pipeline.NewResponseError(resp)
	}

	var s Setting
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return Setting{}, fmt.Errorf("failed to decode setting: %w", err)
	}
	return s, nil
}

// DeleteSettingOptions refines DeleteSetting.
type DeleteSettingOptions struct {
	Label           string
	OnlyIfUnchanged string
}

// DeleteSetting removes a setting. Deleting a missing setting is not an
// error.
func (c *Client) DeleteSetting(ctx context.Context, key string, opts *DeleteSettingOptions) error {
	if opts == nil {
		opts = &DeleteSettingOptions{}
	}
	req, err := pipeline.NewRequest(ctx, http.MethodDelete, c.settingURL(key, opts.Label))
	if err != nil {
		return err
	}
	if opts.OnlyIfUnchanged != "" {
		req.Raw().Header.Set("If-Match", opts.OnlyIfUnchanged)
	}

	resp, err := c.pl.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !pipeline.HasStatusCode(resp, http.StatusOK, http.StatusNoContent, http.StatusNotFound) {
		return pipeline.NewResponseError(resp)
	}
	pipeline.Drain(resp)
	return nil
}

// ImportSettingsResult is the outcome of a finished bulk import.
type ImportSettingsResult struct {
	Imported int `json:"imported"`
}

// BeginImportSettings starts a bulk import of settings as a long-running
// operation and returns a poller for its completion.
func (c *Client) BeginImportSettings(ctx context.Context, settings []Setting) (*pipeline.Poller[ImportSettingsResult], error) {
	if len(settings) == 0 {
		return nil, fmt.Errorf("at least one setting is required")
	}

	req, err := pipeline.NewRequest(ctx, http.MethodPost, c.endpoint+"/kv/$import")
	if err != nil {
		return nil, err
	}
	body := struct {
		Settings []Setting `json:"settings"`
	}{Settings: settings}
	if err := req.SetBody(body); err != nil {
		return nil, err
	}

	resp, err := c.pl.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !pipeline.HasStatusCode(resp, http.StatusAccepted) {
		return nil, pipeline.NewResponseError(resp)
	}
	pipeline.Drain(resp)
	return pipeline.NewPoller[ImportSettingsResult](c.pl, resp)
}

// ListSettingsOptions refines NewListSettingsPager.
type ListSettingsOptions struct {
	// KeyFilter restricts results to keys with this prefix.
	KeyFilter string
	Label     string
}

// NewListSettingsPager pages through all settings.
func (c *Client) NewListSettingsPager(opts *ListSettingsOptions) *pipeline.Pager[Setting] {
	if opts == nil {
		opts = &ListSettingsOptions{}
	}
	q := url.Values{}
	if opts.KeyFilter != "" {
		q.Set("key", opts.KeyFilter)
	}
	if opts.Label != "" {
		q.Set("label", opts.Label)
	}
	first := c.endpoint + "/kv"
	if enc := q.Encode(); enc != "" {
		first += "?" + enc
	}
	return pipeline.NewPager[Setting](c.pl, first)
}
