package dto

// SettingResponse is one configuration setting as served to clients.
type SettingResponse struct {
	Key         string `json:"key"`
	Label       string `json:"label,omitempty"`
	Value       string `json:"value"`
	ContentType string `json:"content_type,omitempty"`
	ETag        string `json:"etag"`
	Locked      bool   `json:"locked"`
}

// SetSettingRequest is the body of a setting upsert.
type SetSettingRequest struct {
	Value       string `json:"value" validate:"required"`
	ContentType string `json:"content_type"`
}

// ListSettingsResponse is one page of settings. NextLink is relative and
// empty on the last page.
type ListSettingsResponse struct {
	Value    []SettingResponse `json:"value"`
	NextLink string            `json:"nextLink,omitempty"`
}
