package dto

import (
	"encoding/json"

	"github.com/Alwanly/cloud-sdk-go/pkg/wrapper"
)

// ImportSetting is one setting in a bulk import.
type ImportSetting struct {
	Key         string `json:"key" validate:"required"`
	Label       string `json:"label"`
	Value       string `json:"value" validate:"required"`
	ContentType string `json:"content_type"`
}

// ImportRequest starts a bulk import of settings as a long-running
// operation.
type ImportRequest struct {
	Settings []ImportSetting `json:"settings" validate:"required,min=1,dive"`
}

// ImportResult is the terminal result of a completed import.
type ImportResult struct {
	Imported int `json:"imported"`
}

// OperationResponse is the status document served at the operation endpoint.
type OperationResponse struct {
	ID     string             `json:"id"`
	Status string             `json:"status"`
	Error  *wrapper.ErrorBody `json:"error,omitempty"`
	Result json.RawMessage    `json:"result,omitempty"`
}
