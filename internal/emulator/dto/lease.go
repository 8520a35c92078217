package dto

// Lease actions accepted by the x-ms-lease-action header.
const (
	LeaseActionAcquire = "acquire"
	LeaseActionRenew   = "renew"
	LeaseActionRelease = "release"
	LeaseActionBreak   = "break"
)

// LeaseRequest carries the parsed lease headers of a comp=lease call.
type LeaseRequest struct {
	Action          string `validate:"required,oneof=acquire renew release break"`
	LeaseID         string
	ProposedLeaseID string
	// Duration applies to acquire only. -1 means infinite.
	Duration int `validate:"omitempty,lease_duration"`
}

// LeaseResponse mirrors the lease state headers set on success.
type LeaseResponse struct {
	LeaseID string `json:"lease_id,omitempty"`
	State   string `json:"state"`
	Epoch   int64  `json:"epoch"`
	// RemainingSeconds is set on break responses.
	RemainingSeconds int `json:"remaining_seconds,omitempty"`
}
