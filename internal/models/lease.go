package models

import "time"

// Lease states mirror the storage lease lifecycle.
const (
	LeaseStateAvailable = "available"
	LeaseStateLeased    = "leased"
	LeaseStateBroken    = "broken"
)

// BlobLease tracks the lease held on one blob. DurationSeconds is -1 for an
// infinite lease.
type BlobLease struct {
	ID              int64      `gorm:"primaryKey;autoIncrement;column:id"`
	Container       string     `gorm:"column:container;uniqueIndex:idx_container_blob"`
	Blob            string     `gorm:"column:blob;uniqueIndex:idx_container_blob"`
	LeaseID         string     `gorm:"column:lease_id"`
	State           string     `gorm:"column:state"`
	DurationSeconds int        `gorm:"column:duration_seconds"`
	Epoch           int64      `gorm:"column:epoch"`
	ExpiresAt       *time.Time `gorm:"column:expires_at"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (BlobLease) TableName() string {
	return "blob_leases"
}

// Expired reports whether a finite lease has lapsed.
func (l BlobLease) Expired(now time.Time) bool {
	if l.State != LeaseStateLeased {
		return false
	}
	if l.DurationSeconds == -1 || l.ExpiresAt == nil {
		return false
	}
	return !l.ExpiresAt.After(now)
}
