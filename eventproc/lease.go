// Package eventproc coordinates competing consumers of a partitioned event
// source. Each partition is guarded by a lease; processors acquire, renew,
// steal, and checkpoint leases through a LeaseStore and pump their partitions
// while ownership holds.
package eventproc

import (
	"context"
	"errors"
	"time"
)

// Lease guards one partition. Owner and Token identify the current holder;
// Epoch increases on every acquisition so a stale holder can be fenced off.
// Offset and SequenceNumber are the holder's last checkpoint.
type Lease struct {
	PartitionID    string    `json:"partition_id"`
	Owner          string    `json:"owner"`
	Token          string    `json:"token"`
	Epoch          int64     `json:"epoch"`
	Offset         string    `json:"offset"`
	SequenceNumber int64     `json:"sequence_number"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Expired reports whether the lease is up for grabs at the given time. An
// unowned lease counts as expired.
func (l Lease) Expired(now time.Time) bool {
	if l.Owner == "" {
		return true
	}
	return !l.ExpiresAt.After(now)
}

var (
	// ErrLeaseLost is returned by renew, release, and checkpoint when the
	// lease token no longer matches: another owner has taken the partition.
	ErrLeaseLost = errors.New("lease lost to another owner")

	// ErrLeaseNotFound is returned for a partition the store has never seen.
	ErrLeaseNotFound = errors.New("lease not found")
)

// LeaseStore persists partition leases. Implementations must make
// AcquireLease/RenewLease atomic with respect to concurrent holders.
type LeaseStore interface {
	// EnsureLeases creates empty leases for any missing partitions.
	EnsureLeases(ctx context.Context, partitionIDs []string) error

	// ListLeases returns the lease for every known partition.
	ListLeases(ctx context.Context) ([]Lease, error)

	// AcquireLease takes ownership of a partition, rotating the token and
	// incrementing the epoch. Acquiring a lease held by another live owner
	// is a steal and is allowed; the previous holder finds out on its next
	// renew.
	AcquireLease(ctx context.Context, partitionID, owner string, duration time.Duration) (Lease, error)

	// RenewLease extends the expiry of a held lease. Fails with
	// ErrLeaseLost when the token no longer matches.
	RenewLease(ctx context.Context, lease Lease, duration time.Duration) (Lease, error)

	// ReleaseLease clears ownership so another processor can acquire
	// immediately. Token must still match.
	ReleaseLease(ctx context.Context, lease Lease) error

	// UpdateCheckpoint records the holder's progress. Token must still
	// match.
	UpdateCheckpoint(ctx context.Context, lease Lease, offset string, sequenceNumber int64) (Lease, error)
}
