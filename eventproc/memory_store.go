package eventproc

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLeaseStore keeps leases in process memory. It is the store used by
// tests and single-process deployments; cross-process coordination needs
// RedisLeaseStore.
type MemoryLeaseStore struct {
	mu     sync.Mutex
	leases map[string]Lease

	// now is swapped out by tests to control expiry.
	now func() time.Time
}

// NewMemoryLeaseStore returns an empty in-memory store.
func NewMemoryLeaseStore() *MemoryLeaseStore {
	return &MemoryLeaseStore{
		leases: make(map[string]Lease),
		now:    time.Now,
	}
}

func (s *MemoryLeaseStore) EnsureLeases(_ context.Context, partitionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range partitionIDs {
		if _, ok := s.leases[id]; !ok {
			s.leases[id] = Lease{PartitionID: id}
		}
	}
	return nil
}

func (s *MemoryLeaseStore) ListLeases(_ context.Context) ([]Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Lease, 0, len(s.leases))
	for _, l := range s.leases {
		out = append(out, l)
	}
	return out, nil
}

func (s *MemoryLeaseStore) AcquireLease(_ context.Context, partitionID, owner string, duration time.Duration) (Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leases[partitionID]
	if !ok {
		return Lease{}, ErrLeaseNotFound
	}
	l.Owner = owner
	l.Token = uuid.NewString()
	l.Epoch++
	l.ExpiresAt = s.now().Add(duration)
	s.leases[partitionID] = l
	return l, nil
}

func (s *MemoryLeaseStore) RenewLease(_ context.Context, lease Lease, duration time.Duration) (Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leases[lease.PartitionID]
	if !ok {
		return Lease{}, ErrLeaseNotFound
	}
	if l.Token != lease.Token {
		return Lease{}, ErrLeaseLost
	}
	l.ExpiresAt = s.now().Add(duration)
	s.leases[lease.PartitionID] = l
	return l, nil
}

func (s *MemoryLeaseStore) ReleaseLease(_ context.Context, lease Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leases[lease.PartitionID]
	if !ok {
		return ErrLeaseNotFound
	}
	if l.Token != lease.Token {
		return ErrLeaseLost
	}
	l.Owner = ""
	l.Token = ""
	l.ExpiresAt = time.Time{}
	s.leases[lease.PartitionID] = l
	return nil
}

func (s *MemoryLeaseStore) UpdateCheckpoint(_ context.Context, lease Lease, offset string, sequenceNumber int64) (Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leases[lease.PartitionID]
	if !ok {
		return Lease{}, ErrLeaseNotFound
	}
	if l.Token != lease.Token {
		return Lease{}, ErrLeaseLost
	}
	l.Offset = offset
	l.SequenceNumber = sequenceNumber
	s.leases[lease.PartitionID] = l
	return l, nil
}
