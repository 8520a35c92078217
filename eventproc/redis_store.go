package eventproc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Alwanly/cloud-sdk-go/pkg/logger"
	"github.com/Alwanly/cloud-sdk-go/pkg/retry"
)

// RedisConfig holds connection settings for a RedisLeaseStore.
type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	Namespace string
}

// RedisLeaseStore persists leases as JSON documents in Redis, one key per
// partition plus an index set. Compare-and-set on the lease token goes
// through WATCH so two processors racing for the same partition cannot both
// win a renew.
type RedisLeaseStore struct {
	client    *redis.Client
	namespace string
	logger    *logger.CanonicalLogger
	now       func() time.Time
}

// NewRedisLeaseStore connects to Redis and validates the connection with a
// ping before returning.
func NewRedisLeaseStore(cfg RedisConfig, log *logger.CanonicalLogger) (*RedisLeaseStore, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Try a ping to validate connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	ns := cfg.Namespace
	if ns == "" {
		ns = "eventproc"
	}

	log.Info("redis lease store initialized", logger.String("addr", addr), logger.String("namespace", ns))

	return &RedisLeaseStore{
		client:    client,
		namespace: ns,
		logger:    log,
		now:       time.Now,
	}, nil
}

// Close releases the underlying Redis connection.
func (s *RedisLeaseStore) Close() error {
	return s.client.Close()
}

func (s *RedisLeaseStore) leaseKey(partitionID string) string {
	return fmt.Sprintf("%s:lease:%s", s.namespace, partitionID)
}

func (s *RedisLeaseStore) indexKey() string {
	return fmt.Sprintf("%s:partitions", s.namespace)
}

func (s *RedisLeaseStore) EnsureLeases(ctx context.Context, partitionIDs []string) error {
	for _, id := range partitionIDs {
		doc, err := json.Marshal(Lease{PartitionID: id})
		if err != nil {
			return err
		}
		// SETNX keeps an existing lease untouched.
		if err := s.client.SetNX(ctx, s.leaseKey(id), doc, 0).Err(); err != nil {
			return fmt.Errorf("failed to ensure lease for partition %s: %w", id, err)
		}
		if err := s.client.SAdd(ctx, s.indexKey(), id).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisLeaseStore) ListLeases(ctx context.Context) ([]Lease, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	leases := make([]Lease, 0, len(ids))
	for _, id := range ids {
		l, err := s.getLease(ctx, s.client, id)
		if err == ErrLeaseNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		leases = append(leases, l)
	}
	return leases, nil
}

func (s *RedisLeaseStore) getLease(ctx context.Context, c redis.Cmdable, partitionID string) (Lease, error) {
	doc, err := c.Get(ctx, s.leaseKey(partitionID)).Result()
	if err == redis.Nil {
		return Lease{}, ErrLeaseNotFound
	}
	if err != nil {
		return Lease{}, err
	}
	var l Lease
	if err := json.Unmarshal([]byte(doc), &l); err != nil {
		return Lease{}, fmt.Errorf("corrupt lease document for partition %s: %w", partitionID, err)
	}
	return l, nil
}

// mutateLease runs fn against the current lease under WATCH and writes the
// result back in a transaction. WATCH conflicts are retried with backoff;
// every other error aborts immediately.
func (s *RedisLeaseStore) mutateLease(ctx context.Context, partitionID string, fn func(Lease) (Lease, error)) (Lease, error) {
	key := s.leaseKey(partitionID)
	var updated Lease
	var terminal error

	err := retry.WithExponentialBackoff(ctx, retry.Config{
		MaxRetries:     2,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
		Multiplier:     2,
		Jitter:         true,
	}, func(ctx context.Context) error {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := s.getLease(ctx, tx, partitionID)
			if err != nil {
				return err
			}
			next, err := fn(current)
			if err != nil {
				return err
			}
			doc, err := json.Marshal(next)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, doc, 0)
				return nil
			})
			if err == nil {
				updated = next
			}
			return err
		}, key)

		if err == redis.TxFailedErr {
			return err
		}
		terminal = err
		return nil
	})
	if terminal != nil {
		return Lease{}, terminal
	}
	if err != nil {
		return Lease{}, fmt.Errorf("lease update for partition %s kept conflicting: %w", partitionID, err)
	}
	return updated, nil
}

func (s *RedisLeaseStore) AcquireLease(ctx context.Context, partitionID, owner string, duration time.Duration) (Lease, error) {
	l, err := s.mutateLease(ctx, partitionID, func(current Lease) (Lease, error) {
		current.Owner = owner
		current.Token = uuid.NewString()
		current.Epoch++
		current.ExpiresAt = s.now().Add(duration)
		return current, nil
	})
	if err != nil {
		return Lease{}, err
	}
	s.logger.Debug("lease acquired",
		logger.String(logger.FieldPartitionID, partitionID),
		logger.String(logger.FieldOwner, owner),
		logger.Int64(logger.FieldEpoch, l.Epoch))
	return l, nil
}

func (s *RedisLeaseStore) RenewLease(ctx context.Context, lease Lease, duration time.Duration) (Lease, error) {
	return s.mutateLease(ctx, lease.PartitionID, func(current Lease) (Lease, error) {
		if current.Token != lease.Token {
			return Lease{}, ErrLeaseLost
		}
		current.ExpiresAt = s.now().Add(duration)
		return current, nil
	})
}

func (s *RedisLeaseStore) ReleaseLease(ctx context.Context, lease Lease) error {
	_, err := s.mutateLease(ctx, lease.PartitionID, func(current Lease) (Lease, error) {
		if current.Token != lease.Token {
			return Lease{}, ErrLeaseLost
		}
		current.Owner = ""
		current.Token = ""
		current.ExpiresAt = time.Time{}
		return current, nil
	})
	return err
}

func (s *RedisLeaseStore) UpdateCheckpoint(ctx context.Context, lease Lease, offset string, sequenceNumber int64) (Lease, error) {
	return s.mutateLease(ctx, lease.PartitionID, func(current Lease) (Lease, error) {
		if current.Token != lease.Token {
			return Lease{}, ErrLeaseLost
		}
		current.Offset = offset
		current.SequenceNumber = sequenceNumber
		return current, nil
	})
}
