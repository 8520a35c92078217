package eventproc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Alwanly/cloud-sdk-go/pkg/logger"
	"github.com/Alwanly/cloud-sdk-go/pkg/poll"
)

const (
	defaultLeaseDuration = 30 * time.Second
	defaultScanInterval  = 10 * time.Second
)

// ProcessFunc pumps one partition. It runs until its context is canceled,
// which happens when the lease is lost or the processor shuts down.
type ProcessFunc func(ctx context.Context, partition *Partition) error

// Partition is the handle a ProcessFunc receives for its partition. It
// carries the lease and lets the handler record progress.
type Partition struct {
	ID string

	store LeaseStore

	mu    sync.Mutex
	lease Lease
}

// Lease returns a snapshot of the partition's current lease.
func (p *Partition) Lease() Lease {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lease
}

// Checkpoint records the handler's progress against the lease. Returns
// ErrLeaseLost when another processor has taken the partition; the handler
// should stop pumping when that happens.
func (p *Partition) Checkpoint(ctx context.Context, offset string, sequenceNumber int64) error {
	p.mu.Lock()
	lease := p.lease
	p.mu.Unlock()

	updated, err := p.store.UpdateCheckpoint(ctx, lease, offset, sequenceNumber)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.lease = updated
	p.mu.Unlock()
	return nil
}

func (p *Partition) setLease(l Lease) {
	p.mu.Lock()
	p.lease = l
	p.mu.Unlock()
}

// Options configures a Processor.
type Options struct {
	// Owner identifies this processor in the lease store. Defaults to
	// hostname plus a random suffix.
	Owner string

	// PartitionIDs is the full set of partitions to balance across
	// processors. Required.
	PartitionIDs []string

	// LeaseDuration is how long an acquired lease lasts without renewal.
	// Leases renew at half this interval. Defaults to 30s.
	LeaseDuration time.Duration

	// ScanInterval is how often the processor looks for expired leases and
	// rebalances. Defaults to 10s.
	ScanInterval time.Duration

	Logger *logger.CanonicalLogger
}

type ownedPartition struct {
	partition *Partition
	cancel    context.CancelFunc
}

// Processor competes with other processors for partition leases and runs a
// ProcessFunc for every partition it owns. Ownership converges to an even
// split: each scan grabs expired leases first, then steals at most one lease
// from the busiest owner when below fair share.
type Processor struct {
	owner   string
	store   LeaseStore
	handler ProcessFunc
	opts    Options
	logger  *logger.CanonicalLogger

	mu    sync.Mutex
	owned map[string]*ownedPartition
	group *errgroup.Group
}

// NewProcessor creates a processor over the given store and handler.
func NewProcessor(store LeaseStore, handler ProcessFunc, opts Options) (*Processor, error) {
	if store == nil {
		return nil, errors.New("eventproc: store is required")
	}
	if handler == nil {
		return nil, errors.New("eventproc: handler is required")
	}
	if len(opts.PartitionIDs) == 0 {
		return nil, errors.New("eventproc: at least one partition id is required")
	}
	if opts.LeaseDuration == 0 {
		opts.LeaseDuration = defaultLeaseDuration
	}
	if opts.ScanInterval == 0 {
		opts.ScanInterval = defaultScanInterval
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	owner := opts.Owner
	if owner == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "processor"
		}
		owner = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}
	return &Processor{
		owner:   owner,
		store:   store,
		handler: handler,
		opts:    opts,
		logger:  opts.Logger.Component("eventproc"),
		owned:   make(map[string]*ownedPartition),
	}, nil
}

// Owner returns the identity this processor registers on its leases.
func (p *Processor) Owner() string {
	return p.owner
}

// Run ensures leases exist, then scans and renews until ctx is canceled. On
// shutdown it cancels all pumps and releases its leases so another processor
// can take over immediately.
func (p *Processor) Run(ctx context.Context) error {
	if err := p.store.EnsureLeases(ctx, p.opts.PartitionIDs); err != nil {
		return fmt.Errorf("failed to ensure leases: %w", err)
	}

	group, gctx := errgroup.WithContext(ctx)
	p.mu.Lock()
	p.group = group
	p.mu.Unlock()

	runner := poll.NewRunner(p.logger)
	runner.Register("lease-scan", func(c context.Context) error {
		return p.scan(c, gctx)
	}, poll.TaskConfig{Interval: p.opts.ScanInterval})
	runner.Register("lease-renew", p.renew, poll.TaskConfig{Interval: p.opts.LeaseDuration / 2})

	// First scan runs immediately so a fresh processor does not wait a
	// full interval to pick up work.
	if err := p.scan(gctx, gctx); err != nil {
		p.logger.WithError(err).Warn("initial lease scan failed")
	}

	if err := runner.Start(gctx); err != nil {
		return err
	}

	<-gctx.Done()
	_ = runner.Stop()
	p.shutdown()
	_ = group.Wait()
	return ctx.Err()
}

// scan acquires expired leases up to fair share, then steals at most one
// lease from the busiest owner.
func (p *Processor) scan(ctx context.Context, pumpCtx context.Context) error {
	leases, err := p.store.ListLeases(ctx)
	if err != nil {
		return fmt.Errorf("failed to list leases: %w", err)
	}

	now := time.Now()
	counts := make(map[string]int)
	for _, l := range leases {
		if !l.Expired(now) {
			counts[l.Owner]++
		}
	}

	owners := len(counts)
	if _, ok := counts[p.owner]; !ok {
		owners++
	}
	fair := len(leases) / owners
	if len(leases)%owners != 0 {
		fair++
	}
	mine := counts[p.owner]

	for _, l := range leases {
		if mine >= fair {
			break
		}
		if l.Owner == p.owner && !l.Expired(now) {
			continue
		}
		if !l.Expired(now) {
			continue
		}
		if err := p.takeLease(ctx, pumpCtx, l.PartitionID); err != nil {
			p.logger.WithError(err).Warn("failed to acquire expired lease",
				logger.String(logger.FieldPartitionID, l.PartitionID))
			continue
		}
		mine++
	}

	if mine >= fair {
		return nil
	}

	// Steal one lease per scan from whoever holds the most, so ownership
	// converges without thrashing.
	busiest := ""
	busiestCount := 0
	for owner, n := range counts {
		if owner == p.owner {
			continue
		}
		if n > busiestCount {
			busiest, busiestCount = owner, n
		}
	}
	if busiest == "" || busiestCount <= mine {
		return nil
	}
	for _, l := range leases {
		if l.Owner != busiest || l.Expired(now) {
			continue
		}
		p.logger.Info("stealing lease",
			logger.String(logger.FieldPartitionID, l.PartitionID),
			logger.String("from_owner", busiest))
		if err := p.takeLease(ctx, pumpCtx, l.PartitionID); err != nil {
			p.logger.WithError(err).Warn("failed to steal lease",
				logger.String(logger.FieldPartitionID, l.PartitionID))
		}
		break
	}
	return nil
}

func (p *Processor) takeLease(ctx context.Context, pumpCtx context.Context, partitionID string) error {
	lease, err := p.store.AcquireLease(ctx, partitionID, p.owner, p.opts.LeaseDuration)
	if err != nil {
		return err
	}
	p.logger.Info("lease acquired",
		logger.String(logger.FieldPartitionID, partitionID),
		logger.Int64(logger.FieldEpoch, lease.Epoch))
	p.startPump(pumpCtx, lease)
	return nil
}

// renew extends every owned lease. A lost lease cancels its pump.
func (p *Processor) renew(ctx context.Context) error {
	p.mu.Lock()
	owned := make(map[string]*ownedPartition, len(p.owned))
	for id, op := range p.owned {
		owned[id] = op
	}
	p.mu.Unlock()

	for id, op := range owned {
		renewed, err := p.store.RenewLease(ctx, op.partition.Lease(), p.opts.LeaseDuration)
		if errors.Is(err, ErrLeaseLost) || errors.Is(err, ErrLeaseNotFound) {
			p.logger.Warn("lease lost, stopping pump",
				logger.String(logger.FieldPartitionID, id))
			p.dropPartition(id)
			continue
		}
		if err != nil {
			p.logger.WithError(err).Warn("failed to renew lease",
				logger.String(logger.FieldPartitionID, id))
			continue
		}
		op.partition.setLease(renewed)
	}
	return nil
}

func (p *Processor) startPump(ctx context.Context, lease Lease) {
	pctx, cancel := context.WithCancel(ctx)
	part := &Partition{
		ID:    lease.PartitionID,
		store: p.store,
		lease: lease,
	}

	p.mu.Lock()
	if prev, ok := p.owned[lease.PartitionID]; ok {
		prev.cancel()
	}
	p.owned[lease.PartitionID] = &ownedPartition{partition: part, cancel: cancel}
	group := p.group
	p.mu.Unlock()

	log := p.logger.WithPartitionID(part.ID)
	group.Go(func() error {
		defer cancel()
		log.Debug("partition pump started", logger.Int64(logger.FieldEpoch, lease.Epoch))
		err := p.handler(pctx, part)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("partition pump failed")
		}
		return nil
	})
}

func (p *Processor) dropPartition(id string) {
	p.mu.Lock()
	op, ok := p.owned[id]
	if ok {
		delete(p.owned, id)
	}
	p.mu.Unlock()
	if ok {
		op.cancel()
	}
}

// shutdown cancels all pumps and releases held leases. Release uses a fresh
// short-lived context because the run context is already canceled.
func (p *Processor) shutdown() {
	p.mu.Lock()
	owned := p.owned
	p.owned = make(map[string]*ownedPartition)
	p.mu.Unlock()

	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for id, op := range owned {
		op.cancel()
		if err := p.store.ReleaseLease(releaseCtx, op.partition.Lease()); err != nil {
			p.logger.WithError(err).Warn("failed to release lease on shutdown",
				logger.String(logger.FieldPartitionID, id))
			continue
		}
		p.logger.Info("lease released", logger.String(logger.FieldPartitionID, id))
	}
}
