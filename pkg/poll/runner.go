package poll

import (
	"context"
	"time"

	"github.com/Alwanly/cloud-sdk-go/pkg/logger"
	"go.uber.org/zap"
)

// runner implements the Runner interface
type runner struct {
	logger *logger.CanonicalLogger
	stopCh chan struct{}
	tasks  map[string]metaTask
}

// NewRunner creates a new Runner instance
func NewRunner(log *logger.CanonicalLogger) Runner {
	return &runner{
		logger: log,
		stopCh: make(chan struct{}),
		tasks:  make(map[string]metaTask),
	}
}

// Start begins running registered tasks in the background
func (r *runner) Start(ctx context.Context) error {
	go r.run(ctx)
	return nil
}

// Stop gracefully stops the runner
func (r *runner) Stop() error {
	close(r.stopCh)
	return nil
}

// run performs the scheduling loop
func (r *runner) run(ctx context.Context) {
	tickers := make(map[string]*time.Ticker)
	for name, meta := range r.tasks {
		tickers[name] = time.NewTicker(meta.Interval)
		r.logger.Info("started task", zap.String("name", name), zap.Duration("interval", meta.Interval))
	}

	for {
		select {
		case <-r.stopCh:
			r.logger.Info("stopping runner")
			for _, ticker := range tickers {
				ticker.Stop()
			}
			return
		case <-ctx.Done():
			for _, ticker := range tickers {
				ticker.Stop()
			}
			return
		default:
			for name, ticker := range tickers {
				select {
				case <-ticker.C:
					r.runTask(ctx, name)
				default:
				}
			}
			time.Sleep(100 * time.Millisecond) // Prevent tight loop
		}
	}
}

// runTask executes a single task by name
func (r *runner) runTask(ctx context.Context, name string) {
	meta, ok := r.tasks[name]
	if !ok {
		return
	}
	r.logger.Debug("running task", zap.String("name", name))
	if err := meta.Task(ctx); err != nil {
		r.logger.Error("task failed", zap.String("name", name), zap.Error(err))
	}
}

// Register adds a named task with its schedule
func (r *runner) Register(name string, task Task, config TaskConfig) {
	if name == "" || task == nil {
		r.logger.Error("invalid task registration")
		return
	}
	if _, exists := r.tasks[name]; exists {
		panic("name already existing")
	}
	r.tasks[name] = metaTask{
		Task:       task,
		TaskConfig: config,
	}
	r.logger.Info("task registered", zap.String("name", name), zap.Duration("interval", config.Interval))
}
