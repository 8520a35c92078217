package poll

import (
	"context"
	"time"
)

// Task is a unit of periodic work. Errors are logged, not fatal; the task
// runs again on its next tick.
type Task func(ctx context.Context) error

// TaskConfig holds scheduling for one registered task.
type TaskConfig struct {
	Interval time.Duration
}

type metaTask struct {
	Task
	TaskConfig
}

// Runner schedules registered tasks at their configured intervals.
type Runner interface {
	// Start begins running tasks in the background.
	Start(ctx context.Context) error
	// Stop gracefully stops all tasks.
	Stop() error
	// Register adds a named task. Panics on duplicate names.
	Register(name string, task Task, config TaskConfig)
}
